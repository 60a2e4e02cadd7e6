// Package approval decides whether a command line may run on this node.
//
// A Policy holds an ordered list of glob rules and a default action. Rules
// are evaluated top to bottom; the first enabled rule whose shell filter
// admits the requested shell and whose pattern matches the whole command
// decides. The rule list is persisted as one JSON document per directory and
// every mutation is written through before it returns.
package approval

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sameehj/kai-node/pkg/system"
)

// PolicyFileName is the document a policy owns inside its directory.
const PolicyFileName = "exec-policy.json"

// Policy evaluates and mutates one persisted rule set. A policy must be the
// only writer of its file; all mutations go through the same instance.
type Policy struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	data PolicyData
}

// New loads the policy stored in dir. A missing file is seeded with
// DefaultPolicyData and written; an unreadable or corrupt file is left alone
// and the defaults are used in memory. The error reports a failed seed write;
// the returned policy is usable either way.
func New(dir string, logger *slog.Logger) (*Policy, error) {
	p := &Policy{path: filepath.Join(dir, PolicyFileName), logger: logger}
	return p, p.load()
}

func (p *Policy) Path() string {
	return p.path
}

// Evaluate decides command for shell. It never mutates the policy.
func (p *Policy) Evaluate(command, shell string) Decision {
	command = strings.TrimSpace(command)
	if command == "" {
		return Decision{Allowed: false, Action: ActionDeny, Reason: "Empty command"}
	}
	shell = system.NormalizeShell(shell)

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, rule := range p.data.Rules {
		if !rule.appliesTo(shell) || !MatchesPattern(command, rule.Pattern) {
			continue
		}
		reason := "Matched rule: " + rule.Pattern
		if rule.Description != "" {
			reason += " (" + rule.Description + ")"
		}
		return Decision{
			Allowed:        rule.Action == ActionAllow,
			Action:         rule.Action,
			Reason:         reason,
			MatchedPattern: rule.Pattern,
		}
	}

	def := p.data.DefaultAction
	return Decision{
		Allowed: def == ActionAllow,
		Action:  def,
		Reason:  fmt.Sprintf("No matching rule; default action is %s", def),
	}
}

// SetRules replaces the rule list and, when defaultAction is non-nil, the
// default action.
func (p *Policy) SetRules(rules []Rule, defaultAction *Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make([]Rule, len(rules))
	for i, r := range rules {
		next[i] = r.clone()
	}
	p.data.Rules = next
	if defaultAction != nil {
		p.data.DefaultAction = *defaultAction
	}
	return p.persistLocked()
}

// SetDefaultAction changes only the default action.
func (p *Policy) SetDefaultAction(action Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.DefaultAction = action
	return p.persistLocked()
}

// AddRule appends rule at the lowest precedence.
func (p *Policy) AddRule(rule Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Rules = append(p.data.Rules, rule.clone())
	return p.persistLocked()
}

// InsertRule inserts rule at index, clamped into [0, len(rules)].
func (p *Policy) InsertRule(index int, rule Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 {
		index = 0
	}
	if index > len(p.data.Rules) {
		index = len(p.data.Rules)
	}
	rules := make([]Rule, 0, len(p.data.Rules)+1)
	rules = append(rules, p.data.Rules[:index]...)
	rules = append(rules, rule.clone())
	rules = append(rules, p.data.Rules[index:]...)
	p.data.Rules = rules
	return p.persistLocked()
}

// RemoveRule deletes the rule at index. An index outside [0, len(rules))
// leaves the policy untouched and reports false.
func (p *Policy) RemoveRule(index int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.data.Rules) {
		return false, nil
	}
	rules := make([]Rule, 0, len(p.data.Rules)-1)
	rules = append(rules, p.data.Rules[:index]...)
	rules = append(rules, p.data.Rules[index+1:]...)
	p.data.Rules = rules
	return true, p.persistLocked()
}

// Rules returns a copy of the ordered rule list.
func (p *Policy) Rules() []Rule {
	return p.PolicyData().Rules
}

func (p *Policy) DefaultAction() Action {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.DefaultAction
}

// PolicyData returns a snapshot of the default action and all rules.
func (p *Policy) PolicyData() PolicyData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.clone()
}

func (p *Policy) logInfo(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Policy) logWarn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
