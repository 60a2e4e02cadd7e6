package approval

import (
	"encoding/json"
	"strings"
)

// Action is what a matching rule decides for a command.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	// ActionPrompt defers the decision to an external confirmation step.
	ActionPrompt Action = "prompt"
)

// ParseAction maps free-form text onto an Action. Anything that is not
// "allow" or "prompt" (case-insensitive) is treated as deny.
func ParseAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ActionAllow):
		return ActionAllow
	case string(ActionPrompt):
		return ActionPrompt
	default:
		return ActionDeny
	}
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = ParseAction(s)
	return nil
}

// Rule is one ordered entry of the policy. An empty Shells list matches every shell.
type Rule struct {
	Pattern     string   `json:"pattern"`
	Action      Action   `json:"action"`
	Shells      []string `json:"shells,omitempty"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
}

// UnmarshalJSON defaults Enabled to true and Pattern to "*" when absent.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	decoded := plain{Pattern: "*", Action: ActionDeny, Enabled: true}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = Rule(decoded)
	return nil
}

// NewRule returns an enabled rule.
func NewRule(pattern string, action Action, description string, shells ...string) Rule {
	r := Rule{Pattern: pattern, Action: action, Description: description, Enabled: true}
	if len(shells) > 0 {
		r.Shells = append([]string(nil), shells...)
	}
	return r
}

func (r Rule) clone() Rule {
	if r.Shells != nil {
		r.Shells = append([]string(nil), r.Shells...)
	}
	return r
}

// appliesTo reports whether the rule is enabled and its shell filter admits shell.
func (r Rule) appliesTo(shell string) bool {
	if !r.Enabled {
		return false
	}
	if len(r.Shells) == 0 {
		return true
	}
	for _, s := range r.Shells {
		if strings.EqualFold(strings.TrimSpace(s), shell) {
			return true
		}
	}
	return false
}

// PolicyData is the durable state of a policy.
type PolicyData struct {
	DefaultAction Action `json:"defaultAction"`
	Rules         []Rule `json:"rules"`
}

func (d PolicyData) clone() PolicyData {
	rules := make([]Rule, len(d.Rules))
	for i, r := range d.Rules {
		rules[i] = r.clone()
	}
	return PolicyData{DefaultAction: d.DefaultAction, Rules: rules}
}

// Decision is the outcome of evaluating a command. Prompt decisions are not
// allowed until something outside the policy confirms them.
type Decision struct {
	Allowed        bool   `json:"allowed"`
	Action         Action `json:"action"`
	Reason         string `json:"reason"`
	MatchedPattern string `json:"matchedPattern,omitempty"`
}

// NeedsPrompt reports whether the decision awaits external confirmation.
func (d Decision) NeedsPrompt() bool {
	return d.Action == ActionPrompt
}
