package capability

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sameehj/kai-node/pkg/approval"
	"github.com/sameehj/kai-node/pkg/exec"
	"github.com/sameehj/kai-node/pkg/metrics"
	"github.com/sameehj/kai-node/pkg/safety"
	"github.com/sameehj/kai-node/pkg/system"
)

const (
	CommandNotify       = "system.notify"
	CommandRun          = "system.run"
	CommandWhich        = "system.which"
	CommandApprovalsGet = "system.execApprovals.get"
	CommandApprovalsSet = "system.execApprovals.set"
)

// DefaultRunTimeout applies to system.run requests that carry no timeout.
const DefaultRunTimeout = 30 * time.Second

// DefaultNotifyTitle is used when system.notify carries no title.
const DefaultNotifyTitle = "kai-node"

// ExecPolicy is the part of approval.Policy the system capability uses.
type ExecPolicy interface {
	Evaluate(command, shell string) approval.Decision
	PolicyData() approval.PolicyData
	SetRules(rules []approval.Rule, defaultAction *approval.Action) error
}

// SystemCapability serves the system.* commands. Without a policy every
// command line is passed to the runner.
type SystemCapability struct {
	Base

	runner   exec.Runner
	policy   ExecPolicy
	approver safety.Approver
	audit    safety.AuditRecorder
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	defaultTimeout time.Duration
	defaultShell   string
	lookup         func(bin string) (string, bool)
}

func NewSystemCapability(logger *slog.Logger) *SystemCapability {
	return &SystemCapability{
		Base:           NewBase("system", CommandNotify, CommandRun, CommandWhich, CommandApprovalsGet, CommandApprovalsSet),
		logger:         logger,
		defaultTimeout: DefaultRunTimeout,
		lookup:         system.Which,
	}
}

func (c *SystemCapability) SetCommandRunner(r exec.Runner) { c.runner = r }
func (c *SystemCapability) SetApprovalPolicy(p ExecPolicy) { c.policy = p }
func (c *SystemCapability) SetApprover(a safety.Approver) { c.approver = a }
func (c *SystemCapability) SetAuditRecorder(r safety.AuditRecorder) { c.audit = r }
func (c *SystemCapability) SetNotifier(n Notifier) { c.notifier = n }
func (c *SystemCapability) SetMetrics(m *metrics.Metrics) { c.metrics = m }
func (c *SystemCapability) SetLogger(logger *slog.Logger) { c.logger = logger }
func (c *SystemCapability) SetDefaultShell(shell string) { c.defaultShell = shell }
func (c *SystemCapability) SetDefaultTimeout(d time.Duration) { c.defaultTimeout = d }

func (c *SystemCapability) Execute(ctx context.Context, req Request) Response {
	switch req.Command {
	case CommandNotify:
		return c.handleNotify(req)
	case CommandRun:
		return c.handleRun(ctx, req)
	case CommandWhich:
		return c.handleWhich(req)
	case CommandApprovalsGet:
		return c.handleApprovalsGet(req)
	case CommandApprovalsSet:
		return c.handleApprovalsSet(req)
	default:
		return Error(req.ID, "Unknown command: "+req.Command)
	}
}

func (c *SystemCapability) handleNotify(req Request) Response {
	n := Notification{
		Title:     StringArg(req.Args, "title", DefaultNotifyTitle),
		Body:      StringArg(req.Args, "body", ""),
		Subtitle:  StringArg(req.Args, "subtitle", ""),
		PlaySound: BoolArg(req.Args, "sound", true),
	}
	c.logInfo("system_notify", "title", n.Title, "body", n.Body)
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
	return Success(req.ID, map[string]interface{}{"sent": true})
}

// runRequest normalizes the two accepted shapes of the command argument: an
// argv array, or a string with an optional separate args array.
func (c *SystemCapability) runRequest(args map[string]interface{}) (exec.Request, bool) {
	var runReq exec.Request
	switch args["command"].(type) {
	case []interface{}, []string:
		argv := StringSliceArg(args, "command")
		if len(argv) == 0 {
			return runReq, false
		}
		runReq.Command = argv[0]
		if len(argv) > 1 {
			runReq.Args = argv[1:]
		}
	case string:
		runReq.Command = StringArg(args, "command", "")
		if extra := StringSliceArg(args, "args"); len(extra) > 0 {
			runReq.Args = extra
		}
	}
	if strings.TrimSpace(runReq.Command) == "" {
		return runReq, false
	}

	runReq.Shell = StringArg(args, "shell", c.defaultShell)
	runReq.Cwd = StringArg(args, "cwd", "")
	runReq.TimeoutMs = IntArg(args, "timeoutMs", IntArg(args, "timeout", int(c.defaultTimeout.Milliseconds())))
	if env := StringMapArg(args, "env"); len(env) > 0 {
		runReq.Env = env
	}
	return runReq, true
}

func (c *SystemCapability) handleRun(ctx context.Context, req Request) Response {
	runReq, ok := c.runRequest(req.Args)
	if !ok {
		return Error(req.ID, "Missing command parameter")
	}
	shell := runReq.Shell
	if shell == "" {
		shell = "auto"
	}
	c.logInfo("system_run", "command", runReq.Line(), "shell", shell, "timeout_ms", runReq.TimeoutMs)

	if c.policy != nil {
		if reason, allowed := c.authorize(ctx, runReq); !allowed {
			c.logWarn("system_run_denied", "command", runReq.Line(), "reason", reason)
			return Error(req.ID, "Command denied by exec policy: "+reason)
		}
	}

	if c.runner == nil {
		return Error(req.ID, "Command execution not available")
	}

	res, err := c.runner.Run(ctx, runReq)
	if err != nil {
		c.logError("system_run_failed", "command", runReq.Line(), "runner", c.runner.Name(), "error", err)
		return Error(req.ID, "Execution failed: "+err.Error())
	}
	c.metrics.ObserveRun(system.NormalizeShell(runReq.Shell), res.ExitCode, res.TimedOut, time.Duration(res.DurationMs)*time.Millisecond)

	return Success(req.ID, map[string]interface{}{
		"stdout":     res.Stdout,
		"stderr":     res.Stderr,
		"exitCode":   res.ExitCode,
		"timedOut":   res.TimedOut,
		"durationMs": res.DurationMs,
	})
}

// authorize evaluates the full command line. Prompt decisions are resolved by
// the approver; without one they are refused.
func (c *SystemCapability) authorize(ctx context.Context, runReq exec.Request) (string, bool) {
	line := runReq.Line()
	decision := c.policy.Evaluate(line, runReq.Shell)

	reason, allowed := decision.Reason, decision.Allowed
	if decision.NeedsPrompt() {
		reason, allowed = c.confirm(ctx, runReq, decision)
	}

	c.metrics.ObserveDecision(string(decision.Action), allowed)
	c.record(line, decision, allowed, reason)
	return reason, allowed
}

func (c *SystemCapability) confirm(ctx context.Context, runReq exec.Request, decision approval.Decision) (string, bool) {
	if c.approver == nil {
		return "approval required: " + decision.Reason, false
	}
	ok, err := c.approver.Approve(ctx, safety.ApprovalRequest{
		Command:        runReq.Line(),
		Shell:          system.NormalizeShell(runReq.Shell),
		Cwd:            runReq.Cwd,
		Reason:         decision.Reason,
		MatchedPattern: decision.MatchedPattern,
	})
	if err != nil {
		c.logWarn("approval_failed", "command", runReq.Line(), "error", err)
		return "approval refused", false
	}
	if !ok {
		return "approval refused", false
	}
	return decision.Reason, true
}

func (c *SystemCapability) record(line string, decision approval.Decision, allowed bool, reason string) {
	if c.audit == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	event := safety.NewAuditEvent(CommandRun, string(decision.Action), result, line+": "+reason)
	if err := c.audit.Record(event); err != nil {
		c.logWarn("audit_record_failed", "error", err)
	}
}

func (c *SystemCapability) handleWhich(req Request) Response {
	var bins []string
	for _, bin := range StringSliceArg(req.Args, "bins") {
		if bin = strings.TrimSpace(bin); bin != "" {
			bins = append(bins, bin)
		}
	}
	if len(bins) == 0 {
		return Error(req.ID, "Missing bins parameter")
	}

	found := make(map[string]string, len(bins))
	for _, bin := range bins {
		if path, ok := c.lookup(bin); ok {
			found[bin] = path
		}
	}
	c.logInfo("system_which", "queried", len(bins), "found", len(found))
	return Success(req.ID, map[string]interface{}{"bins": found})
}

func (c *SystemCapability) handleApprovalsGet(req Request) Response {
	if c.policy == nil {
		return Success(req.ID, map[string]interface{}{
			"enabled": false,
			"message": "No exec policy configured",
		})
	}
	data := c.policy.PolicyData()
	return Success(req.ID, map[string]interface{}{
		"enabled":       true,
		"defaultAction": data.DefaultAction,
		"rules":         data.Rules,
	})
}

func (c *SystemCapability) handleApprovalsSet(req Request) Response {
	if c.policy == nil {
		return Error(req.ID, "No exec policy configured")
	}

	rules := parseRules(req.Args["rules"])
	var defaultAction *approval.Action
	if s, ok := req.Args["defaultAction"].(string); ok {
		action := approval.ParseAction(s)
		defaultAction = &action
	}

	if err := c.policy.SetRules(rules, defaultAction); err != nil {
		c.logError("exec_approvals_set_failed", "error", err)
		return Error(req.ID, "Failed to update policy: "+err.Error())
	}
	c.logInfo("exec_approvals_updated", "rules", len(rules))
	return Success(req.ID, map[string]interface{}{"updated": true, "ruleCount": len(rules)})
}

// parseRules reads the rules array of system.execApprovals.set. Missing
// fields take the rule defaults: pattern "*", action deny, enabled.
func parseRules(raw interface{}) []approval.Rule {
	items, _ := raw.([]interface{})
	rules := make([]approval.Rule, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		rule := approval.NewRule(
			StringArg(obj, "pattern", "*"),
			approval.ParseAction(StringArg(obj, "action", string(approval.ActionDeny))),
			StringArg(obj, "description", ""),
			StringSliceArg(obj, "shells")...,
		)
		rule.Enabled = BoolArg(obj, "enabled", true)
		rules = append(rules, rule)
	}
	return rules
}

func (c *SystemCapability) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *SystemCapability) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *SystemCapability) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
