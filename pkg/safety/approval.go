// Package safety holds the collaborators that sit around command execution:
// confirmation of commands the policy marks for prompting, and an audit trail
// of execution decisions.
package safety

import "context"

// ApprovalRequest describes a command awaiting confirmation.
type ApprovalRequest struct {
	Command        string `json:"command"`
	Shell          string `json:"shell"`
	Cwd            string `json:"cwd,omitempty"`
	Reason         string `json:"reason"`
	MatchedPattern string `json:"matchedPattern,omitempty"`
}

// Approver confirms or refuses a prompted command. An error is treated as a
// refusal by callers.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (bool, error) {
	return f(ctx, req)
}

// StaticApprover answers every request the same way.
type StaticApprover bool

func (s StaticApprover) Approve(ctx context.Context, _ ApprovalRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return bool(s), nil
}
