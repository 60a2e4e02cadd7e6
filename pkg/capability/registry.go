package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sameehj/kai-node/pkg/metrics"
)

// Registry dispatches requests to the first registered capability that
// claims the command.
type Registry struct {
	mu      sync.RWMutex
	caps    []Capability
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Register appends c. Earlier registrations win on overlapping commands.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps = append(r.caps, c)
}

// Find returns the capability that would handle command.
func (r *Registry) Find(command string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.caps {
		if c.CanHandle(command) {
			return c, true
		}
	}
	return nil, false
}

// Invoke executes req and always returns a response for it. Handler panics
// are converted into error responses.
func (r *Registry) Invoke(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logError("capability_panic", "command", req.Command, "panic", fmt.Sprint(rec))
			resp = Error(req.ID, fmt.Sprintf("Execution failed: %v", rec))
		}
		r.metrics.ObserveInvocation(req.Command, resp.OK)
	}()

	c, ok := r.Find(req.Command)
	if !ok {
		r.logWarn("unknown_command", "command", req.Command)
		return Error(req.ID, "Unknown command: "+req.Command)
	}
	resp = c.Execute(ctx, req)
	if resp.ID == "" {
		resp.ID = req.ID
	}
	return resp
}

// Commands lists every command of every capability in registration order.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, c := range r.caps {
		out = append(out, c.Commands()...)
	}
	return out
}

// Categories lists the distinct categories in registration order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.caps))
	var out []string
	for _, c := range r.caps {
		if seen[c.Category()] {
			continue
		}
		seen[c.Category()] = true
		out = append(out, c.Category())
	}
	return out
}

func (r *Registry) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Registry) logError(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, args...)
	}
}
