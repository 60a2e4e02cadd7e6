package safety

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditRecorder records safety related events.
type AuditRecorder interface {
	Record(event AuditEvent) error
}

// AuditEvent is one execution decision.
type AuditEvent struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Subject string    `json:"subject"`
	Action  string    `json:"action"`
	Result  string    `json:"result"`
	Detail  string    `json:"detail,omitempty"`
}

// NewAuditEvent stamps an event with a fresh ID and the current time.
func NewAuditEvent(subject, action, result, detail string) AuditEvent {
	return AuditEvent{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Subject: subject,
		Action:  action,
		Result:  result,
		Detail:  detail,
	}
}

// LogRecorder writes audit events to a structured logger.
type LogRecorder struct {
	logger *slog.Logger
}

func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(event AuditEvent) error {
	if r == nil || r.logger == nil {
		return nil
	}
	r.logger.Info("audit_event",
		"audit_id", event.ID,
		"subject", event.Subject,
		"action", event.Action,
		"result", event.Result,
		"detail", event.Detail,
	)
	return nil
}

// MemoryRecorder keeps events in memory, newest last.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *MemoryRecorder) Record(event AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *MemoryRecorder) Events() []AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuditEvent(nil), r.events...)
}

// MultiRecorder fans an event out to every recorder and joins their errors.
type MultiRecorder []AuditRecorder

func (m MultiRecorder) Record(event AuditEvent) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
