// Package audit builds the append-only audit trail for a workflow run.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/claims-triage/internal/model"
)

// Builder accumulates audit events for one run. Appends are atomic, events
// are never rewritten, and Snapshot returns an immutable copy at any point.
type Builder struct {
	mu          sync.Mutex
	logID       uuid.UUID
	runID       string
	startedAt   time.Time
	completedAt time.Time
	events      []model.AuditEvent
	successes   int
	errors      int
	now         func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the builder's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates an audit log builder for the given run.
func NewBuilder(runID string, opts ...Option) *Builder {
	b := &Builder{
		logID: uuid.New(),
		runID: runID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.startedAt = b.now().UTC()
	return b
}

// Append records an event. The event is stamped with an ID and a timestamp
// if it does not carry them already, so entries remain ordered and traceable
// even when a stage batches sub-steps.
func (b *Builder) Append(ev model.AuditEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.EventID == uuid.Nil {
		ev.EventID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}
	b.events = append(b.events, ev)
	if ev.Success {
		b.successes++
	} else {
		b.errors++
	}
}

// Finalize stamps the completion time. Further appends are still recorded
// (a failing teardown must not lose its error event) but the completion
// timestamp is set only once.
func (b *Builder) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completedAt.IsZero() {
		b.completedAt = b.now().UTC()
	}
}

// Snapshot returns an immutable copy of the log accumulated so far.
func (b *Builder) Snapshot() model.AuditLog {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := make([]model.AuditEvent, len(b.events))
	copy(events, b.events)

	return model.AuditLog{
		LogID:        b.logID,
		RunID:        b.runID,
		StartedAt:    b.startedAt,
		CompletedAt:  b.completedAt,
		Events:       events,
		SuccessCount: b.successes,
		ErrorCount:   b.errors,
	}
}

// Len returns the number of events appended so far.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Event is a convenience constructor for a successful stage event.
func Event(stage string, typ model.AuditEventType, description string, metadata map[string]any) model.AuditEvent {
	return model.AuditEvent{
		Type:        typ,
		Stage:       stage,
		Description: description,
		Success:     true,
		Metadata:    metadata,
	}
}

// ErrorEvent is a convenience constructor for a failed stage event.
func ErrorEvent(stage string, typ model.AuditEventType, description string, err error) model.AuditEvent {
	ev := model.AuditEvent{
		Type:        typ,
		Stage:       stage,
		Description: description,
		Success:     false,
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}
	return ev
}
