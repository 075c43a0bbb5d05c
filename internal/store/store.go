// Package store persists runs, workflow state, audit trails, and the policy
// chunk index behind a single interface with SQLite and Postgres backends.
package store

import (
	"context"

	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Source string          `json:"source,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the triage pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Workflow state snapshots, serialized by the pipeline. One snapshot
	// per run, overwritten on every transition; resume reads it back.
	SaveRunState(ctx context.Context, runID string, state []byte) error
	GetRunState(ctx context.Context, runID string) ([]byte, error)

	// Audit trail. Events are append-only; there is no update or delete.
	AppendAuditEvent(ctx context.Context, runID string, event model.AuditEvent) error
	ListAuditEvents(ctx context.Context, runID string) ([]model.AuditEvent, error)

	// Policy chunks, persisted so the in-memory index survives restarts.
	SaveChunks(ctx context.Context, chunks []docstore.Chunk) error
	ListChunks(ctx context.Context) ([]docstore.Chunk, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
