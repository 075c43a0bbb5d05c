package model

import "time"

// RunStatus tracks a workflow run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusRunning        RunStatus = "running"
	RunStatusAwaitingReview RunStatus = "awaiting_review"
	RunStatusComplete       RunStatus = "complete"
	RunStatusFailed         RunStatus = "failed"
)

// Run is the persisted record of a single workflow run.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunResult is the final outcome of a workflow run. For appeal decisions,
// success requires actual submission with no residual error; for no-appeal
// or escalate decisions, success requires only a clean path to the terminal
// state. No decision at all is always a failure.
type RunResult struct {
	RunID              string       `json:"run_id,omitempty"`
	Success            bool         `json:"success"`
	FinalStep          string       `json:"final_step"`
	DecisionType       DecisionType `json:"decision_type,omitempty"`
	Submitted          bool         `json:"submitted"`
	ExecutionReference string       `json:"execution_reference,omitempty"`
	ErrorMessage       string       `json:"error_message,omitempty"`
	CitationCoverage   float64      `json:"citation_coverage,omitempty"`
	HallucinationCount int          `json:"hallucination_count,omitempty"`
	VerificationScore  float64      `json:"verification_score,omitempty"`
	AuditLog           *AuditLog    `json:"audit_log,omitempty"`
}
