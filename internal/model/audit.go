package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType is the closed set of auditable pipeline events.
type AuditEventType string

const (
	EventIngestion             AuditEventType = "ingestion"
	EventExtraction            AuditEventType = "extraction"
	EventRetrieval             AuditEventType = "retrieval"
	EventDecision              AuditEventType = "decision"
	EventCitationVerification  AuditEventType = "citation_verification"
	EventHallucinationDetected AuditEventType = "hallucination_detected"
	EventDraftCreated          AuditEventType = "draft_created"
	EventHumanApproved         AuditEventType = "human_approved"
	EventHumanRejected         AuditEventType = "human_rejected"
	EventSubmission            AuditEventType = "submission"
	EventSystemError           AuditEventType = "system_error"
)

// AuditEvent is a single timestamped entry in a run's audit trail.
// Events are immutable once appended.
type AuditEvent struct {
	EventID      uuid.UUID      `json:"event_id"`
	Type         AuditEventType `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	Stage        string         `json:"stage,omitempty"`
	ClaimID      uuid.UUID      `json:"claim_id,omitempty"`
	Description  string         `json:"description"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AuditLog is an immutable, ordered snapshot of a run's audit trail.
type AuditLog struct {
	LogID        uuid.UUID    `json:"log_id"`
	RunID        string       `json:"run_id"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  time.Time    `json:"completed_at,omitempty"`
	Events       []AuditEvent `json:"events"`
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
}
