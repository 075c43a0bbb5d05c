package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AppealDraft is the generated appeal letter with its citations and the
// quality metrics derived from them. Created once per appeal decision.
type AppealDraft struct {
	DraftID    uuid.UUID `json:"draft_id"`
	ClaimID    uuid.UUID `json:"claim_id"`
	DenialID   uuid.UUID `json:"denial_id"`
	DecisionID uuid.UUID `json:"decision_id"`

	AppealText    string     `json:"appeal_text"`
	AppealSummary string     `json:"appeal_summary"`
	Citations     []Citation `json:"citations"`
	KeyArguments  []string   `json:"key_arguments"`

	CitationCoverage      float64 `json:"citation_coverage"`
	HallucinationRisk     float64 `json:"hallucination_risk"`
	AvgCitationConfidence float64 `json:"avg_citation_confidence"`
	AuditSummary          string  `json:"audit_summary"`

	ModelVersion string    `json:"model_version"`
	DraftedAt    time.Time `json:"drafted_at"`
}

// AppealStatus tracks an appeal through review and submission.
type AppealStatus string

const (
	AppealDrafted   AppealStatus = "drafted"
	AppealApproved  AppealStatus = "approved"
	AppealRejected  AppealStatus = "rejected"
	AppealSubmitted AppealStatus = "submitted"
)

// Appeal is the final record after human review, carrying the reviewed text,
// the verified citations, and submission details once executed.
type Appeal struct {
	AppealID            uuid.UUID          `json:"appeal_id"`
	DraftID             uuid.UUID          `json:"draft_id"`
	ClaimID             uuid.UUID          `json:"claim_id"`
	Status              AppealStatus       `json:"status"`
	FinalText           string             `json:"final_text"`
	FinalCitations      []VerifiedCitation `json:"final_citations"`
	ReviewedBy          string             `json:"reviewed_by,omitempty"`
	ReviewedAt          time.Time          `json:"reviewed_at,omitempty"`
	ReviewNotes         string             `json:"review_notes,omitempty"`
	SubmittedAt         time.Time          `json:"submitted_at,omitempty"`
	SubmissionReference string             `json:"submission_reference,omitempty"`
}

// BuildAuditSummary renders the compact citation summary shown to a reviewer.
func BuildAuditSummary(citations []Citation, coverage, risk float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Citations: %d | Coverage: %.1f%% | Hallucination risk: %.1f%%\n", len(citations), coverage*100, risk*100)
	if coverage >= 0.85 {
		b.WriteString("All key arguments cited.\n")
	} else {
		b.WriteString("Some arguments lack citations; review before approval.\n")
	}
	for i, c := range citations {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Span.DocumentID, truncate(c.Span.ExtractedText, 80))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
