package model

import (
	"time"

	"github.com/google/uuid"
)

// CitationSpan identifies the exact source text a citation points at.
type CitationSpan struct {
	DocumentID           uuid.UUID `json:"document_id"`
	StartByte            int       `json:"start_byte,omitempty"`
	EndByte              int       `json:"end_byte,omitempty"`
	PageNumber           int       `json:"page_number,omitempty"`
	ParagraphIndex       int       `json:"paragraph_index,omitempty"`
	ExtractedText        string    `json:"extracted_text"`
	ExtractionConfidence float64   `json:"extraction_confidence"`
}

// Citation links a statement in generated appeal prose to the source span it
// claims to be grounded in. A Citation carries no verification verdict; the
// verify stage produces VerifiedCitation values from it.
type Citation struct {
	CitationID uuid.UUID    `json:"citation_id"`
	ClaimText  string       `json:"claim_text"`
	Span       CitationSpan `json:"span"`
	Type       string       `json:"type"` // "policy", "evidence", "clinical"
	CreatedAt  time.Time    `json:"created_at"`
}

// CitationSeverity classifies a verification score for reviewer reporting.
type CitationSeverity string

const (
	SeverityVerified    CitationSeverity = "verified"
	SeverityBorderline  CitationSeverity = "borderline"
	SeverityUnsupported CitationSeverity = "unsupported"
)

// borderlineFloor separates "borderline" (some relevance) from "unsupported"
// (clearly wrong) among citations that failed the accept threshold.
const borderlineFloor = 0.5

// VerifiedCitation is a Citation plus the outcome of semantic verification.
// Produced only by the verify stage; the underlying Citation is unchanged.
type VerifiedCitation struct {
	Citation      Citation  `json:"citation"`
	Score         float64   `json:"score"`
	Valid         bool      `json:"valid"`
	SourceExcerpt string    `json:"source_excerpt,omitempty"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// Severity reports how badly (or not) this citation missed the accept
// threshold. Valid citations are always SeverityVerified.
func (v VerifiedCitation) Severity() CitationSeverity {
	switch {
	case v.Valid:
		return SeverityVerified
	case v.Score >= borderlineFloor:
		return SeverityBorderline
	default:
		return SeverityUnsupported
	}
}
