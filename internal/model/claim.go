// Package model defines the core data types shared across the triage pipeline.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// DenialReason is the closed set of recognized claim denial reasons.
type DenialReason string

const (
	DenialDuplicateSubmission       DenialReason = "duplicate_submission"
	DenialCPTMismatch               DenialReason = "cpt_mismatch"
	DenialDocumentationMismatch     DenialReason = "documentation_mismatch"
	DenialEligibilityCutoff         DenialReason = "eligibility_cutoff"
	DenialPriorAuthorizationMissing DenialReason = "prior_authorization_missing"
	DenialNotMedicallyNecessary     DenialReason = "not_medically_necessary"
	DenialOutOfNetwork              DenialReason = "out_of_network"
	DenialTimelyFilingLimit         DenialReason = "timely_filing_limit"
	DenialCodingError               DenialReason = "coding_error"
	DenialInsufficientDocumentation DenialReason = "insufficient_documentation"
	DenialOther                     DenialReason = "other"
)

// reasonKeyword pairs a lowercase keyword with the denial reason it maps to.
// Order matters: the first matching keyword wins.
type reasonKeyword struct {
	keyword string
	reason  DenialReason
}

var reasonKeywords = []reasonKeyword{
	{"duplicate", DenialDuplicateSubmission},
	{"cpt", DenialCPTMismatch},
	{"code", DenialCodingError},
	{"documentation", DenialDocumentationMismatch},
	{"insufficient", DenialInsufficientDocumentation},
	{"eligibility", DenialEligibilityCutoff},
	{"prior auth", DenialPriorAuthorizationMissing},
	{"authorization", DenialPriorAuthorizationMissing},
	{"medical necessity", DenialNotMedicallyNecessary},
	{"medically necessary", DenialNotMedicallyNecessary},
	{"out of network", DenialOutOfNetwork},
	{"timely", DenialTimelyFilingLimit},
	{"filing", DenialTimelyFilingLimit},
}

var reasonFolder = cases.Fold()

// MapDenialReason maps free-text denial reason language to the closed enum.
// Matching is case-insensitive and first-match-wins over an ordered keyword
// table. Unmatched text maps to DenialOther.
func MapDenialReason(text string) DenialReason {
	folded := reasonFolder.String(strings.TrimSpace(text))
	for _, rk := range reasonKeywords {
		if strings.Contains(folded, rk.keyword) {
			return rk.reason
		}
	}
	return DenialOther
}

// ClaimDenial is the structured record extracted from a denial letter.
// It is created once by the extract stage and never mutated afterward.
type ClaimDenial struct {
	DenialID           uuid.UUID    `json:"denial_id"`
	ClaimID            uuid.UUID    `json:"claim_id"`
	ClaimNumber        string       `json:"claim_number"`
	DenialReason       DenialReason `json:"denial_reason"`
	DenialReasonText   string       `json:"denial_reason_text"`
	ServiceDate        string       `json:"service_date,omitempty"`
	CPTCodes           []string     `json:"cpt_codes,omitempty"`
	ICDCodes           []string     `json:"icd_codes,omitempty"`
	BilledAmount       float64      `json:"billed_amount,omitempty"`
	PayorName          string       `json:"payor_name,omitempty"`
	MemberID           string       `json:"member_id,omitempty"`
	ProviderNPI        string       `json:"provider_npi,omitempty"`
	SourceDocumentID   uuid.UUID    `json:"source_document_id"`
	SourceDocumentPath string       `json:"source_document_path,omitempty"`
	Confidence         float64      `json:"confidence"`
	ExtractedAt        time.Time    `json:"extracted_at"`
}

// FieldConfidence carries per-field extraction confidence alongside the
// overall score, for reviewer display and regression gating.
type FieldConfidence struct {
	Overall float64            `json:"overall"`
	Fields  map[string]float64 `json:"fields,omitempty"`
}
