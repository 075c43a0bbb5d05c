package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DecisionType is the outcome of policy reasoning over a denial.
type DecisionType string

const (
	DecisionAppeal   DecisionType = "appeal"
	DecisionNoAppeal DecisionType = "no_appeal"
	DecisionEscalate DecisionType = "escalate"
)

// MapDecisionType maps a free-text decision string from the reasoning model
// to the DecisionType enum. Ambiguous text routes to DecisionEscalate so an
// unparseable answer can never silently become an automatic appeal or denial.
func MapDecisionType(s string) DecisionType {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(lower, "no appeal"), strings.Contains(lower, "noappeal"):
		return DecisionNoAppeal
	case strings.Contains(lower, "appeal") && !strings.Contains(lower, "no"):
		return DecisionAppeal
	case strings.Contains(lower, "escalate"):
		return DecisionEscalate
	}
	return DecisionEscalate
}

// DecisionRationale is the structured reasoning backing a decision.
type DecisionRationale struct {
	Summary                  string      `json:"summary"`
	DetailedExplanation      string      `json:"detailed_explanation"`
	SupportingPolicyRefs     []uuid.UUID `json:"supporting_policy_refs,omitempty"`
	SupportingEvidence       []string    `json:"supporting_evidence,omitempty"`
	Confidence               float64     `json:"confidence"`
	RiskFactors              []string    `json:"risk_factors,omitempty"`
	AlternativeInterpretation string     `json:"alternative_interpretation,omitempty"`
}

// Decision is the immutable output of the reason stage.
type Decision struct {
	DecisionID         uuid.UUID         `json:"decision_id"`
	ClaimID            uuid.UUID         `json:"claim_id"`
	DenialID           uuid.UUID         `json:"denial_id"`
	Type               DecisionType      `json:"type"`
	Rationale          DecisionRationale `json:"rationale"`
	EscalationReason   string            `json:"escalation_reason,omitempty"`
	ModelVersion       string            `json:"model_version"`
	PoliciesConsulted  int               `json:"policies_consulted"`
	DecidedAt          time.Time         `json:"decided_at"`
}
