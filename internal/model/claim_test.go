package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapDenialReason_KeywordTable(t *testing.T) {
	tests := []struct {
		text string
		want DenialReason
	}{
		{"Duplicate claim submission detected", DenialDuplicateSubmission},
		{"DUPLICATE of claim 123", DenialDuplicateSubmission},
		{"CPT code does not match documentation", DenialCPTMismatch},
		{"Incorrect procedure code billed", DenialCodingError},
		{"Documentation does not support level of service", DenialDocumentationMismatch},
		{"Insufficient records provided", DenialInsufficientDocumentation},
		{"Member eligibility terminated", DenialEligibilityCutoff},
		{"No prior auth on file", DenialPriorAuthorizationMissing},
		{"Authorization was not obtained", DenialPriorAuthorizationMissing},
		{"Service not medically necessary", DenialNotMedicallyNecessary},
		{"Lacks medical necessity", DenialNotMedicallyNecessary},
		{"Provider is out of network", DenialOutOfNetwork},
		{"Timely filing limit exceeded", DenialTimelyFilingLimit},
		{"Claim past the filing window", DenialTimelyFilingLimit},
		{"Experimental treatment exclusion", DenialOther},
		{"", DenialOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MapDenialReason(tt.text), "text: %q", tt.text)
	}
}

func TestMapDenialReason_Deterministic(t *testing.T) {
	// First match wins: "duplicate" appears before "code" in the table.
	got := MapDenialReason("duplicate submission due to coding system error")
	assert.Equal(t, DenialDuplicateSubmission, got)

	// Same input always maps the same way.
	for i := 0; i < 10; i++ {
		assert.Equal(t, got, MapDenialReason("duplicate submission due to coding system error"))
	}
}

func TestMapDecisionType(t *testing.T) {
	tests := []struct {
		in   string
		want DecisionType
	}{
		{"Appeal", DecisionAppeal},
		{"appeal", DecisionAppeal},
		{"We should file an appeal", DecisionAppeal},
		{"NoAppeal", DecisionNoAppeal},
		{"no appeal", DecisionNoAppeal},
		{"No Appeal - denial is valid", DecisionNoAppeal},
		{"Escalate", DecisionEscalate},
		{"escalate to specialist", DecisionEscalate},
		{"maybe", DecisionEscalate},
		{"", DecisionEscalate},
		{"approved", DecisionEscalate},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MapDecisionType(tt.in), "input: %q", tt.in)
	}
}
