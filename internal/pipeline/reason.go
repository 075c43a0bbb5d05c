package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/config"
	"github.com/sells-group/claims-triage/internal/model"
	"github.com/sells-group/claims-triage/pkg/anthropic"
)

// extractionEscalationFloor routes claims with very uncertain extraction
// straight to a human instead of reasoning over unreliable fields.
const extractionEscalationFloor = 0.4

const decideSystemPrompt = `You are a healthcare claims analyst deciding whether a denied claim
should be appealed. You are given the structured denial and excerpts from the
payor policies that apply.

Ground every conclusion in the provided policy excerpts. If the excerpts do
not support a clear conclusion, escalate.

Respond with a single JSON object:
{
  "decision": "Appeal" | "NoAppeal" | "Escalate",
  "summary": "<one sentence>",
  "detailed_explanation": "<grounded reasoning>",
  "supporting_document_indexes": [<0-based index into the provided excerpts>],
  "supporting_evidence": ["<quoted policy language>", ...],
  "confidence": <0.0-1.0>,
  "risk_factors": ["<risk>", ...],
  "alternative_interpretation": "<string or empty>",
  "escalation_required": <bool>,
  "escalation_reason": "<string or empty>"
}`

// decideResult is the reasoning model's JSON response shape.
type decideResult struct {
	Decision                  string   `json:"decision"`
	Summary                   string   `json:"summary"`
	DetailedExplanation       string   `json:"detailed_explanation"`
	SupportingDocumentIndexes []int    `json:"supporting_document_indexes"`
	SupportingEvidence        []string `json:"supporting_evidence"`
	Confidence                float64  `json:"confidence"`
	RiskFactors               []string `json:"risk_factors"`
	AlternativeInterpretation string   `json:"alternative_interpretation"`
	EscalationRequired        bool     `json:"escalation_required"`
	EscalationReason          string   `json:"escalation_reason"`
}

// FormatPolicyContext renders retrieved policy chunks for the reasoning and
// drafting prompts. The same rendering is used in both so the draft call
// hits the prompt cache written by the decide call.
func FormatPolicyContext(docs []model.RetrievedDocument) string {
	var sb strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&sb, "[%d] %s (%s, relevance %.2f)\n%s\n\n", i, d.Name, d.Type, d.Relevance, d.Content)
	}
	return sb.String()
}

func formatDenial(denial *model.ClaimDenial) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Claim number: %s\n", denial.ClaimNumber)
	fmt.Fprintf(&sb, "Denial reason: %s\n", denial.DenialReason)
	fmt.Fprintf(&sb, "Denial reason text: %s\n", denial.DenialReasonText)
	if denial.ServiceDate != "" {
		fmt.Fprintf(&sb, "Service date: %s\n", denial.ServiceDate)
	}
	if len(denial.CPTCodes) > 0 {
		fmt.Fprintf(&sb, "CPT codes: %s\n", strings.Join(denial.CPTCodes, ", "))
	}
	if len(denial.ICDCodes) > 0 {
		fmt.Fprintf(&sb, "ICD codes: %s\n", strings.Join(denial.ICDCodes, ", "))
	}
	if denial.BilledAmount > 0 {
		fmt.Fprintf(&sb, "Billed amount: %.2f\n", denial.BilledAmount)
	}
	if denial.PayorName != "" {
		fmt.Fprintf(&sb, "Payor: %s\n", denial.PayorName)
	}
	return sb.String()
}

// DecidePhase reasons over the denial and retrieved policy context and
// produces a Decision. The decision string from the model is mapped through
// the deterministic enum mapping; an explicit escalation flag overrides it,
// and an Appeal whose confidence falls below the appeal bias floor is
// downgraded to Escalate rather than submitted on weak footing.
func DecidePhase(
	ctx context.Context,
	denial *model.ClaimDenial,
	retrieval *model.RetrievalResult,
	client anthropic.Client,
	aiCfg config.AnthropicConfig,
	triageCfg config.TriageConfig,
) (*model.Decision, *anthropic.TokenUsage, error) {
	decision := &model.Decision{
		DecisionID:        uuid.New(),
		ClaimID:           denial.ClaimID,
		DenialID:          denial.DenialID,
		ModelVersion:      aiCfg.SonnetModel,
		PoliciesConsulted: len(retrieval.Documents),
		DecidedAt:         time.Now().UTC(),
	}

	if denial.Confidence < extractionEscalationFloor {
		decision.Type = model.DecisionEscalate
		decision.EscalationReason = fmt.Sprintf("extraction confidence %.2f below %.2f", denial.Confidence, extractionEscalationFloor)
		decision.Rationale = model.DecisionRationale{
			Summary:    "Extraction too uncertain for automated triage.",
			Confidence: denial.Confidence,
		}
		zap.L().Warn("pipeline: escalating low-confidence extraction",
			zap.String("claim_number", model.Redact(denial.ClaimNumber)),
			zap.Float64("confidence", denial.Confidence),
		)
		return decision, nil, nil
	}

	user := fmt.Sprintf("Denied claim:\n%s\nApplicable policy excerpts:\n%s", formatDenial(denial), FormatPolicyContext(retrieval.Documents))

	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     aiCfg.SonnetModel,
		MaxTokens: aiCfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(decideSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: decide")
	}
	resp.Usage.LogCost(aiCfg.SonnetModel, "decide")

	var out decideResult
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, &resp.Usage, eris.Wrap(err, "pipeline: parse decision")
	}

	decision.Type = model.MapDecisionType(out.Decision)
	decision.Rationale = model.DecisionRationale{
		Summary:                   out.Summary,
		DetailedExplanation:       out.DetailedExplanation,
		SupportingEvidence:        out.SupportingEvidence,
		Confidence:                out.Confidence,
		RiskFactors:               out.RiskFactors,
		AlternativeInterpretation: out.AlternativeInterpretation,
	}
	for _, idx := range out.SupportingDocumentIndexes {
		if idx >= 0 && idx < len(retrieval.Documents) {
			decision.Rationale.SupportingPolicyRefs = append(decision.Rationale.SupportingPolicyRefs, retrieval.Documents[idx].DocumentID)
		}
	}

	switch {
	case out.EscalationRequired:
		decision.Type = model.DecisionEscalate
		decision.EscalationReason = out.EscalationReason
		if decision.EscalationReason == "" {
			decision.EscalationReason = "model requested escalation"
		}
	case decision.Type == model.DecisionAppeal && out.Confidence < 1-triageCfg.AppealBias:
		decision.Type = model.DecisionEscalate
		decision.EscalationReason = fmt.Sprintf("appeal confidence %.2f below floor %.2f", out.Confidence, 1-triageCfg.AppealBias)
	}

	zap.L().Info("pipeline: decision",
		zap.String("claim_number", model.Redact(denial.ClaimNumber)),
		zap.String("decision", string(decision.Type)),
		zap.Float64("confidence", out.Confidence),
	)
	return decision, &resp.Usage, nil
}
