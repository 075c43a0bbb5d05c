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

// maxCitationDocs caps how many retrieved chunks the drafter may cite.
const maxCitationDocs = 5

const draftSystemPrompt = `You write formal appeal letters for denied healthcare claims.

Every argument must quote the provided policy excerpts. Never invent policy
names, section numbers, or coverage rules that do not appear in the excerpts.

Respond with a single JSON object:
{
  "appeal_text": "<the full appeal letter>",
  "appeal_summary": "<one paragraph summary>",
  "key_arguments": ["<argument>", ...],
  "citations": [
    {
      "claim_text": "<the statement from the letter being supported>",
      "document_index": <0-based index into the provided excerpts>,
      "quote": "<verbatim text from that excerpt>"
    }
  ]
}`

// draftResult is the drafting model's JSON response shape.
type draftResult struct {
	AppealText    string          `json:"appeal_text"`
	AppealSummary string          `json:"appeal_summary"`
	KeyArguments  []string        `json:"key_arguments"`
	Citations     []draftCitation `json:"citations"`
}

type draftCitation struct {
	ClaimText     string `json:"claim_text"`
	DocumentIndex int    `json:"document_index"`
	Quote         string `json:"quote"`
}

// DraftPhase generates the appeal letter for an appeal decision and binds
// each cited statement to a retrieved policy chunk. Citation coverage is the
// fraction of key arguments that carry a citation; hallucination risk is its
// complement.
func DraftPhase(
	ctx context.Context,
	denial *model.ClaimDenial,
	decision *model.Decision,
	retrieval *model.RetrievalResult,
	client anthropic.Client,
	cfg config.AnthropicConfig,
) (*model.AppealDraft, *anthropic.TokenUsage, error) {
	if decision.Type != model.DecisionAppeal {
		return nil, nil, eris.Errorf("pipeline: draft requires an appeal decision, got %s", decision.Type)
	}

	docs := retrieval.Documents
	if len(docs) > maxCitationDocs {
		docs = docs[:maxCitationDocs]
	}

	user := fmt.Sprintf("Denied claim:\n%s\nDecision rationale:\n%s\n\nApplicable policy excerpts:\n%s",
		formatDenial(denial), decision.Rationale.DetailedExplanation, FormatPolicyContext(docs))

	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     cfg.SonnetModel,
		MaxTokens: cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(draftSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: draft appeal")
	}
	resp.Usage.LogCost(cfg.SonnetModel, "draft")

	var out draftResult
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, &resp.Usage, eris.Wrap(err, "pipeline: parse draft")
	}
	if strings.TrimSpace(out.AppealText) == "" {
		return nil, &resp.Usage, eris.New("pipeline: draft produced empty appeal text")
	}

	citations := bindCitations(out.Citations, docs)
	coverage := CitationCoverage(len(citations), len(out.KeyArguments))
	risk := 1 - coverage

	draft := &model.AppealDraft{
		DraftID:    uuid.New(),
		ClaimID:    denial.ClaimID,
		DenialID:   denial.DenialID,
		DecisionID: decision.DecisionID,

		AppealText:    out.AppealText,
		AppealSummary: out.AppealSummary,
		Citations:     citations,
		KeyArguments:  out.KeyArguments,

		CitationCoverage:      coverage,
		HallucinationRisk:     risk,
		AvgCitationConfidence: avgExtractionConfidence(citations),
		AuditSummary:          model.BuildAuditSummary(citations, coverage, risk),

		ModelVersion: cfg.SonnetModel,
		DraftedAt:    time.Now().UTC(),
	}

	zap.L().Info("pipeline: drafted appeal",
		zap.String("claim_number", model.Redact(denial.ClaimNumber)),
		zap.Int("citations", len(citations)),
		zap.Float64("coverage", coverage),
		zap.Float64("hallucination_risk", risk),
	)
	return draft, &resp.Usage, nil
}

// CitationCoverage is the fraction of key arguments backed by a citation,
// capped at 1.
func CitationCoverage(citations, arguments int) float64 {
	if arguments < 1 {
		arguments = 1
	}
	coverage := float64(citations) / float64(arguments)
	if coverage > 1 {
		coverage = 1
	}
	return coverage
}

// bindCitations resolves model citations to spans in the retrieved chunks.
// Citations pointing at excerpts that were never provided are dropped: a
// fabricated document index can not become a grounded citation.
func bindCitations(cits []draftCitation, docs []model.RetrievedDocument) []model.Citation {
	var out []model.Citation
	for _, c := range cits {
		if c.DocumentIndex < 0 || c.DocumentIndex >= len(docs) {
			zap.L().Warn("pipeline: dropping citation with unknown document index",
				zap.Int("document_index", c.DocumentIndex),
			)
			continue
		}
		doc := docs[c.DocumentIndex]

		span := model.CitationSpan{
			DocumentID:           doc.DocumentID,
			StartByte:            doc.StartByte,
			EndByte:              doc.EndByte,
			ExtractedText:        c.Quote,
			ExtractionConfidence: doc.Relevance,
		}
		// Narrow the span when the quote appears verbatim in the chunk.
		if off := strings.Index(doc.Content, c.Quote); off >= 0 && c.Quote != "" {
			span.StartByte = doc.StartByte + off
			span.EndByte = span.StartByte + len(c.Quote)
			span.ExtractionConfidence = 1.0
		}

		out = append(out, model.Citation{
			CitationID: uuid.New(),
			ClaimText:  c.ClaimText,
			Span:       span,
			Type:       "policy",
			CreatedAt:  time.Now().UTC(),
		})
	}
	return out
}

func avgExtractionConfidence(cits []model.Citation) float64 {
	if len(cits) == 0 {
		return 0
	}
	var sum float64
	for _, c := range cits {
		sum += c.Span.ExtractionConfidence
	}
	return sum / float64(len(cits))
}
