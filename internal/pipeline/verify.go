package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/config"
	"github.com/sells-group/claims-triage/internal/embedding"
	"github.com/sells-group/claims-triage/internal/model"
	"github.com/sells-group/claims-triage/pkg/openai"
)

// VerifyOutcome is the result of semantic citation verification. Score is
// the fraction of citations that passed; AvgSimilarity is the mean raw
// similarity across attempts, kept for reviewer reporting.
type VerifyOutcome struct {
	Citations          []model.VerifiedCitation
	HallucinationCount int
	Score              float64
	AvgSimilarity      float64
}

// sourceExcerptLen bounds the source text copied onto a VerifiedCitation
// for the audit trail.
const sourceExcerptLen = 200

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ResolveSource returns the source text a citation span points at, preferring
// the actual chunk content over the quote the drafter recorded. A quote that
// cannot be located in any retrieved chunk is verified against itself only if
// nothing better exists, which the short-source rule then rejects.
func ResolveSource(span model.CitationSpan, docs []model.RetrievedDocument) string {
	for _, d := range docs {
		if d.DocumentID != span.DocumentID {
			continue
		}
		if span.StartByte >= d.StartByte && span.EndByte <= d.EndByte && span.EndByte > span.StartByte {
			return d.Content[span.StartByte-d.StartByte : span.EndByte-d.StartByte]
		}
		return d.Content
	}
	return ""
}

// VerifyPhase checks every citation's claim text against its source span by
// embedding similarity. Each citation is judged independently: an embedding
// failure fails that citation alone, and a source shorter than the minimum
// length fails without spending an embedding call. In strict mode any
// invalid citation fails the stage; otherwise the outcome reports the
// hallucination count and the run proceeds to review.
func VerifyPhase(
	ctx context.Context,
	citations []model.Citation,
	retrieval *model.RetrievalResult,
	embedder openai.Client,
	cfg config.VerifyConfig,
) (*VerifyOutcome, error) {
	outcome := &VerifyOutcome{}
	now := time.Now().UTC()

	var scoreSum float64
	for _, c := range citations {
		vc := model.VerifiedCitation{Citation: c, VerifiedAt: now}

		source := ResolveSource(c.Span, retrieval.Documents)
		if source == "" {
			source = c.Span.ExtractedText
		}
		vc.SourceExcerpt = truncateText(source, sourceExcerptLen)

		switch {
		case len(source) < cfg.MinSourceLength:
			// Too little source text to mean anything.
			vc.Valid = false
			vc.Score = 0
		default:
			vectors, err := embedder.EmbedBatch(ctx, []string{c.ClaimText, source})
			if err != nil {
				zap.L().Warn("pipeline: citation embedding failed",
					zap.String("citation_id", c.CitationID.String()),
					zap.Error(err),
				)
				vc.Valid = false
				vc.Score = 0
			} else {
				vc.Score = embedding.Cosine(vectors[0], vectors[1])
				vc.Valid = vc.Score >= cfg.SimilarityThreshold
			}
		}

		if !vc.Valid {
			outcome.HallucinationCount++
		}
		scoreSum += vc.Score
		outcome.Citations = append(outcome.Citations, vc)
	}

	if total := len(outcome.Citations); total > 0 {
		outcome.Score = float64(total-outcome.HallucinationCount) / float64(total)
		outcome.AvgSimilarity = scoreSum / float64(total)
	}

	zap.L().Info("pipeline: verified citations",
		zap.Int("total", len(outcome.Citations)),
		zap.Int("hallucinations", outcome.HallucinationCount),
		zap.Float64("score", outcome.Score),
		zap.Float64("avg_similarity", outcome.AvgSimilarity),
	)

	if cfg.Strict && outcome.HallucinationCount > 0 {
		return outcome, eris.Errorf("pipeline: %d citation(s) failed verification in strict mode", outcome.HallucinationCount)
	}
	return outcome, nil
}
