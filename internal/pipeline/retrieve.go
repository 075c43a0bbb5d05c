package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/config"
	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/model"
	"github.com/sells-group/claims-triage/pkg/openai"
)

// BuildRetrievalQuery composes the policy search query from the structured
// denial. The verbatim reason text carries most of the signal; codes and
// payor narrow the match.
func BuildRetrievalQuery(denial *model.ClaimDenial) string {
	parts := []string{
		string(denial.DenialReason),
		denial.DenialReasonText,
	}
	if len(denial.CPTCodes) > 0 {
		parts = append(parts, "CPT "+strings.Join(denial.CPTCodes, " "))
	}
	if denial.PayorName != "" {
		parts = append(parts, denial.PayorName)
	}
	return strings.Join(parts, " ")
}

// RetrievePhase embeds the denial query and returns the closest policy
// chunks above the relevance floor, ordered most relevant first.
func RetrievePhase(
	ctx context.Context,
	denial *model.ClaimDenial,
	embedder openai.Client,
	index *docstore.Index,
	cfg config.RetrievalConfig,
) (*model.RetrievalResult, error) {
	query := BuildRetrievalQuery(denial)

	vector, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: embed retrieval query")
	}

	matches, err := index.Query(ctx, vector, cfg.TopK)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: query policy index")
	}

	result := &model.RetrievalResult{Query: query}
	for _, m := range matches {
		doc := m.ToRetrieved()
		if doc.Relevance < cfg.MinRelevance {
			continue
		}
		result.Documents = append(result.Documents, doc)
	}

	zap.L().Info("pipeline: retrieved policy context",
		zap.String("denial_reason", string(denial.DenialReason)),
		zap.Int("matches", len(result.Documents)),
	)
	return result, nil
}
