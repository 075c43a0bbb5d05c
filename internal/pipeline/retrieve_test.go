package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-triage/internal/config"
	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/model"
)

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{TopK: 5, MinRelevance: 0.1}
}

func seedIndex(t *testing.T) *docstore.Index {
	t.Helper()
	ix := docstore.NewIndex()
	require.NoError(t, ix.Add([]docstore.Chunk{
		{ID: "dup", DocumentID: uuid.New(), Name: "duplicate_policy", Type: "policy",
			Content: "Duplicate submissions may be appealed with proof of distinct service.", Vector: []float64{1, 0, 0}},
		{ID: "elig", DocumentID: uuid.New(), Name: "eligibility_policy", Type: "policy",
			Content: "Services after eligibility termination are not covered.", Vector: []float64{0, 1, 0}},
		{ID: "far", DocumentID: uuid.New(), Name: "dental_policy", Type: "policy",
			Content: "Routine dental cleanings are covered twice per year.", Vector: []float64{-1, 0, 0}},
	}))
	return ix
}

func TestBuildRetrievalQuery(t *testing.T) {
	denial := &model.ClaimDenial{
		DenialReason:     model.DenialDuplicateSubmission,
		DenialReasonText: "Duplicate claim submission",
		CPTCodes:         []string{"99213", "99214"},
		PayorName:        "Acme Health",
	}
	q := BuildRetrievalQuery(denial)
	assert.Contains(t, q, "duplicate_submission")
	assert.Contains(t, q, "Duplicate claim submission")
	assert.Contains(t, q, "CPT 99213 99214")
	assert.Contains(t, q, "Acme Health")
}

func TestRetrievePhase_OrdersByRelevance(t *testing.T) {
	ix := seedIndex(t)
	emb := new(mockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{1, 0.2, 0}, nil)

	denial := &model.ClaimDenial{DenialReason: model.DenialDuplicateSubmission, DenialReasonText: "duplicate"}
	result, err := RetrievePhase(context.Background(), denial, emb, ix, testRetrievalConfig())
	require.NoError(t, err)

	// The opposing-vector chunk has relevance 0 and falls under the floor.
	require.Len(t, result.Documents, 2)
	assert.Equal(t, "duplicate_policy", result.Documents[0].Name)
	assert.Greater(t, result.Documents[0].Relevance, result.Documents[1].Relevance)
}

func TestRetrievePhase_TopKLimit(t *testing.T) {
	ix := seedIndex(t)
	emb := new(mockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{1, 0.2, 0}, nil)

	cfg := config.RetrievalConfig{TopK: 1}
	denial := &model.ClaimDenial{DenialReasonText: "duplicate"}
	result, err := RetrievePhase(context.Background(), denial, emb, ix, cfg)
	require.NoError(t, err)
	assert.Len(t, result.Documents, 1)
}

func TestRetrievePhase_EmbedError(t *testing.T) {
	ix := seedIndex(t)
	emb := new(mockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	denial := &model.ClaimDenial{DenialReasonText: "duplicate"}
	_, err := RetrievePhase(context.Background(), denial, emb, ix, testRetrievalConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed retrieval query")
}
