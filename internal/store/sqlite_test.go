package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Runs ---

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "letters/denial-001.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "letters/denial-001.pdf", got.Source)
	assert.Equal(t, model.RunStatusQueued, got.Status)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "letters/denial-002.pdf")
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusAwaitingReview))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusAwaitingReview, got.Status)
}

func TestSQLite_UpdateRunStatus_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateRunStatus(context.Background(), "missing", model.RunStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_UpdateRunResult(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "letters/denial-003.pdf")
	require.NoError(t, err)

	result := &model.RunResult{
		Success:            true,
		FinalStep:          "done",
		DecisionType:       model.DecisionAppeal,
		Submitted:          true,
		ExecutionReference: "APL-deadbeef-20260901",
	}
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, result))
}

func TestSQLite_ListRuns_FiltersAndOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "letters/a.pdf")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	b, err := st.CreateRun(ctx, "letters/b.pdf")
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunStatus(ctx, a.ID, model.RunStatusComplete))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID) // newest first

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)

	bySource, err := st.ListRuns(ctx, RunFilter{Source: "letters/b.pdf"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, b.ID, bySource[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Run state ---

func TestSQLite_RunState_SaveOverwriteGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "letters/state.pdf")
	require.NoError(t, err)

	require.NoError(t, st.SaveRunState(ctx, run.ID, []byte(`{"state":"retrieve"}`)))
	require.NoError(t, st.SaveRunState(ctx, run.ID, []byte(`{"state":"review"}`)))

	state, err := st.GetRunState(ctx, run.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"review"}`, string(state))
}

func TestSQLite_RunState_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRunState(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Audit trail ---

func TestSQLite_AuditEvents_AppendAndListInOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "letters/audit.pdf")
	require.NoError(t, err)

	for _, typ := range []model.AuditEventType{
		model.EventIngestion,
		model.EventExtraction,
		model.EventDecision,
	} {
		ev := model.AuditEvent{
			EventID:     uuid.New(),
			Type:        typ,
			Timestamp:   time.Now().UTC(),
			Description: "step " + string(typ),
			Success:     true,
			Metadata:    map[string]any{"k": "v"},
		}
		require.NoError(t, st.AppendAuditEvent(ctx, run.ID, ev))
	}

	events, err := st.ListAuditEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, model.EventIngestion, events[0].Type)
	assert.Equal(t, model.EventExtraction, events[1].Type)
	assert.Equal(t, model.EventDecision, events[2].Type)
	assert.Equal(t, "v", events[0].Metadata["k"])
}

func TestSQLite_AuditEvents_EmptyRun(t *testing.T) {
	st := newTestSQLiteStore(t)

	events, err := st.ListAuditEvents(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, events)
}

// --- Policy chunks ---

func TestSQLite_Chunks_SaveAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	docID := uuid.New()
	chunks := []docstore.Chunk{
		{ID: "c1", DocumentID: docID, Name: "policy", Type: "policy",
			Content: "first chunk", Index: 0, StartByte: 0, EndByte: 11,
			SourceFile: "policies/a.md", Vector: []float64{0.1, 0.2}},
		{ID: "c2", DocumentID: docID, Name: "policy", Type: "policy",
			Content: "second chunk", Index: 1, StartByte: 11, EndByte: 23,
			SourceFile: "policies/a.md", Vector: []float64{0.3, 0.4}},
	}
	require.NoError(t, st.SaveChunks(ctx, chunks))

	got, err := st.ListChunks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, docID, got[0].DocumentID)
	assert.Equal(t, []float64{0.1, 0.2}, got[0].Vector)
	assert.Equal(t, "second chunk", got[1].Content)
}

func TestSQLite_Chunks_UpsertReplacesContent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	docID := uuid.New()
	chunk := docstore.Chunk{ID: "c1", DocumentID: docID, Name: "policy", Type: "policy",
		Content: "original", Index: 0, EndByte: 8, SourceFile: "policies/a.md",
		Vector: []float64{0.1}}
	require.NoError(t, st.SaveChunks(ctx, []docstore.Chunk{chunk}))

	chunk.Content = "reindexed"
	chunk.Vector = []float64{0.9}
	require.NoError(t, st.SaveChunks(ctx, []docstore.Chunk{chunk}))

	got, err := st.ListChunks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "reindexed", got[0].Content)
	assert.Equal(t, []float64{0.9}, got[0].Vector)
}
