package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/model"
	"github.com/sells-group/claims-triage/internal/store"
)

// fakeStore is a minimal in-memory Store for handler tests.
type fakeStore struct {
	runs   map[string]*model.Run
	events map[string][]model.AuditEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:   make(map[string]*model.Run),
		events: make(map[string][]model.AuditEvent),
	}
}

func (f *fakeStore) CreateRun(_ context.Context, source string) (*model.Run, error) {
	r := &model.Run{ID: uuid.New().String(), Source: source, Status: model.RunStatusQueued, CreatedAt: time.Now()}
	f.runs[r.ID] = r
	return r, nil
}

func (f *fakeStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	if r, ok := f.runs[runID]; ok {
		r.Status = status
	}
	return nil
}

func (f *fakeStore) UpdateRunResult(context.Context, string, *model.RunResult) error { return nil }

func (f *fakeStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	r, ok := f.runs[runID]
	if !ok {
		return nil, assertErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	var out []model.Run
	for _, r := range f.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Source != "" && r.Source != filter.Source {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) SaveRunState(context.Context, string, []byte) error { return nil }

func (f *fakeStore) GetRunState(context.Context, string) ([]byte, error) {
	return nil, assertErrNotFound
}

func (f *fakeStore) AppendAuditEvent(_ context.Context, runID string, ev model.AuditEvent) error {
	f.events[runID] = append(f.events[runID], ev)
	return nil
}

func (f *fakeStore) ListAuditEvents(_ context.Context, runID string) ([]model.AuditEvent, error) {
	return f.events[runID], nil
}

func (f *fakeStore) SaveChunks(context.Context, []docstore.Chunk) error { return nil }
func (f *fakeStore) ListChunks(context.Context) ([]docstore.Chunk, error) {
	return nil, nil
}
func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

var assertErrNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }

func newTestRouter(st store.Store) http.Handler {
	return newRouter(&triageEnv{Store: st})
}

func TestServe_Health(t *testing.T) {
	router := newTestRouter(newFakeStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_PostRuns_MissingSource(t *testing.T) {
	router := newTestRouter(newFakeStore())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "source is required")
}

func TestServe_PostRuns_BadBody(t *testing.T) {
	router := newTestRouter(newFakeStore())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`not json`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_GetRuns(t *testing.T) {
	st := newFakeStore()
	run, err := st.CreateRun(context.Background(), "letters/a.pdf")
	require.NoError(t, err)

	router := newTestRouter(st)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestServe_GetRun_WithAuditTrail(t *testing.T) {
	st := newFakeStore()
	run, err := st.CreateRun(context.Background(), "letters/a.pdf")
	require.NoError(t, err)
	require.NoError(t, st.AppendAuditEvent(context.Background(), run.ID, model.AuditEvent{
		EventID: uuid.New(), Type: model.EventIngestion, Description: "ingested",
	}))

	router := newTestRouter(st)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run    model.Run          `json:"run"`
		Events []model.AuditEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, run.ID, body.Run.ID)
	require.Len(t, body.Events, 1)
	assert.Equal(t, model.EventIngestion, body.Events[0].Type)
}

func TestServe_GetRun_NotFound(t *testing.T) {
	router := newTestRouter(newFakeStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_PostReview_MissingReviewer(t *testing.T) {
	router := newTestRouter(newFakeStore())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs/abc/review", strings.NewReader(`{"approved":true}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "reviewer is required")
}
