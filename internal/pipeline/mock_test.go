package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/model"
	"github.com/sells-group/claims-triage/internal/store"
	"github.com/sells-group/claims-triage/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func (m *mockAnthropicClient) CreateBatch(ctx context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.BatchResponse), args.Error(1)
}

func (m *mockAnthropicClient) GetBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.BatchResponse), args.Error(1)
}

func (m *mockAnthropicClient) GetBatchResults(ctx context.Context, batchID string) (anthropic.BatchResultIterator, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(anthropic.BatchResultIterator), args.Error(1)
}

// jsonResponse builds a single-text-block response around a JSON payload.
func jsonResponse(payload string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      "msg_test",
		Content: []anthropic.ContentBlock{{Type: "text", Text: payload}},
	}
}

// --- Embedder Mock ---

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, input string) ([]float64, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, inputs []string) ([][]float64, error) {
	args := m.Called(ctx, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float64), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	args := m.Called(ctx, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return m.Called(ctx, runID, status).Error(0)
}

func (m *mockStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	return m.Called(ctx, runID, result).Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) SaveRunState(ctx context.Context, runID string, state []byte) error {
	return m.Called(ctx, runID, state).Error(0)
}

func (m *mockStore) GetRunState(ctx context.Context, runID string) ([]byte, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockStore) AppendAuditEvent(ctx context.Context, runID string, event model.AuditEvent) error {
	return m.Called(ctx, runID, event).Error(0)
}

func (m *mockStore) ListAuditEvents(ctx context.Context, runID string) ([]model.AuditEvent, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditEvent), args.Error(1)
}

func (m *mockStore) SaveChunks(ctx context.Context, chunks []docstore.Chunk) error {
	return m.Called(ctx, chunks).Error(0)
}

func (m *mockStore) ListChunks(ctx context.Context) ([]docstore.Chunk, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]docstore.Chunk), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// permissiveStore returns a mock store that accepts all persistence calls,
// for tests exercising the driver rather than storage.
func permissiveStore(runID string) *mockStore {
	st := new(mockStore)
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: runID, Status: model.RunStatusQueued}, nil).Maybe()
	st.On("UpdateRunStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	st.On("UpdateRunResult", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	st.On("SaveRunState", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	st.On("AppendAuditEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return st
}

// --- Submitter Mock ---

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, appeal *model.Appeal) (string, error) {
	args := m.Called(ctx, appeal)
	return args.String(0), args.Error(1)
}
