package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/ingest"
	"github.com/sells-group/claims-triage/internal/pipeline"
	"github.com/sells-group/claims-triage/internal/store"
	anthropicpkg "github.com/sells-group/claims-triage/pkg/anthropic"
	openaipkg "github.com/sells-group/claims-triage/pkg/openai"
)

// triageEnv holds the initialized store, clients, policy index, and pipeline
// shared by the run/batch/resume/regress/serve commands.
type triageEnv struct {
	Store     store.Store
	Index     *docstore.Index
	Anthropic anthropicpkg.Client
	Embedder  openaipkg.Client
	Extractor ingest.Extractor
	Pipeline  *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (te *triageEnv) Close() {
	if te.Store != nil {
		_ = te.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "triage.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, API clients, document extractor, and the
// persisted policy index, then builds the pipeline. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*triageEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (TRIAGE_ANTHROPIC_KEY)")
	}
	if cfg.OpenAI.Key == "" {
		return nil, eris.New("openai API key is required (TRIAGE_OPENAI_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	embedder := openaipkg.NewClient(cfg.OpenAI.Key,
		openaipkg.WithBaseURL(cfg.OpenAI.BaseURL),
		openaipkg.WithModel(cfg.OpenAI.EmbedModel),
		openaipkg.WithRateLimit(cfg.OpenAI.RateLimitRPS),
	)

	extractor, err := ingest.NewExtractor(cfg.Ingest.OCRProvider, cfg.Ingest.PdfToTextPath, cfg.Ingest.MistralKey)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	fileExtractor := ingest.NewFileExtractor(extractor)

	index := docstore.NewIndex()
	chunks, err := st.ListChunks(ctx)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load policy chunks")
	}
	index.Load(chunks)
	if index.Len() == 0 {
		zap.L().Warn("policy index is empty; run `claims-triage index` first")
	} else {
		zap.L().Info("policy index loaded", zap.Int("chunks", index.Len()))
	}

	p := pipeline.New(cfg, st, anthropicClient, embedder, index, fileExtractor, nil, nil)

	return &triageEnv{
		Store:     st,
		Index:     index,
		Anthropic: anthropicClient,
		Embedder:  embedder,
		Extractor: fileExtractor,
		Pipeline:  p,
	}, nil
}
