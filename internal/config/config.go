package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Triage    TriageConfig    `yaml:"triage" mapstructure:"triage"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Review    ReviewConfig    `yaml:"review" mapstructure:"review"`
	Execute   ExecuteConfig   `yaml:"execute" mapstructure:"execute"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Regress   RegressConfig   `yaml:"regress" mapstructure:"regress"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key                 string `yaml:"key" mapstructure:"key"`
	HaikuModel          string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel         string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens           int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxBatchSize        int    `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	NoBatch             bool   `yaml:"no_batch" mapstructure:"no_batch"`
	SmallBatchThreshold int    `yaml:"small_batch_threshold" mapstructure:"small_batch_threshold"`
}

// OpenAIConfig holds embedding API settings.
type OpenAIConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	EmbedModel   string  `yaml:"embed_model" mapstructure:"embed_model"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// IngestConfig configures document text extraction.
type IngestConfig struct {
	OCRProvider   string `yaml:"ocr_provider" mapstructure:"ocr_provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
}

// RetrievalConfig configures policy chunking and nearest-neighbor search.
type RetrievalConfig struct {
	TopK         int     `yaml:"top_k" mapstructure:"top_k"`
	MinRelevance float64 `yaml:"min_relevance" mapstructure:"min_relevance"`
	ChunkSize    int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	PolicyDir    string  `yaml:"policy_dir" mapstructure:"policy_dir"`
}

// TriageConfig configures extraction and decision behavior.
type TriageConfig struct {
	MaxExtractChars  int     `yaml:"max_extract_chars" mapstructure:"max_extract_chars"`
	AppealBias       float64 `yaml:"appeal_bias" mapstructure:"appeal_bias"`
	StageTimeoutSecs int     `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
}

// VerifyConfig configures citation verification.
type VerifyConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MinSourceLength     int     `yaml:"min_source_length" mapstructure:"min_source_length"`
	Strict              bool    `yaml:"strict" mapstructure:"strict"`
}

// ReviewConfig configures the human review gate.
type ReviewConfig struct {
	Mode            string  `yaml:"mode" mapstructure:"mode"`
	AutoApproveRisk float64 `yaml:"auto_approve_risk" mapstructure:"auto_approve_risk"`
}

// ExecuteConfig configures appeal submission.
type ExecuteConfig struct {
	PermissionLevel string `yaml:"permission_level" mapstructure:"permission_level"`
}

// BatchConfig configures batch claim processing.
type BatchConfig struct {
	MaxConcurrentClaims   int     `yaml:"max_concurrent_claims" mapstructure:"max_concurrent_claims"`
	RetryAttempts         int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryInitialBackoffMs int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	RetryMultiplier       float64 `yaml:"retry_multiplier" mapstructure:"retry_multiplier"`
}

// RegressConfig configures the regression harness gates.
type RegressConfig struct {
	GoldPath             string  `yaml:"gold_path" mapstructure:"gold_path"`
	MaxHallucinationRate float64 `yaml:"max_hallucination_rate" mapstructure:"max_hallucination_rate"`
	MinEvidenceCoverage  float64 `yaml:"min_evidence_coverage" mapstructure:"min_evidence_coverage"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "triage.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_batch_size", 100)
	v.SetDefault("anthropic.small_batch_threshold", 3)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.embed_model", "text-embedding-3-small")
	v.SetDefault("openai.rate_limit_rps", 10)
	v.SetDefault("ingest.ocr_provider", "local")
	v.SetDefault("ingest.pdftotext_path", "pdftotext")
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.min_relevance", 0.0)
	v.SetDefault("retrieval.chunk_size", 800)
	v.SetDefault("retrieval.chunk_overlap", 200)
	v.SetDefault("retrieval.policy_dir", "policies")
	v.SetDefault("triage.max_extract_chars", 6000)
	v.SetDefault("triage.appeal_bias", 0.5)
	v.SetDefault("triage.stage_timeout_secs", 120)
	v.SetDefault("verify.similarity_threshold", 0.70)
	v.SetDefault("verify.min_source_length", 10)
	v.SetDefault("verify.strict", false)
	v.SetDefault("review.mode", "auto")
	v.SetDefault("review.auto_approve_risk", 0.1)
	v.SetDefault("execute.permission_level", "write_appeals")
	v.SetDefault("batch.max_concurrent_claims", 5)
	v.SetDefault("batch.retry_attempts", 3)
	v.SetDefault("batch.retry_initial_backoff_ms", 500)
	v.SetDefault("batch.retry_max_backoff_ms", 30000)
	v.SetDefault("batch.retry_multiplier", 2.0)
	v.SetDefault("regress.gold_path", "testdata/gold.yaml")
	v.SetDefault("regress.max_hallucination_rate", 0.02)
	v.SetDefault("regress.min_evidence_coverage", 0.85)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
