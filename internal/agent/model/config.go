package model

import "time"

// ================ Config ================
type LLMConfig struct {
	Provider    string        `envconfig:"LLM_PROVIDER" default:"gemini"`
	APIKey      string        `envconfig:"LLM_API_KEY"`
	BaseURL     string        `envconfig:"LLM_BASE_URL"`
	Model       string        `envconfig:"LLM_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"2000"`
	Temperature float32       `envconfig:"LLM_TEMPERATURE" default:"0.1"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	MaxAttempts int           `envconfig:"LLM_MAX_ATTEMPTS" default:"3"`
}

type EmbeddingConfig struct {
	// Provider is "gemini" or "hash". The hash embedder needs no network and
	// only matches on shared words.
	Provider string `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	// APIKey falls back to LLM_API_KEY when empty.
	APIKey     string        `envconfig:"EMBEDDING_API_KEY"`
	Model      string        `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	Dimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	CacheTTL   time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"1h"`
	CacheSize  uint64        `envconfig:"EMBEDDING_CACHE_SIZE" default:"10000"`
}

type VectorConfig struct {
	Backend     string `envconfig:"VECTOR_BACKEND" default:"memory"`
	TermIndex   string `envconfig:"VECTOR_TERM_INDEX" default:"idx:terms"`
	TableIndex  string `envconfig:"VECTOR_TABLE_INDEX" default:"idx:tables"`
	TermPrefix  string `envconfig:"VECTOR_TERM_PREFIX" default:"sqlagent:term:"`
	TablePrefix string `envconfig:"VECTOR_TABLE_PREFIX" default:"sqlagent:table:"`
}

type DatabaseConfig struct {
	Driver          string        `envconfig:"DB_DRIVER" default:"sqlite"`
	DSN             string        `envconfig:"DB_DSN" default:"file:sqlagent.db?mode=ro"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
}

type PipelineConfig struct {
	TermThreshold  float64       `envconfig:"PIPELINE_TERM_THRESHOLD" default:"0.6"`
	TableTopK      int           `envconfig:"PIPELINE_TABLE_TOP_K" default:"1"`
	TableThreshold float64       `envconfig:"PIPELINE_TABLE_THRESHOLD" default:"0.5"`
	MaxRetries     int           `envconfig:"PIPELINE_MAX_RETRIES" default:"2"`
	RowCap         int           `envconfig:"PIPELINE_ROW_CAP" default:"100"`
	MaxScanRows    int           `envconfig:"PIPELINE_MAX_SCAN_ROWS" default:"10000"`
	QueryTimeout   time.Duration `envconfig:"PIPELINE_QUERY_TIMEOUT" default:"30s"`
	HistoryTurns   int           `envconfig:"PIPELINE_HISTORY_TURNS" default:"10"`
	PreviewRows    int           `envconfig:"PIPELINE_PREVIEW_ROWS" default:"20"`
}

type SessionConfig struct {
	Store string        `envconfig:"SESSION_STORE" default:"memory"`
	TTL   time.Duration `envconfig:"SESSION_TTL" default:"24h"`
}

// DefaultPipelineConfig mirrors the envconfig defaults for callers that do not load the environment.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TermThreshold:  0.6,
		TableTopK:      1,
		TableThreshold: 0.5,
		MaxRetries:     2,
		RowCap:         100,
		MaxScanRows:    10000,
		QueryTimeout:   30 * time.Second,
		HistoryTurns:   10,
		PreviewRows:    20,
	}
}
