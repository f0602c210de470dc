package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/chative/sqlagent/internal/agent/graph/nodes"
	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/core"
	"github.com/chative/sqlagent/internal/warehouse"
	logx "github.com/chative/sqlagent/pkg/logger"
	pkgredis "github.com/chative/sqlagent/pkg/redis"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"

	embeddingGemini = "gemini"
	embeddingHash   = "hash"
)

// AppConfig defines every configurable parameter, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Transport
	ServerAddr  string        `envconfig:"SERVER_ADDR" default:":8080"`
	CORSOrigins []string      `envconfig:"SERVER_CORS_ORIGINS"`
	TurnTimeout time.Duration `envconfig:"SERVER_TURN_TIMEOUT" default:"2m"`

	// Catalog indexed at startup when the vector backend is in memory.
	CatalogPath string `envconfig:"CATALOG_PATH"`

	// Infrastructure
	Redis pkgredis.Config

	// Agent configs
	LLM       model.LLMConfig
	Embedding model.EmbeddingConfig
	Vector    model.VectorConfig
	Database  model.DatabaseConfig
	Pipeline  model.PipelineConfig
	Session   model.SessionConfig
}

// loadConfig reads envFile when present and binds the environment.
func loadConfig(envFile string) (AppConfig, error) {
	var cfg AppConfig
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logx.Debug().Err(err).Str("file", envFile).Msg("env file not loaded")
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("process environment config: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c AppConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.LLM.Provider {
	case nodes.ProviderGemini, nodes.ProviderOpenAI:
	default:
		add("LLM_PROVIDER %q must be %s or %s", c.LLM.Provider, nodes.ProviderGemini, nodes.ProviderOpenAI)
	}
	if c.LLM.APIKey == "" {
		add("LLM_API_KEY is required")
	}
	if c.LLM.Model == "" {
		add("LLM_MODEL is required")
	}
	if c.LLM.MaxAttempts < 1 {
		add("LLM_MAX_ATTEMPTS must be at least 1")
	}

	switch c.Embedding.Provider {
	case embeddingGemini:
		if c.Embedding.APIKey == "" {
			add("EMBEDDING_API_KEY or LLM_API_KEY is required for the gemini embedder")
		}
	case embeddingHash:
	default:
		add("EMBEDDING_PROVIDER %q must be %s or %s", c.Embedding.Provider, embeddingGemini, embeddingHash)
	}
	if c.Embedding.Dimensions <= 0 {
		add("EMBEDDING_DIMENSIONS must be positive")
	}

	if _, err := warehouse.ParseEngine(c.Database.Driver); err != nil {
		add("DB_DRIVER: %v", err)
	}
	if c.Database.DSN == "" {
		add("DB_DSN is required")
	}

	p := c.Pipeline
	if p.TermThreshold < 0 || p.TermThreshold > 1 {
		add("PIPELINE_TERM_THRESHOLD %v must be within [0, 1]", p.TermThreshold)
	}
	if p.TableThreshold < 0 || p.TableThreshold > 1 {
		add("PIPELINE_TABLE_THRESHOLD %v must be within [0, 1]", p.TableThreshold)
	}
	if p.TableTopK < 1 {
		add("PIPELINE_TABLE_TOP_K must be at least 1")
	}
	if p.MaxRetries < 0 {
		add("PIPELINE_MAX_RETRIES must not be negative")
	}
	if p.RowCap < 1 {
		add("PIPELINE_ROW_CAP must be at least 1")
	}
	if p.MaxScanRows < p.RowCap {
		add("PIPELINE_MAX_SCAN_ROWS must be at least PIPELINE_ROW_CAP")
	}
	if p.QueryTimeout <= 0 {
		add("PIPELINE_QUERY_TIMEOUT must be positive")
	}

	usesRedis := false
	switch c.Vector.Backend {
	case backendMemory:
	case backendRedis:
		usesRedis = true
		if c.Vector.TermPrefix == c.Vector.TablePrefix {
			add("VECTOR_TERM_PREFIX and VECTOR_TABLE_PREFIX must differ")
		}
	default:
		add("VECTOR_BACKEND %q must be %s or %s", c.Vector.Backend, backendMemory, backendRedis)
	}
	switch c.Session.Store {
	case backendMemory:
	case backendRedis:
		usesRedis = true
	default:
		add("SESSION_STORE %q must be %s or %s", c.Session.Store, backendMemory, backendRedis)
	}
	if c.Session.TTL <= 0 {
		add("SESSION_TTL must be positive")
	}
	if usesRedis && c.Redis.URL == "" {
		add("REDIS_URL is required when a redis backend is selected")
	}

	return errors.Join(errs...)
}
