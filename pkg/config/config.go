// Package config loads and validates ticketrag configuration from the
// environment plus an optional ticketrag.yaml tuning file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Config is the complete, validated service configuration.
type Config struct {
	HTTPPort string

	Zendesk     ZendeskConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Redis       RedisConfig
	Audit       AuditConfig
	Ingestion   *IngestionConfig
}

// ZendeskConfig holds ticketing platform credentials. These are optional at
// startup: ingestion endpoints reject requests until they are present.
type ZendeskConfig struct {
	Subdomain string
	User      string
	APIToken  string
}

// Configured reports whether all ticketing credentials are present.
func (z ZendeskConfig) Configured() bool {
	return z.Subdomain != "" && z.User != "" && z.APIToken != ""
}

// BaseURL returns the API root for the configured subdomain.
func (z ZendeskConfig) BaseURL() string {
	return fmt.Sprintf("https://%s.zendesk.com/api/v2", z.Subdomain)
}

// EmbeddingConfig holds embedding provider settings. The API key is required
// at startup.
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// VectorStoreConfig holds vector index settings. The API key and index host
// are required at startup; the dimension must match the embedding dimension.
type VectorStoreConfig struct {
	APIKey         string
	IndexHost      string // data plane, e.g. https://tickets-abc123.svc.us-east-1.pinecone.io
	ControllerHost string // control plane, for index creation and description
	IndexName      string
	Dimension      int
	Metric         string
}

// RedisConfig selects the optional shared embedding cache backend.
// When Addr is empty the in-process cache is used.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuditConfig controls how audit records are written to the ticketing
// platform.
type AuditConfig struct {
	// SingleStepWrite sends custom fields on record creation instead of the
	// create-then-patch split. The split exists because the platform rejects
	// field values on records of freshly created object types.
	SingleStepWrite bool `yaml:"single_step_write"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read credentials and endpoints from the environment
//  2. Load optional ticketrag.yaml tuning from configDir
//  3. Merge tuning over built-in defaults
//  4. Validate (embedding and vector store credentials are fatal if absent)
func Initialize(configDir string) (*Config, error) {
	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Zendesk: ZendeskConfig{
			Subdomain: os.Getenv("ZENDESK_SUBDOMAIN"),
			User:      os.Getenv("ZENDESK_USER"),
			APIToken:  os.Getenv("ZENDESK_API_TOKEN"),
		},
		Embedding: EmbeddingConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),
		},
		VectorStore: VectorStoreConfig{
			APIKey:         os.Getenv("PINECONE_API_KEY"),
			IndexHost:      os.Getenv("PINECONE_INDEX_HOST"),
			ControllerHost: getEnv("PINECONE_CONTROLLER_HOST", "https://api.pinecone.io"),
			IndexName:      getEnv("PINECONE_INDEX_NAME", "support-tickets"),
			Dimension:      getEnvInt("EMBEDDING_DIMENSIONS", 1536),
			Metric:         "cosine",
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}

	ingestion, audit, err := loadTuning(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tuning configuration: %w", err)
	}
	cfg.Ingestion = ingestion
	if audit != nil {
		cfg.Audit = *audit
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if !cfg.Zendesk.Configured() {
		slog.Warn("Ticketing platform credentials not configured; ingestion endpoints will reject requests")
	}

	slog.Info("Configuration initialized",
		"embedding_model", cfg.Embedding.Model,
		"dimensions", cfg.Embedding.Dimensions,
		"index", cfg.VectorStore.IndexName,
		"redis_cache", cfg.Redis.Addr != "",
		"ticketing_configured", cfg.Zendesk.Configured())

	return cfg, nil
}

// validate enforces the startup-fatal requirements: embedding and vector
// store credentials must be present, dimensions must agree.
func (c *Config) validate() error {
	if c.Embedding.APIKey == "" {
		return NewValidationError("embedding", "OPENAI_API_KEY", ErrMissingRequiredField)
	}
	if c.Embedding.Dimensions <= 0 {
		return NewValidationError("embedding", "EMBEDDING_DIMENSIONS", ErrInvalidValue)
	}
	if c.VectorStore.APIKey == "" {
		return NewValidationError("vectorstore", "PINECONE_API_KEY", ErrMissingRequiredField)
	}
	if c.VectorStore.IndexHost == "" {
		return NewValidationError("vectorstore", "PINECONE_INDEX_HOST", ErrMissingRequiredField)
	}
	if c.VectorStore.Dimension != c.Embedding.Dimensions {
		return NewValidationError("vectorstore", "dimension",
			fmt.Errorf("%w: index dimension %d != embedding dimension %d",
				ErrInvalidValue, c.VectorStore.Dimension, c.Embedding.Dimensions))
	}
	return c.Ingestion.validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Ignoring non-integer environment value", "key", key, "value", value)
	}
	return defaultValue
}
