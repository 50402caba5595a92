package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PINECONE_API_KEY", "pc-test")
	t.Setenv("PINECONE_INDEX_HOST", "https://tickets-abc.svc.us-east-1.pinecone.io")

	// Neutralize optional settings the host environment may carry.
	for _, key := range []string{
		"HTTP_PORT", "OPENAI_BASE_URL", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
		"PINECONE_INDEX_NAME", "PINECONE_CONTROLLER_HOST", "REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestInitializeDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Initialize("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, "support-tickets", cfg.VectorStore.IndexName)
	assert.Equal(t, "cosine", cfg.VectorStore.Metric)
	assert.Equal(t, 1536, cfg.VectorStore.Dimension)

	require.NotNil(t, cfg.Ingestion)
	assert.Equal(t, 10, cfg.Ingestion.EnrichConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingestion.EnrichBatchPause)
	assert.Equal(t, 100, cfg.Ingestion.EmbedBatchSize)
	assert.Equal(t, 100, cfg.Ingestion.UpsertBatchSize)
	assert.Equal(t, "zendesk", cfg.Ingestion.SourceTag)
}

func TestInitializeMissingEmbeddingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PINECONE_API_KEY", "pc-test")
	t.Setenv("PINECONE_INDEX_HOST", "https://tickets-abc.svc.us-east-1.pinecone.io")

	_, err := Initialize("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestInitializeMissingVectorStoreCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PINECONE_API_KEY", "")
	t.Setenv("PINECONE_INDEX_HOST", "")

	_, err := Initialize("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestInitializeTicketingOptional(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ZENDESK_SUBDOMAIN", "")
	t.Setenv("ZENDESK_USER", "")
	t.Setenv("ZENDESK_API_TOKEN", "")

	cfg, err := Initialize("")
	require.NoError(t, err, "absent ticketing credentials are a warning, not a startup failure")
	assert.False(t, cfg.Zendesk.Configured())
}

func TestZendeskBaseURL(t *testing.T) {
	z := ZendeskConfig{Subdomain: "acme", User: "ops@acme.test", APIToken: "tok"}
	assert.True(t, z.Configured())
	assert.Equal(t, "https://acme.zendesk.com/api/v2", z.BaseURL())
}

func TestLoadTuningMergesUserValuesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
ingestion:
  enrich_concurrency: 4
  source_tag: helpdesk
audit:
  single_step_write: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ticketrag.yaml"), []byte(yaml), 0o600))

	ingestion, audit, err := loadTuning(dir)
	require.NoError(t, err)

	// User-set values win.
	assert.Equal(t, 4, ingestion.EnrichConcurrency)
	assert.Equal(t, "helpdesk", ingestion.SourceTag)
	// Unset values fall back to defaults.
	assert.Equal(t, 100, ingestion.EmbedBatchSize)
	assert.Equal(t, 500*time.Millisecond, ingestion.EnrichBatchPause)

	require.NotNil(t, audit)
	assert.True(t, audit.SingleStepWrite)
}

func TestLoadTuningMissingFileYieldsDefaults(t *testing.T) {
	ingestion, audit, err := loadTuning(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultIngestionConfig(), ingestion)
	assert.Nil(t, audit)
}

func TestLoadTuningInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ticketrag.yaml"),
		[]byte("ingestion:\n  enrich_concurrency: [not an int\n"), 0o600))

	_, _, err := loadTuning(dir)
	require.Error(t, err)

	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestLoadTuningExpandsEnvironment(t *testing.T) {
	t.Setenv("SOURCE_TAG", "zendesk-eu")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ticketrag.yaml"),
		[]byte("ingestion:\n  source_tag: {{.SOURCE_TAG}}\n"), 0o600))

	ingestion, _, err := loadTuning(dir)
	require.NoError(t, err)
	assert.Equal(t, "zendesk-eu", ingestion.SourceTag)
}

func TestValidateRejectsDimensionMismatch(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Initialize("")
	require.NoError(t, err)

	cfg.VectorStore.Dimension = 768
	err = cfg.validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestIngestionConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IngestionConfig)
	}{
		{"zero concurrency", func(c *IngestionConfig) { c.EnrichConcurrency = 0 }},
		{"zero embed batch", func(c *IngestionConfig) { c.EmbedBatchSize = 0 }},
		{"zero upsert batch", func(c *IngestionConfig) { c.UpsertBatchSize = 0 }},
		{"empty source tag", func(c *IngestionConfig) { c.SourceTag = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultIngestionConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
	assert.NoError(t, DefaultIngestionConfig().validate())
}
