package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// IngestionConfig contains pipeline tuning knobs. These values control
// concurrency bounds, batch sizes, and the pacing between external calls.
type IngestionConfig struct {
	// EnrichConcurrency is the number of tickets enriched simultaneously
	// within a batch. The comment-thread fetches dominate run time.
	EnrichConcurrency int `yaml:"enrich_concurrency"`

	// EnrichBatchPause is the pause between enrichment batches.
	EnrichBatchPause time.Duration `yaml:"enrich_batch_pause"`

	// EmbedBatchSize is the number of texts embedded before pausing.
	EmbedBatchSize int `yaml:"embed_batch_size"`

	// EmbedInterBatchDelay is the pause after every EmbedBatchSize texts.
	EmbedInterBatchDelay time.Duration `yaml:"embed_inter_batch_delay"`

	// UpsertBatchSize is the number of vectors written per upsert request.
	UpsertBatchSize int `yaml:"upsert_batch_size"`

	// SourceTag labels vectors and audit records with their origin system.
	SourceTag string `yaml:"source_tag"`
}

// DefaultIngestionConfig returns the built-in pipeline defaults.
func DefaultIngestionConfig() *IngestionConfig {
	return &IngestionConfig{
		EnrichConcurrency:    10,
		EnrichBatchPause:     500 * time.Millisecond,
		EmbedBatchSize:       100,
		EmbedInterBatchDelay: 1 * time.Second,
		UpsertBatchSize:      100,
		SourceTag:            "zendesk",
	}
}

func (c *IngestionConfig) validate() error {
	if c.EnrichConcurrency < 1 {
		return NewValidationError("ingestion", "enrich_concurrency", ErrInvalidValue)
	}
	if c.EmbedBatchSize < 1 {
		return NewValidationError("ingestion", "embed_batch_size", ErrInvalidValue)
	}
	if c.UpsertBatchSize < 1 {
		return NewValidationError("ingestion", "upsert_batch_size", ErrInvalidValue)
	}
	if c.SourceTag == "" {
		return NewValidationError("ingestion", "source_tag", ErrMissingRequiredField)
	}
	return nil
}

// tuningYAML is the ticketrag.yaml file structure.
type tuningYAML struct {
	Ingestion *IngestionConfig `yaml:"ingestion"`
	Audit     *AuditConfig     `yaml:"audit"`
}

// loadTuning reads ticketrag.yaml from configDir (if present), expands
// environment references, and merges user values over built-in defaults.
// A missing file or empty configDir yields the defaults.
func loadTuning(configDir string) (*IngestionConfig, *AuditConfig, error) {
	defaults := DefaultIngestionConfig()
	if configDir == "" {
		return defaults, nil, nil
	}

	path := filepath.Join(configDir, "ticketrag.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil, nil
		}
		return nil, nil, &LoadError{File: path, Err: err}
	}

	var parsed tuningYAML
	if err := yaml.Unmarshal(ExpandEnv(data), &parsed); err != nil {
		return nil, nil, &LoadError{File: path, Err: fmt.Errorf("invalid YAML: %w", err)}
	}

	if parsed.Ingestion != nil {
		// User values win; zero-valued fields fall back to defaults.
		if err := mergo.Merge(parsed.Ingestion, defaults); err != nil {
			return nil, nil, &LoadError{File: path, Err: err}
		}
		return parsed.Ingestion, parsed.Audit, nil
	}
	return defaults, parsed.Audit, nil
}
