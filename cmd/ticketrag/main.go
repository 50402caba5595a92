// ticketrag server ingests support tickets into a vector knowledge base
// and exposes the ingestion pipeline over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/support-toolchain/ticketrag/pkg/api"
	"github.com/support-toolchain/ticketrag/pkg/audit"
	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/embedding"
	"github.com/support-toolchain/ticketrag/pkg/enrich"
	"github.com/support-toolchain/ticketrag/pkg/ingest"
	"github.com/support-toolchain/ticketrag/pkg/vectorstore"
	"github.com/support-toolchain/ticketrag/pkg/version"
	"github.com/support-toolchain/ticketrag/pkg/zendesk"
)

const embeddingCacheTTL = 30 * 24 * time.Hour

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Embedding cache: shared Redis when configured, in-process otherwise
	var cache embedding.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := embedding.NewRedisCache(cfg.Redis, embeddingCacheTTL)
		if err != nil {
			slog.Error("Failed to connect to Redis cache", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		cache = redisCache
		slog.Info("Using Redis embedding cache", "addr", cfg.Redis.Addr)
	} else {
		cache = embedding.NewMemoryCache()
		slog.Info("Using in-process embedding cache")
	}

	embedder := embedding.NewClient(cfg.Embedding, cache)

	// 3. Vector store: verify or create the index before serving
	store := vectorstore.NewPineconeStore(cfg.VectorStore, cfg.Ingestion.UpsertBatchSize)
	if err := store.EnsureIndex(ctx); err != nil {
		slog.Error("Failed to ensure vector index", "index", cfg.VectorStore.IndexName, "error", err)
		os.Exit(1)
	}

	// 4. Ticketing platform client and pipeline components
	ticketing := zendesk.NewClient(cfg.Zendesk)
	registry := zendesk.NewFieldRegistry(ticketing)
	enricher := enrich.NewEnricher(ticketing, registry)
	recorder := audit.NewRecorder(ticketing, cfg.Audit, cfg.Ingestion.SourceTag)

	if cfg.Zendesk.Configured() {
		if err := recorder.EnsureSchema(ctx); err != nil {
			// Audit is best-effort; a broken schema must not block ingestion.
			slog.Warn("Could not ensure audit schema", "error", err)
		}
	}

	orchestrator := ingest.New(registry, ticketing, enricher, embedder, store, recorder, cfg.Ingestion)

	// 5. HTTP server
	server := api.NewServer(cfg, orchestrator, embedder, store)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("ticketrag started",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"index", cfg.VectorStore.IndexName,
		"ticketing_configured", cfg.Zendesk.Configured())

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown: drain in-flight requests, then close the cache
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if closer, ok := cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Error("Error closing embedding cache", "error", err)
		}
	}

	slog.Info("Shutdown complete")
}
