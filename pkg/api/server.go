// Package api exposes the ingestion service over HTTP: run triggers, index
// and cache inspection, and health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/embedding"
	"github.com/support-toolchain/ticketrag/pkg/ingest"
	"github.com/support-toolchain/ticketrag/pkg/vectorstore"
)

// IngestRunner is the orchestrator surface the API needs.
type IngestRunner interface {
	Run(ctx context.Context, start, end time.Time) (*ingest.Result, error)
	Phase() ingest.Phase
}

// EmbeddingCache exposes cache inspection and reset.
type EmbeddingCache interface {
	CacheStats(ctx context.Context) embedding.CacheStats
	ClearCache(ctx context.Context) error
}

// Server is the HTTP front end.
type Server struct {
	cfg     *config.Config
	runner  IngestRunner
	cache   EmbeddingCache
	store   vectorstore.Store
	logger  *slog.Logger
	engine  *gin.Engine
	httpSrv *http.Server
	started time.Time
}

// NewServer wires routes and middleware.
func NewServer(cfg *config.Config, runner IngestRunner, cache EmbeddingCache, store vectorstore.Store) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		runner:  runner,
		cache:   cache,
		store:   store,
		logger:  slog.Default(),
		started: time.Now(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(s.logger))
	engine.Use(corsMiddleware())

	apiGroup := engine.Group("/api")
	{
		apiGroup.POST("/ingest", s.Ingest)
		apiGroup.GET("/health", s.Health)
		apiGroup.GET("/vectors/stats", s.VectorStats)
		apiGroup.DELETE("/vectors", s.DeleteVectors)
		apiGroup.GET("/cache/stats", s.CacheStats)
		apiGroup.DELETE("/cache", s.ClearCache)
	}

	s.engine = engine
	return s
}

// Start blocks serving HTTP on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
