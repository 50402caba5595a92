package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/support-toolchain/ticketrag/pkg/version"
)

// Health handles GET /api/health. The vector index is probed with a short
// timeout; an unreachable index degrades the status without failing requests
// that do not need it.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	body := gin.H{
		"status":               "healthy",
		"version":              version.Full(),
		"phase":                s.runner.Phase(),
		"ticketing_configured": s.cfg.Zendesk.Configured(),
		"uptime_seconds":       int64(time.Since(s.started).Seconds()),
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		body["status"] = "degraded"
		body["vector_index"] = gin.H{"status": "unreachable", "error": err.Error()}
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["vector_index"] = gin.H{
		"status":       "healthy",
		"dimension":    stats.Dimension,
		"vector_count": stats.VectorCount,
	}
	c.JSON(http.StatusOK, body)
}
