package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CacheStats handles GET /api/cache/stats.
func (s *Server) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.CacheStats(c.Request.Context()))
}

// ClearCache handles DELETE /api/cache.
func (s *Server) ClearCache(c *gin.Context) {
	if err := s.cache.ClearCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
