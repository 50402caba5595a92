package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// VectorStats handles GET /api/vectors/stats.
func (s *Server) VectorStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// DeleteVectors handles DELETE /api/vectors. It empties the entire index.
func (s *Server) DeleteVectors(c *gin.Context) {
	if err := s.store.DeleteAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	s.logger.Warn("Vector index emptied by API request",
		"request_id", c.GetString("request_id"))
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
