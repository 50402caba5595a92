package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/ingest"
)

const dateLayout = "2006-01-02"

// IngestRequest is the POST /api/ingest body. Both dates are inclusive
// calendar days.
type IngestRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// Ingest handles POST /api/ingest. The run executes synchronously; the
// response carries the full run result. Only one run may be active at a time.
func (s *Server) Ingest(c *gin.Context) {
	if !s.cfg.Zendesk.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": config.ErrTicketingNotConfigured.Error(),
		})
		return
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must not precede start_date"})
		return
	}

	result, err := s.runner.Run(c.Request.Context(), start, end)
	if err != nil {
		if errors.Is(err, ingest.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  err.Error(),
			"result": result,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
