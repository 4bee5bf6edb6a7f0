package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hivemind-ai/hivemind/pkg/version"
)

// handleHealth serves GET /api/health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"version":      version.Version,
		"activeSwarms": len(s.engine.Statuses().Active()),
	})
}
