package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hivemind-ai/hivemind/pkg/models"
)

// handleGetTrace serves GET /api/mission/:traceId.
func (s *Server) handleGetTrace(c *gin.Context) {
	id, err := traceIDParam(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	trace := s.store.Get(id)
	if trace == nil {
		respondError(c, http.StatusNotFound, CodeNotFound, "trace not found")
		return
	}
	c.JSON(http.StatusOK, trace)
}

// handleGetStatus serves GET /api/mission/:traceId/status. Live missions
// answer from the status registry; terminated ones whose status was already
// evicted answer with a degenerate form derived from the persisted trace.
func (s *Server) handleGetStatus(c *gin.Context) {
	id, err := traceIDParam(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	if status := s.engine.Statuses().Get(id); status != nil {
		c.JSON(http.StatusOK, status)
		return
	}

	trace := s.store.Get(id)
	if trace == nil {
		respondError(c, http.StatusNotFound, CodeNotFound, "trace not found")
		return
	}
	c.JSON(http.StatusOK, statusFromTrace(trace))
}

// statusFromTrace reconstructs a terminal SwarmStatus from a persisted
// trace after the live record was evicted.
func statusFromTrace(t *models.Trace) *models.SwarmStatus {
	phase := models.SwarmPhaseFailed
	message := t.Error
	progress := 0
	if t.Status == models.TraceStatusCompleted {
		phase = models.SwarmPhaseCompleted
		message = "Mission completed"
		progress = 100
	}

	var agents []models.AgentState
	if n := len(t.Iterations); n > 0 {
		last := t.Iterations[n-1]
		agents = make([]models.AgentState, 0, len(last.AgentResponses))
		for _, r := range last.AgentResponses {
			state := models.AgentState{ID: r.AgentID, Status: "completed", Model: r.Model}
			if r.Error != "" {
				state.Status = "failed"
			} else {
				conf, lat := r.Confidence, r.LatencyMs
				state.Confidence = &conf
				state.LatencyMs = &lat
			}
			agents = append(agents, state)
		}
	}

	return &models.SwarmStatus{
		TraceID:          t.TraceID,
		Status:           phase,
		Agents:           agents,
		CurrentIteration: len(t.Iterations),
		Progress:         progress,
		Message:          message,
	}
}

// handleListTraces serves GET /api/traces.
func (s *Server) handleListTraces(c *gin.Context) {
	limit, offset, err := listParams(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}
	c.JSON(http.StatusOK, s.store.List(limit, offset))
}

// handleActiveSwarms serves GET /api/swarms/active.
func (s *Server) handleActiveSwarms(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Statuses().Active())
}
