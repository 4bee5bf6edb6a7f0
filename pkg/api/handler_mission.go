package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hivemind-ai/hivemind/pkg/models"
	"github.com/hivemind-ai/hivemind/pkg/safety"
	"github.com/hivemind-ai/hivemind/pkg/tiering"
)

// executeResponse is the body of a successful POST /api/mission/execute.
type executeResponse struct {
	TraceID      string               `json:"traceId"`
	Synthesis    string               `json:"synthesis"`
	Iterations   []models.Iteration   `json:"iterations"`
	Cost         float64              `json:"cost"`
	DurationMs   int64                `json:"durationMs"`
	RedTeamFlags []models.RedTeamFlag `json:"redTeamFlags"`
	Tier         tiering.Tier         `json:"tier"`
	TierReason   string               `json:"tierReason"`
}

// handleExecuteMission serves POST /api/mission/execute: tier the request,
// run it locally for the task tier or through the swarm for missions.
func (s *Server) handleExecuteMission(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}
	if err := validateMission(req.Mission); err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}
	swarmSize, err := validateSwarmSize(req.SwarmSize)
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}
	maxBudget, err := validateMaxBudget(req.MaxBudget)
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	// The safety gate runs ahead of tiering: blocked content never takes
	// the free local path. The engine persists the failed trace.
	blocked := safety.ShouldBlock(s.scanner.Scan(req.Mission, models.FlagSourceInput))

	cls := tiering.Classify(req.Mission)
	if cls.Tier == tiering.TierTask && !blocked {
		s.executeTask(c, &req, cls)
		return
	}

	start := time.Now()
	trace, err := s.engine.ExecuteMission(c.Request.Context(), req.Mission, swarmSize, maxBudget)
	if err != nil {
		respondMissionError(c, err)
		return
	}

	c.JSON(http.StatusOK, executeResponse{
		TraceID:      trace.TraceID,
		Synthesis:    trace.SynthesisResult,
		Iterations:   trace.Iterations,
		Cost:         trace.ActualCost,
		DurationMs:   time.Since(start).Milliseconds(),
		RedTeamFlags: trace.RedTeamFlags,
		Tier:         cls.Tier,
		TierReason:   cls.Reason,
	})
}

// executeTask serves the task tier: a zero-cost local transformation with
// a synthetic trace id. Absent content falls back to the mission text.
func (s *Server) executeTask(c *gin.Context, req *executeRequest, cls tiering.Classification) {
	start := time.Now()
	content := req.Content
	if content == "" {
		content = req.Mission
	}

	result := tiering.ExecuteTask(cls.LocalHandler, req.Mission, content)
	c.JSON(http.StatusOK, executeResponse{
		TraceID:      fmt.Sprintf("task-%d", time.Now().UnixMilli()),
		Synthesis:    result,
		Iterations:   []models.Iteration{},
		Cost:         0,
		DurationMs:   time.Since(start).Milliseconds(),
		RedTeamFlags: []models.RedTeamFlag{},
		Tier:         cls.Tier,
		TierReason:   cls.Reason,
	})
}

// handleEstimateMission serves POST /api/mission/estimate.
func (s *Server) handleEstimateMission(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}
	if err := validateMission(req.Mission); err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}
	swarmSize, err := validateSwarmSize(req.SwarmSize)
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	c.JSON(http.StatusOK, s.engine.Estimate(req.Mission, swarmSize, s.cfg.MaxBudget))
}
