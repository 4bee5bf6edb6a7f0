package api

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Boundary limits.
const (
	missionMaxLen    = 10_000
	swarmSizeMin     = 1
	swarmSizeMax     = 20
	defaultSwarmSize = 8
	maxBudgetMin     = 0.01
	maxBudgetMax     = 5.0
	defaultMaxBudget = 2.0
	listLimitMax     = 100
	defaultListLimit = 50
)

// xssPatterns reject script-injection shapes in mission text.
var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
}

// executeRequest is the body of POST /api/mission/execute. Pointer fields
// distinguish absent from zero so defaults apply only when unset.
type executeRequest struct {
	Mission   string   `json:"mission"`
	Content   string   `json:"content"`
	SwarmSize *int     `json:"swarmSize"`
	MaxBudget *float64 `json:"maxBudget"`
}

// estimateRequest is the body of POST /api/mission/estimate.
type estimateRequest struct {
	Mission   string `json:"mission"`
	SwarmSize *int   `json:"swarmSize"`
}

func validateMission(mission string) error {
	if len(mission) == 0 {
		return fmt.Errorf("mission is required")
	}
	if len(mission) > missionMaxLen {
		return fmt.Errorf("mission exceeds %d characters", missionMaxLen)
	}
	for _, p := range xssPatterns {
		if p.MatchString(mission) {
			return fmt.Errorf("mission contains disallowed markup")
		}
	}
	return nil
}

func validateSwarmSize(n *int) (int, error) {
	if n == nil {
		return defaultSwarmSize, nil
	}
	if *n < swarmSizeMin || *n > swarmSizeMax {
		return 0, fmt.Errorf("swarmSize must be between %d and %d", swarmSizeMin, swarmSizeMax)
	}
	return *n, nil
}

func validateMaxBudget(b *float64) (float64, error) {
	if b == nil {
		return defaultMaxBudget, nil
	}
	if *b < maxBudgetMin || *b > maxBudgetMax {
		return 0, fmt.Errorf("maxBudget must be between %.2f and %.1f", maxBudgetMin, maxBudgetMax)
	}
	return *b, nil
}

// traceIDParam extracts and validates the UUID path parameter. A malformed
// id is a validation error, not a miss.
func traceIDParam(c *gin.Context) (string, error) {
	id := c.Param("traceId")
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("traceId must be a UUID")
	}
	return id, nil
}

// listParams parses and bounds the limit/offset query parameters.
func listParams(c *gin.Context) (limit, offset int, err error) {
	limit = defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > listLimitMax {
			return 0, 0, fmt.Errorf("limit must be an integer between 1 and %d", listLimitMax)
		}
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
