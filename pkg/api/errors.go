package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hivemind-ai/hivemind/pkg/llm"
	"github.com/hivemind-ai/hivemind/pkg/swarm"
)

// Error codes returned in response bodies.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeBudgetExceeded  = "BUDGET_EXCEEDED"
	CodeSafetyBlocked   = "SAFETY_BLOCKED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeUpstreamFailed  = "UPSTREAM_FAILED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody is the uniform error envelope. Stack traces are never included.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorBody{Error: message, Code: code})
}

// respondMissionError maps engine and upstream failures onto the HTTP error
// taxonomy.
func respondMissionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, swarm.ErrSafetyBlocked):
		respondError(c, http.StatusForbidden, CodeSafetyBlocked,
			"Mission blocked by safety system")
	case errors.Is(err, swarm.ErrBudgetExceeded):
		respondError(c, http.StatusPaymentRequired, CodeBudgetExceeded, err.Error())
	case errors.Is(err, llm.ErrRateLimited):
		respondError(c, http.StatusTooManyRequests, CodeRateLimited,
			"Upstream rate limit exceeded")
	case errors.Is(err, llm.ErrMissingCredential):
		respondError(c, http.StatusInternalServerError, CodeUpstreamFailed, err.Error())
	case errors.Is(err, swarm.ErrSynthesisFailed), errors.Is(err, llm.ErrUpstreamFailed):
		respondError(c, http.StatusInternalServerError, CodeUpstreamFailed, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, CodeInternalError,
			"Mission execution failed")
	}
}
