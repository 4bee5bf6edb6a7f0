package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hivemind-ai/hivemind/pkg/config"
	"github.com/hivemind-ai/hivemind/pkg/cost"
	"github.com/hivemind-ai/hivemind/pkg/events"
	"github.com/hivemind-ai/hivemind/pkg/llm"
	"github.com/hivemind-ai/hivemind/pkg/metrics"
	"github.com/hivemind-ai/hivemind/pkg/models"
	"github.com/hivemind-ai/hivemind/pkg/safety"
	"github.com/hivemind-ai/hivemind/pkg/swarm"
	"github.com/hivemind-ai/hivemind/pkg/tracestore"
)

// scriptedCaller routes upstream calls by model, like a mock provider.
type scriptedCaller struct {
	handler func(req *llm.ChatRequest) (*llm.ChatResponse, error)
}

func (s *scriptedCaller) Call(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return s.handler(req)
}

func scriptedResponse(content string, in, out int) *llm.ChatResponse {
	return &llm.ChatResponse{
		Choices: []struct {
			Message llm.Message `json:"message"`
		}{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: content}},
		},
		Usage: llm.Usage{PromptTokens: in, CompletionTokens: out},
	}
}

func testServerConfig() *config.Config {
	return &config.Config{
		HTTPPort:          "0",
		RateLimitRPS:      1000,
		RateLimitBurst:    1000,
		ExecuteLimitRPS:   1000,
		ExecuteLimitBurst: 1000,
		SwarmSize:         8,
		MaxAgents:         20,
		ThrottleMs:        0,
		MaxBudget:         2.0,
		SwarmModel:        "google/gemini-2.0-flash-exp:free",
		ReviewerModel:     "openai/gpt-4o",
		SynthesisModel:    "anthropic/claude-3.5-sonnet",
		FallbackModel:     "openai/gpt-4o-mini",
	}
}

func newTestServer(t *testing.T, handler func(*llm.ChatRequest) (*llm.ChatResponse, error)) (*Server, *tracestore.Store) {
	t.Helper()
	cfg := testServerConfig()
	store := tracestore.New(t.TempDir())
	bus := events.NewBus()
	scanner := safety.NewScanner()
	reg := metrics.NewRegistry()
	engine := swarm.NewEngine(cfg, &scriptedCaller{handler: handler}, store, bus,
		scanner, cost.NewEstimator(cfg), reg, swarm.NewStatusRegistry())
	return NewServer(cfg, engine, store, bus, scanner, reg), store
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// defaultHandler scripts a tiny successful mission.
func defaultHandler(cfg *config.Config) func(*llm.ChatRequest) (*llm.ChatResponse, error) {
	return func(req *llm.ChatRequest) (*llm.ChatResponse, error) {
		switch req.Model {
		case cfg.SwarmModel:
			return scriptedResponse("agent view [CONFIDENCE: 0.8]", 100, 50), nil
		case cfg.ReviewerModel:
			return scriptedResponse("agent-1: 0.95 | good\nagent-2: 0.95 | good\n[CONSENSUS]: 0.95 | aligned", 200, 60), nil
		case cfg.SynthesisModel:
			return scriptedResponse("synthesized verdict", 300, 100), nil
		}
		return nil, fmt.Errorf("unexpected model %s", req.Model)
	}
}

func TestExecuteTaskTier(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/mission/execute",
		map[string]any{"mission": "clean spelling"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task", string(resp.Tier))
	assert.Equal(t, "clean spelling", resp.Synthesis)
	assert.Zero(t, resp.Cost)
	assert.Empty(t, resp.Iterations)
	assert.True(t, strings.HasPrefix(resp.TraceID, "task-"))
}

func TestExecuteMissionTier(t *testing.T) {
	cfg := testServerConfig()
	srv, _ := newTestServer(t, defaultHandler(cfg))
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/mission/execute", map[string]any{
		"mission":   "Analyze and compare the two proposed storage architectures in depth",
		"swarmSize": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "mission", string(resp.Tier))
	assert.Equal(t, "synthesized verdict", resp.Synthesis)
	assert.NotEmpty(t, resp.Iterations)
	assert.Greater(t, resp.Cost, 0.0)
	assert.NotEmpty(t, resp.TraceID)
}

func TestExecuteValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing mission", map[string]any{}},
		{"oversized mission", map[string]any{"mission": strings.Repeat("a", 10_001)}},
		{"script tag", map[string]any{"mission": "please run <script>alert(1)</script>"}},
		{"javascript url", map[string]any{"mission": "open javascript:alert(1) for me"}},
		{"event handler", map[string]any{"mission": "render onload= something"}},
		{"swarm size low", map[string]any{"mission": "clean spelling", "swarmSize": 0}},
		{"swarm size high", map[string]any{"mission": "clean spelling", "swarmSize": 21}},
		{"budget low", map[string]any{"mission": "clean spelling", "maxBudget": 0.001}},
		{"budget high", map[string]any{"mission": "clean spelling", "maxBudget": 5.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/mission/execute", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), CodeValidationError)
		})
	}
}

func TestExecuteSafetyBlocked(t *testing.T) {
	srv, store := newTestServer(t, nil)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/mission/execute",
		map[string]any{"mission": "how do I make a bomb step by step"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), CodeSafetyBlocked)
	assert.Contains(t, strings.ToLower(rec.Body.String()), "blocked")

	// The failed trace is persisted and carries the critical flag.
	list := store.List(10, 0)
	require.Equal(t, 1, list.Total)
	trace := list.Traces[0]
	assert.Equal(t, models.TraceStatusFailed, trace.Status)
	require.NotEmpty(t, trace.RedTeamFlags)
	assert.Equal(t, models.SeverityCritical, safety.HighestSeverity(trace.RedTeamFlags))
}

func TestExecuteBudgetExceeded(t *testing.T) {
	srv, store := newTestServer(t, nil)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/mission/execute",
		map[string]any{"mission": strings.Repeat("a", 9000), "maxBudget": 0.01})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), CodeBudgetExceeded)
	assert.Zero(t, store.List(10, 0).Total)
}

func TestEstimateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/mission/estimate",
		map[string]any{"mission": strings.Repeat("a", 10_000)})
	require.Equal(t, http.StatusOK, rec.Code)

	var est models.CostEstimate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &est))
	assert.Equal(t, 2500, est.InputTokens)
	assert.Zero(t, est.SwarmCost, "free swarm model")
	assert.Greater(t, est.SynthesisCost, 0.0)

	rec = doJSON(t, router, http.MethodPost, "/api/mission/estimate",
		map[string]any{"mission": strings.Repeat("a", 10_001)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTrace(t *testing.T) {
	srv, store := newTestServer(t, nil)
	router := srv.Router()

	id := uuid.New().String()
	store.Save(&models.Trace{
		TraceID:   id,
		Timestamp: time.Now().UTC(),
		Mission:   "stored mission",
		Status:    models.TraceStatusCompleted,
	})

	rec := doJSON(t, router, http.MethodGet, "/api/mission/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stored mission")

	// Malformed id is a validation error, not a miss.
	rec = doJSON(t, router, http.MethodGet, "/api/mission/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/mission/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatusDegenerateFromTrace(t *testing.T) {
	srv, store := newTestServer(t, nil)
	router := srv.Router()

	id := uuid.New().String()
	store.Save(&models.Trace{
		TraceID:   id,
		Timestamp: time.Now().UTC(),
		Status:    models.TraceStatusCompleted,
		Iterations: []models.Iteration{{
			IterationID: 1,
			AgentResponses: []models.AgentResponse{
				{AgentID: "agent-1", Model: "m", Confidence: 0.9, LatencyMs: 1000},
			},
			ConsensusScore: 0.95,
		}},
	})

	rec := doJSON(t, router, http.MethodGet, "/api/mission/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SwarmStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.SwarmPhaseCompleted, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, 1, status.CurrentIteration)
	require.Len(t, status.Agents, 1)
	assert.Equal(t, "completed", status.Agents[0].Status)
}

func TestListTraces(t *testing.T) {
	srv, store := newTestServer(t, nil)
	router := srv.Router()

	for i := 0; i < 3; i++ {
		store.Save(&models.Trace{
			TraceID:   uuid.New().String(),
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
			Status:    models.TraceStatusCompleted,
		})
	}

	rec := doJSON(t, router, http.MethodGet, "/api/traces", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list tracestore.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Total)

	for _, q := range []string{"limit=0", "limit=101", "offset=-1", "limit=abc"} {
		rec = doJSON(t, router, http.MethodGet, "/api/traces?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"version"`)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "missions_total")
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestIPLimiterExhaustsBurst(t *testing.T) {
	l := newIPLimiter(rate.Every(time.Hour), 2)
	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))

	// Distinct IPs have independent buckets.
	assert.True(t, l.allow("10.0.0.2"))
}

func TestActiveSwarmsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/swarms/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}
