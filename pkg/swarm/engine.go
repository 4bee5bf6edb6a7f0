// Package swarm implements the mission engine: staggered agent fan-out,
// the multi-round critique loop with a stagnation guardian, posterior
// weighting, and final synthesis with fallback. One ExecuteMission call
// drives a mission from preflight to a terminal trace.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hivemind-ai/hivemind/pkg/config"
	"github.com/hivemind-ai/hivemind/pkg/cost"
	"github.com/hivemind-ai/hivemind/pkg/events"
	"github.com/hivemind-ai/hivemind/pkg/llm"
	"github.com/hivemind-ai/hivemind/pkg/metrics"
	"github.com/hivemind-ai/hivemind/pkg/models"
	"github.com/hivemind-ai/hivemind/pkg/safety"
	"github.com/hivemind-ai/hivemind/pkg/tracestore"
)

// Critique loop tuning.
const (
	maxCritiqueIterations   = 5
	consensusThreshold      = 0.92
	minConsensusImprovement = 0.02
	guardianPatience        = 2
)

// agentMaxTokens caps each swarm agent's completion.
const agentMaxTokens = 600

// Mission-level failures surfaced by ExecuteMission.
var (
	// ErrSafetyBlocked is returned when the input scan blocks the mission.
	// A failed trace is persisted before the error is returned.
	ErrSafetyBlocked = errors.New("mission blocked by safety system")

	// ErrBudgetExceeded is returned when the cost estimate exceeds the
	// budget. No trace is persisted.
	ErrBudgetExceeded = errors.New("estimated cost exceeds budget")

	// ErrCancelled is returned when the caller's context is cancelled
	// mid-mission. The trace is persisted as failed.
	ErrCancelled = errors.New("cancelled")

	// ErrSynthesisFailed is returned when both the synthesis model and the
	// fallback model fail.
	ErrSynthesisFailed = errors.New("synthesis failed on primary and fallback models")
)

// Caller issues one upstream chat completion. Satisfied by *llm.Client;
// tests substitute scripted fakes.
type Caller interface {
	Call(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// Engine runs missions. All dependencies are injected; the engine holds no
// global state beyond what its collaborators own. Safe for concurrent
// ExecuteMission calls.
type Engine struct {
	cfg       *config.Config
	caller    Caller
	store     *tracestore.Store
	bus       *events.Bus
	scanner   *safety.Scanner
	estimator *cost.Estimator
	metrics   *metrics.Registry
	statuses  *StatusRegistry
	log       *slog.Logger
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(
	cfg *config.Config,
	caller Caller,
	store *tracestore.Store,
	bus *events.Bus,
	scanner *safety.Scanner,
	estimator *cost.Estimator,
	reg *metrics.Registry,
	statuses *StatusRegistry,
) *Engine {
	return &Engine{
		cfg:       cfg,
		caller:    caller,
		store:     store,
		bus:       bus,
		scanner:   scanner,
		estimator: estimator,
		metrics:   reg,
		statuses:  statuses,
		log:       slog.Default().With("component", "swarm"),
	}
}

// Statuses exposes the swarm status registry for status and WS endpoints.
func (e *Engine) Statuses() *StatusRegistry { return e.statuses }

// Estimate returns the preflight cost estimate for a mission without
// executing it.
func (e *Engine) Estimate(mission string, swarmSize int, maxBudget float64) models.CostEstimate {
	swarmSize = e.clampSwarmSize(swarmSize)
	if maxBudget <= 0 {
		maxBudget = e.cfg.MaxBudget
	}
	return e.estimator.Estimate(mission, swarmSize, maxBudget)
}

// ExecuteMission runs a mission to a terminal trace: preflight safety and
// budget checks, staggered fan-out, critique rounds to consensus, and
// weighted synthesis. Blocks until terminal. The returned trace is non-nil
// whenever one was persisted, including on failure.
func (e *Engine) ExecuteMission(ctx context.Context, mission string, swarmSize int, maxBudget float64) (*models.Trace, error) {
	start := time.Now()
	e.metrics.MissionsTotal.Inc()

	inputFlags := e.scanner.Scan(mission, models.FlagSourceInput)
	e.metrics.RedTeamFlagsTotal.Add(float64(len(inputFlags)))
	if safety.ShouldBlock(inputFlags) {
		trace := e.persistBlockedTrace(mission, inputFlags, start)
		e.log.Warn("Mission blocked by input safety scan",
			"trace_id", trace.TraceID,
			"severity", safety.HighestSeverity(inputFlags))
		return trace, ErrSafetyBlocked
	}

	swarmSize = e.clampSwarmSize(swarmSize)
	if maxBudget <= 0 {
		maxBudget = e.cfg.MaxBudget
	}

	estimate := e.estimator.Estimate(mission, swarmSize, maxBudget)
	if !estimate.WithinBudget {
		return nil, fmt.Errorf("%w: estimated $%.4f, budget $%.2f",
			ErrBudgetExceeded, estimate.TotalCost, maxBudget)
	}

	trace := e.newTrace(mission, inputFlags, estimate.TotalCost, start)
	e.store.Save(trace)
	e.statuses.Put(newSwarmStatus(trace.TraceID, swarmSize, e.cfg.SwarmModel))

	e.log.Info("Mission started",
		"trace_id", trace.TraceID,
		"swarm_size", swarmSize,
		"estimated_cost", estimate.TotalCost)

	result, err := e.run(ctx, trace, mission, swarmSize)
	if err != nil {
		return e.failMission(trace.TraceID, err, start), err
	}
	return e.completeMission(trace.TraceID, result, start)
}

// missionResult carries the state accumulated by fan-out, critique, and
// synthesis into final persistence.
type missionResult struct {
	iterations     []models.Iteration
	weights        map[string]float64
	synthesis      string
	actualCost     float64
	synthesisFlags []models.RedTeamFlag
}

// run drives the mission body after preflight: fan-out, output scanning,
// critique loop, synthesis.
func (e *Engine) run(ctx context.Context, trace *models.Trace, mission string, swarmSize int) (*missionResult, error) {
	responses := e.runFanout(ctx, trace.TraceID, mission, swarmSize)
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	var outputFlags []models.RedTeamFlag
	for _, r := range responses {
		if r.Error != "" || r.Response == "" {
			continue
		}
		outputFlags = append(outputFlags, e.scanner.Scan(r.Response, models.FlagSourceOutput)...)
	}
	if len(outputFlags) > 0 {
		e.metrics.RedTeamFlagsTotal.Add(float64(len(outputFlags)))
		e.appendFlags(trace.TraceID, outputFlags)
	}

	crit, err := e.runCritiqueLoop(ctx, trace.TraceID, mission, responses)
	if err != nil {
		return nil, err
	}

	synthesis, modelUsed, synthUsage, err := e.runSynthesis(ctx, trace.TraceID, mission, crit.responses, crit.weights)
	if err != nil {
		return nil, err
	}

	synthFlags := e.scanner.Scan(synthesis, models.FlagSourceSynthesis)
	if len(synthFlags) > 0 {
		e.metrics.RedTeamFlagsTotal.Add(float64(len(synthFlags)))
	}

	return &missionResult{
		iterations:     crit.iterations,
		weights:        crit.weights,
		synthesis:      synthesis,
		actualCost:     e.computeActualCost(crit.responses, crit.reviewerUsage, synthUsage, modelUsed),
		synthesisFlags: synthFlags,
	}, nil
}

// completeMission persists the terminal completed trace and settles status,
// metrics, and event streams.
func (e *Engine) completeMission(traceID string, result *missionResult, start time.Time) (*models.Trace, error) {
	durationMs := time.Since(start).Milliseconds()
	status := models.TraceStatusCompleted
	synthesis := safety.Sanitize(result.synthesis)

	current := e.store.Get(traceID)
	if current == nil {
		e.metrics.MissionsFailed.Inc()
		e.statuses.Mutate(traceID, func(s *models.SwarmStatus) {
			s.Status = models.SwarmPhaseFailed
			s.Message = "trace removed before completion"
		})
		e.statuses.ScheduleEviction(traceID)
		e.bus.CloseTrace(traceID)
		return nil, fmt.Errorf("trace %s removed before completion", traceID)
	}
	flags := append(current.RedTeamFlags, result.synthesisFlags...)

	updated, err := e.store.Update(traceID, models.TracePatch{
		Iterations:            &result.iterations,
		RedTeamFlags:          &flags,
		FinalPosteriorWeights: &result.weights,
		SynthesisResult:       &synthesis,
		ActualCost:            &result.actualCost,
		DurationMs:            &durationMs,
		Status:                &status,
	})
	if err != nil {
		return nil, fmt.Errorf("persisting completed trace: %w", err)
	}

	e.metrics.MissionsSuccess.Inc()
	e.metrics.CostTotal.Add(result.actualCost)
	e.metrics.ObserveDuration(float64(durationMs))

	e.statuses.Mutate(traceID, func(s *models.SwarmStatus) {
		s.Status = models.SwarmPhaseCompleted
		s.Progress = 100
		s.Message = "Mission completed"
	})
	e.statuses.ScheduleEviction(traceID)
	e.bus.CloseTrace(traceID)

	e.log.Info("Mission completed",
		"trace_id", traceID,
		"iterations", len(result.iterations),
		"actual_cost", result.actualCost,
		"duration_ms", durationMs)
	return updated, nil
}

// failMission persists the terminal failed trace and settles status,
// metrics, and event streams. Returns the updated trace, or nil when the
// store no longer knows the id.
func (e *Engine) failMission(traceID string, cause error, start time.Time) *models.Trace {
	durationMs := time.Since(start).Milliseconds()
	status := models.TraceStatusFailed
	msg := cause.Error()
	if errors.Is(cause, ErrCancelled) {
		msg = "cancelled"
	}

	updated, err := e.store.Update(traceID, models.TracePatch{
		Status:     &status,
		Error:      &msg,
		DurationMs: &durationMs,
	})
	if err != nil {
		e.log.Error("Failed to persist failed trace", "trace_id", traceID, "error", err)
	}

	e.metrics.MissionsFailed.Inc()
	e.metrics.ObserveDuration(float64(durationMs))

	e.statuses.Mutate(traceID, func(s *models.SwarmStatus) {
		s.Status = models.SwarmPhaseFailed
		s.Message = msg
	})
	e.statuses.ScheduleEviction(traceID)
	e.bus.CloseTrace(traceID)

	e.log.Warn("Mission failed", "trace_id", traceID, "error", msg, "duration_ms", durationMs)
	return updated
}

// persistBlockedTrace records the failed trace for a safety-blocked mission.
func (e *Engine) persistBlockedTrace(mission string, flags []models.RedTeamFlag, start time.Time) *models.Trace {
	trace := e.newTrace(mission, flags, 0, start)
	trace.Status = models.TraceStatusFailed
	trace.Error = "Mission blocked by safety system"
	trace.DurationMs = time.Since(start).Milliseconds()
	e.store.Save(trace)

	e.metrics.MissionsFailed.Inc()
	e.metrics.ObserveDuration(float64(trace.DurationMs))
	return trace
}

// newTrace builds the initial running trace for a mission.
func (e *Engine) newTrace(mission string, flags []models.RedTeamFlag, costEstimate float64, start time.Time) *models.Trace {
	if flags == nil {
		flags = []models.RedTeamFlag{}
	}
	return &models.Trace{
		TraceID:               uuid.New().String(),
		Timestamp:             start.UTC(),
		Mission:               safety.Sanitize(mission),
		Iterations:            []models.Iteration{},
		BranchScores:          map[string]float64{},
		RedTeamFlags:          flags,
		FinalPosteriorWeights: map[string]float64{},
		CostEstimate:          costEstimate,
		Status:                models.TraceStatusRunning,
	}
}

// newSwarmStatus builds the initial SwarmStatus with every agent pending.
func newSwarmStatus(traceID string, swarmSize int, model string) *models.SwarmStatus {
	agents := make([]models.AgentState, swarmSize)
	for i := range agents {
		agents[i] = models.AgentState{
			ID:     fmt.Sprintf("agent-%d", i+1),
			Status: "pending",
			Model:  model,
		}
	}
	return &models.SwarmStatus{
		TraceID: traceID,
		Status:  models.SwarmPhaseRunning,
		Agents:  agents,
		Message: "Swarm dispatched",
	}
}

// appendFlags merges new flags into the persisted trace.
func (e *Engine) appendFlags(traceID string, flags []models.RedTeamFlag) {
	current := e.store.Get(traceID)
	if current == nil {
		return
	}
	merged := append(current.RedTeamFlags, flags...)
	if _, err := e.store.Update(traceID, models.TracePatch{RedTeamFlags: &merged}); err != nil {
		e.log.Error("Failed to append safety flags", "trace_id", traceID, "error", err)
	}
}

// clampSwarmSize resolves the effective swarm size: the configured default
// when unset, bounded to [1, maxAgents].
func (e *Engine) clampSwarmSize(n int) int {
	if n == 0 {
		n = e.cfg.SwarmSize
	}
	if n < 1 {
		n = 1
	}
	if n > e.cfg.MaxAgents {
		n = e.cfg.MaxAgents
	}
	return n
}

// computeActualCost sums real spend: per-agent tokens at the swarm model's
// rates (zero for free models), reviewer tokens at the reviewer model's
// rates, and synthesis tokens at the rates of the model that actually
// produced the synthesis.
func (e *Engine) computeActualCost(
	responses []models.AgentResponse,
	reviewerUsage models.TokenUsage,
	synthesisUsage models.TokenUsage,
	synthesisModel string,
) float64 {
	var total float64

	if !config.IsFreeModel(e.cfg.SwarmModel) {
		p := config.PricingFor(e.cfg.SwarmModel)
		for _, r := range responses {
			total += float64(r.Tokens.Input)/1000*p.InputPer1K +
				float64(r.Tokens.Output)/1000*p.OutputPer1K
		}
	}

	rp := config.PricingFor(e.cfg.ReviewerModel)
	total += float64(reviewerUsage.Input)/1000*rp.InputPer1K +
		float64(reviewerUsage.Output)/1000*rp.OutputPer1K

	sp := config.PricingFor(synthesisModel)
	total += float64(synthesisUsage.Input)/1000*sp.InputPer1K +
		float64(synthesisUsage.Output)/1000*sp.OutputPer1K

	return total
}
