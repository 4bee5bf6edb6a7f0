package swarm

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hivemind-ai/hivemind/pkg/events"
	"github.com/hivemind-ai/hivemind/pkg/llm"
	"github.com/hivemind-ai/hivemind/pkg/models"
	"github.com/hivemind-ai/hivemind/pkg/safety"
)

// runFanout launches n agent tasks, each delayed by i × throttle to stay
// under upstream free-tier rate limits, then calling the swarm model once.
// Agent failures are isolated: an errored agent records its error with
// confidence 0 and the mission continues. Returns one response per agent
// in agent order.
func (e *Engine) runFanout(ctx context.Context, traceID, mission string, n int) []models.AgentResponse {
	responses := make([]models.AgentResponse, n)
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			agentID := fmt.Sprintf("agent-%d", i+1)

			select {
			case <-gctx.Done():
				responses[i] = e.cancelledResponse(agentID)
				e.markAgentDone(traceID, &responses[i], int(completed.Add(1)), n)
				return nil
			case <-time.After(time.Duration(i) * e.cfg.Throttle()):
			}

			responses[i] = e.runAgent(gctx, traceID, agentID, mission)
			e.markAgentDone(traceID, &responses[i], int(completed.Add(1)), n)
			return nil
		})
	}
	_ = g.Wait()
	return responses
}

// runAgent performs one agent's upstream call and parses its response.
func (e *Engine) runAgent(ctx context.Context, traceID, agentID, mission string) models.AgentResponse {
	e.statuses.Mutate(traceID, func(s *models.SwarmStatus) {
		for j := range s.Agents {
			if s.Agents[j].ID == agentID {
				s.Agents[j].Status = "running"
			}
		}
	})
	e.bus.PublishEvent(traceID, events.SwarmEvent{
		Type: events.EventAgentStart,
		Data: map[string]any{"agentId": agentID, "model": e.cfg.SwarmModel},
	})

	// Temperature jitter in [0.8, 1.2) diversifies agent responses.
	temp := 0.8 + 0.4*rand.Float64()

	e.metrics.SwarmAgentsActive.Inc()
	start := time.Now()
	resp, err := e.caller.Call(ctx, &llm.ChatRequest{
		Model: e.cfg.SwarmModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: agentSystemPrompt(agentID)},
			{Role: llm.RoleUser, Content: mission},
		},
		Temperature: &temp,
		MaxTokens:   agentMaxTokens,
	})
	latencyMs := time.Since(start).Milliseconds()
	e.metrics.SwarmAgentsActive.Dec()

	if err != nil {
		if ctx.Err() != nil {
			return e.cancelledResponse(agentID)
		}
		e.log.Warn("Agent call failed", "trace_id", traceID, "agent_id", agentID, "error", err)
		return models.AgentResponse{
			AgentID:   agentID,
			Model:     e.cfg.SwarmModel,
			LatencyMs: latencyMs,
			Error:     err.Error(),
		}
	}

	text, confidence := parseConfidence(resp.Content())
	// Responses land in persisted iterations, so they pass the sanitizer
	// up front.
	text = safety.Sanitize(text)
	r := models.AgentResponse{
		AgentID:    agentID,
		Model:      e.cfg.SwarmModel,
		Response:   text,
		Confidence: confidence,
		LatencyMs:  latencyMs,
		Tokens: models.TokenUsage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
		},
	}
	e.bus.PublishThought(traceID, events.Thought{
		AgentID:    agentID,
		Type:       events.ThoughtResponse,
		Content:    text,
		Confidence: &confidence,
	})
	return r
}

// markAgentDone records one agent's completion in the status registry and
// publishes its terminal event. Fan-out progress tops out at 80.
func (e *Engine) markAgentDone(traceID string, r *models.AgentResponse, completed, total int) {
	agentStatus := "completed"
	if r.Error != "" {
		agentStatus = "failed"
	}

	e.statuses.Mutate(traceID, func(s *models.SwarmStatus) {
		for j := range s.Agents {
			if s.Agents[j].ID != r.AgentID {
				continue
			}
			s.Agents[j].Status = agentStatus
			if r.Error == "" {
				conf, lat := r.Confidence, r.LatencyMs
				s.Agents[j].Confidence = &conf
				s.Agents[j].LatencyMs = &lat
			}
		}
		s.Progress = completed * 80 / total
	})

	e.bus.PublishEvent(traceID, events.SwarmEvent{
		Type: events.EventAgentComplete,
		Data: map[string]any{
			"agentId":    r.AgentID,
			"status":     agentStatus,
			"confidence": r.Confidence,
			"latencyMs":  r.LatencyMs,
		},
	})
}

// cancelledResponse is the record for an agent terminated by cancellation.
func (e *Engine) cancelledResponse(agentID string) models.AgentResponse {
	return models.AgentResponse{
		AgentID: agentID,
		Model:   e.cfg.SwarmModel,
		Error:   "cancelled",
	}
}
