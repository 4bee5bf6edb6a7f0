package swarm

import (
	"context"
	"fmt"

	"github.com/hivemind-ai/hivemind/pkg/events"
	"github.com/hivemind-ai/hivemind/pkg/llm"
	"github.com/hivemind-ai/hivemind/pkg/models"
)

// synthesisMaxTokens caps the final synthesized answer.
const synthesisMaxTokens = 1000

// runSynthesis produces the final answer from the weighted response set.
// The synthesis model is tried first; any error triggers one retry on the
// fallback model. Returns the synthesized text, the model that produced
// it, and that call's token usage. Failure of both models is fatal to the
// mission.
func (e *Engine) runSynthesis(
	ctx context.Context,
	traceID, mission string,
	responses []models.AgentResponse,
	weights map[string]float64,
) (string, string, models.TokenUsage, error) {
	e.statuses.Mutate(traceID, func(s *models.SwarmStatus) {
		s.Status = models.SwarmPhaseSynthesizing
		s.Progress = 85
		s.Message = "Synthesizing final answer"
	})
	e.bus.PublishEvent(traceID, events.SwarmEvent{
		Type: events.EventSynthesisStart,
		Data: map[string]any{"model": e.cfg.SynthesisModel, "agentCount": len(responses)},
	})

	prompt := synthesisPrompt(mission, responses, weights)

	text, usage, primaryErr := e.callSynthesisModel(ctx, e.cfg.SynthesisModel, prompt)
	modelUsed := e.cfg.SynthesisModel
	if primaryErr != nil {
		if ctx.Err() != nil {
			return "", "", models.TokenUsage{}, ErrCancelled
		}
		e.log.Warn("Synthesis model failed, retrying with fallback",
			"trace_id", traceID, "model", e.cfg.SynthesisModel, "error", primaryErr)

		var fallbackErr error
		text, usage, fallbackErr = e.callSynthesisModel(ctx, e.cfg.FallbackModel, prompt)
		modelUsed = e.cfg.FallbackModel
		if fallbackErr != nil {
			if ctx.Err() != nil {
				return "", "", models.TokenUsage{}, ErrCancelled
			}
			return "", "", models.TokenUsage{}, fmt.Errorf("%w: primary: %v; fallback: %v",
				ErrSynthesisFailed, primaryErr, fallbackErr)
		}
	}

	e.bus.PublishEvent(traceID, events.SwarmEvent{
		Type: events.EventSynthesisComplete,
		Data: map[string]any{"model": modelUsed, "length": len(text)},
	})
	return text, modelUsed, usage, nil
}

// callSynthesisModel performs one synthesis attempt against the given model.
func (e *Engine) callSynthesisModel(ctx context.Context, model, prompt string) (string, models.TokenUsage, error) {
	resp, err := e.caller.Call(ctx, &llm.ChatRequest{
		Model:     model,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens: synthesisMaxTokens,
	})
	if err != nil {
		return "", models.TokenUsage{}, err
	}
	return resp.Content(), models.TokenUsage{
		Input:  resp.Usage.PromptTokens,
		Output: resp.Usage.CompletionTokens,
	}, nil
}
