package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/hivemind-ai/hivemind/pkg/events"
	"github.com/hivemind-ai/hivemind/pkg/llm"
	"github.com/hivemind-ai/hivemind/pkg/models"
)

// critiqueResult carries the final response set, weights, and the reviewer
// token usage accumulated across rounds.
type critiqueResult struct {
	responses     []models.AgentResponse
	iterations    []models.Iteration
	weights       map[string]float64
	reviewerUsage models.TokenUsage
}

// runCritiqueLoop iterates reviewer rounds until consensus, stagnation, or
// the round cap. Each round re-scores every agent, appends an Iteration to
// the trace, and recomputes posterior weights. With fewer than two usable
// responses the loop degenerates to a single fan-out iteration whose
// consensus is the mean confidence.
func (e *Engine) runCritiqueLoop(ctx context.Context, traceID, mission string, responses []models.AgentResponse) (*critiqueResult, error) {
	result := &critiqueResult{
		responses: responses,
		weights:   PosteriorWeights(responses),
	}

	if usableCount(responses) < 2 {
		e.log.Info("Skipping critique loop, not enough usable responses", "trace_id", traceID)
		result.iterations = e.appendIteration(traceID, result, meanConfidence(responses))
		return result, nil
	}

	var prevConsensus float64
	stagnant := 0

	for k := 1; k <= maxCritiqueIterations; k++ {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		e.statuses.Mutate(traceID, func(s *models.SwarmStatus) {
			s.CurrentIteration = k
			s.Message = fmt.Sprintf("Critique round %d", k)
		})
		e.bus.PublishEvent(traceID, events.SwarmEvent{
			Type: events.EventCritiqueStart,
			Data: map[string]any{"iteration": k, "agentCount": len(result.responses)},
		})

		consensus, fallback := e.runReviewerRound(ctx, traceID, mission, result)
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		result.weights = PosteriorWeights(result.responses)
		result.iterations = e.appendIteration(traceID, result, consensus)

		e.bus.PublishEvent(traceID, events.SwarmEvent{
			Type: events.EventCritiqueComplete,
			Data: map[string]any{"iteration": k, "consensusScore": consensus},
		})
		e.bus.PublishEvent(traceID, events.SwarmEvent{
			Type: events.EventConsensusUpdate,
			Data: map[string]any{
				"iteration":      k,
				"consensusScore": consensus,
				"threshold":      consensusThreshold,
			},
		})

		// Guardian: halt when consensus stops improving, preserving the
		// remaining budget. Reviewer-failure rounds count as stagnant.
		switch {
		case fallback:
			stagnant++
		case k > 1 && consensus-prevConsensus < minConsensusImprovement:
			stagnant++
		default:
			stagnant = 0
		}
		if stagnant >= guardianPatience {
			e.log.Info("Guardian halted critique loop",
				"trace_id", traceID, "iteration", k, "consensus", consensus)
			e.bus.PublishEvent(traceID, events.SwarmEvent{
				Type: events.EventConsensusUpdate,
				Data: map[string]any{
					"iteration":      k,
					"consensusScore": consensus,
					"threshold":      consensusThreshold,
					"guardianFail":   true,
				},
			})
			break
		}

		if consensus >= consensusThreshold {
			e.log.Info("Consensus reached",
				"trace_id", traceID, "iteration", k, "consensus", consensus)
			break
		}
		prevConsensus = consensus
	}

	return result, nil
}

// runReviewerRound calls the reviewer once and applies its verdict to the
// current responses. On reviewer failure the responses are left unchanged
// and the mean confidence stands in for consensus; fallback reports that
// degradation so the guardian can count the round as stagnant.
func (e *Engine) runReviewerRound(ctx context.Context, traceID, mission string, result *critiqueResult) (consensus float64, fallback bool) {
	resp, err := e.caller.Call(ctx, &llm.ChatRequest{
		Model: e.cfg.ReviewerModel,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: reviewerPrompt(mission, result.responses)},
		},
	})
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("Reviewer call failed, using mean confidence", "trace_id", traceID, "error", err)
		}
		return meanConfidence(result.responses), true
	}

	result.reviewerUsage.Input += resp.Usage.PromptTokens
	result.reviewerUsage.Output += resp.Usage.CompletionTokens

	text := resp.Content()
	e.bus.PublishThought(traceID, events.Thought{
		AgentID: "reviewer",
		Type:    events.ThoughtCritique,
		Content: text,
	})

	verdict := parseReviewerOutput(text)
	for i := range result.responses {
		if result.responses[i].Error != "" {
			continue
		}
		if score, ok := verdict.scores[result.responses[i].AgentID]; ok {
			result.responses[i].Confidence = score
		}
	}
	if !verdict.hasConsensus {
		return meanConfidence(result.responses), false
	}
	return verdict.consensus, false
}

// appendIteration records one critique round on the trace: the iteration
// list grows by one and the current weights are persisted alongside it.
func (e *Engine) appendIteration(traceID string, result *critiqueResult, consensus float64) []models.Iteration {
	iterations := append(result.iterations, models.Iteration{
		IterationID:    len(result.iterations) + 1,
		AgentResponses: append([]models.AgentResponse(nil), result.responses...),
		ConsensusScore: consensus,
		Timestamp:      time.Now().UTC(),
	})

	if _, err := e.store.Update(traceID, models.TracePatch{
		Iterations:            &iterations,
		FinalPosteriorWeights: &result.weights,
	}); err != nil {
		e.log.Error("Failed to persist iteration", "trace_id", traceID, "error", err)
	}
	return iterations
}

// usableCount is the number of non-errored responses with text.
func usableCount(responses []models.AgentResponse) int {
	n := 0
	for _, r := range responses {
		if r.Error == "" && r.Response != "" {
			n++
		}
	}
	return n
}
