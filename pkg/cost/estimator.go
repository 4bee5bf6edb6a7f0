// Package cost models per-mission spend before any upstream call is made.
package cost

import (
	"github.com/hivemind-ai/hivemind/pkg/config"
	"github.com/hivemind-ai/hivemind/pkg/models"
)

// expectedOutputTokens is the modeled per-agent output size.
const expectedOutputTokens = 500

// synthesisOutputTokens is the modeled synthesis output size.
const synthesisOutputTokens = 1000

// EstimateTokens approximates the token count of text as ⌈chars/4⌉.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Estimator computes mission cost estimates from the model pricing table.
type Estimator struct {
	swarmModel     string
	synthesisModel string
}

// NewEstimator creates an Estimator bound to the configured swarm and
// synthesis models.
func NewEstimator(cfg *config.Config) *Estimator {
	return &Estimator{
		swarmModel:     cfg.SwarmModel,
		synthesisModel: cfg.SynthesisModel,
	}
}

// Estimate returns the modeled cost of running a mission with the given
// swarm size against maxBudget. Swarm calls use the swarm model's rates
// (zero for free models); synthesis input is modeled as the mission input
// plus one expected output per agent.
func (e *Estimator) Estimate(mission string, swarmSize int, maxBudget float64) models.CostEstimate {
	inputTokens := EstimateTokens(mission)

	swarmPricing := config.PricingFor(e.swarmModel)
	swarmCost := float64(swarmSize) * (float64(inputTokens)/1000*swarmPricing.InputPer1K +
		float64(expectedOutputTokens)/1000*swarmPricing.OutputPer1K)

	synthesisInput := inputTokens + swarmSize*expectedOutputTokens
	synthPricing := config.PricingFor(e.synthesisModel)
	synthesisCost := float64(synthesisInput)/1000*synthPricing.InputPer1K +
		float64(synthesisOutputTokens)/1000*synthPricing.OutputPer1K

	total := swarmCost + synthesisCost

	return models.CostEstimate{
		InputTokens:          inputTokens,
		ExpectedOutputTokens: expectedOutputTokens,
		SwarmCost:            swarmCost,
		SynthesisCost:        synthesisCost,
		TotalCost:            total,
		WithinBudget:         total <= maxBudget,
	}
}
