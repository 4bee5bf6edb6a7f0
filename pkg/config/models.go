package config

// ModelPricing is the cost per 1000 tokens for one model, split by
// direction. Free-tier models carry zero rates.
type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// builtinPricing is the built-in per-model pricing table. Unknown models
// fall back to defaultPricing.
var builtinPricing = map[string]ModelPricing{
	"google/gemini-2.0-flash-exp:free": {InputPer1K: 0, OutputPer1K: 0},
	"openai/gpt-4o":                    {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"openai/gpt-4o-mini":               {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"anthropic/claude-3.5-sonnet":      {InputPer1K: 0.003, OutputPer1K: 0.015},
}

// defaultPricing is used for models absent from the table.
var defaultPricing = ModelPricing{InputPer1K: 0.001, OutputPer1K: 0.002}

// PricingFor returns the pricing for a model id.
func PricingFor(model string) ModelPricing {
	if p, ok := builtinPricing[model]; ok {
		return p
	}
	return defaultPricing
}

// IsFreeModel reports whether a model has zero cost in both directions.
func IsFreeModel(model string) bool {
	p := PricingFor(model)
	return p.InputPer1K == 0 && p.OutputPer1K == 0
}
