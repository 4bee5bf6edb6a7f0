package swarm

import "github.com/hivemind-ai/hivemind/pkg/models"

// PosteriorWeights computes normalized contribution weights over the
// non-errored responses with positive confidence. Confidence sets the base
// weight; a mild latency factor rewards faster agents. Weights sum to 1;
// the map is empty when no response qualifies.
func PosteriorWeights(responses []models.AgentResponse) map[string]float64 {
	weights := make(map[string]float64)

	var confSum float64
	for _, r := range responses {
		if r.Error == "" && r.Confidence > 0 {
			confSum += r.Confidence
		}
	}
	if confSum == 0 {
		return weights
	}

	var raw float64
	for _, r := range responses {
		if r.Error != "" || r.Confidence <= 0 {
			continue
		}
		base := r.Confidence / confSum
		latencyFactor := 1 / (1 + float64(r.LatencyMs)/10000)
		w := base * (0.8 + 0.2*latencyFactor)
		weights[r.AgentID] = w
		raw += w
	}

	for id := range weights {
		weights[id] /= raw
	}
	return weights
}
