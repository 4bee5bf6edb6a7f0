package swarm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hivemind-ai/hivemind/pkg/models"
)

var (
	confidenceTagRe = regexp.MustCompile(`(?i)\[\s*CONFIDENCE\s*:\s*([0-9]*\.?[0-9]+)\s*\]`)
	reviewLineRe    = regexp.MustCompile(`(?im)^\s*(agent-\d+)\s*:\s*([0-9]*\.?[0-9]+)\s*(?:\|\s*(.*))?$`)
	consensusRe     = regexp.MustCompile(`(?i)\[\s*CONSENSUS\s*\]\s*:?\s*([0-9]*\.?[0-9]+)`)
)

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parseConfidence extracts the trailing [CONFIDENCE: X.XX] tag from a model
// response. Returns the response with the tag stripped and the parsed value
// clamped to [0,1]. Missing or unparseable tags default to 0.5.
func parseConfidence(response string) (string, float64) {
	matches := confidenceTagRe.FindAllStringSubmatch(response, -1)
	stripped := strings.TrimSpace(confidenceTagRe.ReplaceAllString(response, ""))
	if len(matches) == 0 {
		return stripped, 0.5
	}

	// The last tag wins when the model emits more than one.
	last := matches[len(matches)-1]
	v, err := strconv.ParseFloat(last[1], 64)
	if err != nil {
		return stripped, 0.5
	}
	return stripped, clamp01(v)
}

// reviewerVerdict is the parsed output of one reviewer round.
type reviewerVerdict struct {
	// scores maps agent id to its new confidence; agents absent from the
	// reviewer output keep their prior confidence.
	scores map[string]float64
	// consensus is the parsed consensus score, clamped to [0,1].
	consensus float64
	// hasConsensus reports whether a [CONSENSUS] line was found.
	hasConsensus bool
}

// parseReviewerOutput parses the per-agent `agent-N: SCORE | justification`
// lines and the `[CONSENSUS]: SCORE | note` line from the reviewer text.
// Parse misses never fail the mission; they simply leave values unchanged.
func parseReviewerOutput(text string) reviewerVerdict {
	v := reviewerVerdict{scores: make(map[string]float64)}

	for _, m := range reviewLineRe.FindAllStringSubmatch(text, -1) {
		score, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		v.scores[m[1]] = clamp01(score)
	}

	if m := consensusRe.FindStringSubmatch(text); m != nil {
		if score, err := strconv.ParseFloat(m[1], 64); err == nil {
			v.consensus = clamp01(score)
			v.hasConsensus = true
		}
	}
	return v
}

// meanConfidence returns the average confidence over responses, 0 when
// empty.
func meanConfidence(responses []models.AgentResponse) float64 {
	if len(responses) == 0 {
		return 0
	}
	var sum float64
	for _, r := range responses {
		sum += r.Confidence
	}
	return sum / float64(len(responses))
}
