package swarm

import (
	"fmt"
	"strings"

	"github.com/hivemind-ai/hivemind/pkg/models"
)

// responseTruncateLen bounds how much of each agent response is quoted in
// reviewer and synthesis prompts.
const responseTruncateLen = 500

// agentSystemPrompt identifies one swarm agent and instructs it to report
// its confidence in a parseable tag.
func agentSystemPrompt(agentID string) string {
	return fmt.Sprintf(
		"You are %s, one independent analyst in a swarm working on the same objective. "+
			"Give your own best answer, taking a distinct angle where reasonable. "+
			"End your reply with a confidence tag of the form [CONFIDENCE: X.XX] "+
			"where X.XX is between 0.00 and 1.00.", agentID)
}

// reviewerPrompt asks the higher-quality model to re-score every agent and
// emit a consensus line.
func reviewerPrompt(mission string, responses []models.AgentResponse) string {
	var b strings.Builder
	b.WriteString("You are the reviewer for a swarm of analysts. The objective was:\n\n")
	b.WriteString(mission)
	b.WriteString("\n\nTheir current answers:\n\n")
	for _, r := range responses {
		if r.Error != "" || r.Response == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("%s (confidence %.2f):\n%s\n\n",
			r.AgentID, r.Confidence, truncateText(r.Response, responseTruncateLen)))
	}
	b.WriteString("Re-score each analyst. Output exactly one line per analyst in the form\n")
	b.WriteString("agent-id: NEW_SCORE | one-sentence justification\n")
	b.WriteString("with NEW_SCORE between 0.00 and 1.00. Finish with a final line:\n")
	b.WriteString("[CONSENSUS]: SCORE | short note on overall agreement\n")
	return b.String()
}

// synthesisPrompt embeds each response with its weight and confidence and
// asks the synthesis model for the final reconciled answer.
func synthesisPrompt(mission string, responses []models.AgentResponse, weights map[string]float64) string {
	var b strings.Builder
	b.WriteString("Synthesize one final answer to the objective below from the weighted ")
	b.WriteString("analyst responses. Give more influence to higher-weighted analysts and ")
	b.WriteString("reconcile conflicts explicitly rather than ignoring them.\n\nObjective:\n")
	b.WriteString(mission)
	b.WriteString("\n\nResponses:\n\n")
	for _, r := range responses {
		if r.Error != "" || r.Response == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("%s (Weight: %.3f, Confidence: %.2f):\n%s\n\n",
			r.AgentID, weights[r.AgentID], r.Confidence,
			truncateText(r.Response, responseTruncateLen)))
	}
	b.WriteString("Respond with the synthesized answer only.")
	return b.String()
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
