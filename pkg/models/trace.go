// Package models defines the value types shared by the mission
// orchestration core: traces, iterations, agent responses, safety flags,
// and the ephemeral swarm status.
package models

import "time"

// TraceStatus is the lifecycle state of a persisted trace.
type TraceStatus string

// Trace status values. Completed and Failed are terminal.
const (
	TraceStatusPending   TraceStatus = "pending"
	TraceStatusRunning   TraceStatus = "running"
	TraceStatusCompleted TraceStatus = "completed"
	TraceStatusFailed    TraceStatus = "failed"
)

// IsTerminal reports whether the status is a terminal lifecycle state.
func (s TraceStatus) IsTerminal() bool {
	return s == TraceStatusCompleted || s == TraceStatusFailed
}

// TokenUsage holds per-call token counts as reported by the upstream API.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// AgentResponse is one agent's answer for one round. Confidence is parsed
// from the trailing [CONFIDENCE: X.XX] tag in the model output; absent or
// out-of-range values clamp to 0.5 and [0,1].
type AgentResponse struct {
	AgentID    string     `json:"agentId"`
	Model      string     `json:"model"`
	Response   string     `json:"response"`
	Confidence float64    `json:"confidence"`
	LatencyMs  int64      `json:"latencyMs"`
	Tokens     TokenUsage `json:"tokens"`
	Error      string     `json:"error,omitempty"`
}

// Iteration is one critique round appended to a trace. The first iteration
// may be the initial fan-out with consensus equal to the mean confidence.
type Iteration struct {
	IterationID    int             `json:"iterationId"`
	AgentResponses []AgentResponse `json:"agentResponses"`
	ConsensusScore float64         `json:"consensusScore"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Severity is the tier of a red-team flag.
type Severity string

// Severity tiers, ordered from least to most severe.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// rank maps severities to a comparable order.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// MoreSevere reports whether s outranks other.
func (s Severity) MoreSevere(other Severity) bool {
	return s.rank() > other.rank()
}

// FlagSource identifies which stage of a mission produced a flag.
type FlagSource string

// Flag sources.
const (
	FlagSourceInput     FlagSource = "input"
	FlagSourceOutput    FlagSource = "output"
	FlagSourceSynthesis FlagSource = "synthesis"
)

// RedTeamFlag records one safety-pattern match. Immutable once created.
type RedTeamFlag struct {
	FlagID      string     `json:"flagId"`
	Severity    Severity   `json:"severity"`
	Categories  []string   `json:"categories"`
	Explanation string     `json:"explanation"`
	Source      FlagSource `json:"source"`
	Content     string     `json:"content"`
}

// Trace is the complete persisted record of one mission. It is owned by the
// trace store; the engine mutates it only through store updates. A trace
// never transitions from a terminal status back to a non-terminal one.
type Trace struct {
	TraceID              string             `json:"traceId"`
	Timestamp            time.Time          `json:"timestamp"`
	Mission              string             `json:"mission"`
	Iterations           []Iteration        `json:"iterations"`
	BranchScores         map[string]float64 `json:"branchScores"`
	RedTeamFlags         []RedTeamFlag      `json:"redTeamFlags"`
	FinalPosteriorWeights map[string]float64 `json:"finalPosteriorWeights"`
	SynthesisResult      string             `json:"synthesisResult"`
	CostEstimate         float64            `json:"costEstimate"`
	ActualCost           float64            `json:"actualCost"`
	DurationMs           int64              `json:"durationMs"`
	Status               TraceStatus        `json:"status"`
	Error                string             `json:"error,omitempty"`
}

// TracePatch is a partial update applied by the trace store. Nil fields are
// left untouched.
type TracePatch struct {
	Iterations            *[]Iteration
	RedTeamFlags          *[]RedTeamFlag
	FinalPosteriorWeights *map[string]float64
	SynthesisResult       *string
	ActualCost            *float64
	DurationMs            *int64
	Status                *TraceStatus
	Error                 *string
}
