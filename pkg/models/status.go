package models

// SwarmPhase is the lifecycle state of an in-flight swarm.
type SwarmPhase string

// Swarm phases. Completed and Failed are terminal; the status record is
// retained for a grace period after reaching either, then evicted.
const (
	SwarmPhasePending      SwarmPhase = "pending"
	SwarmPhaseRunning      SwarmPhase = "running"
	SwarmPhaseSynthesizing SwarmPhase = "synthesizing"
	SwarmPhaseCompleted    SwarmPhase = "completed"
	SwarmPhaseFailed       SwarmPhase = "failed"
)

// IsTerminal reports whether the phase is terminal.
func (p SwarmPhase) IsTerminal() bool {
	return p == SwarmPhaseCompleted || p == SwarmPhaseFailed
}

// AgentState is the per-agent view inside a SwarmStatus.
type AgentState struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"` // pending, running, completed, failed
	Model      string   `json:"model"`
	Confidence *float64 `json:"confidence,omitempty"`
	LatencyMs  *int64   `json:"latencyMs,omitempty"`
}

// SwarmStatus is the ephemeral progress view of one in-flight mission.
// It lives only while the mission runs plus a short grace period.
type SwarmStatus struct {
	TraceID          string       `json:"traceId"`
	Status           SwarmPhase   `json:"status"`
	Agents           []AgentState `json:"agents"`
	CurrentIteration int          `json:"currentIteration"`
	Progress         int          `json:"progress"` // 0..100
	Message          string       `json:"message"`
}

// CostEstimate is the pre-flight cost model for a mission. No upstream
// calls are made to produce it.
type CostEstimate struct {
	InputTokens          int     `json:"inputTokens"`
	ExpectedOutputTokens int     `json:"expectedOutputTokens"`
	SwarmCost            float64 `json:"swarmCost"`
	SynthesisCost        float64 `json:"synthesisCost"`
	TotalCost            float64 `json:"totalCost"`
	WithinBudget         bool    `json:"withinBudget"`
}
