package swarm

import (
	"sync"
	"time"

	"github.com/hivemind-ai/hivemind/pkg/models"
)

// defaultEvictionGrace is how long a terminal SwarmStatus is retained
// before eviction.
const defaultEvictionGrace = 30 * time.Second

// StatusRegistry tracks the ephemeral SwarmStatus of in-flight missions.
// Mutated by engine workers, read by status and WebSocket endpoints.
type StatusRegistry struct {
	mu       sync.RWMutex
	statuses map[string]*models.SwarmStatus
	grace    time.Duration
}

// NewStatusRegistry creates a registry with the default eviction grace.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{
		statuses: make(map[string]*models.SwarmStatus),
		grace:    defaultEvictionGrace,
	}
}

// Put stores or replaces the status for a trace.
func (r *StatusRegistry) Put(s *models.SwarmStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[s.TraceID] = s
}

// Get returns a copy of the status for a trace, or nil when absent.
func (r *StatusRegistry) Get(traceID string) *models.SwarmStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.statuses[traceID]
	if !ok {
		return nil
	}
	return cloneStatus(s)
}

// Active returns copies of every tracked status.
func (r *StatusRegistry) Active() []*models.SwarmStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.SwarmStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, cloneStatus(s))
	}
	return out
}

// Mutate applies fn to the status under the registry lock.
func (r *StatusRegistry) Mutate(traceID string, fn func(*models.SwarmStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.statuses[traceID]; ok {
		fn(s)
	}
}

// ScheduleEviction removes the status after the grace period. Called once
// the mission reaches a terminal phase.
func (r *StatusRegistry) ScheduleEviction(traceID string) {
	time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.statuses, traceID)
	})
}

func cloneStatus(s *models.SwarmStatus) *models.SwarmStatus {
	c := *s
	c.Agents = append([]models.AgentState(nil), s.Agents...)
	return &c
}
