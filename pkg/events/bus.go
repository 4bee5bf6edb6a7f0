// Package events provides the in-process publish/subscribe bus keyed by
// trace id. Each trace has two streams: agent thoughts (streaming text)
// and swarm lifecycle events. Delivery is best-effort: a slow subscriber
// drops its oldest buffered items instead of blocking publishers.
package events

import (
	"sync"
	"time"
)

// defaultBufferSize is the per-subscriber channel capacity.
const defaultBufferSize = 64

// ThoughtType classifies agent-level streaming text.
type ThoughtType string

// Thought types.
const (
	ThoughtThinking ThoughtType = "thinking"
	ThoughtResponse ThoughtType = "response"
	ThoughtCritique ThoughtType = "critique"
	ThoughtRefined  ThoughtType = "refined"
)

// Thought is one agent-level streaming text event.
type Thought struct {
	AgentID    string      `json:"agentId"`
	Type       ThoughtType `json:"thoughtType"`
	Content    string      `json:"content"`
	Confidence *float64    `json:"confidence,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// SwarmEventType classifies swarm lifecycle events.
type SwarmEventType string

// Swarm event types.
const (
	EventAgentStart        SwarmEventType = "agent_start"
	EventAgentThought      SwarmEventType = "agent_thought"
	EventAgentComplete     SwarmEventType = "agent_complete"
	EventCritiqueStart     SwarmEventType = "critique_start"
	EventCritiqueComplete  SwarmEventType = "critique_complete"
	EventSynthesisStart    SwarmEventType = "synthesis_start"
	EventSynthesisComplete SwarmEventType = "synthesis_complete"
	EventConsensusUpdate   SwarmEventType = "consensus_update"
)

// SwarmEvent is one swarm lifecycle event.
type SwarmEvent struct {
	Type      SwarmEventType `json:"eventType"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// ThoughtSubscription delivers thoughts for one trace until cancelled.
type ThoughtSubscription struct {
	C      <-chan Thought
	ch     chan Thought
	cancel func()
	once   sync.Once
}

// Cancel releases the subscription. Safe to call multiple times and safe
// to call after the trace closed the stream.
func (s *ThoughtSubscription) Cancel() { s.once.Do(s.cancel) }

// EventSubscription delivers swarm events for one trace until cancelled.
type EventSubscription struct {
	C      <-chan SwarmEvent
	ch     chan SwarmEvent
	cancel func()
	once   sync.Once
}

// Cancel releases the subscription. Safe to call multiple times.
func (s *EventSubscription) Cancel() { s.once.Do(s.cancel) }

// Bus is the in-process pub/sub hub. Safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	nextID      int
	thoughtSubs map[string]map[int]*ThoughtSubscription
	eventSubs   map[string]map[int]*EventSubscription
	bufferSize  int
}

// NewBus creates a Bus with the default per-subscriber buffer.
func NewBus() *Bus {
	return &Bus{
		thoughtSubs: make(map[string]map[int]*ThoughtSubscription),
		eventSubs:   make(map[string]map[int]*EventSubscription),
		bufferSize:  defaultBufferSize,
	}
}

// SubscribeThoughts registers a subscriber for one trace's thought stream.
func (b *Bus) SubscribeThoughts(traceID string) *ThoughtSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan Thought, b.bufferSize)
	sub := &ThoughtSubscription{C: ch, ch: ch}
	sub.cancel = func() {
		b.mu.Lock()
		if subs, ok := b.thoughtSubs[traceID]; ok {
			if _, present := subs[id]; present {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.thoughtSubs, traceID)
				}
				close(ch)
			}
		}
		b.mu.Unlock()
	}

	if b.thoughtSubs[traceID] == nil {
		b.thoughtSubs[traceID] = make(map[int]*ThoughtSubscription)
	}
	b.thoughtSubs[traceID][id] = sub
	return sub
}

// SubscribeEvents registers a subscriber for one trace's event stream.
func (b *Bus) SubscribeEvents(traceID string) *EventSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan SwarmEvent, b.bufferSize)
	sub := &EventSubscription{C: ch, ch: ch}
	sub.cancel = func() {
		b.mu.Lock()
		if subs, ok := b.eventSubs[traceID]; ok {
			if _, present := subs[id]; present {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.eventSubs, traceID)
				}
				close(ch)
			}
		}
		b.mu.Unlock()
	}

	if b.eventSubs[traceID] == nil {
		b.eventSubs[traceID] = make(map[int]*EventSubscription)
	}
	b.eventSubs[traceID][id] = sub
	return sub
}

// PublishThought delivers a thought to every subscriber of the trace.
// Never blocks: a full subscriber buffer drops its oldest item first.
func (b *Bus) PublishThought(traceID string, t Thought) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.thoughtSubs[traceID] {
		select {
		case sub.ch <- t:
		default:
			// Buffer full: drop the oldest queued item to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- t:
			default:
			}
		}
	}
}

// PublishEvent delivers a swarm event to every subscriber of the trace.
// Same non-blocking, oldest-drop policy as PublishThought.
func (b *Bus) PublishEvent(traceID string, e SwarmEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.eventSubs[traceID] {
		select {
		case sub.ch <- e:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
}

// CloseTrace ends both streams for a trace: all subscriber channels are
// closed and removed. Called by the engine when a mission terminates.
func (b *Bus) CloseTrace(traceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.thoughtSubs[traceID] {
		delete(b.thoughtSubs[traceID], id)
		close(sub.ch)
	}
	delete(b.thoughtSubs, traceID)

	for id, sub := range b.eventSubs[traceID] {
		delete(b.eventSubs[traceID], id)
		close(sub.ch)
	}
	delete(b.eventSubs, traceID)
}

// SubscriberCount returns the number of subscribers across both streams of
// a trace. Used by tests to poll instead of sleeping.
func (b *Bus) SubscriberCount(traceID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.thoughtSubs[traceID]) + len(b.eventSubs[traceID])
}
