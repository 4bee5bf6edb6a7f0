package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hivemind-ai/hivemind/pkg/events"
)

// WebSocket relay tuning.
const (
	wsWriteTimeout     = 5 * time.Second
	wsPingInterval     = 30 * time.Second
	statusPollInterval = 500 * time.Millisecond
)

// wsClientMessage is what clients send after connecting.
type wsClientMessage struct {
	Type    string `json:"type"`
	TraceID string `json:"traceId"`
}

// handleWebSocket serves GET /ws: upgrade, then relay swarm status, agent
// thoughts, and swarm events for the traces the client subscribes to.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	relay := &wsRelay{server: s, conn: conn}
	relay.run(c.Request.Context())
}

// wsRelay owns one WebSocket connection: a read loop for client commands
// and forwarding goroutines per subscription. All subscriptions are
// released when the connection closes.
type wsRelay struct {
	server *Server
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	releases []func()
}

// run blocks until the connection closes.
func (r *wsRelay) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		r.releaseAll()
		r.conn.Close(websocket.StatusNormalClosure, "")
	}()

	r.send(ctx, map[string]any{"type": "connection.established"})
	go r.pingLoop(ctx)

	for {
		_, data, err := r.conn.Read(ctx)
		if err != nil {
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.send(ctx, map[string]any{"type": "error", "message": "invalid message"})
			continue
		}
		r.dispatch(ctx, &msg)
	}
}

func (r *wsRelay) dispatch(ctx context.Context, msg *wsClientMessage) {
	if _, err := uuid.Parse(msg.TraceID); err != nil {
		r.send(ctx, map[string]any{"type": "error", "message": "traceId must be a UUID"})
		return
	}

	switch msg.Type {
	case "subscribe":
		go r.pollStatus(ctx, msg.TraceID)
	case "stream_thoughts":
		sub := r.server.bus.SubscribeThoughts(msg.TraceID)
		r.track(sub.Cancel)
		go r.forwardThoughts(ctx, sub)
	case "stream_events":
		sub := r.server.bus.SubscribeEvents(msg.TraceID)
		r.track(sub.Cancel)
		go r.forwardEvents(ctx, sub)
	default:
		r.send(ctx, map[string]any{"type": "error", "message": "unknown message type"})
	}
}

// pollStatus is the compatibility shim behind `subscribe`: the swarm status
// is sampled every 500 ms and pushed as swarm_update until terminal.
func (r *wsRelay) pollStatus(ctx context.Context, traceID string) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		status := r.server.engine.Statuses().Get(traceID)
		if status == nil {
			if trace := r.server.store.Get(traceID); trace != nil {
				status = statusFromTrace(trace)
			}
		}
		if status == nil {
			r.send(ctx, map[string]any{"type": "error", "message": "unknown trace"})
			return
		}

		r.send(ctx, map[string]any{"type": "swarm_update", "data": status})
		if status.Status.IsTerminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// forwardThoughts pushes each published thought until the stream closes.
func (r *wsRelay) forwardThoughts(ctx context.Context, sub *events.ThoughtSubscription) {
	for t := range sub.C {
		r.send(ctx, map[string]any{
			"type":        "agent_thought",
			"agentId":     t.AgentID,
			"thoughtType": t.Type,
			"content":     t.Content,
			"confidence":  t.Confidence,
			"timestamp":   t.Timestamp,
		})
	}
}

// forwardEvents pushes each published swarm event until the stream closes.
func (r *wsRelay) forwardEvents(ctx context.Context, sub *events.EventSubscription) {
	for e := range sub.C {
		r.send(ctx, map[string]any{
			"type":      "swarm_event",
			"eventType": e.Type,
			"data":      e.Data,
			"timestamp": e.Timestamp,
		})
	}
}

func (r *wsRelay) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

// send writes one JSON message. Serialized: forwarding goroutines and the
// read loop share the connection.
func (r *wsRelay) send(ctx context.Context, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := r.conn.Write(wctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write failed", "error", err)
	}
}

func (r *wsRelay) track(release func()) {
	r.mu.Lock()
	r.releases = append(r.releases, release)
	r.mu.Unlock()
}

func (r *wsRelay) releaseAll() {
	r.mu.Lock()
	releases := r.releases
	r.releases = nil
	r.mu.Unlock()
	for _, release := range releases {
		release()
	}
}
