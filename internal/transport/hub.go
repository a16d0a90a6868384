// Package transport implements the realtime bidirectional surface: a hub
// of per-session WebSocket subscribers fed by the Publisher Port, and a
// handler that dispatches client publishes into the Vote/Chat Engines.
//
// This generalizes the teacher's SessionManager (one connection per
// user+tab, replaced on reconnect) into N subscriber connections per
// session id, broadcast to all, best-effort.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds how long a single subscriber write may block the
// hub's fan-out goroutine before it is considered failed.
const writeTimeout = 2 * time.Second

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex // coder/websocket.Conn.Write must not be called concurrently
}

func (s *subscriber) write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Hub is the Publisher Port implementation: it fans payloads out to every
// subscriber connection registered for a session.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{} // sessionID -> subscribers
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// frame is the wire envelope sent to every WebSocket subscriber. topic
// is the full spec topic, e.g. "votes/{sessionId}".
type frame struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Subscribe registers conn as a subscriber of sessionID and returns a
// handle to unsubscribe. Safe for concurrent use.
func (h *Hub) Subscribe(sessionID string, conn *websocket.Conn) *subscriber {
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from sessionID's subscriber set.
func (h *Hub) Unsubscribe(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
}

// Publish implements publisher.Publisher. topic is expected to be of the
// form "{kind}/{sessionId}"; delivery is best-effort and non-blocking from
// the caller's perspective — each subscriber write runs in its own
// goroutine with a bounded timeout.
func (h *Hub) Publish(topic string, payload any) {
	sessionID := sessionIDFromTopic(topic)
	if sessionID == "" {
		slog.Warn("transport: publish with unrecognized topic", "topic", topic)
		return
	}

	data, err := json.Marshal(frame{Topic: topic, Payload: payload})
	if err != nil {
		slog.Error("transport: failed to encode frame", "topic", topic, "error", err)
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs[sessionID]))
	for sub := range h.subs[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		go func(sub *subscriber) {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			if err := sub.write(ctx, data); err != nil {
				slog.Debug("transport: subscriber write failed, dropping", "topic", topic, "error", err)
				h.Unsubscribe(sessionID, sub)
			}
		}(sub)
	}
}

func sessionIDFromTopic(topic string) string {
	idx := strings.IndexByte(topic, '/')
	if idx < 0 || idx == len(topic)-1 {
		return ""
	}
	return topic[idx+1:]
}
