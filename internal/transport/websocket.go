package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/revealtogether/reveal-server/internal/chatengine"
	"github.com/revealtogether/reveal-server/internal/voteengine"
)

// clientMessage is the envelope for client -> server publishes, symmetric
// with the frame the hub sends back.
type clientMessage struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

type votePayload struct {
	Option    string `json:"option"`
	VisitorID string `json:"visitorId"`
	Name      string `json:"name"`
}

type chatPayload struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	VisitorID string `json:"visitorId"`
}

type voteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WebSocketHandler upgrades a single session's realtime connection,
// subscribing it to the hub and dispatching its publishes into the vote
// and chat engines. Adapted from the teacher's terminal WebSocketHandler,
// generalized from one PTY exec stream per connection to the session
// runtime's publish/subscribe contract.
type WebSocketHandler struct {
	hub            *Hub
	voteEngine     *voteengine.Engine
	chatEngine     *chatengine.Engine
	allowedOrigins []string
}

// NewWebSocketHandler returns a handler wiring the given collaborators.
func NewWebSocketHandler(hub *Hub, ve *voteengine.Engine, ce *chatengine.Engine, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, voteEngine: ve, chatEngine: ce, allowedOrigins: allowedOrigins}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade at
// GET /ws/{sessionId}.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		slog.Error("transport: failed to accept websocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("transport: failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	sub := h.hub.Subscribe(sessionID, ws)
	defer h.hub.Unsubscribe(sessionID, sub)

	ctx := r.Context()
	slog.Info("transport: session subscriber connected", "session_id", sessionID)

	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("transport: websocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("transport: websocket read error", "error", err, "session_id", sessionID)
			}
			return
		}
		h.dispatch(ctx, sub, sessionID, message)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, sub *subscriber, sessionID string, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Debug("transport: malformed client message", "session_id", sessionID, "error", err)
		return
	}

	switch {
	case strings.HasPrefix(msg.Topic, "vote/"):
		h.handleVote(ctx, sub, sessionID, msg.Payload)
	case strings.HasPrefix(msg.Topic, "chat/"):
		h.handleChat(ctx, sub, sessionID, msg.Payload)
	default:
		slog.Debug("transport: unrecognized client topic", "topic", msg.Topic, "session_id", sessionID)
	}
}

func (h *WebSocketHandler) handleVote(ctx context.Context, sub *subscriber, sessionID string, raw json.RawMessage) {
	var p votePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.respond(ctx, sub, sessionID, false, "invalid payload")
		return
	}

	outcome, err := h.voteEngine.CastVote(ctx, sessionID, voteengineInput(p))
	if err != nil {
		slog.Warn("transport: vote cast failed", "session_id", sessionID, "error", err)
		h.respond(ctx, sub, sessionID, false, "try again")
		return
	}

	switch outcome {
	case voteengine.OK:
		h.respond(ctx, sub, sessionID, true, "vote recorded")
	default:
		h.respond(ctx, sub, sessionID, false, outcome.String())
	}
}

func (h *WebSocketHandler) handleChat(ctx context.Context, sub *subscriber, sessionID string, raw json.RawMessage) {
	var p chatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.respond(ctx, sub, sessionID, false, "invalid payload")
		return
	}

	ok, err := h.chatEngine.SendMessage(ctx, sessionID, chatengineInput(p))
	if err != nil {
		slog.Warn("transport: chat send failed", "session_id", sessionID, "error", err)
		h.respond(ctx, sub, sessionID, false, "try again")
		return
	}
	h.respond(ctx, sub, sessionID, ok, "")
}

// respond writes directly back to the calling subscriber through the same
// subscriber.write path the hub's fan-out uses, so every write to a given
// connection — broadcast or direct response — goes through one mutex.
func (h *WebSocketHandler) respond(ctx context.Context, sub *subscriber, sessionID string, success bool, message string) {
	data, err := json.Marshal(frame{
		Topic:   "vote-response/" + sessionID,
		Payload: voteResponse{Success: success, Message: message},
	})
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := sub.write(writeCtx, data); err != nil {
		slog.Debug("transport: failed to send vote-response", "session_id", sessionID, "error", err)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, pattern := range h.allowedOrigins {
		if pattern == "*" || pattern == origin {
			return true
		}
		if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
			if strings.HasSuffix(origin, "."+suffix) || strings.HasSuffix(origin, "//"+suffix) {
				return true
			}
		}
	}
	slog.Warn("transport: websocket origin rejected", "origin", origin)
	return false
}

func voteengineInput(p votePayload) voteengine.CastVoteInput {
	return voteengine.CastVoteInput{VoterID: p.VisitorID, Choice: p.Option, Name: p.Name}
}

func chatengineInput(p chatPayload) chatengine.SendMessageInput {
	return chatengine.SendMessageInput{VoterID: p.VisitorID, Name: p.Name, Body: p.Message}
}
