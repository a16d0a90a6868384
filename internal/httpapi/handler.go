// Package httpapi provides the HTTP handlers for reveal session creation
// and read surfaces, adapted from the teacher's api.Handler JSON/Error
// response helpers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/revealtogether/reveal-server/internal/archive"
	"github.com/revealtogether/reveal-server/internal/domain"
	"github.com/revealtogether/reveal-server/internal/registry"
	"github.com/revealtogether/reveal-server/internal/repository"
)

// Handler serves the reveal session HTTP surface.
type Handler struct {
	repo     repository.Repository
	registry *registry.Registry
	outbox   *archive.Outbox
	baseURL  string
}

// NewHandler wires a Handler's collaborators. outbox may be nil, in which
// case GetReveal only ever consults the cache.
func NewHandler(repo repository.Repository, reg *registry.Registry, outbox *archive.Outbox, baseURL string) *Handler {
	return &Handler{repo: repo, registry: reg, outbox: outbox, baseURL: baseURL}
}

// Routes registers the handler's routes onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/reveals", h.CreateReveal)
	r.Get("/api/reveals/{sessionId}", h.GetReveal)
	r.Get("/api/session/{sessionId}/state", h.GetSessionState)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type createRevealRequest struct {
	OwnerID    string    `json:"ownerId"`
	Gender     string    `json:"gender"`
	RevealTime time.Time `json:"revealTime"`
}

type createRevealResponse struct {
	SessionID     string    `json:"sessionId"`
	Status        string    `json:"status"`
	RevealTime    time.Time `json:"revealTime"`
	CreatedAt     time.Time `json:"createdAt"`
	ShareableLink string    `json:"shareableLink"`
	Gender        *string   `json:"gender"`
}

// CreateReveal handles POST /api/reveals.
func (h *Handler) CreateReveal(w http.ResponseWriter, r *http.Request) {
	var req createRevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OwnerID == "" {
		Error(w, http.StatusBadRequest, "ownerId is required")
		return
	}
	outcome, err := domain.ParseOutcome(req.Gender)
	if err != nil {
		Error(w, http.StatusBadRequest, "gender must be \"boy\" or \"girl\"")
		return
	}
	if req.RevealTime.IsZero() {
		Error(w, http.StatusBadRequest, "revealTime is required")
		return
	}
	now := time.Now().UTC()
	if req.RevealTime.Before(now) {
		Error(w, http.StatusBadRequest, "revealTime must not be in the past")
		return
	}

	session := &domain.Session{
		ID:         uuid.NewString(),
		OwnerID:    req.OwnerID,
		Outcome:    outcome,
		Status:     domain.StatusWaiting,
		RevealTime: req.RevealTime.UTC(),
		CreatedAt:  now,
	}

	ctx := r.Context()
	if err := h.repo.SaveSession(ctx, session); err != nil {
		Error(w, http.StatusInternalServerError, "try again")
		return
	}
	if err := h.repo.InitVotes(ctx, session.ID); err != nil {
		Error(w, http.StatusInternalServerError, "try again")
		return
	}
	h.registry.Register(session.ID)

	JSON(w, http.StatusCreated, createRevealResponse{
		SessionID:     session.ID,
		Status:        string(session.Status),
		RevealTime:    session.RevealTime,
		CreatedAt:     session.CreatedAt,
		ShareableLink: h.baseURL + "/reveal/" + session.ID,
		Gender:        nil,
	})
}

type revealSummary struct {
	SessionID  string          `json:"sessionId"`
	OwnerID    string          `json:"ownerId"`
	Status     domain.Status   `json:"status"`
	RevealTime time.Time       `json:"revealTime"`
	CreatedAt  time.Time       `json:"createdAt"`
	Gender     *domain.Outcome `json:"gender"`
}

// GetReveal handles GET /api/reveals/{sessionId}. It consults the cache
// first and falls back to the archive outbox for sessions whose cache
// entry has already expired past its post-reveal TTL.
func (h *Handler) GetReveal(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	ctx := r.Context()

	session, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "try again")
		return
	}
	if session != nil {
		// The outcome is immutable from creation but only visible to
		// clients once the session has ended; see GetSessionState's
		// identical gating of RevealedGender.
		var gender *domain.Outcome
		if session.Ended() {
			outcome := session.Outcome
			gender = &outcome
		}
		JSON(w, http.StatusOK, revealSummary{
			SessionID:  session.ID,
			OwnerID:    session.OwnerID,
			Status:     session.Status,
			RevealTime: session.RevealTime,
			CreatedAt:  session.CreatedAt,
			Gender:     gender,
		})
		return
	}

	if h.outbox != nil {
		doc, ok, err := h.outbox.Get(ctx, sessionID)
		if err == nil && ok {
			// Archived documents are only ever written at finalization, so
			// the outcome is always safe to reveal here.
			outcome := doc.Outcome
			JSON(w, http.StatusOK, revealSummary{
				SessionID:  doc.SessionID,
				OwnerID:    doc.OwnerID,
				Status:     domain.StatusEnded,
				RevealTime: doc.EndedAt,
				CreatedAt:  doc.EndedAt,
				Gender:     &outcome,
			})
			return
		}
	}

	Error(w, http.StatusNotFound, "session not found")
}

type sessionState struct {
	SessionID      string               `json:"sessionId"`
	Status         domain.Status        `json:"status"`
	RevealTime     time.Time            `json:"revealTime"`
	Votes          domain.VoteCount     `json:"votes"`
	RecentVotes    []domain.VoteRecord  `json:"recentVotes"`
	RecentMessages []domain.ChatMessage `json:"recentMessages"`
	HasVoted       bool                 `json:"hasVoted"`
	RevealedGender *domain.Outcome      `json:"revealedGender"`
}

// GetSessionState handles GET /api/session/{sessionId}/state?visitorId=….
func (h *Handler) GetSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	visitorID := r.URL.Query().Get("visitorId")
	ctx := r.Context()

	session, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "try again")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	votes, err := h.repo.GetVotes(ctx, sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "try again")
		return
	}
	recentVotes, err := h.repo.GetRecentVotes(ctx, sessionID, 50)
	if err != nil {
		Error(w, http.StatusInternalServerError, "try again")
		return
	}
	recentMessages, err := h.repo.GetRecentChat(ctx, sessionID, 50)
	if err != nil {
		Error(w, http.StatusInternalServerError, "try again")
		return
	}

	var hasVoted bool
	if visitorID != "" {
		hasVoted, err = h.repo.HasVoted(ctx, sessionID, visitorID)
		if err != nil {
			Error(w, http.StatusInternalServerError, "try again")
			return
		}
	}

	var revealedGender *domain.Outcome
	if session.Ended() {
		outcome := session.Outcome
		revealedGender = &outcome
	}

	JSON(w, http.StatusOK, sessionState{
		SessionID:      session.ID,
		Status:         session.Status,
		RevealTime:     session.RevealTime,
		Votes:          votes,
		RecentVotes:    recentVotes,
		RecentMessages: recentMessages,
		HasVoted:       hasVoted,
		RevealedGender: revealedGender,
	})
}
