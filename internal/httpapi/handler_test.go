package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/revealtogether/reveal-server/internal/domain"
	"github.com/revealtogether/reveal-server/internal/registry"
	"github.com/revealtogether/reveal-server/internal/repository"
)

// fakeRepo is a hand-written in-memory double of repository.Repository,
// sufficient for exercising the HTTP surface without a cache store.
type fakeRepo struct {
	session *domain.Session
}

func (f *fakeRepo) SaveSession(ctx context.Context, s *domain.Session) error { return nil }
func (f *fakeRepo) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return f.session, nil
}
func (f *fakeRepo) SetStatus(ctx context.Context, id string, status domain.Status) error { return nil }
func (f *fakeRepo) SessionExists(ctx context.Context, id string) (bool, error)           { return true, nil }
func (f *fakeRepo) InitVotes(ctx context.Context, id string) error                       { return nil }
func (f *fakeRepo) RecordVote(ctx context.Context, id, voterID string, choice domain.Choice, name string) (bool, error) {
	return true, nil
}
func (f *fakeRepo) HasVoted(ctx context.Context, id, voterID string) (bool, error) { return false, nil }
func (f *fakeRepo) GetVotes(ctx context.Context, id string) (domain.VoteCount, error) {
	return domain.VoteCount{}, nil
}
func (f *fakeRepo) AppendChat(ctx context.Context, id string, msg domain.ChatMessage) error {
	return nil
}
func (f *fakeRepo) GetRecentChat(ctx context.Context, id string, n int64) ([]domain.ChatMessage, error) {
	return nil, nil
}
func (f *fakeRepo) GetRecentVotes(ctx context.Context, id string, n int64) ([]domain.VoteRecord, error) {
	return nil, nil
}
func (f *fakeRepo) TestAndClearDirty(ctx context.Context, id string) (bool, error) { return false, nil }
func (f *fakeRepo) MarkDirty(ctx context.Context, id string) error                 { return nil }
func (f *fakeRepo) ActiveSessions(ctx context.Context) ([]string, error)           { return nil, nil }
func (f *fakeRepo) RemoveActive(ctx context.Context, id string) error              { return nil }
func (f *fakeRepo) ApplyPostRevealTTL(ctx context.Context, id string) error        { return nil }

var _ repository.Repository = (*fakeRepo)(nil)

func newTestHandler(session *domain.Session) *Handler {
	return NewHandler(&fakeRepo{session: session}, registry.New(nil), nil, "http://localhost:8080")
}

func getReveal(h *Handler, sessionID string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Routes(r)
	req := httptest.NewRequest(http.MethodGet, "/api/reveals/"+sessionID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetReveal_HidesOutcomeBeforeEnded(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusWaiting, domain.StatusLive} {
		session := &domain.Session{
			ID:         "s1",
			OwnerID:    "owner1",
			Outcome:    domain.OutcomeA,
			Status:     status,
			RevealTime: time.Now().Add(time.Hour),
			CreatedAt:  time.Now(),
		}
		rec := getReveal(newTestHandler(session), "s1")

		var body revealSummary
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode response for status %s: %v", status, err)
		}
		if body.Gender != nil {
			t.Fatalf("status %s: expected gender to be hidden, got %v", status, *body.Gender)
		}
	}
}

func TestGetReveal_RevealsOutcomeWhenEnded(t *testing.T) {
	session := &domain.Session{
		ID:         "s1",
		OwnerID:    "owner1",
		Outcome:    domain.OutcomeB,
		Status:     domain.StatusEnded,
		RevealTime: time.Now().Add(-time.Hour),
		CreatedAt:  time.Now(),
	}
	rec := getReveal(newTestHandler(session), "s1")

	var body revealSummary
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Gender == nil || *body.Gender != domain.OutcomeB {
		t.Fatalf("expected revealed outcome %q, got %v", domain.OutcomeB, body.Gender)
	}
}
