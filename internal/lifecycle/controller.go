// Package lifecycle drives the per-session WAITING→LIVE→ENDED state
// machine from a clock and triggers finalization.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/revealtogether/reveal-server/internal/domain"
	"github.com/revealtogether/reveal-server/internal/publisher"
	"github.com/revealtogether/reveal-server/internal/registry"
	"github.com/revealtogether/reveal-server/internal/repository"
)

const tickInterval = 1 * time.Second

// ArchiveDocument is the durable record the Archive Sink persists at
// finalization.
type ArchiveDocument struct {
	SessionID string
	OwnerID   string
	Outcome   domain.Outcome
	Votes     domain.VoteCount
	Chat      []domain.ChatMessage
	EndedAt   time.Time
}

// Sink is the Archive Sink contract the Lifecycle Controller calls on
// finalization. Best-effort: failures are logged, not retried inline by
// the controller (the sink itself owns retry policy, see internal/archive).
type Sink interface {
	Archive(ctx context.Context, doc ArchiveDocument) error
}

// Controller ticks every second, evaluating WAITING→LIVE and LIVE/WAITING→ENDED
// transitions for every session in the registry's snapshot.
type Controller struct {
	repo      repository.Repository
	registry  *registry.Registry
	publisher publisher.Publisher
	sink      Sink
}

// New returns a Controller wiring the given collaborators.
func New(repo repository.Repository, reg *registry.Registry, pub publisher.Publisher, sink Sink) *Controller {
	return &Controller{repo: repo, registry: reg, publisher: pub, sink: sink}
}

// Run ticks until ctx is cancelled. Each tick runs to completion before the
// next fires, so overlapping ticks never occur.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	now := time.Now()
	for _, id := range c.registry.Snapshot() {
		c.evaluate(ctx, id, now)
	}
}

func (c *Controller) evaluate(ctx context.Context, id string, now time.Time) {
	session, err := c.repo.GetSession(ctx, id)
	if err != nil {
		slog.Warn("lifecycle: failed to load session", "session_id", id, "error", err)
		return
	}
	if session == nil {
		// Expired before we got to it; drop from the registry, the next
		// reconcile would have caught this too.
		c.registry.Unregister(id)
		return
	}

	if session.ShouldFinalize(now) {
		c.finalize(ctx, session)
		return
	}

	if session.ShouldActivate(now) {
		if err := c.repo.SetStatus(ctx, id, domain.StatusLive); err != nil {
			slog.Warn("lifecycle: failed to activate session", "session_id", id, "error", err)
		}
	}
}

// finalize runs the sequence in spec §4.H. Guarded against re-entry by the
// status check in evaluate: only the tick that observes a non-ENDED
// session reaches here, and the sequence ends by setting ENDED and
// unregistering the id, so a later tick neither iterates it nor, if it
// does see it, finalizes it again.
func (c *Controller) finalize(ctx context.Context, session *domain.Session) {
	id := session.ID

	votes, err := c.repo.GetVotes(ctx, id)
	if err != nil {
		slog.Error("lifecycle: failed to read final votes", "session_id", id, "error", err)
	}
	chat, err := c.repo.GetRecentChat(ctx, id, 500)
	if err != nil {
		slog.Error("lifecycle: failed to read chat history", "session_id", id, "error", err)
	}

	endedAt := time.Now().UTC()

	if err := c.sink.Archive(ctx, ArchiveDocument{
		SessionID: id,
		OwnerID:   session.OwnerID,
		Outcome:   session.Outcome,
		Votes:     votes,
		Chat:      chat,
		EndedAt:   endedAt,
	}); err != nil {
		slog.Error("lifecycle: archive write failed", "session_id", id, "error", err)
	}

	c.publisher.Publish("votes/"+id, revealFrame{
		Type:       "reveal",
		Gender:     session.Outcome,
		FinalVotes: votes,
	})

	if err := c.repo.SetStatus(ctx, id, domain.StatusEnded); err != nil {
		slog.Error("lifecycle: failed to set ENDED", "session_id", id, "error", err)
	}
	if err := c.repo.RemoveActive(ctx, id); err != nil {
		slog.Warn("lifecycle: failed to remove from active set", "session_id", id, "error", err)
	}
	if err := c.repo.ApplyPostRevealTTL(ctx, id); err != nil {
		slog.Warn("lifecycle: failed to apply post-reveal ttl", "session_id", id, "error", err)
	}
	c.registry.Unregister(id)

	slog.Info("lifecycle: session finalized", "session_id", id, "boy", votes.CountA, "girl", votes.CountB)
}

type revealFrame struct {
	Type       string           `json:"type"`
	Gender     domain.Outcome   `json:"gender"`
	FinalVotes domain.VoteCount `json:"finalVotes"`
}
