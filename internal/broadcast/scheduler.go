// Package broadcast periodically emits aggregate vote counts for every
// active session whose dirty flag has been set since the last tick.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/revealtogether/reveal-server/internal/publisher"
	"github.com/revealtogether/reveal-server/internal/registry"
	"github.com/revealtogether/reveal-server/internal/repository"
)

// DefaultInterval is the documented default broadcast cadence.
const DefaultInterval = 500 * time.Millisecond

// Scheduler ticks at Interval, publishing a fresh vote-count frame for
// every session whose dirty flag was set since the last tick.
type Scheduler struct {
	repo      repository.Repository
	registry  *registry.Registry
	publisher publisher.Publisher
	interval  time.Duration
}

// New returns a Scheduler ticking at interval. A zero or negative interval
// selects DefaultInterval; any other value is clamped to [200ms, 2s].
func New(repo repository.Repository, reg *registry.Registry, pub publisher.Publisher, interval time.Duration) *Scheduler {
	switch {
	case interval <= 0:
		interval = DefaultInterval
	case interval < 200*time.Millisecond:
		interval = 200 * time.Millisecond
	case interval > 2*time.Second:
		interval = 2 * time.Second
	}
	return &Scheduler{repo: repo, registry: reg, publisher: pub, interval: interval}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick performs zero cache operations when the registry is empty — this
// is the "idle zero-cost" property the registry exists to provide.
func (s *Scheduler) tick(ctx context.Context) {
	if s.registry.IsEmpty() {
		return
	}

	for _, id := range s.registry.Snapshot() {
		dirty, err := s.repo.TestAndClearDirty(ctx, id)
		if err != nil {
			slog.Warn("broadcast: failed to test dirty flag", "session_id", id, "error", err)
			continue
		}
		if !dirty {
			continue
		}

		votes, err := s.repo.GetVotes(ctx, id)
		if err != nil {
			slog.Warn("broadcast: failed to read votes", "session_id", id, "error", err)
			continue
		}

		s.publisher.Publish("votes/"+id, votes)
	}
}
