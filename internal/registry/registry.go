// Package registry maintains the process-local mirror of active session
// ids that the Broadcast Scheduler and Lifecycle Controller iterate,
// eliminating cache store polling when the server is idle.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/revealtogether/reveal-server/internal/repository"
)

// Registry is a concurrent set of session ids, reconciled against the
// cache store's active-session set on a fixed interval.
type Registry struct {
	repo repository.Repository

	mu  sync.RWMutex
	ids map[string]struct{}
}

// New returns an empty Registry backed by repo for reconciliation.
func New(repo repository.Repository) *Registry {
	return &Registry{
		repo: repo,
		ids:  make(map[string]struct{}),
	}
}

// Register adds id to the in-process set. Called by the session creation
// path once the session has been persisted.
func (r *Registry) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id] = struct{}{}
}

// Unregister removes id from the in-process set. Called once a session
// transitions to ENDED.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
}

// IsEmpty reports whether the registry currently holds no ids. Schedulers
// use this to skip a tick with zero cache store operations.
func (r *Registry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids) == 0
}

// Snapshot returns a defensive copy of the current id set, safe to iterate
// even if Register/Unregister run concurrently.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.ids))
	for id := range r.ids {
		ids = append(ids, id)
	}
	return ids
}

// Reconcile reads the cache store's active-session set, drops phantom ids
// (present in the cache set but whose session hash has already expired),
// and replaces the in-process set with the verified result.
func (r *Registry) Reconcile(ctx context.Context) error {
	cached, err := r.repo.ActiveSessions(ctx)
	if err != nil {
		return err
	}

	verified := make(map[string]struct{}, len(cached))
	for _, id := range cached {
		exists, err := r.repo.SessionExists(ctx, id)
		if err != nil {
			slog.Warn("registry: failed to verify session during reconcile", "session_id", id, "error", err)
			continue
		}
		if !exists {
			slog.Info("registry: removing phantom session", "session_id", id)
			if err := r.repo.RemoveActive(ctx, id); err != nil {
				slog.Warn("registry: failed to remove phantom session", "session_id", id, "error", err)
			}
			continue
		}
		verified[id] = struct{}{}
	}

	r.mu.Lock()
	r.ids = verified
	r.mu.Unlock()

	return nil
}
