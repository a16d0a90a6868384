package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/revealtogether/reveal-server/internal/cache"
	"github.com/revealtogether/reveal-server/internal/domain"
	"github.com/revealtogether/reveal-server/internal/repository"
)

func timeNow() time.Time { return time.Now().UTC() }

func newTestRepo(t *testing.T) (repository.Repository, cache.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore(context.Background(), cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	return repository.New(store, repository.DefaultConfig()), store
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	repo, _ := newTestRepo(t)
	reg := New(repo)

	if !reg.IsEmpty() {
		t.Fatal("expected empty registry")
	}

	reg.Register("s1")
	if reg.IsEmpty() {
		t.Fatal("expected non-empty registry after register")
	}

	snapshot := reg.Snapshot()
	if len(snapshot) != 1 || snapshot[0] != "s1" {
		t.Fatalf("unexpected snapshot %v", snapshot)
	}

	reg.Unregister("s1")
	if !reg.IsEmpty() {
		t.Fatal("expected empty registry after unregister")
	}
}

func TestRegistry_ReconcileDropsPhantomSession(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	session := &domain.Session{ID: "real", Status: domain.StatusWaiting, RevealTime: timeNow(), CreatedAt: timeNow()}
	if err := repo.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Pre-seed active_sessions with a phantom id that has no session hash,
	// per spec S6 (the authoritative "active_sessions" key name).
	if _, err := store.SAdd(ctx, "active_sessions", "ghost"); err != nil {
		t.Fatalf("seed phantom session: %v", err)
	}

	reg := New(repo)
	if err := reg.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	snapshot := reg.Snapshot()
	if len(snapshot) != 1 || snapshot[0] != "real" {
		t.Fatalf("expected only the real session to survive reconcile, got %v", snapshot)
	}
}
