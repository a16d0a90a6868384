// Package ratelimit provides the per-voter admission gate shared by the
// vote and chat paths.
package ratelimit

import (
	"context"
	"time"

	"github.com/revealtogether/reveal-server/internal/cache"
)

const (
	keyPrefix = "ratelimit:"
	window    = 1 * time.Second
)

// DefaultCallTimeout bounds a single Admit call's underlying store round
// trip when the caller does not specify one.
const DefaultCallTimeout = 2 * time.Second

// Limiter admits at most one call per voter per window, backed by the
// cache store's SET-IF-NOT-EXISTS-with-TTL primitive. A two-step
// exists-then-set implementation would race and admit at most one extra
// caller per window — acceptable per spec, but RedisStore's SetWithTTL is
// already atomic (SETNX), so this limiter never takes that slack.
type Limiter struct {
	store       cache.Store
	callTimeout time.Duration
}

// New returns a Limiter backed by store. callTimeout bounds each Admit
// call's store round trip; zero disables the bound.
func New(store cache.Store, callTimeout time.Duration) *Limiter {
	return &Limiter{store: store, callTimeout: callTimeout}
}

// Admit reports whether voterID may proceed. A false return means the
// voter is within the 1s cooldown and must be rejected, not retried
// immediately.
func (l *Limiter) Admit(ctx context.Context, voterID string) (bool, error) {
	if l.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.callTimeout)
		defer cancel()
	}
	ok, err := l.store.SetWithTTL(ctx, keyPrefix+voterID, "1", window, true)
	if err != nil {
		// Transient store errors are not admission failures, but callers
		// must not let a client retry unboundedly on them; see the
		// VoteEngine/ChatEngine callers, which surface these as a distinct
		// failure outcome rather than RateLimited.
		return false, err
	}
	return ok, nil
}
