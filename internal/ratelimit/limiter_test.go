package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/revealtogether/reveal-server/internal/cache"
)

func TestLimiter_AdmitsOncePerWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore(context.Background(), cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	limiter := New(store, DefaultCallTimeout)
	ctx := context.Background()

	admitted, err := limiter.Admit(ctx, "v1")
	if err != nil || !admitted {
		t.Fatalf("first Admit: admitted=%v err=%v", admitted, err)
	}

	for i := 0; i < 9; i++ {
		admitted, err = limiter.Admit(ctx, "v1")
		if err != nil {
			t.Fatalf("burst Admit: %v", err)
		}
		if admitted {
			t.Fatal("expected burst calls within the window to be rejected")
		}
	}

	mr.FastForward(1100 * time.Millisecond) // advance miniredis's clock past the 1s TTL
	admitted, err = limiter.Admit(ctx, "v1")
	if err != nil || !admitted {
		t.Fatalf("Admit after window expiry: admitted=%v err=%v", admitted, err)
	}
}

func TestLimiter_IndependentPerVoter(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore(context.Background(), cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	limiter := New(store, DefaultCallTimeout)
	ctx := context.Background()

	if admitted, err := limiter.Admit(ctx, "v1"); err != nil || !admitted {
		t.Fatalf("Admit v1: admitted=%v err=%v", admitted, err)
	}
	if admitted, err := limiter.Admit(ctx, "v2"); err != nil || !admitted {
		t.Fatalf("Admit v2: admitted=%v err=%v", admitted, err)
	}
}
