// Package cache provides a typed façade over a remote key/value service,
// exposing the hash, set, list, and string primitives the session runtime
// needs for atomic vote admission and dirty-flag broadcast coordination.
package cache

import (
	"context"
	"time"
)

// Store is the set of primitive operations the rest of the runtime is
// allowed to use. No operation here is expected to be cross-key
// transactional; callers that need atomicity across keys (e.g. vote
// admission) rely on the atomicity of a single call such as SAdd or GetDel.
type Store interface {
	// HSetAll writes every field in fields to the hash at key and refreshes
	// its TTL.
	HSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// HGetAll reads every field of the hash at key. Returns an empty map
	// (not an error) if the key does not exist.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HIncrBy atomically adds delta to the integer field and returns the
	// new value.
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	// HSet writes a single field of the hash at key, leaving its TTL
	// untouched.
	HSet(ctx context.Context, key, field, value string) error

	// SAdd adds member to the set at key and reports whether it was new.
	SAdd(ctx context.Context, key, member string) (added bool, err error)

	// SRem removes member from the set at key.
	SRem(ctx context.Context, key, member string) error

	// SMembers returns every member of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// SIsMember reports whether member is present in the set at key.
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// LPush pushes value onto the head of the list at key.
	LPush(ctx context.Context, key, value string) error

	// LTrim keeps only the [start,stop] range of the list at key (Redis
	// LTRIM semantics: negative indices count from the tail).
	LTrim(ctx context.Context, key string, start, stop int64) error

	// LRange returns the [start,stop] range of the list at key, in the
	// list's native (head-first / most-recent-first) order.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// SetWithTTL writes value to key with the given TTL. If onlyIfAbsent
	// is true, the write only happens when key does not already exist
	// (NX semantics) and ok reports whether the write occurred.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration, onlyIfAbsent bool) (ok bool, err error)

	// GetDel atomically reads and deletes key, returning ("", false) if it
	// did not exist.
	GetDel(ctx context.Context, key string) (value string, existed bool, err error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire resets the TTL of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Close releases the underlying connection.
	Close() error
}
