// Package repository provides the concrete encoding of session, vote,
// chat, dirty-flag, voter-set, and active-session records in the cache
// store.
package repository

import (
	"context"

	"github.com/revealtogether/reveal-server/internal/domain"
)

// Repository is the Session Repository contract consumed by the Vote
// Engine, Chat Engine, Lifecycle Controller, and Broadcast Scheduler.
type Repository interface {
	SaveSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	SetStatus(ctx context.Context, id string, status domain.Status) error
	SessionExists(ctx context.Context, id string) (bool, error)
	InitVotes(ctx context.Context, id string) error

	// RecordVote attempts to admit voterID's vote. The returned bool is
	// the set-add dedup primitive: true means this call caused the
	// counter increment, false means the voter had already voted.
	RecordVote(ctx context.Context, id, voterID string, choice domain.Choice, name string) (bool, error)
	HasVoted(ctx context.Context, id, voterID string) (bool, error)
	GetVotes(ctx context.Context, id string) (domain.VoteCount, error)

	AppendChat(ctx context.Context, id string, msg domain.ChatMessage) error
	GetRecentChat(ctx context.Context, id string, n int64) ([]domain.ChatMessage, error)
	GetRecentVotes(ctx context.Context, id string, n int64) ([]domain.VoteRecord, error)

	TestAndClearDirty(ctx context.Context, id string) (bool, error)
	MarkDirty(ctx context.Context, id string) error

	ActiveSessions(ctx context.Context) ([]string, error)
	RemoveActive(ctx context.Context, id string) error

	ApplyPostRevealTTL(ctx context.Context, id string) error
}
