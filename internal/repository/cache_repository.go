package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/revealtogether/reveal-server/internal/cache"
	"github.com/revealtogether/reveal-server/internal/domain"
)

// CacheRepository is the Repository implementation backed by a cache.Store.
// Every write refreshes the relevant keys' TTL, per spec.
type CacheRepository struct {
	store           cache.Store
	sessionTTL      time.Duration
	postRevealTTL   time.Duration
	maxVoteRecords  int64
	maxChatMessages int64
	callTimeout     time.Duration
}

// Config controls retention for CacheRepository.
type Config struct {
	SessionTTL      time.Duration
	PostRevealTTL   time.Duration
	MaxVoteRecords  int64
	MaxChatMessages int64

	// CallTimeout bounds each individual cache.Store call. Zero disables
	// the bound and lets calls run for as long as ctx allows.
	CallTimeout time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL:      24 * time.Hour,
		PostRevealTTL:   1 * time.Hour,
		MaxVoteRecords:  100,
		MaxChatMessages: 500,
		CallTimeout:     2 * time.Second,
	}
}

// New returns a CacheRepository over store.
func New(store cache.Store, cfg Config) *CacheRepository {
	return &CacheRepository{
		store:           store,
		sessionTTL:      cfg.SessionTTL,
		postRevealTTL:   cfg.PostRevealTTL,
		maxVoteRecords:  cfg.MaxVoteRecords,
		maxChatMessages: cfg.MaxChatMessages,
		callTimeout:     cfg.CallTimeout,
	}
}

// bound derives a ctx scoped to callTimeout for a single cache.Store round
// trip, matching the teacher's per-call WithTimeout pattern (see
// api.Container's 5s cleanup bound). Callers must defer the returned cancel.
func (r *CacheRepository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.callTimeout)
}

func (r *CacheRepository) SaveSession(ctx context.Context, s *domain.Session) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	fields := map[string]string{
		"sessionId":  s.ID,
		"ownerId":    s.OwnerID,
		"gender":     string(s.Outcome),
		"status":     string(s.Status),
		"revealTime": s.RevealTime.UTC().Format(time.RFC3339),
		"createdAt":  s.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := r.store.HSetAll(ctx, sessionKey(s.ID), fields, r.sessionTTL); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	if _, err := r.store.SAdd(ctx, activeSessionsKey, s.ID); err != nil {
		return fmt.Errorf("register active session %s: %w", s.ID, err)
	}
	return nil
}

func (r *CacheRepository) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	fields, err := r.store.HGetAll(ctx, sessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	revealTime, err := time.Parse(time.RFC3339, fields["revealTime"])
	if err != nil {
		return nil, fmt.Errorf("session %s: parse revealTime: %w", id, err)
	}
	createdAt, err := time.Parse(time.RFC3339, fields["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("session %s: parse createdAt: %w", id, err)
	}

	return &domain.Session{
		ID:         id,
		OwnerID:    fields["ownerId"],
		Outcome:    domain.Outcome(fields["gender"]),
		Status:     domain.Status(fields["status"]),
		RevealTime: revealTime,
		CreatedAt:  createdAt,
	}, nil
}

func (r *CacheRepository) SetStatus(ctx context.Context, id string, status domain.Status) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.store.HSet(ctx, sessionKey(id), "status", string(status)); err != nil {
		return fmt.Errorf("set status for session %s: %w", id, err)
	}
	return r.store.Expire(ctx, sessionKey(id), r.sessionTTL)
}

func (r *CacheRepository) SessionExists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.Exists(ctx, sessionKey(id))
}

func (r *CacheRepository) InitVotes(ctx context.Context, id string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	fields := map[string]string{
		string(domain.ChoiceA): "0",
		string(domain.ChoiceB): "0",
	}
	return r.store.HSetAll(ctx, votesKey(id), fields, r.sessionTTL)
}

func (r *CacheRepository) RecordVote(ctx context.Context, id, voterID string, choice domain.Choice, name string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	added, err := r.store.SAdd(ctx, votersKey(id), voterID)
	if err != nil {
		return false, fmt.Errorf("record vote for session %s: %w", id, err)
	}
	if !added {
		return false, nil
	}

	if _, err := r.store.HIncrBy(ctx, votesKey(id), string(choice), 1); err != nil {
		return false, fmt.Errorf("increment vote count for session %s: %w", id, err)
	}

	if err := r.MarkDirty(ctx, id); err != nil {
		return false, fmt.Errorf("mark dirty for session %s: %w", id, err)
	}

	record := domain.VoteRecord{VoterID: voterID, Name: name, Choice: choice, Timestamp: time.Now().UTC()}
	encoded, err := encodeVoteRecord(record)
	if err != nil {
		return false, fmt.Errorf("encode vote record for session %s: %w", id, err)
	}
	if err := r.store.LPush(ctx, voteRecordsKey(id), encoded); err != nil {
		return false, fmt.Errorf("append vote record for session %s: %w", id, err)
	}
	if err := r.store.LTrim(ctx, voteRecordsKey(id), 0, r.maxVoteRecords-1); err != nil {
		return false, fmt.Errorf("trim vote records for session %s: %w", id, err)
	}

	for _, key := range []string{sessionKey(id), votesKey(id), votersKey(id), voteRecordsKey(id)} {
		if err := r.store.Expire(ctx, key, r.sessionTTL); err != nil {
			return false, fmt.Errorf("refresh ttl for session %s: %w", id, err)
		}
	}

	return true, nil
}

func (r *CacheRepository) HasVoted(ctx context.Context, id, voterID string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.SIsMember(ctx, votersKey(id), voterID)
}

func (r *CacheRepository) GetVotes(ctx context.Context, id string) (domain.VoteCount, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	fields, err := r.store.HGetAll(ctx, votesKey(id))
	if err != nil {
		return domain.VoteCount{}, fmt.Errorf("get votes for session %s: %w", id, err)
	}
	return domain.VoteCount{
		CountA: parseCountOrZero(fields[string(domain.ChoiceA)]),
		CountB: parseCountOrZero(fields[string(domain.ChoiceB)]),
	}, nil
}

func (r *CacheRepository) AppendChat(ctx context.Context, id string, msg domain.ChatMessage) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	encoded, err := encodeChatMessage(msg)
	if err != nil {
		return fmt.Errorf("encode chat message for session %s: %w", id, err)
	}
	if err := r.store.LPush(ctx, chatKey(id), encoded); err != nil {
		return fmt.Errorf("append chat message for session %s: %w", id, err)
	}
	if err := r.store.LTrim(ctx, chatKey(id), 0, r.maxChatMessages-1); err != nil {
		return fmt.Errorf("trim chat messages for session %s: %w", id, err)
	}
	return r.store.Expire(ctx, chatKey(id), r.sessionTTL)
}

func (r *CacheRepository) GetRecentChat(ctx context.Context, id string, n int64) ([]domain.ChatMessage, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	raw, err := r.store.LRange(ctx, chatKey(id), 0, n-1)
	if err != nil {
		return nil, fmt.Errorf("get recent chat for session %s: %w", id, err)
	}
	return reverseChatMessages(decodeChatMessages(raw)), nil
}

func (r *CacheRepository) GetRecentVotes(ctx context.Context, id string, n int64) ([]domain.VoteRecord, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	raw, err := r.store.LRange(ctx, voteRecordsKey(id), 0, n-1)
	if err != nil {
		return nil, fmt.Errorf("get recent votes for session %s: %w", id, err)
	}
	return reverseVoteRecords(decodeVoteRecords(raw)), nil
}

func (r *CacheRepository) TestAndClearDirty(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	_, existed, err := r.store.GetDel(ctx, dirtyKey(id))
	if err != nil {
		return false, fmt.Errorf("test-and-clear dirty flag for session %s: %w", id, err)
	}
	return existed, nil
}

func (r *CacheRepository) MarkDirty(ctx context.Context, id string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	_, err := r.store.SetWithTTL(ctx, dirtyKey(id), "1", r.sessionTTL, false)
	return err
}

func (r *CacheRepository) ActiveSessions(ctx context.Context) ([]string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.SMembers(ctx, activeSessionsKey)
}

func (r *CacheRepository) RemoveActive(ctx context.Context, id string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.SRem(ctx, activeSessionsKey, id)
}

func (r *CacheRepository) ApplyPostRevealTTL(ctx context.Context, id string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	for _, key := range []string{sessionKey(id), votesKey(id), votersKey(id), voteRecordsKey(id), chatKey(id)} {
		if err := r.store.Expire(ctx, key, r.postRevealTTL); err != nil {
			return fmt.Errorf("apply post-reveal ttl for session %s: %w", id, err)
		}
	}
	return nil
}

func parseCountOrZero(s string) int64 {
	if s == "" {
		return 0
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0
	}
	return n
}

var _ Repository = (*CacheRepository)(nil)
