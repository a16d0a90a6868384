package chatengine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/revealtogether/reveal-server/internal/domain"
	"github.com/revealtogether/reveal-server/internal/ratelimit"
)

type fakeRepo struct {
	session *domain.Session
	chat    []domain.ChatMessage
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
	f.chat = append(f.chat, msg)
	return nil
}
func (f *fakeRepo) GetRecentChat(ctx context.Context, id string, n int64) ([]domain.ChatMessage, error) {
	return f.chat, nil
}
func (f *fakeRepo) GetRecentVotes(ctx context.Context, id string, n int64) ([]domain.VoteRecord, error) {
	return nil, nil
}
func (f *fakeRepo) TestAndClearDirty(ctx context.Context, id string) (bool, error) { return false, nil }
func (f *fakeRepo) MarkDirty(ctx context.Context, id string) error                { return nil }
func (f *fakeRepo) ActiveSessions(ctx context.Context) ([]string, error)          { return nil, nil }
func (f *fakeRepo) RemoveActive(ctx context.Context, id string) error             { return nil }
func (f *fakeRepo) ApplyPostRevealTTL(ctx context.Context, id string) error       { return nil }

type fakeStore struct{ seen map[string]bool }

func (s *fakeStore) HSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	return nil
}
func (s *fakeStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return nil, nil
}
func (s *fakeStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return 0, nil
}
func (s *fakeStore) HSet(ctx context.Context, key, field, value string) error { return nil }
func (s *fakeStore) SAdd(ctx context.Context, key, member string) (bool, error) {
	return true, nil
}
func (s *fakeStore) SRem(ctx context.Context, key, member string) error { return nil }
func (s *fakeStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return nil, nil
}
func (s *fakeStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return false, nil
}
func (s *fakeStore) LPush(ctx context.Context, key, value string) error            { return nil }
func (s *fakeStore) LTrim(ctx context.Context, key string, start, stop int64) error { return nil }
func (s *fakeStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, nil
}
func (s *fakeStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration, onlyIfAbsent bool) (bool, error) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if onlyIfAbsent && s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}
func (s *fakeStore) GetDel(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}
func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error)            { return false, nil }
func (s *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (s *fakeStore) Close() error                                                    { return nil }

type fakePublisher struct {
	topic   string
	payload any
	calls   int
}

func (p *fakePublisher) Publish(topic string, payload any) {
	p.topic, p.payload = topic, payload
	p.calls++
}

func newEngine(session *domain.Session) (*Engine, *fakeRepo, *fakePublisher) {
	repo := &fakeRepo{session: session}
	limiter := ratelimit.New(&fakeStore{}, ratelimit.DefaultCallTimeout)
	pub := &fakePublisher{}
	return New(repo, limiter, pub, DefaultConfig()), repo, pub
}

func TestSendMessage_AcceptsAndEscapes(t *testing.T) {
	engine, repo, pub := newEngine(&domain.Session{ID: "s1", Status: domain.StatusLive})

	ok, err := engine.SendMessage(context.Background(), "s1", SendMessageInput{
		VoterID: "v1", Name: "Alice", Body: "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected message to be accepted")
	}
	if len(repo.chat) != 1 {
		t.Fatalf("expected one stored message, got %d", len(repo.chat))
	}
	if strings.Contains(repo.chat[0].Body, "<script>") {
		t.Fatalf("expected body to be HTML-escaped, got %q", repo.chat[0].Body)
	}
	if pub.calls != 1 || pub.topic != "chat/s1" {
		t.Fatalf("expected one publish to chat/s1, got topic=%q calls=%d", pub.topic, pub.calls)
	}
}

func TestSendMessage_EmptyBodyRejected(t *testing.T) {
	engine, repo, _ := newEngine(&domain.Session{ID: "s1", Status: domain.StatusLive})

	ok, err := engine.SendMessage(context.Background(), "s1", SendMessageInput{VoterID: "v1", Name: "Alice", Body: "   "})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if ok {
		t.Fatal("expected empty-after-trim body to be rejected")
	}
	if len(repo.chat) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(repo.chat))
	}
}

func TestSendMessage_BodyTruncatedAt280(t *testing.T) {
	engine, repo, _ := newEngine(&domain.Session{ID: "s1", Status: domain.StatusLive})

	body281 := strings.Repeat("a", 281)
	ok, err := engine.SendMessage(context.Background(), "s1", SendMessageInput{VoterID: "v1", Name: "Alice", Body: body281})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected message to be accepted after truncation")
	}
	if len(repo.chat[0].Body) != 280 {
		t.Fatalf("expected body truncated to 280 runes, got %d", len(repo.chat[0].Body))
	}
}

func TestSendMessage_EndedSessionRejected(t *testing.T) {
	engine, _, _ := newEngine(&domain.Session{ID: "s1", Status: domain.StatusEnded})

	ok, err := engine.SendMessage(context.Background(), "s1", SendMessageInput{VoterID: "v1", Name: "Alice", Body: "hi"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if ok {
		t.Fatal("expected ended session to reject message")
	}
}
