// Package chatengine implements rate-limited, length-bounded, sanitized
// chat append and immediate fan-out.
package chatengine

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/revealtogether/reveal-server/internal/domain"
	"github.com/revealtogether/reveal-server/internal/publisher"
	"github.com/revealtogether/reveal-server/internal/ratelimit"
	"github.com/revealtogether/reveal-server/internal/repository"
)

// SendMessageInput is a single client-submitted chat attempt.
type SendMessageInput struct {
	VoterID string
	Name    string
	Body    string
}

// Config bounds name and body length. Defaults match spec §6.
type Config struct {
	MaxNameLength int
	MaxBodyLength int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{MaxNameLength: 50, MaxBodyLength: 280}
}

// Engine appends chat messages to a Repository, rate-limited via a
// ratelimit.Limiter, and publishes them synchronously via a Publisher.
type Engine struct {
	repo      repository.Repository
	limiter   *ratelimit.Limiter
	publisher publisher.Publisher
	cfg       Config
}

// New returns an Engine wiring the given collaborators.
func New(repo repository.Repository, limiter *ratelimit.Limiter, pub publisher.Publisher, cfg Config) *Engine {
	return &Engine{repo: repo, limiter: limiter, publisher: pub, cfg: cfg}
}

// SendMessage runs the algorithm in spec §4.G. A false return means the
// message was rejected (rate limited, session missing or ended, or empty
// body)
// and nothing was appended or published.
func (e *Engine) SendMessage(ctx context.Context, sessionID string, in SendMessageInput) (bool, error) {
	admitted, err := e.limiter.Admit(ctx, in.VoterID)
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	if !admitted {
		return false, nil
	}

	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	if session == nil || session.Ended() {
		return false, nil
	}

	name := truncate(strings.TrimSpace(in.Name), e.cfg.MaxNameLength)
	body := truncate(strings.TrimSpace(in.Body), e.cfg.MaxBodyLength)
	if body == "" {
		return false, nil
	}

	msg := domain.ChatMessage{
		Name:      html.EscapeString(name),
		Body:      html.EscapeString(body),
		VoterID:   in.VoterID,
		Timestamp: time.Now().UTC(),
	}

	if err := e.repo.AppendChat(ctx, sessionID, msg); err != nil {
		return false, fmt.Errorf("append chat: %w", err)
	}

	e.publisher.Publish("chat/"+sessionID, msg)
	return true, nil
}

// truncate cuts s to at most n runes, respecting UTF-8 boundaries.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
