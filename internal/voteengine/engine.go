// Package voteengine implements atomic vote admission: rate limit,
// session-active check, dedup, counter increment, dirty flag, and the
// individual-vote event.
package voteengine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/revealtogether/reveal-server/internal/domain"
	"github.com/revealtogether/reveal-server/internal/publisher"
	"github.com/revealtogether/reveal-server/internal/ratelimit"
	"github.com/revealtogether/reveal-server/internal/repository"
)

// Outcome is the result of a CastVote call.
type Outcome int

const (
	OK Outcome = iota
	RateLimited
	NotFound
	Ended
	AlreadyVoted
	BadChoice
	Failed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "OK"
	case RateLimited:
		return "RateLimited"
	case NotFound:
		return "NotFound"
	case Ended:
		return "Ended"
	case AlreadyVoted:
		return "AlreadyVoted"
	case BadChoice:
		return "BadChoice"
	default:
		return "Failed"
	}
}

// CastVoteInput is a single client-submitted vote attempt.
type CastVoteInput struct {
	VoterID string
	Choice  string
	Name    string
}

const defaultGuestName = "Guest"

// Engine casts votes against a Repository, rate-limited via a
// ratelimit.Limiter, and emits individual vote events via a Publisher.
type Engine struct {
	repo      repository.Repository
	limiter   *ratelimit.Limiter
	publisher publisher.Publisher
}

// New returns an Engine wiring the given collaborators.
func New(repo repository.Repository, limiter *ratelimit.Limiter, pub publisher.Publisher) *Engine {
	return &Engine{repo: repo, limiter: limiter, publisher: pub}
}

// CastVote runs the admission algorithm in the order the rate limit gate,
// session lookup, and choice validation are documented: admit first, then
// resolve the session, then parse the choice.
func (e *Engine) CastVote(ctx context.Context, sessionID string, in CastVoteInput) (Outcome, error) {
	admitted, err := e.limiter.Admit(ctx, in.VoterID)
	if err != nil {
		return Failed, fmt.Errorf("rate limit check: %w", err)
	}
	if !admitted {
		return RateLimited, nil
	}

	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Failed, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return NotFound, nil
	}
	if session.Ended() {
		return Ended, nil
	}

	choice, ok := domain.ParseChoice(in.Choice)
	if !ok {
		return BadChoice, nil
	}

	name := in.Name
	if name == "" {
		name = defaultGuestName
	}

	admittedVote, err := e.repo.RecordVote(ctx, sessionID, in.VoterID, choice, name)
	if err != nil {
		return Failed, fmt.Errorf("record vote: %w", err)
	}
	if !admittedVote {
		return AlreadyVoted, nil
	}

	e.publisher.Publish("vote-events/"+sessionID, domain.VoteRecord{
		VoterID:   in.VoterID,
		Name:      name,
		Choice:    choice,
		Timestamp: time.Now().UTC(),
	})

	slog.Debug("vote admitted", "session_id", sessionID, "voter_id", in.VoterID, "choice", choice)
	return OK, nil
}
