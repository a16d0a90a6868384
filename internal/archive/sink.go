package archive

import (
	"context"
	"log/slog"
	"time"

	"github.com/revealtogether/reveal-server/internal/lifecycle"
	"github.com/revealtogether/reveal-server/internal/shared"
)

// RetryConfig controls the background delivery sweep, the same shape as
// the teacher's config.RetryConfig (renamed from database retries to
// archive delivery retries).
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	SweepInterval time.Duration
}

// DefaultRetryConfig mirrors the teacher's documented defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     50 * time.Millisecond,
		SweepInterval: 30 * time.Second,
	}
}

// Sink is the Archive Sink: a durable local outbox fronting a gRPC
// delivery client. Archive() blocks the Lifecycle Controller for the local
// outbox write and for one immediate delivery attempt (bounded by the
// client's RequestTimeout); a failed delivery is left to the sweep — this
// is the resolution of spec §9's "Archive retry" Open Question.
type Sink struct {
	outbox *Outbox
	client *GrpcClient
	retry  RetryConfig
}

// NewSink wires outbox and client with the given retry policy.
func NewSink(outbox *Outbox, client *GrpcClient, retry RetryConfig) *Sink {
	return &Sink{outbox: outbox, client: client, retry: retry}
}

var _ lifecycle.Sink = (*Sink)(nil)

// Archive durably enqueues doc, then attempts immediate delivery. A
// delivery failure here is not fatal to finalization: the sweep loop will
// retry from the outbox.
func (s *Sink) Archive(ctx context.Context, doc lifecycle.ArchiveDocument) error {
	if err := s.outbox.Enqueue(ctx, doc); err != nil {
		return err
	}

	if err := s.client.Deliver(ctx, doc); err != nil {
		slog.Warn("archive: immediate delivery failed, will retry from outbox", "session_id", doc.SessionID, "error", err)
		if recErr := s.outbox.RecordAttempt(ctx, doc.SessionID); recErr != nil {
			slog.Warn("archive: failed to record delivery attempt", "session_id", doc.SessionID, "error", recErr)
		}
		return nil
	}

	if err := s.outbox.MarkDelivered(ctx, doc.SessionID); err != nil {
		slog.Warn("archive: failed to mark delivered", "session_id", doc.SessionID, "error", err)
	}
	return nil
}

// RunSweep periodically retries undelivered outbox entries until ctx is
// cancelled, patterned on the teacher's StartTTLWorker ticker loop.
func (s *Sink) RunSweep(ctx context.Context) {
	ticker := time.NewTicker(s.retry.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sink) sweepOnce(ctx context.Context) {
	pending, err := s.outbox.Pending(ctx, 50)
	if err != nil {
		slog.Error("archive: failed to list pending documents", "error", err)
		return
	}

	for _, entry := range pending {
		if entry.Attempts >= s.retry.MaxAttempts {
			continue
		}
		if !entry.LastAttemptAt.IsZero() {
			backoff := s.retry.BaseDelay * time.Duration(1<<entry.Attempts)
			if time.Since(entry.LastAttemptAt) < backoff {
				continue
			}
		}

		if err := s.client.Deliver(ctx, entry.Document); err != nil {
			slog.Warn("archive: retry delivery failed", "session_id", entry.SessionID, "attempt", entry.Attempts+1, "error", err)
			if recErr := s.outbox.RecordAttempt(ctx, entry.SessionID); recErr != nil && !shared.IsSQLiteConflictError(recErr) {
				slog.Warn("archive: failed to record retry attempt", "session_id", entry.SessionID, "error", recErr)
			}
			continue
		}

		if err := s.outbox.MarkDelivered(ctx, entry.SessionID); err != nil {
			slog.Warn("archive: failed to mark delivered after retry", "session_id", entry.SessionID, "error", err)
		}
	}
}
