package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/revealtogether/reveal-server/internal/domain"
	"github.com/revealtogether/reveal-server/internal/lifecycle"
)

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	o, err := NewOutbox(path)
	if err != nil {
		t.Fatalf("NewOutbox: %v", err)
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestOutbox_EnqueueAndPending(t *testing.T) {
	o := newTestOutbox(t)
	ctx := context.Background()

	doc := lifecycle.ArchiveDocument{
		SessionID: "s1",
		OwnerID:   "owner-1",
		Outcome:   domain.OutcomeA,
		Votes:     domain.VoteCount{CountA: 2, CountB: 1},
		EndedAt:   time.Now().UTC(),
	}
	if err := o.Enqueue(ctx, doc); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	pending, err := o.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].SessionID != "s1" {
		t.Fatalf("unexpected pending entries: %+v", pending)
	}
	if pending[0].Document.Votes.CountA != 2 {
		t.Fatalf("unexpected document: %+v", pending[0].Document)
	}
}

func TestOutbox_MarkDeliveredRemovesFromPending(t *testing.T) {
	o := newTestOutbox(t)
	ctx := context.Background()

	doc := lifecycle.ArchiveDocument{SessionID: "s1", EndedAt: time.Now().UTC()}
	if err := o.Enqueue(ctx, doc); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := o.MarkDelivered(ctx, "s1"); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	pending, err := o.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending entries after delivery, got %d", len(pending))
	}
}

func TestOutbox_GetReturnsArchivedDocumentRegardlessOfDeliveryState(t *testing.T) {
	o := newTestOutbox(t)
	ctx := context.Background()

	doc := lifecycle.ArchiveDocument{SessionID: "s1", OwnerID: "o1", EndedAt: time.Now().UTC()}
	if err := o.Enqueue(ctx, doc); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := o.MarkDelivered(ctx, "s1"); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	got, ok, err := o.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got.OwnerID != "o1" {
		t.Fatalf("expected archived document, got ok=%v doc=%+v", ok, got)
	}
}

func TestOutbox_GetMissingSession(t *testing.T) {
	o := newTestOutbox(t)
	_, ok, err := o.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unseen session")
	}
}

func TestOutbox_RecordAttemptIncrements(t *testing.T) {
	o := newTestOutbox(t)
	ctx := context.Background()

	if err := o.Enqueue(ctx, lifecycle.ArchiveDocument{SessionID: "s1", EndedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := o.RecordAttempt(ctx, "s1"); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	pending, err := o.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("expected attempts=1, got %+v", pending)
	}
	if pending[0].LastAttemptAt.IsZero() {
		t.Fatal("expected LastAttemptAt to be set")
	}
}
