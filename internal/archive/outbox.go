package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/revealtogether/reveal-server/internal/lifecycle"
)

// Outbox is a local SQLite-backed durable queue of finalized session
// documents awaiting delivery to the external archive service. Adapted
// from the teacher's store.SQLiteStore construction (WAL mode, busy
// timeout, connection pool sizing).
type Outbox struct {
	db *sql.DB
}

// NewOutbox opens (creating if necessary) a SQLite database at dbPath and
// ensures its schema exists.
func NewOutbox(dbPath string) (*Outbox, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create archive outbox directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive outbox: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping archive outbox: %w", err)
	}

	o := &Outbox{db: db}
	if err := o.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize archive outbox schema: %w", err)
	}
	return o, nil
}

func (o *Outbox) initSchema() error {
	const query = `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS archive_outbox (
		session_id TEXT PRIMARY KEY,
		document_json TEXT NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		last_attempt_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_archive_outbox_pending ON archive_outbox(delivered) WHERE delivered = 0;
	`
	_, err := o.db.Exec(query)
	return err
}

// Enqueue durably records doc before any delivery attempt is made.
func (o *Outbox) Enqueue(ctx context.Context, doc lifecycle.ArchiveDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode archive document: %w", err)
	}

	_, err = o.db.ExecContext(ctx, `
		INSERT INTO archive_outbox (session_id, document_json, delivered, attempts, created_at)
		VALUES (?, ?, 0, 0, ?)
		ON CONFLICT(session_id) DO UPDATE SET document_json = excluded.document_json
	`, doc.SessionID, string(body), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("enqueue archive document for session %s: %w", doc.SessionID, err)
	}
	return nil
}

// MarkDelivered records that sessionID's document was successfully sent
// downstream.
func (o *Outbox) MarkDelivered(ctx context.Context, sessionID string) error {
	_, err := o.db.ExecContext(ctx, `UPDATE archive_outbox SET delivered = 1 WHERE session_id = ?`, sessionID)
	return err
}

// PendingEntry is one undelivered outbox row.
type PendingEntry struct {
	SessionID     string
	Document      lifecycle.ArchiveDocument
	Attempts      int
	LastAttemptAt time.Time
}

// Pending returns up to limit undelivered rows, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]PendingEntry, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT session_id, document_json, attempts, last_attempt_at FROM archive_outbox
		WHERE delivered = 0
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending archive documents: %w", err)
	}
	defer rows.Close()

	var entries []PendingEntry
	for rows.Next() {
		var sessionID, docJSON string
		var attempts int
		var lastAttemptUnix sql.NullInt64
		if err := rows.Scan(&sessionID, &docJSON, &attempts, &lastAttemptUnix); err != nil {
			return nil, fmt.Errorf("scan pending archive document: %w", err)
		}
		var doc lifecycle.ArchiveDocument
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			// A single corrupted row must not block the rest of the sweep.
			continue
		}
		entry := PendingEntry{SessionID: sessionID, Document: doc, Attempts: attempts}
		if lastAttemptUnix.Valid {
			entry.LastAttemptAt = time.Unix(lastAttemptUnix.Int64, 0)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns the archived document for sessionID, if the outbox has ever
// recorded one (delivered or not). Used to answer reads for sessions whose
// cache entry has already expired past its post-reveal TTL.
func (o *Outbox) Get(ctx context.Context, sessionID string) (lifecycle.ArchiveDocument, bool, error) {
	var docJSON string
	err := o.db.QueryRowContext(ctx, `
		SELECT document_json FROM archive_outbox WHERE session_id = ?
	`, sessionID).Scan(&docJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.ArchiveDocument{}, false, nil
	}
	if err != nil {
		return lifecycle.ArchiveDocument{}, false, fmt.Errorf("get archived document for session %s: %w", sessionID, err)
	}

	var doc lifecycle.ArchiveDocument
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return lifecycle.ArchiveDocument{}, false, fmt.Errorf("decode archived document for session %s: %w", sessionID, err)
	}
	return doc, true, nil
}

// RecordAttempt bumps the attempt counter and last-attempt timestamp for
// sessionID, whether or not the attempt succeeded.
func (o *Outbox) RecordAttempt(ctx context.Context, sessionID string) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE archive_outbox SET attempts = attempts + 1, last_attempt_at = ? WHERE session_id = ?
	`, time.Now().Unix(), sessionID)
	return err
}

// Close releases the underlying database connection.
func (o *Outbox) Close() error {
	return o.db.Close()
}
