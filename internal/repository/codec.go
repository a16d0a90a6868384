package repository

import (
	"encoding/json"
	"log/slog"

	"github.com/revealtogether/reveal-server/internal/domain"
)

// Explicit codec functions, one pair per record type, are the only place
// cache-stored records are encoded and decoded. They use encoding/json with
// the JSON tags declared on the domain types, so the wire field names are
// fixed by those tags.

func encodeVoteRecord(v domain.VoteRecord) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeVoteRecords parses raw JSON list entries, skipping (and logging)
// any that fail to decode rather than aborting the read.
func decodeVoteRecords(raw []string) []domain.VoteRecord {
	records := make([]domain.VoteRecord, 0, len(raw))
	for _, r := range raw {
		var v domain.VoteRecord
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			slog.Warn("repository: skipping malformed vote record", "error", err)
			continue
		}
		records = append(records, v)
	}
	return records
}

func encodeChatMessage(m domain.ChatMessage) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeChatMessages(raw []string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m domain.ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			slog.Warn("repository: skipping malformed chat message", "error", err)
			continue
		}
		messages = append(messages, m)
	}
	return messages
}

// reverseVoteRecords and reverseChatMessages return a new slice with s's
// order reversed, used to turn the
// list store's head-first (most-recent-first) order into the oldest-first
// order callers expect from GetRecentChat/GetRecentVotes.
func reverseVoteRecords(s []domain.VoteRecord) []domain.VoteRecord {
	out := make([]domain.VoteRecord, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func reverseChatMessages(s []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
