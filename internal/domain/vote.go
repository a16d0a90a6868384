package domain

import "time"

// Choice is a voter's selected option.
type Choice string

const (
	ChoiceA Choice = "boy"
	ChoiceB Choice = "girl"
)

// ParseChoice validates a client-supplied choice string.
func ParseChoice(s string) (Choice, bool) {
	switch Choice(s) {
	case ChoiceA, ChoiceB:
		return Choice(s), true
	default:
		return "", false
	}
}

// VoteCount is the running tally for a session.
//
// Invariant: CountA+CountB equals the size of the session's voter set.
type VoteCount struct {
	CountA int64 `json:"boy"`
	CountB int64 `json:"girl"`
}

// VoteRecord is a single accepted vote event, retained for reconnect
// hydration and for the vote-events fan-out topic.
type VoteRecord struct {
	VoterID   string    `json:"visitorId"`
	Name      string    `json:"name"`
	Choice    Choice    `json:"option"`
	Timestamp time.Time `json:"timestamp"`
}
