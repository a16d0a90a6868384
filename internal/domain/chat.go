package domain

import "time"

// ChatMessage is a single sanitized chat entry appended to a session.
type ChatMessage struct {
	Name      string    `json:"name"`
	Body      string    `json:"message"`
	VoterID   string    `json:"visitorId"`
	Timestamp time.Time `json:"timestamp"`
}
