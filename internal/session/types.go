package session

import (
	"time"

	"ai-phone-assistant/internal/language"
)

// Status is the lifecycle position of a call session. It only moves forward.
type Status string

const (
	StatusAwaitingGreeting Status = "AWAITING_GREETING"
	StatusActive           Status = "ACTIVE"
	StatusTerminating      Status = "TERMINATING"
	StatusTerminated       Status = "TERMINATED"
)

func (s Status) rank() int {
	switch s {
	case StatusAwaitingGreeting:
		return 0
	case StatusActive:
		return 1
	case StatusTerminating:
		return 2
	case StatusTerminated:
		return 3
	default:
		return -1
	}
}

// Live reports whether the conversation can still take turns.
func (s Status) Live() bool {
	return s == StatusAwaitingGreeting || s == StatusActive
}

type Speaker string

const (
	SpeakerCaller    Speaker = "caller"
	SpeakerAssistant Speaker = "assistant"
)

type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Snapshot is an immutable copy of a session for reporting and the admin API.
type Snapshot struct {
	CallID         string       `json:"call_id"`
	From           string       `json:"from,omitempty"`
	To             string       `json:"to,omitempty"`
	Language       language.Tag `json:"language,omitempty"`
	Status         Status       `json:"status"`
	Turns          []Turn       `json:"turns"`
	Notified       bool         `json:"notified"`
	NotifyError    string       `json:"notify_error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	TerminatedAt   *time.Time   `json:"terminated_at,omitempty"`
}

// Stats counts live sessions by status.
type Stats struct {
	ByStatus   map[Status]int `json:"by_status"`
	Total      int            `json:"total"`
	Tombstones int            `json:"tombstones"`
}
