package archive

import (
	"errors"
	"time"

	"ai-phone-assistant/internal/session"
)

var ErrNotFound = errors.New("archive: call not found")

// Record is the durable copy of a finished call. It is written once, after finalize.
type Record struct {
	CallID      string         `json:"call_id" db:"call_id"`
	From        string         `json:"from,omitempty" db:"from_number"`
	To          string         `json:"to,omitempty" db:"to_number"`
	Language    string         `json:"language" db:"language"`
	Reason      string         `json:"reason" db:"reason"`
	Turns       []session.Turn `json:"turns,omitempty"`
	TurnCount   int            `json:"turn_count" db:"turn_count"`
	Notified    bool           `json:"notified" db:"notified"`
	NotifyError string         `json:"notify_error,omitempty" db:"notify_error"`
	Summary     string         `json:"summary,omitempty" db:"summary"`
	StartedAt   time.Time      `json:"started_at" db:"started_at"`
	EndedAt     time.Time      `json:"ended_at" db:"ended_at"`
}

// normalize fills derived fields before storage.
func (r Record) normalize() Record {
	if r.TurnCount == 0 {
		r.TurnCount = len(r.Turns)
	}
	if r.EndedAt.IsZero() {
		r.EndedAt = time.Now().UTC()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = r.EndedAt
	}
	return r
}
