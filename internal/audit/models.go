package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit writes are best-effort; they never block a call or a notification.
//
// Storage (Postgres): table audit_events, INSERT-only.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// CallID is the provider call id the event is about (if any).
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// ActorSubject is the admin token subject causing the event (if applicable).
	ActorSubject string `json:"actor_subject,omitempty" db:"actor_subject"`
	ActorRole    string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress    string `json:"ip_address,omitempty" db:"ip_address"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeNotificationSent   EventType = "notification_sent"
	EventTypeNotificationFailed EventType = "notification_failed"
	EventTypeOutboundCall       EventType = "outbound_call"
)
