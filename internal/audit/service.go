package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: no Update/Delete methods exist.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.CallID == "" && e.Type != EventTypeOutboundCall {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogNotification records the single dispatch attempt for a call summary.
func (s *Service) LogNotification(ctx context.Context, callID, reason string, turns int, dispatchErr error) error {
	e := Event{
		CallID:   callID,
		Type:     EventTypeNotificationSent,
		Message:  "call summary sent",
		Metadata: metadata(map[string]any{"reason": reason, "turns": turns}),
	}
	if dispatchErr != nil {
		e.Type = EventTypeNotificationFailed
		e.Message = "call summary delivery failed"
		e.Metadata = metadata(map[string]any{"reason": reason, "turns": turns, "error": dispatchErr.Error()})
	}
	return s.Append(ctx, e)
}

// LogOutboundCall records an admin-originated call.
func (s *Service) LogOutboundCall(ctx context.Context, actorSubject, actorRole, ip, to, callID string) error {
	return s.Append(ctx, Event{
		Type:         EventTypeOutboundCall,
		CallID:       callID,
		ActorSubject: actorSubject,
		ActorRole:    actorRole,
		IPAddress:    ip,
		Message:      "outbound call started",
		Metadata:     metadata(map[string]any{"to": to}),
	})
}

func metadata(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
