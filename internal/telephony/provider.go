package telephony

import (
	"context"
	"errors"
	"time"
)

// TelephonyProvider is the provider-agnostic interface used outside the adapter.
//
// Rules:
// - No provider REST calls outside telephony adapters.
// - Keep request/response types provider-agnostic.
type TelephonyProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	StartOutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)
}

var ErrInvalidArgument = errors.New("telephony: invalid argument")

// OutboundCallRequest asks the provider to dial To and hand the answered call to
// the voice webhook.
type OutboundCallRequest struct {
	// To is E.164.
	To string `json:"to"`
	// From overrides the configured caller id when set.
	From string `json:"from,omitempty"`
}

type OutboundCallResult struct {
	// CallID is the provider call id; it becomes the session key once answered.
	CallID    string    `json:"call_id"`
	Status    string    `json:"status"`
	To        string    `json:"to"`
	From      string    `json:"from"`
	CreatedAt time.Time `json:"created_at"`
}
