package llm

import (
	"context"
	"errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of a chat completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client produces the next assistant message for an ordered conversation.
// Implementations must honor ctx deadlines.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

var (
	ErrEmptyCompletion = errors.New("llm returned an empty completion")
	ErrNoMessages      = errors.New("llm request has no messages")
)
