package calls

import (
	"strings"
	"time"
)

// CallStatus is the provider-reported progress of a call (Twilio CallStatus vocabulary).
// It is independent of the conversation status held in the session.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// ParseCallStatus normalizes a provider status. Unknown values are kept verbatim
// and are never terminal.
func ParseCallStatus(s string) CallStatus {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", "-")
	return CallStatus(v)
}

// IsTerminal reports whether the provider considers the call over.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// TurnRequest is one inbound voice webhook, reduced to what the state machine needs.
type TurnRequest struct {
	CallID         string
	Utterance      string
	ProviderStatus CallStatus
	From           string
	To             string
}

// Instruction is one step of the reply played to the caller.
type Instruction interface {
	isInstruction()
}

// Speak plays Text with the given voice and locale.
type Speak struct {
	Text   string
	Voice  string
	Locale string
}

// Listen waits for caller speech. Locale selects the recognizer language.
type Listen struct {
	Timeout time.Duration
	Locale  string
}

type Hangup struct{}

func (Speak) isInstruction()  {}
func (Listen) isInstruction() {}
func (Hangup) isInstruction() {}

// TurnKind labels how a turn was handled, for logs and metrics.
type TurnKind string

const (
	TurnGreeting        TurnKind = "greeting"
	TurnSilence         TurnKind = "silence"
	TurnReply           TurnKind = "reply"
	TurnDegradedReply   TurnKind = "degraded_reply"
	TurnFarewell        TurnKind = "farewell"
	TurnProviderEnded   TurnKind = "provider_ended"
	TurnUnknownTerminal TurnKind = "unknown_terminal"
	TurnEvicted         TurnKind = "evicted"
	TurnAbsorbed        TurnKind = "absorbed"
	TurnInterrupted     TurnKind = "interrupted"
)

// Response is the ordered instruction set for one turn. It is never empty.
type Response struct {
	Instructions []Instruction
	Kind         TurnKind
}

// HangsUp reports whether the response ends the call.
func (r Response) HangsUp() bool {
	for _, in := range r.Instructions {
		if _, ok := in.(Hangup); ok {
			return true
		}
	}
	return false
}
