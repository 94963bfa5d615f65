package session

import (
	"sync"
	"sync/atomic"
	"time"

	"ai-phone-assistant/internal/language"
)

// CallSession is the state of one phone call across its webhook turns.
//
// CallID, From, To and CreatedAt never change after creation. Everything else is
// guarded by mu and mutated only through Update, except the notification claim
// which is a lock-free compare-and-swap.
type CallSession struct {
	CallID    string
	From      string
	To        string
	CreatedAt time.Time

	now func() time.Time

	mu             sync.Mutex
	language       language.Tag
	turns          []Turn
	status         Status
	lastActivityAt time.Time
	terminatedAt   time.Time
	notifyErr      string

	notified atomic.Bool
}

func newCallSession(callID, from, to string, now func() time.Time) *CallSession {
	t := now()
	return &CallSession{
		CallID:         callID,
		From:           from,
		To:             to,
		CreatedAt:      t,
		now:            now,
		status:         StatusAwaitingGreeting,
		lastActivityAt: t,
	}
}

// Tx is the mutable view of a session inside Update. It must not escape fn.
type Tx struct {
	s *CallSession
}

// Update runs fn with the session lock held.
func (s *CallSession) Update(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx{s: s})
}

func (tx *Tx) Status() Status { return tx.s.status }

// Advance moves the session forward to `to`. Backward or same-state requests are ignored.
func (tx *Tx) Advance(to Status) bool {
	if to.rank() <= tx.s.status.rank() {
		return false
	}
	tx.s.status = to
	if to == StatusTerminated {
		tx.s.terminatedAt = tx.s.now()
	}
	return true
}

// Language returns the pinned language, if any.
func (tx *Tx) Language() (language.Tag, bool) {
	return tx.s.language, tx.s.language != ""
}

// PinLanguage sets the language once. Later calls and invalid tags leave it unchanged.
// It returns the language in effect afterwards (empty if still unset).
func (tx *Tx) PinLanguage(tag language.Tag) language.Tag {
	if tx.s.language == "" && tag.Valid() {
		tx.s.language = tag
	}
	return tx.s.language
}

// Append adds a turn while the conversation is live. Turns are never edited or reordered.
func (tx *Tx) Append(speaker Speaker, text string) bool {
	if !tx.s.status.Live() {
		return false
	}
	tx.s.turns = append(tx.s.turns, Turn{Speaker: speaker, Text: text, At: tx.s.now()})
	return true
}

// Recent returns a copy of the last n turns (all turns when n < 0).
func (tx *Tx) Recent(n int) []Turn {
	turns := tx.s.turns
	if n >= 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]Turn(nil), turns...)
}

func (tx *Tx) TurnCount() int { return len(tx.s.turns) }

// Touch records caller activity for idle detection.
func (tx *Tx) Touch() { tx.s.lastActivityAt = tx.s.now() }

func (s *CallSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Language returns the pinned language, or def while unset.
func (s *CallSession) Language(def language.Tag) language.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.language == "" {
		return def
	}
	return s.language
}

func (s *CallSession) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

func (s *CallSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// ClaimNotification flips notified false→true. Exactly one caller ever gets true.
func (s *CallSession) ClaimNotification() bool {
	return s.notified.CompareAndSwap(false, true)
}

func (s *CallSession) Notified() bool { return s.notified.Load() }

// RecordNotifyResult stores the outcome of the single dispatch attempt.
func (s *CallSession) RecordNotifyResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.notifyErr = err.Error()
		return
	}
	s.notifyErr = ""
}

func (s *CallSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		CallID:         s.CallID,
		From:           s.From,
		To:             s.To,
		Language:       s.language,
		Status:         s.status,
		Turns:          append([]Turn(nil), s.turns...),
		Notified:       s.notified.Load(),
		NotifyError:    s.notifyErr,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.lastActivityAt,
	}
	if !s.terminatedAt.IsZero() {
		t := s.terminatedAt
		snap.TerminatedAt = &t
	}
	return snap
}

// sweepView is read by the janitor under the session lock.
func (s *CallSession) sweepView() (Status, time.Time, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastActivityAt, s.terminatedAt
}
