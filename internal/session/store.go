package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ai-phone-assistant/internal/observability"
)

type Options struct {
	// IdleTimeout is how long a live call may go without caller activity before it is abandoned.
	IdleTimeout time.Duration
	// EvictionGrace keeps TERMINATED sessions readable for late callbacks and the admin API.
	EvictionGrace time.Duration
	// TombstoneTTL is how long an evicted call id stays recognized.
	TombstoneTTL time.Duration

	Now     func() time.Time
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	out := o
	if out.IdleTimeout <= 0 {
		out.IdleTimeout = 10 * time.Minute
	}
	if out.EvictionGrace <= 0 {
		out.EvictionGrace = 2 * time.Minute
	}
	if out.TombstoneTTL <= 0 {
		out.TombstoneTTL = time.Hour
	}
	if out.Now == nil {
		out.Now = func() time.Time { return time.Now().UTC() }
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Store is the in-memory registry of call sessions keyed by call id.
// Insert and remove are serialized by mu; each session guards its own state.
type Store struct {
	opts Options

	mu         sync.RWMutex
	sessions   map[string]*CallSession
	tombstones map[string]time.Time
	onAbandon  func(callID string)
}

func NewStore(opts Options) *Store {
	return &Store{
		opts:       opts.withDefaults(),
		sessions:   make(map[string]*CallSession),
		tombstones: make(map[string]time.Time),
	}
}

// SetAbandonHook registers the callback for live calls that went idle.
// It is invoked outside the store lock.
func (s *Store) SetAbandonHook(hook func(callID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAbandon = hook
}

// GetOrCreate returns the session for callID, creating it in AWAITING_GREETING if absent.
// An evicted call id is never re-created: the result is (nil, false).
func (s *Store) GetOrCreate(callID, from, to string) (*CallSession, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[callID]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[callID]; ok {
		return sess, false
	}
	if _, gone := s.tombstones[callID]; gone {
		return nil, false
	}
	sess = newCallSession(callID, from, to, s.opts.Now)
	s.sessions[callID] = sess
	s.opts.Metrics.SessionOpened()
	return sess, true
}

// Get never creates.
func (s *Store) Get(callID string) (*CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[callID]
	return sess, ok
}

// Remove evicts callID and leaves a tombstone. Absent ids are a no-op.
func (s *Store) Remove(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(callID, "removed")
}

func (s *Store) removeLocked(callID, cause string) bool {
	if _, ok := s.sessions[callID]; !ok {
		return false
	}
	delete(s.sessions, callID)
	s.tombstones[callID] = s.opts.Now().Add(s.opts.TombstoneTTL)
	s.opts.Metrics.SessionEvicted(cause)
	return true
}

// Evicted reports whether callID belonged to a session that has since been removed.
func (s *Store) Evicted(callID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tombstones[callID]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshot returns a copy of one session.
func (s *Store) Snapshot(callID string) (Snapshot, bool) {
	sess, ok := s.Get(callID)
	if !ok {
		return Snapshot{}, false
	}
	return sess.Snapshot(), true
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	list := make([]*CallSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	tombs := len(s.tombstones)
	s.mu.RUnlock()

	st := Stats{ByStatus: make(map[Status]int, 4), Total: len(list), Tombstones: tombs}
	for _, sess := range list {
		st.ByStatus[sess.Status()]++
	}
	return st
}

// SweepResult lists what one janitor pass did.
type SweepResult struct {
	Evicted   []string
	Abandoned []string
	Expired   int
}

// Sweep evicts finished sessions past the grace period, reports idle live sessions
// to the abandon hook and drops expired tombstones.
func (s *Store) Sweep() SweepResult {
	now := s.opts.Now()
	var res SweepResult

	s.mu.Lock()
	for id, sess := range s.sessions {
		status, lastActivity, terminatedAt := sess.sweepView()
		switch {
		case status == StatusTerminated:
			if now.Sub(terminatedAt) >= s.opts.EvictionGrace && s.removeLocked(id, "terminated") {
				res.Evicted = append(res.Evicted, id)
			}
		case status == StatusTerminating:
			// Finalize normally completes in seconds; anything older is stuck.
			if now.Sub(lastActivity) >= s.opts.IdleTimeout+s.opts.EvictionGrace && s.removeLocked(id, "stale") {
				res.Evicted = append(res.Evicted, id)
			}
		case now.Sub(lastActivity) >= s.opts.IdleTimeout:
			if s.onAbandon == nil {
				if s.removeLocked(id, "idle") {
					res.Evicted = append(res.Evicted, id)
				}
				continue
			}
			res.Abandoned = append(res.Abandoned, id)
		}
	}
	for id, until := range s.tombstones {
		if !now.Before(until) {
			delete(s.tombstones, id)
			res.Expired++
		}
	}
	hook := s.onAbandon
	s.mu.Unlock()

	if hook != nil {
		for _, id := range res.Abandoned {
			hook(id)
		}
	}
	if len(res.Evicted) > 0 || len(res.Abandoned) > 0 {
		s.opts.Logger.Info("session sweep",
			"evicted", len(res.Evicted),
			"abandoned", len(res.Abandoned),
			"tombstones_expired", res.Expired,
		)
	}
	return res
}

// StartJanitor runs Sweep every interval until ctx is done. The returned channel is
// closed once the loop has exited, after any in-flight Sweep and its abandon hooks return.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
	return done
}
