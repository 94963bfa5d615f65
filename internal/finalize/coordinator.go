package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ai-phone-assistant/internal/archive"
	"ai-phone-assistant/internal/audit"
	"ai-phone-assistant/internal/language"
	"ai-phone-assistant/internal/notify"
	"ai-phone-assistant/internal/observability"
	"ai-phone-assistant/internal/session"
	"ai-phone-assistant/pkg/logger"
)

// Reason says why a call is being finalized.
type Reason string

const (
	ReasonFarewell          Reason = "farewell"
	ReasonProviderCompleted Reason = "provider_completed"
	ReasonAbandoned         Reason = "abandoned"
)

// Outcome is the result of one Finalize call. Failures are recovered and reported here.
type Outcome string

const (
	OutcomeUnknown   Outcome = "unknown"
	OutcomeEmpty     Outcome = "empty"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
)

// Summarizer condenses a transcript for staff.
type Summarizer interface {
	Summarize(ctx context.Context, turns []session.Turn, tag language.Tag) (string, error)
}

type Options struct {
	Store      *session.Store
	Notifier   notify.Notifier
	Summarizer Summarizer
	Guard      Guard
	Archive    archive.Repository
	Audit      *audit.Service
	Metrics    *observability.Metrics
	Logger     *slog.Logger

	SubjectPrefix string
	// Timeout bounds the notifier call.
	Timeout time.Duration
	// Summarize prepends an LLM summary to the transcript body.
	Summarize bool
	// Offload runs Trigger on a background goroutine instead of the caller's.
	Offload  bool
	Language language.Tag
}

// Coordinator drains a finished call and notifies staff at most once.
type Coordinator struct {
	opts Options
	wg   sync.WaitGroup
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = "Tenant Call Summary"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if !opts.Language.Valid() {
		opts.Language = language.English
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{opts: opts}
}

// Trigger finalizes callID. With offload enabled it returns immediately and the
// work is tracked for Wait; it is not persisted and is lost on a crash.
func (c *Coordinator) Trigger(callID string, reason Reason) {
	if !c.opts.Offload {
		c.Finalize(context.Background(), callID, reason)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Finalize(context.Background(), callID, reason)
	}()
}

// Abandon is the store's hook for live calls that went idle.
func (c *Coordinator) Abandon(callID string) {
	c.Trigger(callID, ReasonAbandoned)
}

// Wait blocks until offloaded finalizations finish or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) Finalize(ctx context.Context, callID string, reason Reason) Outcome {
	log := c.opts.Logger.With("call_id", callID, "reason", string(reason))
	ctx = logger.With(ctx, log)

	out := c.finalize(ctx, log, callID, reason)
	c.opts.Metrics.Finalized(string(out), string(reason))
	log.Info("call finalized", "outcome", string(out))
	return out
}

func (c *Coordinator) finalize(ctx context.Context, log *slog.Logger, callID string, reason Reason) Outcome {
	sess, ok := c.opts.Store.Get(callID)
	if !ok {
		return OutcomeUnknown
	}

	var (
		turns []session.Turn
		done  bool
	)
	sess.Update(func(tx *session.Tx) {
		if tx.Status() == session.StatusTerminated {
			done = true
			return
		}
		tx.Advance(session.StatusTerminating)
		turns = tx.Recent(-1)
	})
	if done {
		return OutcomeDuplicate
	}
	tag := sess.Language(c.opts.Language)

	if len(turns) == 0 {
		c.terminate(sess)
		c.archive(ctx, log, sess, reason, tag, turns, "")
		return OutcomeEmpty
	}

	if !sess.ClaimNotification() {
		return OutcomeDuplicate
	}
	if c.opts.Guard != nil {
		claimed, err := c.opts.Guard.Claim(ctx, callID)
		switch {
		case err != nil:
			log.Warn("notification guard unavailable", "err", err)
		case !claimed:
			log.Info("notification already claimed elsewhere")
			c.terminate(sess)
			return OutcomeDuplicate
		}
	}

	summary := c.summarize(ctx, log, turns, tag)
	subject := strings.TrimSpace(c.opts.SubjectPrefix + " " + sess.From)
	body := Body(sess.From, reason, summary, turns)

	err := c.dispatch(ctx, subject, body)
	sess.RecordNotifyResult(err)

	out := OutcomeSent
	if err != nil {
		out = OutcomeFailed
		log.Error("call summary delivery failed", "err", err)
		c.opts.Metrics.Notification("failed")
	} else {
		c.opts.Metrics.Notification("sent")
	}

	if c.opts.Audit != nil {
		if aerr := c.opts.Audit.LogNotification(ctx, callID, string(reason), len(turns), err); aerr != nil {
			log.Warn("audit append failed", "err", aerr)
		}
	}
	c.terminate(sess)
	c.archive(ctx, log, sess, reason, tag, turns, summary)
	return out
}

func (c *Coordinator) dispatch(ctx context.Context, subject, body string) (err error) {
	if c.opts.Notifier == nil {
		return fmt.Errorf("no notifier configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return c.opts.Notifier.Notify(ctx, subject, body)
}

func (c *Coordinator) summarize(ctx context.Context, log *slog.Logger, turns []session.Turn, tag language.Tag) string {
	if !c.opts.Summarize || c.opts.Summarizer == nil {
		return ""
	}
	s, err := c.opts.Summarizer.Summarize(ctx, turns, tag)
	if err != nil {
		log.Warn("call summary generation failed, sending transcript only", "err", err)
		return ""
	}
	return s
}

func (c *Coordinator) terminate(sess *session.CallSession) {
	sess.Update(func(tx *session.Tx) { tx.Advance(session.StatusTerminated) })
}

func (c *Coordinator) archive(ctx context.Context, log *slog.Logger, sess *session.CallSession, reason Reason, tag language.Tag, turns []session.Turn, summary string) {
	if c.opts.Archive == nil {
		return
	}
	snap := sess.Snapshot()
	rec := archive.Record{
		CallID:      sess.CallID,
		From:        sess.From,
		To:          sess.To,
		Language:    string(tag),
		Reason:      string(reason),
		Turns:       turns,
		Notified:    snap.Notified,
		NotifyError: snap.NotifyError,
		Summary:     summary,
		StartedAt:   sess.CreatedAt,
	}
	if snap.TerminatedAt != nil {
		rec.EndedAt = *snap.TerminatedAt
	}
	if err := c.opts.Archive.Save(ctx, rec); err != nil {
		log.Warn("call archive failed", "err", err)
	}
}

// Body renders the plain-text notification: an optional summary, then the transcript.
func Body(from string, reason Reason, summary string, turns []session.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Caller: %s\n", from)
	fmt.Fprintf(&b, "Ended: %s\n\n", reason)
	if summary != "" {
		b.WriteString("Summary:\n")
		b.WriteString(strings.TrimSpace(summary))
		b.WriteString("\n\n")
	}
	b.WriteString("Transcript:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", speakerLabel(t.Speaker), t.Text)
	}
	return b.String()
}

func speakerLabel(s session.Speaker) string {
	if s == session.SpeakerCaller {
		return "Caller"
	}
	return "Assistant"
}
