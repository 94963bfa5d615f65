package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Notifier delivers a plain-text call summary to staff.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// LogNotifier writes the summary to the structured log. It is the local default.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Notify(ctx context.Context, subject, body string) error {
	n.log.InfoContext(ctx, "call summary", "subject", subject, "body", body)
	return nil
}

// Multi fans a summary out to every notifier. It succeeds when at least one delivery does.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, subject, body string) error {
	if len(m) == 0 {
		return errors.New("notify: no notifiers configured")
	}
	var errs []error
	ok := false
	for _, n := range m {
		if err := n.Notify(ctx, subject, body); err != nil {
			errs = append(errs, err)
			continue
		}
		ok = true
	}
	if ok {
		if len(errs) > 0 {
			slog.WarnContext(ctx, "partial notification failure", "err", errors.Join(errs...))
		}
		return nil
	}
	return errors.Join(errs...)
}

// StatusError is a non-2xx answer from a delivery endpoint.
type StatusError struct {
	Target     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Target, e.StatusCode, strings.TrimSpace(e.Body))
}
