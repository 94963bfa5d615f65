package reporting

import (
	"context"
	"errors"
	"time"

	"ai-phone-assistant/internal/archive"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side of the call archive.
type Repository interface {
	List(ctx context.Context, from, to time.Time) ([]archive.Record, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.List(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		Range:      req.Range,
		ByReason:   map[string]int{},
		ByLanguage: map[string]int{},
	}
	var totalDuration time.Duration
	for _, r := range rows {
		if req.Reason != "" && r.Reason != req.Reason {
			continue
		}
		out.TotalCalls++
		out.ByReason[r.Reason]++
		if r.Language != "" {
			out.ByLanguage[r.Language]++
		}
		out.TotalTurns += r.TurnCount
		if d := r.EndedAt.Sub(r.StartedAt); d > 0 {
			totalDuration += d
		}
		switch {
		case r.TurnCount == 0:
			out.EmptyCalls++
		case r.Notified && r.NotifyError == "":
			out.NotifiedCalls++
		case r.Notified:
			out.NotificationFailures++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageTurns = float64(out.TotalTurns) / float64(out.TotalCalls)
		out.AverageDurationSeconds = int(totalDuration.Seconds()) / out.TotalCalls
	}
	return out, nil
}
