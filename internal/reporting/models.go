package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
	// Reason optionally restricts the summary to one termination reason.
	Reason string `json:"reason,omitempty"`
}

type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls int            `json:"total_calls"`
	ByReason   map[string]int `json:"by_reason"`
	ByLanguage map[string]int `json:"by_language"`

	// EmptyCalls ended without any conversation and produced no notification.
	EmptyCalls           int `json:"empty_calls"`
	NotifiedCalls        int `json:"notified_calls"`
	NotificationFailures int `json:"notification_failures"`

	TotalTurns             int     `json:"total_turns"`
	AverageTurns           float64 `json:"average_turns"`
	AverageDurationSeconds int     `json:"average_duration_seconds"`
}
