package model

import "time"

// Severity ranks an advisory alert.
type Severity string

// Alert severities, most urgent first.
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityReview Severity = "review"
)

// Rank orders severities; lower is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// Alert is an advisory flag raised for a transfer that has waited too long.
type Alert struct {
	TransferID string        `json:"transfer_id"`
	Severity   Severity      `json:"severity"`
	Rule       string        `json:"rule"`
	Status     Status        `json:"status"`
	Age        time.Duration `json:"age"`
	Message    string        `json:"message"`
}
