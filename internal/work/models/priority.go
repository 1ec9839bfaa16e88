package models

import "casework/pkg/domain"

// Priority orders the review queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// PriorityForRiskLevel maps the mirrored assessment level to a queue
// priority. Higher risk reviews jump the queue.
func PriorityForRiskLevel(level domain.RiskLevel) Priority {
	switch level {
	case domain.RiskLevelHigh, domain.RiskLevelMediumHigh:
		return PriorityHigh
	case domain.RiskLevelMedium, domain.RiskLevelMediumLow:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
