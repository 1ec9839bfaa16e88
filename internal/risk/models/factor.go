package models

import (
	"time"

	"github.com/google/uuid"

	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
)

// RiskFactor is one scored concern attached to an assessment. Factors are
// owned by exactly one assessment and become immutable once the parent is
// finalized.
type RiskFactor struct {
	ID          uuid.UUID          `json:"id"`
	Type        domain.FactorType  `json:"type"`
	Level       domain.FactorLevel `json:"level"`
	Score       float64            `json:"score"`
	Description string             `json:"description"`
	Source      string             `json:"source,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// NewRiskFactor validates and constructs a factor.
func NewRiskFactor(factorType domain.FactorType, level domain.FactorLevel, score float64, description, source string, now time.Time) (RiskFactor, error) {
	if !factorType.IsValid() {
		return RiskFactor{}, dErrors.New(dErrors.CodeValidation, "invalid factor type: "+string(factorType))
	}
	if !level.IsValid() {
		return RiskFactor{}, dErrors.New(dErrors.CodeValidation, "invalid factor level: "+string(level))
	}
	if score < 0 || score > 100 {
		return RiskFactor{}, dErrors.New(dErrors.CodeValidation, "factor score must be within [0,100]")
	}
	if description == "" {
		return RiskFactor{}, dErrors.New(dErrors.CodeValidation, "factor description is required")
	}
	return RiskFactor{
		ID:          uuid.New(),
		Type:        factorType,
		Level:       level,
		Score:       score,
		Description: description,
		Source:      source,
		CreatedAt:   now,
	}, nil
}
