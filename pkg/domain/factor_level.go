package domain

import dErrors "casework/pkg/domain-errors"

// FactorLevel is the severity of a single risk factor.
type FactorLevel string

const (
	FactorLevelLow    FactorLevel = "low"
	FactorLevelMedium FactorLevel = "medium"
	FactorLevelHigh   FactorLevel = "high"
)

var validFactorLevels = map[FactorLevel]bool{
	FactorLevelLow:    true,
	FactorLevelMedium: true,
	FactorLevelHigh:   true,
}

// ParseFactorLevel constructs a FactorLevel from external input.
func ParseFactorLevel(s string) (FactorLevel, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "factor level cannot be empty")
	}
	l := FactorLevel(s)
	if !validFactorLevels[l] {
		return "", dErrors.New(dErrors.CodeValidation, "invalid factor level: "+s)
	}
	return l, nil
}

func (l FactorLevel) IsValid() bool {
	return validFactorLevels[l]
}

func (l FactorLevel) String() string {
	return string(l)
}

// ScoreFloor is the minimum overall score a factor of this severity implies.
// A single high-severity factor (e.g. a sanctions hit) forces the overall
// level regardless of the weighted sum: worst factor dominates.
func (l FactorLevel) ScoreFloor() float64 {
	switch l {
	case FactorLevelHigh:
		return 80
	case FactorLevelMedium:
		return 40
	default:
		return 0
	}
}
