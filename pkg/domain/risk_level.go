package domain

import dErrors "casework/pkg/domain-errors"

// RiskLevel is the five-band classification of an onboarding case.
//
// Band table (score ranges are half-open):
//
//	Low        [0, 20)
//	MediumLow  [20, 40)
//	Medium     [40, 60)
//	MediumHigh [60, 80)
//	High       [80, 100]
type RiskLevel string

const (
	RiskLevelLow        RiskLevel = "low"
	RiskLevelMediumLow  RiskLevel = "medium_low"
	RiskLevelMedium     RiskLevel = "medium"
	RiskLevelMediumHigh RiskLevel = "medium_high"
	RiskLevelHigh       RiskLevel = "high"
)

// validRiskLevels is the single source of truth for valid risk levels.
var validRiskLevels = map[RiskLevel]bool{
	RiskLevelLow:        true,
	RiskLevelMediumLow:  true,
	RiskLevelMedium:     true,
	RiskLevelMediumHigh: true,
	RiskLevelHigh:       true,
}

// ParseRiskLevel constructs a RiskLevel from external input.
//
// Errors: returns CodeValidation when the value is empty or unsupported.
func ParseRiskLevel(s string) (RiskLevel, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "risk level cannot be empty")
	}
	l := RiskLevel(s)
	if !l.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid risk level: "+s)
	}
	return l, nil
}

func (l RiskLevel) IsValid() bool {
	return validRiskLevels[l]
}

func (l RiskLevel) String() string {
	return string(l)
}

// RiskLevelForScore maps a score in [0,100] onto the band table.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskLevelHigh
	case score >= 60:
		return RiskLevelMediumHigh
	case score >= 40:
		return RiskLevelMedium
	case score >= 20:
		return RiskLevelMediumLow
	default:
		return RiskLevelLow
	}
}

// BandMidpoint returns the midpoint score of the level's band. Manual
// overrides force the stored score to this value so score and level stay
// consistent without inventing a number.
func (l RiskLevel) BandMidpoint() float64 {
	switch l {
	case RiskLevelHigh:
		return 90
	case RiskLevelMediumHigh:
		return 70
	case RiskLevelMedium:
		return 50
	case RiskLevelMediumLow:
		return 30
	default:
		return 10
	}
}

// Severity orders levels for comparisons (higher is riskier).
func (l RiskLevel) Severity() int {
	switch l {
	case RiskLevelHigh:
		return 4
	case RiskLevelMediumHigh:
		return 3
	case RiskLevelMedium:
		return 2
	case RiskLevelMediumLow:
		return 1
	default:
		return 0
	}
}
