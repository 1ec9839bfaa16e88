package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "casework/pkg/domain-errors"
)

func TestParseFactorType(t *testing.T) {
	t.Run("current enum values pass through", func(t *testing.T) {
		for _, s := range []string{
			"geography", "industry", "pep", "sanctions",
			"adverse_media", "ownership_structure", "customer_profile", "business_profile",
		} {
			got, err := ParseFactorType(s)
			require.NoError(t, err, s)
			assert.Equal(t, FactorType(s), got)
		}
	})

	t.Run("legacy values map through the compatibility table", func(t *testing.T) {
		cases := map[string]FactorType{
			"KYC":           FactorTypeCustomer,
			"KYB":           FactorTypeBusiness,
			"COUNTRY":       FactorTypeGeography,
			"SECTOR":        FactorTypeIndustry,
			"WATCHLIST":     FactorTypeSanctions,
			"ADVERSE_MEDIA": FactorTypeAdverse,
		}
		for legacy, want := range cases {
			got, err := ParseFactorType(legacy)
			require.NoError(t, err, legacy)
			assert.Equal(t, want, got, legacy)
		}
	})

	t.Run("unmapped values surface instead of defaulting", func(t *testing.T) {
		for _, s := range []string{"", "ASTROLOGY", "kyc", "watchlist"} {
			_, err := ParseFactorType(s)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "%q must not decode", s)
		}
	})
}

func TestRiskLevelBands(t *testing.T) {
	cases := []struct {
		score float64
		want  RiskLevel
	}{
		{0, RiskLevelLow},
		{19.99, RiskLevelLow},
		{20, RiskLevelMediumLow},
		{39.99, RiskLevelMediumLow},
		{40, RiskLevelMedium},
		{59.99, RiskLevelMedium},
		{60, RiskLevelMediumHigh},
		{79.99, RiskLevelMediumHigh},
		{80, RiskLevelHigh},
		{100, RiskLevelHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RiskLevelForScore(tc.score), "score %v", tc.score)
	}
}

func TestRiskLevelSeverityOrdering(t *testing.T) {
	ordered := []RiskLevel{RiskLevelLow, RiskLevelMediumLow, RiskLevelMedium, RiskLevelMediumHigh, RiskLevelHigh}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Severity(), ordered[i-1].Severity())
	}
}

func TestBandMidpointStaysInBand(t *testing.T) {
	for level := range validRiskLevels {
		assert.Equal(t, level, RiskLevelForScore(level.BandMidpoint()), string(level))
	}
}

func TestParseRiskLevel(t *testing.T) {
	got, err := ParseRiskLevel("medium_high")
	require.NoError(t, err)
	assert.Equal(t, RiskLevelMediumHigh, got)

	_, err = ParseRiskLevel("HIGH")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseRiskLevel("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
