package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestAssessment(t *testing.T) *RiskAssessment {
	t.Helper()
	a, err := NewRiskAssessment(domain.NewAssessmentID(), "C-100", "P-1", testTime)
	require.NoError(t, err)
	return a
}

func newTestFactor(t *testing.T, factorType domain.FactorType, level domain.FactorLevel, score float64) RiskFactor {
	t.Helper()
	f, err := NewRiskFactor(factorType, level, score, "test factor", "", testTime)
	require.NoError(t, err)
	return f
}

func TestNewRiskAssessment(t *testing.T) {
	a := newTestAssessment(t)
	assert.Equal(t, StatusDraft, a.Status)
	assert.Equal(t, domain.RiskLevelLow, a.OverallRiskLevel)
	assert.Zero(t, a.RiskScore)
	assert.Equal(t, 1, a.Version)
	assert.Empty(t, a.Factors)

	_, err := NewRiskAssessment(domain.NewAssessmentID(), "", "P-1", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewRiskAssessment(domain.NewAssessmentID(), "C-100", "", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestAddFactorRecomputesBands(t *testing.T) {
	policy := ScoringPolicy{}
	cases := []struct {
		name      string
		scores    []float64
		wantScore float64
		wantLevel domain.RiskLevel
	}{
		{"single low score", []float64{10}, 10, domain.RiskLevelLow},
		{"average lands in medium low", []float64{10, 30}, 20, domain.RiskLevelMediumLow},
		{"average lands in medium", []float64{40, 60}, 50, domain.RiskLevelMedium},
		{"average lands in medium high", []float64{60, 70}, 65, domain.RiskLevelMediumHigh},
		{"boundary eighty is high", []float64{80}, 80, domain.RiskLevelHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAssessment(t)
			for _, score := range tc.scores {
				f := newTestFactor(t, domain.FactorTypeGeography, domain.FactorLevelLow, score)
				require.NoError(t, a.AddFactor(f, policy, testTime))
			}
			assert.InDelta(t, tc.wantScore, a.RiskScore, 0.001)
			assert.Equal(t, tc.wantLevel, a.OverallRiskLevel)
			assert.GreaterOrEqual(t, a.RiskScore, 0.0)
			assert.LessOrEqual(t, a.RiskScore, 100.0)
		})
	}
}

func TestAddFactorMovesDraftToInProgress(t *testing.T) {
	a := newTestAssessment(t)
	f := newTestFactor(t, domain.FactorTypeIndustry, domain.FactorLevelLow, 15)
	require.NoError(t, a.AddFactor(f, ScoringPolicy{}, testTime))
	assert.Equal(t, StatusInProgress, a.Status)
}

func TestWorstFactorDominates(t *testing.T) {
	a := newTestAssessment(t)
	policy := ScoringPolicy{}

	low1 := newTestFactor(t, domain.FactorTypeGeography, domain.FactorLevelLow, 5)
	low2 := newTestFactor(t, domain.FactorTypeIndustry, domain.FactorLevelLow, 10)
	require.NoError(t, a.AddFactor(low1, policy, testTime))
	require.NoError(t, a.AddFactor(low2, policy, testTime))
	require.Equal(t, domain.RiskLevelLow, a.OverallRiskLevel)

	// One sanctions hit forces the overall level to High even though the
	// weighted average stays far below the band.
	hit := newTestFactor(t, domain.FactorTypeSanctions, domain.FactorLevelHigh, 95)
	require.NoError(t, a.AddFactor(hit, policy, testTime))

	assert.Equal(t, domain.RiskLevelHigh, a.OverallRiskLevel)
	assert.GreaterOrEqual(t, a.RiskScore, 80.0)
}

func TestMediumFactorFloor(t *testing.T) {
	a := newTestAssessment(t)
	policy := ScoringPolicy{}

	low := newTestFactor(t, domain.FactorTypeGeography, domain.FactorLevelLow, 5)
	medium := newTestFactor(t, domain.FactorTypePEP, domain.FactorLevelMedium, 30)
	require.NoError(t, a.AddFactor(low, policy, testTime))
	require.NoError(t, a.AddFactor(medium, policy, testTime))

	assert.GreaterOrEqual(t, a.RiskScore, 40.0)
	assert.Equal(t, domain.RiskLevelMedium, a.OverallRiskLevel)
}

func TestWeightedAverage(t *testing.T) {
	a := newTestAssessment(t)
	policy := ScoringPolicy{FactorWeights: map[domain.FactorType]float64{
		domain.FactorTypeSanctions: 3,
	}}

	require.NoError(t, a.AddFactor(newTestFactor(t, domain.FactorTypeGeography, domain.FactorLevelLow, 10), policy, testTime))
	require.NoError(t, a.AddFactor(newTestFactor(t, domain.FactorTypeSanctions, domain.FactorLevelLow, 50), policy, testTime))

	// (1*10 + 3*50) / 4 = 40
	assert.InDelta(t, 40.0, a.RiskScore, 0.001)
}

func TestTerminalStateFreezesFactors(t *testing.T) {
	a := newTestAssessment(t)
	f := newTestFactor(t, domain.FactorTypeGeography, domain.FactorLevelLow, 10)
	require.NoError(t, a.AddFactor(f, ScoringPolicy{}, testTime))
	require.NoError(t, a.Complete("alice", "", testTime))

	err := a.AddFactor(newTestFactor(t, domain.FactorTypeIndustry, domain.FactorLevelLow, 20), ScoringPolicy{}, testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	err = a.UpdateFactor(f.ID, domain.FactorLevelHigh, 90, "changed", ScoringPolicy{}, testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	err = a.Complete("bob", "", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	err = a.Reject("bob", "reason", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestUpdateFactorUnknownID(t *testing.T) {
	a := newTestAssessment(t)
	require.NoError(t, a.AddFactor(newTestFactor(t, domain.FactorTypeGeography, domain.FactorLevelLow, 10), ScoringPolicy{}, testTime))

	err := a.UpdateFactor(uuid.New(), domain.FactorLevelLow, 10, "nope", ScoringPolicy{}, testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestManualOverride(t *testing.T) {
	t.Run("requires justification", func(t *testing.T) {
		a := newTestAssessment(t)
		err := a.SetManualLevel(domain.RiskLevelHigh, "", testTime)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("pins score to band midpoint", func(t *testing.T) {
		a := newTestAssessment(t)
		require.NoError(t, a.SetManualLevel(domain.RiskLevelMediumHigh, "analyst judgement", testTime))
		assert.True(t, a.IsManualOverride)
		assert.Equal(t, domain.RiskLevelMediumHigh, a.OverallRiskLevel)
		assert.InDelta(t, 70.0, a.RiskScore, 0.001)
	})

	t.Run("freezes recomputation until cleared", func(t *testing.T) {
		a := newTestAssessment(t)
		require.NoError(t, a.SetManualLevel(domain.RiskLevelLow, "known good partner", testTime))

		hit := newTestFactor(t, domain.FactorTypeSanctions, domain.FactorLevelHigh, 95)
		require.NoError(t, a.AddFactor(hit, ScoringPolicy{}, testTime))
		assert.True(t, a.IsManualOverride)
		assert.Equal(t, domain.RiskLevelLow, a.OverallRiskLevel)

		require.NoError(t, a.ClearManualOverride(ScoringPolicy{}, testTime))
		assert.False(t, a.IsManualOverride)
		assert.Equal(t, domain.RiskLevelHigh, a.OverallRiskLevel)
	})

	t.Run("clearing without override fails", func(t *testing.T) {
		a := newTestAssessment(t)
		err := a.ClearManualOverride(ScoringPolicy{}, testTime)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

func TestRejectRequiresReason(t *testing.T) {
	a := newTestAssessment(t)
	err := a.Reject("alice", "", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	require.NoError(t, a.Reject("alice", "documents forged", testTime))
	assert.Equal(t, StatusRejected, a.Status)
	assert.Equal(t, "alice", a.RejectedBy)
	require.NotNil(t, a.RejectedAt)
}

func TestNotesUpdatableAfterCompletion(t *testing.T) {
	a := newTestAssessment(t)
	require.NoError(t, a.Complete("alice", "", testTime))

	later := testTime.Add(time.Hour)
	a.UpdateNotes("follow-up scheduled", later)
	assert.Equal(t, "follow-up scheduled", a.Notes)
	assert.Equal(t, later, a.UpdatedAt)
}

func TestNewRiskFactorValidation(t *testing.T) {
	_, err := NewRiskFactor(domain.FactorTypeGeography, domain.FactorLevelLow, 101, "d", "", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewRiskFactor(domain.FactorTypeGeography, domain.FactorLevelLow, -1, "d", "", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewRiskFactor(domain.FactorTypeGeography, domain.FactorLevelLow, 10, "", "", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewRiskFactor("bogus", domain.FactorLevelLow, 10, "d", "", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
