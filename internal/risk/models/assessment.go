package models

import (
	"time"

	"github.com/google/uuid"

	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
)

// RiskAssessment is the aggregate root for a case's risk adjudication.
//
// Invariants:
//   - exactly one assessment per case (enforced by the store's unique case_id)
//   - RiskScore is within [0,100] and OverallRiskLevel matches the band table,
//     either computed from factors or pinned by a manual override with a
//     mandatory justification
//   - once Status is terminal, factors and score are frozen; only Notes may
//     still change
type RiskAssessment struct {
	ID                    domain.AssessmentID `json:"id"`
	CaseID                domain.CaseID       `json:"case_id"`
	PartnerID             domain.PartnerID    `json:"partner_id"`
	Status                Status              `json:"status"`
	Factors               []RiskFactor        `json:"factors"`
	RiskScore             float64             `json:"risk_score"`
	OverallRiskLevel      domain.RiskLevel    `json:"overall_risk_level"`
	IsManualOverride      bool                `json:"is_manual_override"`
	OverrideJustification string              `json:"override_justification,omitempty"`
	Notes                 string              `json:"notes,omitempty"`
	CompletedBy           string              `json:"completed_by,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	RejectedBy            string              `json:"rejected_by,omitempty"`
	RejectedAt            *time.Time          `json:"rejected_at,omitempty"`
	Version               int                 `json:"version"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// ScoringPolicy weights factor types in the aggregation. The exact numbers
// are configuration owned by compliance, not code.
type ScoringPolicy struct {
	FactorWeights map[domain.FactorType]float64
}

// WeightFor returns the configured weight for a factor type, defaulting to 1.
func (p ScoringPolicy) WeightFor(t domain.FactorType) float64 {
	if w, ok := p.FactorWeights[t]; ok && w > 0 {
		return w
	}
	return 1.0
}

// NewRiskAssessment constructs a Draft assessment with an empty factor list.
func NewRiskAssessment(id domain.AssessmentID, caseID domain.CaseID, partnerID domain.PartnerID, now time.Time) (*RiskAssessment, error) {
	if caseID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "case id is required")
	}
	if partnerID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "partner id is required")
	}
	return &RiskAssessment{
		ID:               id,
		CaseID:           caseID,
		PartnerID:        partnerID,
		Status:           StatusDraft,
		OverallRiskLevel: domain.RiskLevelLow,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// AddFactor appends a factor and recomputes the score unless a manual
// override pins it. The first factor moves a Draft assessment to InProgress.
func (a *RiskAssessment) AddFactor(factor RiskFactor, policy ScoringPolicy, now time.Time) error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "assessment is finalized; factors are frozen")
	}
	a.Factors = append(a.Factors, factor)
	if a.Status == StatusDraft {
		a.Status = StatusInProgress
	}
	a.recompute(policy)
	a.UpdatedAt = now
	return nil
}

// UpdateFactor replaces the mutable fields of an existing factor and
// recomputes.
func (a *RiskAssessment) UpdateFactor(factorID uuid.UUID, level domain.FactorLevel, score float64, description string, policy ScoringPolicy, now time.Time) error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "assessment is finalized; factors are frozen")
	}
	if !level.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid factor level: "+string(level))
	}
	if score < 0 || score > 100 {
		return dErrors.New(dErrors.CodeValidation, "factor score must be within [0,100]")
	}
	if description == "" {
		return dErrors.New(dErrors.CodeValidation, "factor description is required")
	}
	for i := range a.Factors {
		if a.Factors[i].ID == factorID {
			a.Factors[i].Level = level
			a.Factors[i].Score = score
			a.Factors[i].Description = description
			a.recompute(policy)
			a.UpdatedAt = now
			return nil
		}
	}
	return dErrors.New(dErrors.CodeNotFound, "factor not found")
}

// SetManualLevel pins the risk level to a human judgement. The score is
// forced to the band midpoint so score and level stay consistent, and
// automatic recomputation freezes until the override is cleared.
func (a *RiskAssessment) SetManualLevel(level domain.RiskLevel, justification string, now time.Time) error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "assessment is finalized")
	}
	if !level.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid risk level: "+string(level))
	}
	if justification == "" {
		return dErrors.New(dErrors.CodeValidation, "manual override requires a justification")
	}
	a.IsManualOverride = true
	a.OverrideJustification = justification
	a.OverallRiskLevel = level
	a.RiskScore = level.BandMidpoint()
	if a.Status == StatusDraft {
		a.Status = StatusInProgress
	}
	a.UpdatedAt = now
	return nil
}

// ClearManualOverride lifts the override and recomputes from factors.
func (a *RiskAssessment) ClearManualOverride(policy ScoringPolicy, now time.Time) error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "assessment is finalized")
	}
	if !a.IsManualOverride {
		return dErrors.New(dErrors.CodePreconditionFailed, "no manual override is set")
	}
	a.IsManualOverride = false
	a.OverrideJustification = ""
	a.recompute(policy)
	a.UpdatedAt = now
	return nil
}

// Complete finalizes the assessment.
func (a *RiskAssessment) Complete(assessedBy string, notes string, now time.Time) error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "assessment is already finalized")
	}
	if assessedBy == "" {
		return dErrors.New(dErrors.CodeValidation, "assessor identity is required")
	}
	a.Status = StatusCompleted
	a.CompletedBy = assessedBy
	t := now
	a.CompletedAt = &t
	if notes != "" {
		a.Notes = notes
	}
	a.UpdatedAt = now
	return nil
}

// Reject finalizes the assessment negatively. A reason is mandatory.
func (a *RiskAssessment) Reject(rejectedBy, reason string, now time.Time) error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "assessment is already finalized")
	}
	if rejectedBy == "" {
		return dErrors.New(dErrors.CodeValidation, "rejector identity is required")
	}
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "rejection requires a reason")
	}
	a.Status = StatusRejected
	a.RejectedBy = rejectedBy
	t := now
	a.RejectedAt = &t
	a.Notes = reason
	a.UpdatedAt = now
	return nil
}

// UpdateNotes is allowed in any status, terminal included: notes are
// metadata, not adjudication data.
func (a *RiskAssessment) UpdateNotes(notes string, now time.Time) {
	a.Notes = notes
	a.UpdatedAt = now
}

// recompute derives score and level from factors: a weighted average capped
// at 100, floored by the single worst factor present. One High factor (e.g.
// a sanctions hit) forces the overall level to High even when the weighted
// average is lower.
func (a *RiskAssessment) recompute(policy ScoringPolicy) {
	if a.IsManualOverride {
		return
	}
	if len(a.Factors) == 0 {
		a.RiskScore = 0
		a.OverallRiskLevel = domain.RiskLevelLow
		return
	}

	var weightedSum, totalWeight, floor float64
	for _, f := range a.Factors {
		w := policy.WeightFor(f.Type)
		weightedSum += w * f.Score
		totalWeight += w
		if f.Level.ScoreFloor() > floor {
			floor = f.Level.ScoreFloor()
		}
	}
	score := weightedSum / totalWeight
	if score > 100 {
		score = 100
	}
	if score < floor {
		score = floor
	}
	a.RiskScore = score
	a.OverallRiskLevel = domain.RiskLevelForScore(score)
}
