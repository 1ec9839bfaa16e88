package models

import (
	"time"

	"casework/pkg/domain"
)

// AggregateTypeRiskAssessment tags outbox rows raised by this aggregate.
const AggregateTypeRiskAssessment = "risk_assessment"

// BaseEvent carries the fields shared by all assessment events.
type BaseEvent struct {
	AssessmentID domain.AssessmentID `json:"assessment_id"`
	CaseID       domain.CaseID       `json:"case_id"`
	Timestamp    time.Time           `json:"occurred_at"`
}

func (e BaseEvent) AggregateID() string   { return e.AssessmentID.String() }
func (e BaseEvent) AggregateType() string { return AggregateTypeRiskAssessment }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// AssessmentCreatedEvent announces a new assessment, letting projections
// bootstrap their view of the case.
type AssessmentCreatedEvent struct {
	BaseEvent
	PartnerID domain.PartnerID `json:"partner_id"`
}

func (AssessmentCreatedEvent) EventType() string { return "risk_assessment.created" }

// AssessmentCompletedEvent carries the adjudicated level and score; the work
// queue mirrors the level onto the case's work item.
type AssessmentCompletedEvent struct {
	BaseEvent
	RiskLevel  domain.RiskLevel `json:"risk_level"`
	RiskScore  float64          `json:"risk_score"`
	AssessedBy string           `json:"assessed_by"`
}

func (AssessmentCompletedEvent) EventType() string { return "risk_assessment.completed" }

// AssessmentRejectedEvent announces a negative finalization.
type AssessmentRejectedEvent struct {
	BaseEvent
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason"`
}

func (AssessmentRejectedEvent) EventType() string { return "risk_assessment.rejected" }
