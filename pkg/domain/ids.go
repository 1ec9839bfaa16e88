// Package domain holds typed identifiers and shared enums used across the
// risk and work engines. Constructing IDs through Parse* at trust boundaries
// enforces validity; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "casework/pkg/domain-errors"
)

// AssessmentID identifies a RiskAssessment aggregate.
type AssessmentID uuid.UUID

// WorkItemID identifies a WorkItem aggregate.
type WorkItemID uuid.UUID

// EventID identifies a domain event; consumers use it as the idempotency key.
type EventID uuid.UUID

// CaseID is the external onboarding case reference (e.g. "C-100"). It is
// assigned by the intake system, not by this service, so it stays opaque.
type CaseID string

// PartnerID is the external partner organization reference.
type PartnerID string

func NewAssessmentID() AssessmentID { return AssessmentID(uuid.New()) }
func NewWorkItemID() WorkItemID     { return WorkItemID(uuid.New()) }
func NewEventID() EventID           { return EventID(uuid.New()) }

func (id AssessmentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AssessmentID) String() string { return uuid.UUID(id).String() }

func (id WorkItemID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id WorkItemID) String() string { return uuid.UUID(id).String() }

func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id EventID) String() string { return uuid.UUID(id).String() }

// ParseAssessmentID constructs an AssessmentID from external input.
func ParseAssessmentID(s string) (AssessmentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AssessmentID{}, dErrors.New(dErrors.CodeBadRequest, "invalid assessment id")
	}
	return AssessmentID(u), nil
}

// ParseWorkItemID constructs a WorkItemID from external input.
func ParseWorkItemID(s string) (WorkItemID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return WorkItemID{}, dErrors.New(dErrors.CodeBadRequest, "invalid work item id")
	}
	return WorkItemID(u), nil
}

// ParseEventID constructs an EventID from external input.
func ParseEventID(s string) (EventID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, dErrors.New(dErrors.CodeBadRequest, "invalid event id")
	}
	return EventID(u), nil
}
