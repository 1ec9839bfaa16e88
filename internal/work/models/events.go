package models

import (
	"time"

	"casework/pkg/domain"
)

const AggregateTypeWorkItem = "work_item"

// BaseEvent carries the fields shared by all work item events and satisfies
// the outbox DomainEvent contract.
type BaseEvent struct {
	WorkItemID    domain.WorkItemID `json:"work_item_id"`
	ApplicationID domain.CaseID     `json:"application_id"`
	Timestamp     time.Time         `json:"timestamp"`
}

func (e BaseEvent) AggregateID() string   { return e.WorkItemID.String() }
func (e BaseEvent) AggregateType() string { return AggregateTypeWorkItem }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

type WorkItemCreatedEvent struct {
	BaseEvent
	WorkItemNumber string           `json:"work_item_number"`
	RiskLevel      domain.RiskLevel `json:"risk_level"`
	Priority       Priority         `json:"priority"`
}

func (e WorkItemCreatedEvent) EventType() string { return "work_item.created" }

type WorkItemAssignedEvent struct {
	BaseEvent
	AssignedTo string `json:"assigned_to"`
	AssignedBy string `json:"assigned_by"`
}

func (e WorkItemAssignedEvent) EventType() string { return "work_item.assigned" }

type WorkItemApprovedEvent struct {
	BaseEvent
	ApprovedBy string `json:"approved_by"`
}

func (e WorkItemApprovedEvent) EventType() string { return "work_item.approved" }

type WorkItemDeclinedEvent struct {
	BaseEvent
	DeclinedBy string `json:"declined_by"`
	Reason     string `json:"reason"`
}

func (e WorkItemDeclinedEvent) EventType() string { return "work_item.declined" }

type WorkItemDueForRefreshEvent struct {
	BaseEvent
	RefreshCount    int       `json:"refresh_count"`
	NextRefreshDate time.Time `json:"next_refresh_date"`
}

func (e WorkItemDueForRefreshEvent) EventType() string { return "work_item.due_for_refresh" }
