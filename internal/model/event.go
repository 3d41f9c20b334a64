package model

import "time"

// DomainEventType names a business-level change synthesized from two versions of a record.
type DomainEventType string

const (
	EventRequestSubmitted DomainEventType = "RequestSubmitted"
	EventManagerApproved  DomainEventType = "ManagerApproved"
	EventFullyApproved    DomainEventType = "FullyApproved"
	EventRejected         DomainEventType = "Rejected"
	EventOrderCreated     DomainEventType = "OrderCreated"
	EventOrderStatus      DomainEventType = "OrderStatusChanged"
)

// DomainEvent is derived, never stored.
type DomainEvent struct {
	Type       DomainEventType `json:"type"`
	Table      string          `json:"table"`
	RecordID   string          `json:"record_id"`
	Actor      string          `json:"actor,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
