package approval

import (
	"time"

	"opsboard/internal/model"
)

// Diff derives the domain events implied by moving from prev to next. prev is nil when
// the record was not known before; it is then compared against a freshly submitted request.
func Diff(prev *model.ApprovalRequest, next model.ApprovalRequest) []model.DomainEvent {
	var events []model.DomainEvent
	id := next.ID.String()

	base := model.ApprovalRequest{}
	if prev == nil {
		events = append(events, model.DomainEvent{
			Type:       model.EventRequestSubmitted,
			Table:      next.TableName(),
			RecordID:   id,
			Actor:      next.RequestedBy,
			Detail:     string(next.Kind),
			OccurredAt: next.CreatedAt,
		})
	} else {
		base = *prev
	}

	if !base.ManagerApproved && next.ManagerApproved {
		events = append(events, model.DomainEvent{
			Type:       model.EventManagerApproved,
			Table:      next.TableName(),
			RecordID:   id,
			Actor:      deref(next.ManagerApprovedBy),
			OccurredAt: derefTime(next.ManagerApprovedAt, next.UpdatedAt),
		})
	}
	if !base.ProjectManagerApproved && next.ProjectManagerApproved {
		events = append(events, model.DomainEvent{
			Type:       model.EventFullyApproved,
			Table:      next.TableName(),
			RecordID:   id,
			Actor:      deref(next.ProjectManagerApprovedBy),
			OccurredAt: derefTime(next.ProjectManagerApprovedAt, next.UpdatedAt),
		})
	}
	if base.RejectedAt == nil && next.RejectedAt != nil {
		events = append(events, model.DomainEvent{
			Type:       model.EventRejected,
			Table:      next.TableName(),
			RecordID:   id,
			Actor:      deref(next.RejectedBy),
			Detail:     next.RejectionReason,
			OccurredAt: *next.RejectedAt,
		})
	}
	return events
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}
