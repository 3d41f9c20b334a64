// Package approval holds the two-stage approval state machine. Every function is pure:
// it takes the current record and returns the next one, and never touches storage.
package approval

import (
	"strings"
	"time"
	"unicode/utf8"

	"opsboard/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is a transition that can be attempted on a request.
type Action string

const (
	ActionSubmit                Action = "submit"
	ActionApproveManager        Action = "approve_manager"
	ActionApproveProjectManager Action = "approve_project_manager"
	ActionReject                Action = "reject"
)

// Free-text limits, in characters. Both values travel in every change notification for
// the row, and postgres caps a notification payload at 8000 bytes.
const (
	MaxTitleLength  = 255
	MaxReasonLength = 500
)

// SubmitPayload is what a requester fills in.
type SubmitPayload struct {
	Kind              model.Kind
	Title             string
	InventoryItemID   *uuid.UUID
	ProcurementLineID *uuid.UUID
	Quantity          int
	UnitPrice         decimal.Decimal
}

// Submit creates a new pending request with both approval flags cleared.
func Submit(requester string, p SubmitPayload, now time.Time) (model.ApprovalRequest, error) {
	requester = strings.TrimSpace(requester)
	title := strings.TrimSpace(p.Title)
	switch {
	case requester == "":
		return model.ApprovalRequest{}, &ValidationError{Field: "requested_by", Reason: "is required"}
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return model.ApprovalRequest{}, &ValidationError{Field: "title", Reason: "must be at most 255 characters"}
	case !p.Kind.Valid():
		return model.ApprovalRequest{}, &ValidationError{Field: "kind", Reason: "must be inventory or procurement"}
	case p.Quantity <= 0:
		return model.ApprovalRequest{}, &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	case p.UnitPrice.IsNegative():
		return model.ApprovalRequest{}, &ValidationError{Field: "unit_price", Reason: "must not be negative"}
	case p.Kind == model.KindInventory && p.ProcurementLineID != nil:
		return model.ApprovalRequest{}, &ValidationError{Field: "procurement_line_id", Reason: "not allowed on inventory requests"}
	case p.Kind == model.KindProcurement && p.InventoryItemID != nil:
		return model.ApprovalRequest{}, &ValidationError{Field: "inventory_item_id", Reason: "not allowed on procurement requests"}
	}

	ts := now.UTC().Truncate(time.Microsecond)
	r := model.ApprovalRequest{
		ID:                uuid.New(),
		Kind:              p.Kind,
		Title:             title,
		InventoryItemID:   p.InventoryItemID,
		ProcurementLineID: p.ProcurementLineID,
		RequestedBy:       requester,
		Quantity:          p.Quantity,
		UnitPrice:         p.UnitPrice,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}
	r.Normalize()
	return r, nil
}

// ApproveAsManager records the first-stage approval. The request stays pending.
func ApproveAsManager(r model.ApprovalRequest, actor string, now time.Time) (model.ApprovalRequest, error) {
	if err := requireActor(actor); err != nil {
		return model.ApprovalRequest{}, err
	}
	status := currentStatus(r)
	if status.Terminal() {
		return model.ApprovalRequest{}, &TransitionError{Action: ActionApproveManager, From: status, Reason: "request is already " + string(status)}
	}
	if r.ManagerApproved {
		return model.ApprovalRequest{}, &TransitionError{Action: ActionApproveManager, From: status, Reason: "manager has already approved"}
	}

	next := r
	at := model.NextVersion(r.UpdatedAt, now)
	next.ManagerApproved = true
	next.ManagerApprovedBy = &actor
	next.ManagerApprovedAt = &at
	next.UpdatedAt = at
	next.Normalize()
	return next, nil
}

// ApproveAsProjectManager records the second-stage approval, which makes the request approved.
func ApproveAsProjectManager(r model.ApprovalRequest, actor string, now time.Time) (model.ApprovalRequest, error) {
	if err := requireActor(actor); err != nil {
		return model.ApprovalRequest{}, err
	}
	status := currentStatus(r)
	if status.Terminal() {
		return model.ApprovalRequest{}, &TransitionError{Action: ActionApproveProjectManager, From: status, Reason: "request is already " + string(status)}
	}
	if !r.ManagerApproved {
		return model.ApprovalRequest{}, &TransitionError{Action: ActionApproveProjectManager, From: status, Reason: "manager approval is required first"}
	}
	if r.ProjectManagerApproved {
		return model.ApprovalRequest{}, &TransitionError{Action: ActionApproveProjectManager, From: status, Reason: "project manager has already approved"}
	}

	next := r
	at := model.NextVersion(r.UpdatedAt, now)
	next.ProjectManagerApproved = true
	next.ProjectManagerApprovedBy = &actor
	next.ProjectManagerApprovedAt = &at
	next.UpdatedAt = at
	next.Normalize()
	return next, nil
}

// Reject freezes a pending request. The approval flags are left as they were so the
// record still shows how far it got.
func Reject(r model.ApprovalRequest, actor, reason string, now time.Time) (model.ApprovalRequest, error) {
	if err := requireActor(actor); err != nil {
		return model.ApprovalRequest{}, err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return model.ApprovalRequest{}, &ValidationError{Field: "reason", Reason: "must be at most 500 characters"}
	}
	status := currentStatus(r)
	if status.Terminal() {
		return model.ApprovalRequest{}, &TransitionError{Action: ActionReject, From: status, Reason: "request is already " + string(status)}
	}

	next := r
	at := model.NextVersion(r.UpdatedAt, now)
	next.RejectedBy = &actor
	next.RejectedAt = &at
	next.RejectedStage = PendingStage(r)
	next.RejectionReason = reason
	next.UpdatedAt = at
	next.Normalize()
	return next, nil
}

// PendingStage names the stage a non-terminal request is waiting on.
func PendingStage(r model.ApprovalRequest) string {
	if r.ManagerApproved {
		return model.StageProjectManager
	}
	return model.StageManager
}

// Apply runs action against r. It is the entry point used by the command service.
func Apply(action Action, r model.ApprovalRequest, actor, reason string, now time.Time) (model.ApprovalRequest, error) {
	switch action {
	case ActionApproveManager:
		return ApproveAsManager(r, actor, now)
	case ActionApproveProjectManager:
		return ApproveAsProjectManager(r, actor, now)
	case ActionReject:
		return Reject(r, actor, reason, now)
	default:
		return model.ApprovalRequest{}, &TransitionError{Action: action, From: currentStatus(r), Reason: "unknown action"}
	}
}

func currentStatus(r model.ApprovalRequest) model.Status {
	return model.DeriveStatus(r.ManagerApproved, r.ProjectManagerApproved, r.RejectedAt != nil)
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return &ValidationError{Field: "actor", Reason: "is required"}
	}
	return nil
}
