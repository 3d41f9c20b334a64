package approval

import (
	"opsboard/internal/model"
)

// Guard returns the column values a row must still hold for action to produce next.
// The store applies them as the WHERE clause of a single conditional UPDATE; zero
// affected rows means another actor got there first.
func Guard(action Action, next model.ApprovalRequest) map[string]any {
	pending := map[string]any{
		"status":      string(model.StatusPending),
		"rejected_at": nil,
	}
	switch action {
	case ActionApproveManager:
		pending["manager_approved"] = false
	case ActionApproveProjectManager:
		pending["manager_approved"] = true
		pending["project_manager_approved"] = false
	case ActionReject:
		// the rejection stage was computed from this flag
		pending["manager_approved"] = next.RejectedStage == model.StageProjectManager
	}
	return pending
}

// Changes returns the columns action writes, taken from the already computed next record.
// Status is always written together with the flag that determines it.
func Changes(action Action, next model.ApprovalRequest) map[string]any {
	changes := map[string]any{
		"status":     string(next.Status),
		"updated_at": next.UpdatedAt,
	}
	switch action {
	case ActionApproveManager:
		changes["manager_approved"] = next.ManagerApproved
		changes["manager_approved_by"] = next.ManagerApprovedBy
		changes["manager_approved_at"] = next.ManagerApprovedAt
	case ActionApproveProjectManager:
		changes["project_manager_approved"] = next.ProjectManagerApproved
		changes["project_manager_approved_by"] = next.ProjectManagerApprovedBy
		changes["project_manager_approved_at"] = next.ProjectManagerApprovedAt
	case ActionReject:
		changes["rejected_by"] = next.RejectedBy
		changes["rejected_at"] = next.RejectedAt
		changes["rejected_stage"] = next.RejectedStage
		changes["rejection_reason"] = next.RejectionReason
	}
	return changes
}
