package approval

import (
	"fmt"

	"opsboard/internal/model"
)

// Authorize is the role gate in front of the state machine. current may be nil for submit.
func Authorize(role string, action Action, current *model.ApprovalRequest) error {
	allowed := false
	switch action {
	case ActionSubmit:
		allowed = model.ValidRole(role)
	case ActionApproveManager:
		allowed = role == model.RoleManager
	case ActionApproveProjectManager:
		allowed = role == model.RoleProjectManager
	case ActionReject:
		switch {
		case role == model.RoleAdmin:
			allowed = true
		case current == nil:
		case PendingStage(*current) == model.StageManager:
			allowed = role == model.RoleManager
		default:
			allowed = role == model.RoleProjectManager
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %q may not %s", ErrForbidden, role, action)
	}
	return nil
}
