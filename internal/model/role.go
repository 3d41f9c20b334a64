package model

// Role labels carried in the JWT "role" claim. Each one has its own dashboard.
const (
	RoleAdmin          = "admin"
	RoleManager        = "manager"
	RoleProjectManager = "project_manager"
	RoleEmployee       = "employee"
	RoleProcurement    = "procurement"
)

// Roles lists every dashboard role.
var Roles = []string{RoleAdmin, RoleManager, RoleProjectManager, RoleEmployee, RoleProcurement}

// ValidRole reports whether role is one of Roles.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}
