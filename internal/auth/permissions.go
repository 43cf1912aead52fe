package auth

const (
	PermQueuesManage = "queues.manage"
	PermQueuesView   = "queues.view"
)

const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
)

var rolePermissions = map[string][]string{
	RoleAdmin:      {PermQueuesManage, PermQueuesView},
	RoleSupervisor: {PermQueuesView},
}

// ValidRole reports whether role is known
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission checks the static role table
func HasPermission(role, perm string) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Permissions returns the permissions granted to role
func Permissions(role string) []string {
	return append([]string(nil), rolePermissions[role]...)
}
