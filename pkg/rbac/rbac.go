package rbac

// Permission constants.
const (
	PermissionCreateMilestone = "milestone:create"
	PermissionUpdateMilestone = "milestone:update"
	PermissionDeleteMilestone = "milestone:delete"
	PermissionCreateTask      = "task:create"
	PermissionUpdateTask      = "task:update"
	PermissionDeleteTask      = "task:delete"
	PermissionComment         = "comment:create"
	PermissionModerate        = "platform:moderate"
)

// Role constants.
const (
	RoleStudent = "student"
	RoleMentor  = "mentor"
	RoleAdmin   = "admin"
)

var rolePermissions = map[string][]string{
	RoleStudent: {
		PermissionCreateMilestone,
		PermissionUpdateMilestone,
		PermissionDeleteMilestone,
		PermissionCreateTask,
		PermissionUpdateTask,
		PermissionDeleteTask,
		PermissionComment,
	},
	RoleMentor: {
		PermissionCreateMilestone,
		PermissionUpdateMilestone,
		PermissionDeleteMilestone,
		PermissionCreateTask,
		PermissionUpdateTask,
		PermissionDeleteTask,
		PermissionComment,
	},
	RoleAdmin: {
		PermissionCreateMilestone,
		PermissionUpdateMilestone,
		PermissionDeleteMilestone,
		PermissionCreateTask,
		PermissionUpdateTask,
		PermissionDeleteTask,
		PermissionComment,
		PermissionModerate,
	},
}

// HasPermission checks whether a role grants the given permission.
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission returns an error instead of a boolean, for handler use.
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError marks a role/permission mismatch.
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
