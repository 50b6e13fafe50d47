package auth

import "github.com/hugh/issueflow/internal/database/models"

const (
	PermAll           = "*"
	PermProfileRead   = "profile:read"
	PermProfileWrite  = "profile:write"
	PermOrgRead       = "organizations:read"
	PermOrgWrite      = "organizations:write"
	PermMembersManage = "members:manage"
	PermFeedbackRead  = "feedback:read"
	PermFeedbackWrite = "feedback:write"
	PermUsersManage   = "users:manage"
)

var rolePermissions = map[string][]string{
	models.RoleAdmin: {
		PermAll,
		PermUsersManage,
	},
	models.RoleMember: {
		PermProfileRead,
		PermProfileWrite,
		PermOrgRead,
		PermOrgWrite,
		PermMembersManage,
		PermFeedbackRead,
		PermFeedbackWrite,
	},
}

// PermissionsForRole returns the permission set baked into access tokens for
// a system-wide role. Unknown roles get nothing.
func PermissionsForRole(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
