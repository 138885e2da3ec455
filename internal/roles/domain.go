package roles

import (
	"errors"
	"time"

	"github.com/custshop/custshop/internal/permissions"
)

// Built-in role names.
const (
	RoleAdmin     = "Admin"
	RoleModerator = "Moderator"
	RoleCreator   = "Creator"
	RoleUser      = "User"
)

// DefaultRole is assigned to every newly registered account.
const DefaultRole = RoleUser

// ErrSystemRole is returned when a change would alter a built-in role's name or mask.
var ErrSystemRole = errors.New("system role cannot be modified")

// Role is a named permission mask.
type Role struct {
	ID          int64                  `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Permissions permissions.Permission `json:"permissions"`
	Mask        uint32                 `json:"mask"`
	IsSystem    bool                   `json:"is_system"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// CreateInput holds the fields for a new role.
type CreateInput struct {
	Name        string
	Description string
	Permissions permissions.Permission
}

// UpdateInput holds optional role changes.
type UpdateInput struct {
	Name        *string
	Description *string
	Permissions *permissions.Permission
}

// SystemRole describes a seeded role.
type SystemRole struct {
	Name        string
	Description string
	Permissions permissions.Permission
}

// SystemRoles lists the built-in roles in ascending privilege.
func SystemRoles() []SystemRole {
	return []SystemRole{
		{Name: RoleUser, Description: "Shopper: browse, design and buy", Permissions: permissions.UserPermissions},
		{Name: RoleCreator, Description: "Publishes approved designs", Permissions: permissions.CreatorPermissions},
		{Name: RoleModerator, Description: "Reviews designs and manages tags", Permissions: permissions.ModeratorPermissions},
		{Name: RoleAdmin, Description: "Full access", Permissions: permissions.AdminPermissions},
	}
}
