package users

import (
	"time"

	"github.com/custshop/custshop/internal/roles"
)

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Detail is a user together with assigned roles.
type Detail struct {
	User
	Roles []roles.Role `json:"roles"`
}

// ListFilter narrows user listings.
type ListFilter struct {
	Search  string
	Page    int
	PerPage int
}

// UpdateInput holds optional profile changes.
type UpdateInput struct {
	Name     *string
	IsActive *bool
}
