package users

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/roles"
	"github.com/custshop/custshop/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	UpdateUser(ctx context.Context, id int64, name string, active bool) (User, error)
}

// RoleAssigner reads and replaces role assignments.
type RoleAssigner interface {
	UserRoles(ctx context.Context, userID int64) ([]roles.Role, error)
	SetUserRoles(ctx context.Context, actorID, userID int64, roleIDs []int64) ([]roles.Role, error)
}

// TokenRevoker ends every live session of a user.
type TokenRevoker interface {
	RevokeAll(ctx context.Context, userID int64) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	roles  RoleAssigner
	tokens TokenRevoker
	audit  shared.AuditRecorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleAssigner, tokens TokenRevoker, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, roles: roles, tokens: tokens, audit: audit}
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) (shared.Page[User], error) {
	filter.Search = strings.TrimSpace(filter.Search)
	pagination := shared.NewPagination(filter.Page, filter.PerPage, 0)
	items, total, err := s.repo.ListUsers(ctx, filter, pagination.PerPage, pagination.Offset())
	if err != nil {
		return shared.Page[User]{}, err
	}
	return shared.Page[User]{Items: items, Pagination: shared.NewPagination(pagination.Page, pagination.PerPage, total)}, nil
}

// GetUser returns a user with its roles.
func (s *Service) GetUser(ctx context.Context, id int64) (Detail, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	assigned, err := s.roles.UserRoles(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{User: user, Roles: assigned}, nil
}

// UpdateUser applies profile changes. Deactivating an account revokes its tokens; an
// actor cannot deactivate their own account.
func (s *Service) UpdateUser(ctx context.Context, actorID, id int64, input UpdateInput) (User, error) {
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	name, active := current.Name, current.IsActive
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if name == "" {
			return User{}, fmt.Errorf("%w: name required", httpx.ErrValidation)
		}
	}
	if input.IsActive != nil {
		active = *input.IsActive
	}
	if !active && current.IsActive && actorID == id {
		return User{}, fmt.Errorf("%w: cannot deactivate your own account", httpx.ErrConflict)
	}
	user, err := s.repo.UpdateUser(ctx, id, name, active)
	if err != nil {
		return User{}, err
	}
	if current.IsActive && !user.IsActive && s.tokens != nil {
		if err := s.tokens.RevokeAll(ctx, id); err != nil {
			return User{}, fmt.Errorf("revoke tokens: %w", err)
		}
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "user.update",
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"name": user.Name, "is_active": user.IsActive},
	})
	return user, nil
}

// SetRoles replaces a user's role assignments.
func (s *Service) SetRoles(ctx context.Context, actorID, id int64, roleIDs []int64) ([]roles.Role, error) {
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return nil, err
	}
	return s.roles.SetUserRoles(ctx, actorID, id, roleIDs)
}
