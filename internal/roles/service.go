package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/shared"
)

// TokenRevoker ends every live session of a user.
type TokenRevoker interface {
	RevokeAll(ctx context.Context, userID int64) error
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	tokens TokenRevoker
	audit  shared.AuditRecorder
}

// NewService builds Service instance. tokens may be nil, in which case narrowed
// permissions only take effect at the next login.
func NewService(repo RepositoryPort, tokens TokenRevoker, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, tokens: tokens, audit: audit}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole returns a single role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListPermissions returns every defined capability.
func (s *Service) ListPermissions() []permissions.Definition {
	return permissions.All()
}

func validateMask(mask permissions.Permission) error {
	if !mask.Valid() {
		return fmt.Errorf("%w: permissions contain undefined bits", httpx.ErrValidation)
	}
	return nil
}

// CreateRole validates and inserts a custom role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, input CreateInput) (Role, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if input.Name == "" {
		return Role{}, fmt.Errorf("%w: name required", httpx.ErrValidation)
	}
	if err := validateMask(input.Permissions); err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, input)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.create", role.ID, map[string]any{"name": role.Name, "permissions": role.Permissions.Names()})
	return role, nil
}

// UpdateRole applies changes. Built-in roles only accept a new description.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, input UpdateInput) (Role, error) {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	name, description, mask := current.Name, current.Description, current.Permissions
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: name required", httpx.ErrValidation)
		}
	}
	if input.Description != nil {
		description = strings.TrimSpace(*input.Description)
	}
	if input.Permissions != nil {
		mask = *input.Permissions
		if err := validateMask(mask); err != nil {
			return Role{}, err
		}
	}
	if current.IsSystem && (name != current.Name || mask != current.Permissions) {
		return Role{}, fmt.Errorf("%w: %w", httpx.ErrConflict, ErrSystemRole)
	}
	before, err := s.holderMasks(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.UpdateRole(ctx, id, name, description, mask)
	if err != nil {
		return Role{}, err
	}
	if err := s.revokeNarrowed(ctx, before); err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.update", id, map[string]any{
		"before": current.Permissions.Names(),
		"after":  role.Permissions.Names(),
		"name":   role.Name,
	})
	return role, nil
}

// DeleteRole removes a custom role.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return fmt.Errorf("%w: %w", httpx.ErrConflict, ErrSystemRole)
	}
	before, err := s.holderMasks(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	if err := s.revokeNarrowed(ctx, before); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.delete", id, map[string]any{"name": current.Name})
	return nil
}

// EnsureSystemRoles seeds the built-in roles and resets their masks.
func (s *Service) EnsureSystemRoles(ctx context.Context) error {
	for _, role := range SystemRoles() {
		if err := s.repo.UpsertSystemRole(ctx, role); err != nil {
			return fmt.Errorf("seed role %s: %w", role.Name, err)
		}
	}
	return nil
}

// AssignDefaultRole gives a new account the default role.
func (s *Service) AssignDefaultRole(ctx context.Context, userID int64) error {
	role, err := s.repo.GetRoleByName(ctx, DefaultRole)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return fmt.Errorf("default role %q not seeded", DefaultRole)
		}
		return err
	}
	return s.repo.ReplaceUserRoles(ctx, userID, []int64{role.ID}, nil)
}

// EffectivePermissions is the OR of the masks of all roles assigned to userID.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) (permissions.Permission, error) {
	return s.repo.UserMask(ctx, userID)
}

// UserRoles lists roles assigned to a user.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.UserRoles(ctx, userID)
}

// SetUserRoles replaces a user's role assignments with roleIDs, attaching and detaching
// only the difference.
func (s *Service) SetUserRoles(ctx context.Context, actorID, userID int64, roleIDs []int64) ([]Role, error) {
	keep := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		if _, err := s.repo.GetRole(ctx, id); err != nil {
			if errors.Is(err, httpx.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown role %d", httpx.ErrValidation, id)
			}
			return nil, err
		}
		keep[id] = struct{}{}
	}
	current, err := s.repo.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	existing := make(map[int64]struct{}, len(current))
	for _, role := range current {
		existing[role.ID] = struct{}{}
	}
	var attach, detach []int64
	for id := range keep {
		if _, ok := existing[id]; !ok {
			attach = append(attach, id)
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			detach = append(detach, id)
		}
	}
	sort.Slice(attach, func(i, j int) bool { return attach[i] < attach[j] })
	sort.Slice(detach, func(i, j int) bool { return detach[i] < detach[j] })
	if len(attach) == 0 && len(detach) == 0 {
		return current, nil
	}
	before, err := s.repo.UserMask(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceUserRoles(ctx, userID, attach, detach); err != nil {
		return nil, err
	}
	if err := s.revokeNarrowed(ctx, map[int64]permissions.Permission{userID: before}); err != nil {
		return nil, err
	}
	s.recordEntity(ctx, actorID, "user.roles", "user", userID, map[string]any{"attached": attach, "detached": detach})
	return s.repo.UserRoles(ctx, userID)
}

// holderMasks snapshots the effective mask of every user holding roleID.
func (s *Service) holderMasks(ctx context.Context, roleID int64) (map[int64]permissions.Permission, error) {
	holders, err := s.repo.RoleHolders(ctx, roleID)
	if err != nil {
		return nil, err
	}
	masks := make(map[int64]permissions.Permission, len(holders))
	for _, userID := range holders {
		mask, err := s.repo.UserMask(ctx, userID)
		if err != nil {
			return nil, err
		}
		masks[userID] = mask
	}
	return masks, nil
}

// revokeNarrowed ends the sessions of users who lost at least one capability
// compared to before. Tokens embed the login-time mask, so they must not outlive it.
func (s *Service) revokeNarrowed(ctx context.Context, before map[int64]permissions.Permission) error {
	if s.tokens == nil {
		return nil
	}
	users := make([]int64, 0, len(before))
	for userID := range before {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	for _, userID := range users {
		after, err := s.repo.UserMask(ctx, userID)
		if err != nil {
			return err
		}
		if before[userID]&^after == 0 {
			continue
		}
		if err := s.tokens.RevokeAll(ctx, userID); err != nil {
			return fmt.Errorf("revoke tokens: %w", err)
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	s.recordEntity(ctx, actorID, action, "role", roleID, meta)
}

func (s *Service) recordEntity(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
