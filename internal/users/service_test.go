package users_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/rbac"
	"github.com/custshop/custshop/internal/roles"
	"github.com/custshop/custshop/internal/shared"
	"github.com/custshop/custshop/internal/users"
)

type memUsers struct {
	users map[int64]users.User
}

func (m *memUsers) ListUsers(_ context.Context, filter users.ListFilter, limit, offset int) ([]users.User, int, error) {
	var matched []users.User
	for id := int64(1); id <= int64(len(m.users)); id++ {
		u := m.users[id]
		if filter.Search == "" || strings.Contains(u.Email, filter.Search) || strings.Contains(u.Name, filter.Search) {
			matched = append(matched, u)
		}
	}
	total := len(matched)
	if offset > total {
		return []users.User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memUsers) GetUser(_ context.Context, id int64) (users.User, error) {
	u, ok := m.users[id]
	if !ok {
		return users.User{}, httpx.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) UpdateUser(_ context.Context, id int64, name string, active bool) (users.User, error) {
	u, ok := m.users[id]
	if !ok {
		return users.User{}, httpx.ErrNotFound
	}
	u.Name, u.IsActive = name, active
	m.users[id] = u
	return u, nil
}

type stubRoles struct {
	assigned map[int64][]int64
}

func (s *stubRoles) UserRoles(_ context.Context, userID int64) ([]roles.Role, error) {
	out := []roles.Role{}
	for _, id := range s.assigned[userID] {
		out = append(out, roles.Role{ID: id, Name: "role"})
	}
	return out, nil
}

func (s *stubRoles) SetUserRoles(ctx context.Context, _, userID int64, roleIDs []int64) ([]roles.Role, error) {
	s.assigned[userID] = roleIDs
	return s.UserRoles(ctx, userID)
}

type stubRevoker struct {
	revoked []int64
}

func (s *stubRevoker) RevokeAll(_ context.Context, userID int64) error {
	s.revoked = append(s.revoked, userID)
	return nil
}

func newService() (*users.Service, *memUsers, *stubRoles, *stubRevoker) {
	repo := &memUsers{users: map[int64]users.User{
		1: {ID: 1, Email: "admin@shop.test", Name: "Admin", IsActive: true},
		2: {ID: 2, Email: "mia@shop.test", Name: "Mia", IsActive: true},
		3: {ID: 3, Email: "leo@shop.test", Name: "Leo", IsActive: true},
	}}
	assigner := &stubRoles{assigned: map[int64][]int64{2: {4}}}
	revoker := &stubRevoker{}
	return users.NewService(repo, assigner, revoker, nil), repo, assigner, revoker
}

func TestListUsersPaginates(t *testing.T) {
	svc, _, _, _ := newService()
	ctx := context.Background()

	page, err := svc.ListUsers(ctx, users.ListFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(3), page.Items[0].ID)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	page, err = svc.ListUsers(ctx, users.ListFilter{Search: " mia "})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Mia", page.Items[0].Name)
}

func TestGetUserIncludesRoles(t *testing.T) {
	svc, _, _, _ := newService()
	detail, err := svc.GetUser(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "mia@shop.test", detail.Email)
	require.Len(t, detail.Roles, 1)
	assert.Equal(t, int64(4), detail.Roles[0].ID)

	_, err = svc.GetUser(context.Background(), 77)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestDeactivateRevokesTokens(t *testing.T) {
	svc, _, _, revoker := newService()
	ctx := context.Background()
	inactive := false

	user, err := svc.UpdateUser(ctx, 1, 2, users.UpdateInput{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.Equal(t, []int64{2}, revoker.revoked)

	_, err = svc.UpdateUser(ctx, 1, 1, users.UpdateInput{IsActive: &inactive})
	assert.ErrorIs(t, err, httpx.ErrConflict)

	blank := " "
	_, err = svc.UpdateUser(ctx, 1, 3, users.UpdateInput{Name: &blank})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUserRoutesGuards(t *testing.T) {
	svc, _, assigner, _ := newService()
	h := users.NewHandler(nil, svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/users", h.MountRoutes)

	call := func(method, path, body string, mask permissions.Permission) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		p := &shared.Principal{UserID: 1, PermissionClaim: permissions.FormatClaim(mask), HasPermissionClaim: true}
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
		res := httptest.NewRecorder()
		r.ServeHTTP(res, req)
		return res.Code
	}

	assert.Equal(t, http.StatusForbidden, call(http.MethodGet, "/users", "", permissions.UserPermissions))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/users", "", permissions.ViewUsers))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/users/2", "", permissions.ModeratorPermissions))

	assert.Equal(t, http.StatusForbidden, call(http.MethodPatch, "/users/2", `{"name":"M"}`, permissions.ModeratorPermissions))
	assert.Equal(t, http.StatusOK, call(http.MethodPatch, "/users/2", `{"name":"M"}`, permissions.EditUsers))

	assert.Equal(t, http.StatusForbidden, call(http.MethodPut, "/users/2/roles", `{"role_ids":[1]}`, permissions.EditUsers), "needs both bits")
	assert.Equal(t, http.StatusOK, call(http.MethodPut, "/users/2/roles", `{"role_ids":[1,2]}`, permissions.EditUsers|permissions.ManageRoles))
	assert.Equal(t, []int64{1, 2}, assigner.assigned[2])

	assert.Equal(t, http.StatusBadRequest, call(http.MethodPut, "/users/2/roles", `{"role_ids":[0]}`, permissions.AdminPermissions))
	assert.Equal(t, http.StatusNotFound, call(http.MethodPut, "/users/9/roles", `{"role_ids":[1]}`, permissions.AdminPermissions))
}
