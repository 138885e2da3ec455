package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custshop/custshop/internal/permissions"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	assert.Nil(t, PrincipalFromContext(context.Background()))

	p := &Principal{UserID: 3, PermissionClaim: permissions.FormatClaim(permissions.UserPermissions), HasPermissionClaim: true}
	ctx := ContextWithPrincipal(context.Background(), p)
	assert.Same(t, p, PrincipalFromContext(ctx))
}

func TestPrincipalCan(t *testing.T) {
	p := &Principal{UserID: 3, PermissionClaim: permissions.FormatClaim(permissions.UserPermissions), HasPermissionClaim: true}
	assert.True(t, p.Can(permissions.ManageCart))
	assert.False(t, p.Can(permissions.ViewOrders))

	assert.False(t, (&Principal{UserID: 3}).Can(permissions.None))
	assert.False(t, (&Principal{UserID: 3, PermissionClaim: "oops", HasPermissionClaim: true}).Can(permissions.None))

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.Can(permissions.None))
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 10, 45)
	assert.Equal(t, 5, p.TotalPages)
	assert.Equal(t, 20, p.Offset())

	p = NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 0, p.TotalPages)
}
