package shared

import (
	"context"
	"time"

	"github.com/custshop/custshop/internal/permissions"
)

// Principal describes the authenticated actor of a request.
type Principal struct {
	UserID    int64
	Email     string
	TokenID   string
	ExpiresAt time.Time

	// PermissionClaim is the raw Permissions claim. HasPermissionClaim is false when the
	// token carried no such claim.
	PermissionClaim    string
	HasPermissionClaim bool
}

// Permissions parses the permission claim.
func (p *Principal) Permissions() (permissions.Permission, error) {
	if p == nil || !p.HasPermissionClaim {
		return permissions.None, permissions.ErrMalformed
	}
	return permissions.Parse(p.PermissionClaim)
}

// Can reports whether the principal's claim parses and holds every bit of required.
// Malformed or missing claims grant nothing.
func (p *Principal) Can(required permissions.Permission) bool {
	granted, err := p.Permissions()
	if err != nil {
		return false
	}
	return granted.Has(required)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. It returns nil for
// anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
