// Package rbac decides whether a request's principal may run a protected operation.
package rbac

import (
	"errors"
	"net/http"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/shared"
)

// Outcome is the result of an authorization check.
type Outcome int

const (
	// Allow lets the request through to the handler.
	Allow Outcome = iota
	// Unauthenticated means there is no valid identity.
	Unauthenticated
	// Forbidden means the identity exists but does not satisfy the requirement.
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the outcome to the status written by the middleware.
func (o Outcome) HTTPStatus() int {
	switch o {
	case Allow:
		return http.StatusOK
	case Unauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}

// Denial reasons.
var (
	ErrUnauthenticated        = errors.New("rbac: no authenticated identity")
	ErrMissingClaim           = errors.New("rbac: permission claim missing")
	ErrMalformedClaim         = errors.New("rbac: permission claim malformed")
	ErrInsufficientPermission = errors.New("rbac: insufficient permission")
)

// Decision carries the outcome and, for denials, the reason.
type Decision struct {
	Outcome  Outcome
	Err      error
	Granted  permissions.Permission
	Required permissions.Permission
}

// Allowed reports whether the decision is Allow.
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// Decide requires the principal to hold every bit of required.
func Decide(p *shared.Principal, required permissions.Permission) Decision {
	return decide(p, required, permissions.Permission.Has)
}

// DecideAny requires the principal to hold at least one bit of required.
func DecideAny(p *shared.Principal, required permissions.Permission) Decision {
	return decide(p, required, permissions.Permission.HasAny)
}

func decide(p *shared.Principal, required permissions.Permission, match func(permissions.Permission, permissions.Permission) bool) Decision {
	d := Decision{Required: required}
	if p == nil || p.UserID == 0 {
		d.Outcome, d.Err = Unauthenticated, ErrUnauthenticated
		return d
	}
	if !p.HasPermissionClaim {
		d.Outcome, d.Err = Forbidden, ErrMissingClaim
		return d
	}
	granted, err := permissions.Parse(p.PermissionClaim)
	if err != nil {
		d.Outcome, d.Err = Forbidden, ErrMalformedClaim
		return d
	}
	d.Granted = granted
	if !match(granted, required) {
		d.Outcome, d.Err = Forbidden, ErrInsufficientPermission
		return d
	}
	d.Outcome = Allow
	return d
}
