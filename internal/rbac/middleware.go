package rbac

import (
	"log/slog"
	"net/http"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/shared"
)

// DecisionObserver is told the outcome of every guarded request.
type DecisionObserver interface {
	ObserveDecision(outcome string)
}

// Middleware wires authorization guards for HTTP handlers.
type Middleware struct {
	Logger   *slog.Logger
	Observer DecisionObserver
}

// Require ensures the current principal holds every permission in required.
func (m Middleware) Require(required permissions.Permission) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request) Decision {
		return Decide(shared.PrincipalFromContext(r.Context()), required)
	})
}

// RequireAny ensures the current principal holds at least one permission in required.
func (m Middleware) RequireAny(required permissions.Permission) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request) Decision {
		return DecideAny(shared.PrincipalFromContext(r.Context()), required)
	})
}

// RequireAuthenticated only checks that an identity is present.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request) Decision {
		p := shared.PrincipalFromContext(r.Context())
		if p == nil || p.UserID == 0 {
			return Decision{Outcome: Unauthenticated, Err: ErrUnauthenticated}
		}
		return Decision{Outcome: Allow}
	})
}

func (m Middleware) guard(decide func(*http.Request) Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := decide(r)
			if m.Observer != nil {
				m.Observer.ObserveDecision(d.Outcome.String())
			}
			if d.Allowed() {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Debug("rbac denied",
					slog.String("path", r.URL.Path),
					slog.String("outcome", d.Outcome.String()),
					slog.String("required", d.Required.String()),
					slog.Any("reason", d.Err),
				)
			}
			status := d.Outcome.HTTPStatus()
			if status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer realm="custshop"`)
			}
			httpx.Problem(w, status, http.StatusText(status), "")
		})
	}
}
