package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/custshop/custshop/internal/shared"
)

// Authenticator resolves bearer tokens into request principals.
type Authenticator struct {
	tokens *TokenIssuer
	store  TokenRegistry
	logger *slog.Logger
}

// NewAuthenticator constructs the bearer middleware.
func NewAuthenticator(tokens *TokenIssuer, store TokenRegistry, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{tokens: tokens, store: store, logger: logger}
}

// Middleware attaches a principal for valid, unrevoked bearer tokens. Requests without
// a usable token continue anonymously; authorization guards decide what that means.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.tokens.Verify(raw)
		if err != nil {
			a.logger.Debug("bearer token rejected", slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		principal, err := claims.Principal()
		if err != nil {
			a.logger.Debug("bearer token rejected", slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		active, err := a.store.Active(r.Context(), principal.TokenID, principal.UserID)
		if err != nil {
			a.logger.Warn("token store lookup failed", slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		if !active {
			a.logger.Debug("bearer token revoked", slog.String("jti", principal.TokenID))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
