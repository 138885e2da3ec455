package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/shared"
)

// ErrInvalidToken wraps every token verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload. Permissions carries the decimal mask as a JSON string and
// is kept raw; the authorization check interprets it.
type Claims struct {
	Email       string          `json:"email,omitempty"`
	Permissions json.RawMessage `json:"Permissions,omitempty"`
	jwt.RegisteredClaims
}

// Token is a signed access token.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
	Mask      permissions.Permission
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs an issuer.
func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// TTL returns the token lifetime.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for user carrying mask as the Permissions claim.
func (i *TokenIssuer) Issue(user *User, mask permissions.Permission) (Token, error) {
	now := i.now().UTC()
	expires := now.Add(i.ttl)
	id := uuid.NewString()
	claim, err := json.Marshal(permissions.FormatClaim(mask))
	if err != nil {
		return Token{}, err
	}
	claims := Claims{
		Email:       user.Email,
		Permissions: claim,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ID: id, ExpiresAt: expires, Mask: mask}, nil
}

// Verify checks signature, algorithm, issuer and expiry.
func (i *TokenIssuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	return claims, nil
}

// Principal converts verified claims into the request principal.
func (c *Claims) Principal() (*shared.Principal, error) {
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	p := &shared.Principal{
		UserID:  userID,
		Email:   c.Email,
		TokenID: c.ID,
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	p.PermissionClaim, p.HasPermissionClaim = rawClaim(c.Permissions)
	return p, nil
}

// rawClaim returns the claim text. JSON strings are unquoted; other JSON values are
// passed through as written and left to the permission parser.
func rawClaim(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw), true
		}
		return s, true
	}
	return string(raw), true
}
