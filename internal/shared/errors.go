package shared

import "errors"

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenRevoked occurs when a token id is no longer registered.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrResetTokenInvalid occurs when a password reset token is unknown or expired.
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")
)
