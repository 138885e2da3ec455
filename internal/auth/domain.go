package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser holds the fields required to create an account.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
}

// SessionMeta describes the client that signed in.
type SessionMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is returned after successful sign-in.
type LoginResult struct {
	User  *User
	Token Token
}

// Profile is the view of the signed-in user.
type Profile struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}
