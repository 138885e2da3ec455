package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/crypto/bcrypt"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/shared"
	"github.com/custshop/custshop/jobs"
)

// PermissionSource resolves role grants for users.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) (permissions.Permission, error)
	AssignDefaultRole(ctx context.Context, userID int64) error
}

// TokenRegistry tracks live access tokens and password reset tokens.
type TokenRegistry interface {
	Register(ctx context.Context, tokenID string, userID int64, ttl time.Duration) error
	Active(ctx context.Context, tokenID string, userID int64) (bool, error)
	Revoke(ctx context.Context, tokenID string, userID int64) error
	RevokeAll(ctx context.Context, userID int64) error
	IssueResetToken(ctx context.Context, userID int64, ttl time.Duration) (string, error)
	ConsumeResetToken(ctx context.Context, token string) (int64, error)
}

// EmailQueue enqueues outgoing mail.
type EmailQueue interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// ServiceConfig carries tunables for the auth service.
type ServiceConfig struct {
	ResetTTL  time.Duration
	PublicURL string
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	perms  PermissionSource
	tokens *TokenIssuer
	store  TokenRegistry
	mail   EmailQueue
	cfg    ServiceConfig
}

// NewService constructs a new Service. mail may be nil, in which case reset links are
// not delivered.
func NewService(repo Repository, perms PermissionSource, tokens *TokenIssuer, store TokenRegistry, mail EmailQueue, cfg ServiceConfig) *Service {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 30 * time.Minute
	}
	return &Service{repo: repo, perms: perms, tokens: tokens, store: store, mail: mail, cfg: cfg}
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// compareDummy runs a throwaway bcrypt comparison for accounts that cannot sign in.
func compareDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("custshop-dummy-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account with the default role. If the role cannot be granted
// the account is removed again so the address stays free for a retry.
func (s *Service) Register(ctx context.Context, email, name, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, NewUser{
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}
	if err := s.perms.AssignDefaultRole(ctx, user.ID); err != nil {
		err = fmt.Errorf("assign default role: %w", err)
		if derr := s.repo.DeleteUser(context.WithoutCancel(ctx), user.ID); derr != nil {
			return nil, errors.Join(err, fmt.Errorf("remove unassigned user %d: %w", user.ID, derr))
		}
		return nil, err
	}
	return user, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			compareDummy(password)
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		compareDummy(password)
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token carrying the user's effective mask.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	mask, err := s.perms.EffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("effective permissions: %w", err)
	}
	token, err := s.tokens.Issue(user, mask)
	if err != nil {
		return nil, err
	}
	if err := s.store.Register(ctx, token.ID, user.ID, s.tokens.TTL()); err != nil {
		return nil, fmt.Errorf("register token: %w", err)
	}
	return &LoginResult{User: user, Token: token}, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, token Token, userID int64, meta SessionMeta) error {
	return s.repo.CreateSession(ctx, token.ID, userID, token.ExpiresAt, meta.IP, meta.UserAgent)
}

// Logout revokes the principal's token and removes its session record.
func (s *Service) Logout(ctx context.Context, p *shared.Principal) error {
	if p == nil || p.TokenID == "" {
		return httpx.ErrUnauthorized
	}
	if err := s.store.Revoke(ctx, p.TokenID, p.UserID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return s.repo.DeleteSession(ctx, p.TokenID)
}

// Me returns the signed-in user's profile.
func (s *Service) Me(ctx context.Context, p *shared.Principal) (*Profile, error) {
	if p == nil {
		return nil, httpx.ErrUnauthorized
	}
	user, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	names := []string{}
	if mask, err := p.Permissions(); err == nil {
		names = mask.Names()
	}
	return &Profile{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Permissions: names,
		ExpiresAt:   p.ExpiresAt,
	}, nil
}

// ForgotPassword issues a reset token and enqueues the reset email. Unknown or
// inactive accounts are silently ignored.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}
	token, err := s.store.IssueResetToken(ctx, user.ID, s.cfg.ResetTTL)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	if s.mail == nil {
		return nil
	}
	_, err = s.mail.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      user.Email,
		Subject: "Reset your CustShop password",
		Body:    resetBody(s.cfg.PublicURL, token, s.cfg.ResetTTL),
	})
	if err != nil {
		return fmt.Errorf("enqueue reset email: %w", err)
	}
	return nil
}

func resetBody(publicURL, token string, ttl time.Duration) string {
	link := strings.TrimRight(publicURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
	return fmt.Sprintf("Follow this link to choose a new password:\n\n%s\n\nThe link expires in %s.\n", link, ttl)
}

// ResetPassword consumes a reset token and sets a new password. Every live token of the
// user is revoked.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	userID, err := s.store.ConsumeResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrResetTokenInvalid) {
			return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	if err := s.store.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	return s.repo.DeleteUserSessions(ctx, userID)
}
