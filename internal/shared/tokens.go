package shared

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenStore tracks issued access tokens and password reset tokens in Redis.
type TokenStore struct {
	client *redis.Client
	prefix string
}

// NewTokenStore constructs a TokenStore. prefix namespaces every key.
func NewTokenStore(client *redis.Client, prefix string) *TokenStore {
	if prefix == "" {
		prefix = "custshop"
	}
	return &TokenStore{client: client, prefix: prefix}
}

// Register records an issued access token id until it expires.
func (s *TokenStore) Register(ctx context.Context, tokenID string, userID int64, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("token id required")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.accessKey(tokenID), strconv.FormatInt(userID, 10), ttl)
		pipe.SAdd(ctx, s.userKey(userID), tokenID)
		pipe.Expire(ctx, s.userKey(userID), ttl)
		return nil
	})
	return err
}

// Active reports whether tokenID is still registered for userID.
func (s *TokenStore) Active(ctx context.Context, tokenID string, userID int64) (bool, error) {
	val, err := s.client.Get(ctx, s.accessKey(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return val == strconv.FormatInt(userID, 10), nil
}

// Revoke forgets an access token id.
func (s *TokenStore) Revoke(ctx context.Context, tokenID string, userID int64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.accessKey(tokenID))
		pipe.SRem(ctx, s.userKey(userID), tokenID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// RevokeAll forgets every access token issued to userID.
func (s *TokenStore) RevokeAll(ctx context.Context, userID int64) error {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.accessKey(id))
	}
	keys = append(keys, s.userKey(userID))
	return s.client.Del(ctx, keys...).Err()
}

// IssueResetToken stores a single-use password reset token for userID.
func (s *TokenStore) IssueResetToken(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	token := id.String()
	if err := s.client.Set(ctx, s.resetKey(token), strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeResetToken returns the user bound to token and deletes it atomically.
func (s *TokenStore) ConsumeResetToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrResetTokenInvalid
	}
	val, err := s.client.GetDel(ctx, s.resetKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrResetTokenInvalid
		}
		return 0, err
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, ErrResetTokenInvalid
	}
	return userID, nil
}

func (s *TokenStore) accessKey(id string) string {
	return s.prefix + ":token:" + id
}

func (s *TokenStore) userKey(userID int64) string {
	return s.prefix + ":user-tokens:" + strconv.FormatInt(userID, 10)
}

func (s *TokenStore) resetKey(token string) string {
	return s.prefix + ":reset:" + token
}
