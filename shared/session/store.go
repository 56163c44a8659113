// Package session keeps server-side login sessions in Redis. Clients only ever hold an
// opaque token; Redis is keyed by its hash.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/models"
)

// ErrNoSession is returned when a request carries no live session
var ErrNoSession = errors.New("no active session")

// Data is what the server remembers about a session
type Data struct {
	// Handle identifies the session in logs without revealing the token
	Handle       string          `json:"handle"`
	BusinessID   uuid.UUID       `json:"business_id"`
	BusinessName string          `json:"business_name"`
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	Role         models.UserRole `json:"role"`
	CreatedAt    time.Time       `json:"created_at"`
	LastUsedAt   time.Time       `json:"last_used_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// IsExpired checks if the session has expired
func (d *Data) IsExpired() bool {
	return time.Now().After(d.ExpiresAt)
}

// Store persists sessions by token
type Store interface {
	Save(ctx context.Context, token string, data *Data, ttl time.Duration) error
	// Touch rewrites a session that still exists. It never recreates a deleted one and
	// returns ErrNoSession instead.
	Touch(ctx context.Context, token string, data *Data, ttl time.Duration) error
	Get(ctx context.Context, token string) (*Data, error)
	Delete(ctx context.Context, token string) error
}

// RedisStore keeps sessions as JSON under bizworx:session:<sha256(token)>
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(token string) string {
	return "bizworx:session:" + auth.HashToken(token)
}

func (s *RedisStore) Save(ctx context.Context, token string, data *Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, token string, data *Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.key(token), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh session in Redis: %w", err)
	}
	if !ok {
		return ErrNoSession
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (*Data, error) {
	key := s.key(token)
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if data.IsExpired() {
		s.client.Del(ctx, key)
		return nil, ErrNoSession
	}
	return &data, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
