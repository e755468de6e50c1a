package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshTokenRepository stores opaque refresh tokens. A token can be consumed once.
type RefreshTokenRepository interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	// Consume returns the owner of token and deletes it.
	Consume(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// redisTokenRepository keeps one key per token with the token TTL.
type redisTokenRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisTokenRepository(client redis.UniversalClient, prefix string) RefreshTokenRepository {
	if prefix == "" {
		prefix = "soundy:refresh:"
	}
	return &redisTokenRepository{client: client, prefix: prefix}
}

func (r *redisTokenRepository) key(token string) string {
	return r.prefix + token
}

func (r *redisTokenRepository) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *redisTokenRepository) Consume(ctx context.Context, token string) (string, error) {
	userID, err := r.client.GetDel(ctx, r.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume refresh token: %w", err)
	}
	return userID, nil
}

func (r *redisTokenRepository) Revoke(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

type tokenEntry struct {
	userID  string
	expires time.Time
}

type memoryTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry
	now    func() time.Time
}

func NewMemoryTokenRepository() RefreshTokenRepository {
	return &memoryTokenRepository{tokens: make(map[string]tokenEntry), now: time.Now}
}

func (r *memoryTokenRepository) Save(_ context.Context, token, userID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = tokenEntry{userID: userID, expires: r.now().Add(ttl)}
	return nil
}

func (r *memoryTokenRepository) Consume(_ context.Context, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tokens[token]
	if !ok {
		return "", ErrNotFound
	}
	delete(r.tokens, token)
	if !r.now().Before(entry.expires) {
		return "", ErrNotFound
	}
	return entry.userID, nil
}

func (r *memoryTokenRepository) Revoke(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}
