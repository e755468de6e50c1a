package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccessToken  = "accessToken"
	fieldRefreshToken = "refreshToken"
	fieldUserID       = "userId"
)

// RedisStore keeps the credentials in one Redis hash so the three values are written and
// deleted in a single transaction.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Load(ctx context.Context) (Credentials, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read session hash %s: %w", r.key, err)
	}
	if len(values) == 0 {
		return Credentials{}, ErrNoSession
	}
	return Credentials{
		UserID:       values[fieldUserID],
		AccessToken:  values[fieldAccessToken],
		RefreshToken: values[fieldRefreshToken],
	}, nil
}

func (r *RedisStore) Save(ctx context.Context, creds Credentials) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key, map[string]interface{}{
			fieldUserID:       creds.UserID,
			fieldAccessToken:  creds.AccessToken,
			fieldRefreshToken: creds.RefreshToken,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session hash %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete session hash %s: %w", r.key, err)
	}
	return nil
}
