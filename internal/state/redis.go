package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key holding the configuration document.
const DefaultRedisKey = "bggeo:config"

// RedisStore keeps the configuration as a single JSON string value.
type RedisStore struct {
	client  *redis.Client
	key     string
	commits committer
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Get(ctx context.Context) (*Configuration, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get configuration from redis: %w", err)
	}
	return Decode(data)
}

func (r *RedisStore) Set(ctx context.Context, cfg *Configuration, done func(CommitResult)) {
	r.commits.commit(ctx, cfg, func(ctx context.Context, data []byte) error {
		if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to store configuration in redis: %w", err)
		}
		return nil
	}, done)
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
