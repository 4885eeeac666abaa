package tokenstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/landslide-report/go-auth"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "landslide"

// RedisStore keeps the token in a single redis string at prefix:key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	key    string
	ttl    time.Duration
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = strings.TrimSuffix(prefix, ":")
	}
}

// WithRedisKey overrides the namespace key.
func WithRedisKey(key string) RedisOption {
	return func(s *RedisStore) {
		if strings.TrimSpace(key) != "" {
			s.key = key
		}
	}
}

// WithRedisTTL expires the stored token after ttl. Zero keeps it until cleared.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore returns a store using client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
		key:    auth.DefaultTokenKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Key returns the full redis key.
func (s *RedisStore) Key() string {
	if s.prefix == "" {
		return s.key
	}
	return s.prefix + ":" + s.key
}

// Save implements auth.TokenStore.
func (s *RedisStore) Save(ctx context.Context, token string) error {
	if err := checkToken(token); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.Key(), token, s.ttl).Err(); err != nil {
		return storageError(err, "save", map[string]any{"key": s.Key()})
	}
	return nil
}

// Load implements auth.TokenStore.
func (s *RedisStore) Load(ctx context.Context) (string, bool, error) {
	token, err := s.client.Get(ctx, s.Key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, storageError(err, "load", map[string]any{"key": s.Key()})
	}
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// Clear implements auth.TokenStore.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.Key()).Err(); err != nil {
		return storageError(err, "clear", map[string]any{"key": s.Key()})
	}
	return nil
}

var _ auth.TokenStore = (*RedisStore)(nil)
