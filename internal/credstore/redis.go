package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zippro/homeai"
)

// kv is the subset of the go-redis client the store uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps sessions in Redis, one key per base URL. Keys expire with
// the session, or after the configured TTL when the session carries no
// expiry.
type RedisStore struct {
	client kv
	prefix string
	ttl    time.Duration
	closer func() error
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	s := newRedisStore(client, prefix, ttl)
	s.closer = client.Close
	return s
}

func newRedisStore(client kv, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(baseURL string) string {
	return s.prefix + baseURL
}

// Load returns the session stored for baseURL.
func (s *RedisStore) Load(ctx context.Context, baseURL string) (homeai.Session, error) {
	raw, err := s.client.Get(ctx, s.key(baseURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return homeai.Session{}, ErrNotFound
	}
	if err != nil {
		return homeai.Session{}, fmt.Errorf("credstore: redis get: %w", err)
	}

	var sess homeai.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return homeai.Session{}, fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	if !sess.Valid() {
		return homeai.Session{}, ErrNotFound
	}
	return sess, nil
}

// Save stores sess for baseURL.
func (s *RedisStore) Save(ctx context.Context, baseURL string, sess homeai.Session) error {
	if !sess.Valid() {
		return fmt.Errorf("credstore: refusing to store a session without token")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ttl := s.ttl
	if !sess.ExpiresAt.IsZero() {
		ttl = time.Until(sess.ExpiresAt)
		if ttl <= 0 {
			return s.Clear(ctx, baseURL)
		}
	}

	if err := s.client.Set(ctx, s.key(baseURL), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", ErrStorePersist, err)
	}
	return nil
}

// Clear removes the session stored for baseURL.
func (s *RedisStore) Clear(ctx context.Context, baseURL string) error {
	if err := s.client.Del(ctx, s.key(baseURL)).Err(); err != nil {
		return fmt.Errorf("credstore: redis del: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
