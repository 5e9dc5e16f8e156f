// Package credstore persists the CLI's access token between runs.
//
// Sessions are keyed by API base URL so a token minted by one backend is
// never offered to another. The SDK itself keeps tokens in memory only; a
// store is consulted by the CLI before Ensure and updated after it.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zippro/homeai"
	"github.com/zippro/homeai/internal/config"
)

// Store errors.
var (
	ErrNotFound       = errors.New("credstore: no stored session")
	ErrStoreCorrupted = errors.New("credstore: store file corrupted")
	ErrStorePersist   = errors.New("credstore: failed to persist store")
)

// Store loads, saves and clears the session stored for an API base URL.
type Store interface {
	Load(ctx context.Context, baseURL string) (homeai.Session, error)
	Save(ctx context.Context, baseURL string, sess homeai.Session) error
	Clear(ctx context.Context, baseURL string) error
	Close() error
}

// Open returns the store selected by cfg.Store.Kind.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Kind {
	case "file", "":
		return NewFileStore(cfg.Store.Path)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		// Verify connection
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL), nil
	case "none":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("credstore: unknown store kind %q", cfg.Store.Kind)
	}
}

// NopStore stores nothing. Every Load reports ErrNotFound.
type NopStore struct{}

func (NopStore) Load(context.Context, string) (homeai.Session, error) {
	return homeai.Session{}, ErrNotFound
}

func (NopStore) Save(context.Context, string, homeai.Session) error { return nil }

func (NopStore) Clear(context.Context, string) error { return nil }

func (NopStore) Close() error { return nil }
