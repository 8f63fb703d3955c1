// Package kvstore is the small key-value medium behind the adaptive history:
// in-process memory, an SQLite file or Redis.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/regdetect/internal/config"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("kvstore: not found")

// Store holds opaque values under string keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the Store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "redis":
		return NewRedis(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("kvstore: unknown driver %q", cfg.Driver)
	}
}
