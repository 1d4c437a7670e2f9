package cache

import (
	"context"
	"errors"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Store is a durable key/value backend. Put must replace the value for a key
// atomically: a crash between a write and the next read may lose the write
// but can never expose a torn entry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
