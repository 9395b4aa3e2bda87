// Package store provides the durable key/value backends behind the shared
// state. A single key's write is atomic in every backend; nothing here offers
// multi-key transactions.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no value is stored under a key.
	ErrNotFound = errors.New("store: key not found")
	// ErrInvalidKey is returned for keys a backend cannot represent.
	ErrInvalidKey = errors.New("store: invalid key")
)

// KV is the contract every shared state backend satisfies.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
