package core

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KVStore.Get for a missing or expired key.
var ErrKeyNotFound = errors.New("relbatch: key not found")

// KVStore is the key-value store the statement journal is kept in.
type KVStore interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// BatchSet stores several values with a shared ttl.
	BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// Close releases the store's connections.
	Close() error
}
