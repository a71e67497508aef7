// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
)

// KVStore is a durable string key/value table. Update applies all of its
// writes and deletes in one transaction so readers never observe a partial
// change.
type KVStore interface {
	// Get returns the value of key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// GetMany returns the present keys among keys. Missing keys are omitted.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	// Update upserts set and removes del atomically.
	Update(ctx context.Context, set map[string]string, del []string) error
	// Close releases the underlying resources.
	Close() error
}
