// Package cache provides the keyed metadata cache and the string key-value
// stores that persist it (memory, SQLite, Redis).
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotOpen is returned when a store is used before Open or after Close.
var ErrNotOpen = errors.New("cache store not open")

// Store is a flat string key-value store. Keys are opaque; callers namespace
// them with a prefix and enumerate by that prefix.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Keys lists every key that starts with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Close releases the store's resources.
	Close() error
}

// StatsReporter is implemented by stores that can describe themselves.
type StatsReporter interface {
	Stats(ctx context.Context) (Stats, error)
}

// Stats describes a store's contents.
type Stats struct {
	EntryCount    int       `json:"entryCount"`
	Backend       string    `json:"backend"`
	SchemaVersion string    `json:"schemaVersion,omitempty"`
	LastCleared   time.Time `json:"lastCleared,omitempty"`
}
