// Package store is the Local Store: a namespaced key/value persistence layer
// for the serialized transaction list and settings.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written or was removed.
var ErrNotFound = errors.New("store: key not found")

// Store persists opaque string values under string keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
