// Package kvstore provides the durable key-value stores carts are persisted to.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when the key holds no value.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a string-keyed blob store. Save overwrites.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
