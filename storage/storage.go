// Package storage defines the byte-level key value backends the engine
// stores objects, refcount rows, and state files in.
package storage

import (
	"context"

	"github.com/cockroachdb/errors"
)

var ErrNotFound = errors.New("key not found")

type Storage interface {
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
