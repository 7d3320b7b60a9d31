// Package storage provides the persistence port used by all stateful
// components: an opaque key->blob store with pluggable backends.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned when an operation is attempted on a closed port.
var ErrClosed = errors.New("storage: port is closed")

// Port is the key->blob persistence interface.
// Implementations must be safe for concurrent use within a single process;
// cross-process coordination is out of scope.
type Port interface {
	// Get returns the blob stored under key. The second return value is
	// false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores blob under key, replacing any previous value.
	Set(ctx context.Context, key string, blob []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
