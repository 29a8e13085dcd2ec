// Package objectstore abstracts the cold store holding exported partitions.
//
// Archive payloads are single, modestly sized parquet objects, so the
// interface is deliberately small: whole-object Put/Get plus Head for
// post-upload verification. Implementations must be safe for concurrent use.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectError wraps an error with the operation and object key for context.
type ObjectError struct {
	Op  string
	Key string
	Err error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("objectstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error { return e.Err }

// ObjectMeta describes a stored object.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// Store is the cold-store interface.
type Store interface {
	// Put stores an object at key, unconditionally replacing any existing
	// object there. size must match the bytes the reader will yield.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get retrieves an entire object. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Head returns metadata without the body. Returns ErrNotFound if absent.
	Head(ctx context.Context, key string) (ObjectMeta, error)

	// Close releases resources held by the store.
	Close() error
}
