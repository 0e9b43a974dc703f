// Package blobstore abstracts the object storage holding raw documents
// and embedded vector batches.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("blobstore: object not found")

// ErrPresignUnsupported is returned by backends that cannot mint
// presigned upload URLs.
var ErrPresignUnsupported = errors.New("blobstore: presigned URLs not supported")

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the object storage backend. Implementations must be safe
// for concurrent use.
type Store interface {
	// Put stores the contents of r under key, replacing any existing
	// object.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the object at key. The caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns all objects whose keys start with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Delete removes the object at key. Deleting a missing object is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Move renames src to dst.
	Move(ctx context.Context, src, dst string) error

	// PresignPut returns a URL that allows uploading to key without
	// credentials until expires elapses.
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}
