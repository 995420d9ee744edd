// Package blob implements the content store: a flat namespace mapping an
// opaque stored name to bytes on durable storage. Two backends are provided,
// a local disk directory and an S3-compatible bucket.
package blob

import (
	"context"
	"io"
	"time"
)

// Object describes one stored blob as reported by List.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is the content store contract. Stored names are generated by the
// caller and never reused, so implementations do not need reference counting.
type Store interface {
	// Save durably writes the reader's bytes under name and returns the
	// number of bytes written. The write must be atomic: a failed Save leaves
	// no partial object behind.
	Save(ctx context.Context, name string, r io.Reader) (int64, error)

	// Open returns the blob's bytes for reading. Missing blobs yield an error
	// matching common.ErrNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// Exists reports whether the blob is present.
	Exists(ctx context.Context, name string) (bool, error)

	// List enumerates every stored object. Used by the orphan sweeper.
	List(ctx context.Context) ([]Object, error)
}
