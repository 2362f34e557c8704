package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for accessing immutable data blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Put writes a blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Size returns the size of the blob in bytes.
	Size() int64
	io.Closer
}

// ReadAll opens name and returns its full contents.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	buf := make([]byte, b.Size())
	if len(buf) == 0 {
		return buf, nil
	}
	n, err := b.ReadAt(ctx, buf, 0)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return nil, err
	}
	if n != len(buf) {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}
