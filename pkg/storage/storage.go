// Package storage abstracts the removable media the device plays
// expression clips from. The playback engine needs seekable, sized
// access to clip files; the clip-sync tooling needs plain streaming
// reads and writes. Both concerns live behind small interfaces so the
// same engines run against an SD-card mount, a temp directory in
// tests, or an S3 clip bucket.
package storage

import (
	"context"
	"io"
)

// File is an open clip or manifest on removable media.
//
// The playback engine seeks within a file (loop restarts) and sizes
// it up front (frame-count estimation, end-of-clip detection), so a
// plain io.ReadCloser is not enough.
type File interface {
	io.ReadSeekCloser

	// Size returns the total length of the file in bytes.
	Size() int64
}

// FileStore is a file-oriented view of one storage medium.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Open opens the named file for random-access reading.
	// If the file does not exist, an error wrapping os.ErrNotExist is
	// returned.
	Open(ctx context.Context, path string) (File, error)

	// Read opens the named file for sequential reading.
	// The caller must close the returned ReadCloser when done.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating any existing
	// content and creating parent directories as needed. The caller
	// must close the returned WriteCloser to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Deleting a missing file is not an
	// error (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths of all files under the given directory
	// prefix, recursively, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}
