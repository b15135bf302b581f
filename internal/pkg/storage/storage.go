package storage

import (
	"context"
	"io"
	"time"
)

// Storage defines the minimal interface for file storage backends.
// Recipient source files and lookup result artifacts both live behind it.
type Storage interface {
	// Put stores an object at the given key.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get retrieves an object by key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object by key. Returns nil if the object doesn't exist.
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// PresignGet returns a time-limited download URL for an object.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// GetURL returns the public URL for an object given its key.
	GetURL(key string) string
}

// FileInfo describes a stored object
type FileInfo struct {
	Key         string
	Size        int64
	ContentType string
	URL         string
}
