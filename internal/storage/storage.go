// Package storage provides the object storage gateway for the assets bucket.
// Supported backends: local filesystem and Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound indicates no object exists at the requested path.
var ErrNotFound = errors.New("object not found")

// Storage defines the interface for object storage operations.
type Storage interface {
	// Upload writes data from reader to the given path and returns the
	// stored path.
	Upload(ctx context.Context, path string, reader io.Reader) (string, error)

	// Download returns a reader for the object at the given path.
	// The caller is responsible for closing the returned ReadCloser.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether an object exists at the given path.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the object at the given path.
	Delete(ctx context.Context, path string) error

	// PublicURL returns a stable, unsigned URL for the object. No expiry.
	PublicURL(path string) string

	// SignedURL returns a URL valid only for ttl. After expiry the URL is
	// rejected with an authorization error. forceDownload requests that the
	// response carry an attachment disposition instead of rendering inline.
	SignedURL(ctx context.Context, path string, ttl time.Duration, forceDownload bool) (string, error)

	// Close releases backend resources.
	Close() error
}
