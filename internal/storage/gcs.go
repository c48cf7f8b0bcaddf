package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/url"
	"path"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorage stores objects in a Google Cloud Storage bucket. Signed URLs
// are V4 and can force an attachment disposition.
type GCSStorage struct {
	client    *gcstorage.Client
	bucket    string
	cdnDomain string
}

// NewGCSStorage creates a GCS-backed store. Credentials come from the
// environment (application default credentials).
func NewGCSStorage(ctx context.Context, bucket, cdnDomain string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket name is required")
	}

	client, err := gcstorage.NewClient(ctx, option.WithScopes(gcstorage.ScopeReadWrite))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	log.Printf("[GCSStorage] Initialized with bucket: %s", bucket)
	return &GCSStorage{
		client:    client,
		bucket:    bucket,
		cdnDomain: cdnDomain,
	}, nil
}

// Upload writes data to the given path and returns the stored path.
func (s *GCSStorage) Upload(ctx context.Context, objectPath string, reader io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	if ct := mime.TypeByExtension(path.Ext(objectPath)); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return objectPath, nil
}

// readCloserWithCancel ties the reader's context to its Close so callers can
// stream past this function's return.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// Download returns a reader for the object at the given path.
func (s *GCSStorage) Download(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	// Cancel only after the reader is closed, not when this returns.
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)

	r, err := s.client.Bucket(s.bucket).Object(objectPath).NewReader(ctx2)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		cancel()
		return nil, ErrNotFound
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}

	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

// Exists checks whether an object exists at the given path.
func (s *GCSStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.Bucket(s.bucket).Object(objectPath).Attrs(ctx)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the object at the given path.
func (s *GCSStorage) Delete(ctx context.Context, objectPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	o := s.client.Bucket(s.bucket).Object(objectPath)
	if err := o.Delete(ctx); err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q: %w", objectPath, err)
	}
	return nil
}

// PublicURL returns a stable, unsigned URL for the object.
func (s *GCSStorage) PublicURL(objectPath string) string {
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, objectPath)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, objectPath)
}

// SignedURL returns a V4 signed URL valid for ttl.
func (s *GCSStorage) SignedURL(ctx context.Context, objectPath string, ttl time.Duration, forceDownload bool) (string, error) {
	opts := &gcstorage.SignedURLOptions{
		Scheme:  gcstorage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}
	if forceDownload {
		disposition := fmt.Sprintf("attachment; filename=%q", path.Base(objectPath))
		opts.QueryParameters = url.Values{
			"response-content-disposition": {disposition},
		}
	}

	u, err := s.client.Bucket(s.bucket).SignedURL(objectPath, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %q: %w", objectPath, err)
	}
	return u, nil
}

// Close releases the GCS client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

var _ Storage = (*GCSStorage)(nil)
