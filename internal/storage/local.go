package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStorage stores objects on the local filesystem under a root
// directory. Signed URLs carry an HMAC-SHA256 token verified by the
// file-serving handler; expired or tampered URLs fail verification.
type LocalStorage struct {
	root          string
	publicBaseURL string
	secret        []byte
	now           func() time.Time
}

// NewLocalStorage creates a filesystem-backed store. publicBaseURL is the
// externally reachable prefix the file handler is mounted on.
func NewLocalStorage(root, publicBaseURL, signingSecret string) (*LocalStorage, error) {
	if signingSecret == "" {
		return nil, fmt.Errorf("storage signing secret is required for the local backend")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	log.Printf("[LocalStorage] Initialized at %s", root)
	return &LocalStorage{
		root:          root,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		secret:        []byte(signingSecret),
		now:           time.Now,
	}, nil
}

// fullPath resolves an object path inside the root, rejecting traversal.
func (s *LocalStorage) fullPath(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

// Upload writes data to the given path and returns the stored path.
func (s *LocalStorage) Upload(ctx context.Context, path string, reader io.Reader) (string, error) {
	full, err := s.fullPath(path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create object file: %w", err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close object file: %w", err)
	}

	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+path)), "/"), nil
}

// Download returns a reader for the object at the given path.
func (s *LocalStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := s.fullPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// Exists checks whether an object exists at the given path.
func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	full, err := s.fullPath(path)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(full); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the object at the given path.
func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	full, err := s.fullPath(path)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// PublicURL returns a stable, unsigned URL for the object.
func (s *LocalStorage) PublicURL(path string) string {
	return s.publicBaseURL + "/" + strings.TrimLeft(path, "/")
}

// SignedURL returns a time-limited URL for the object.
func (s *LocalStorage) SignedURL(ctx context.Context, path string, ttl time.Duration, forceDownload bool) (string, error) {
	expires := s.now().Add(ttl).Unix()

	dl := "0"
	if forceDownload {
		dl = "1"
	}

	sig := s.sign(strings.TrimLeft(path, "/"), expires, dl)

	q := url.Values{}
	q.Set("exp", strconv.FormatInt(expires, 10))
	q.Set("dl", dl)
	q.Set("sig", sig)

	return s.PublicURL(path) + "?" + q.Encode(), nil
}

// VerifySignature validates the exp/dl/sig query of a signed URL for the
// given object path. It fails on expiry or any mismatch.
func (s *LocalStorage) VerifySignature(path, expStr, dl, sig string) error {
	expires, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed expiry")
	}
	if s.now().Unix() > expires {
		return fmt.Errorf("signed URL expired")
	}

	want := s.sign(strings.TrimLeft(path, "/"), expires, dl)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (s *LocalStorage) sign(path string, expires int64, dl string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d|%s", path, expires, dl)
	return hex.EncodeToString(mac.Sum(nil))
}

// Close is a no-op for the filesystem backend.
func (s *LocalStorage) Close() error {
	return nil
}

var _ Storage = (*LocalStorage)(nil)
