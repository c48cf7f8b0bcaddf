// Package download turns a stored asset file reference into a concrete
// download: a signed redirect, a streamed byte source with a corrected
// filename and content type, or - when everything else fails - a degraded
// redirect to the raw URL.
package download

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"spritenest-api/internal/storage"
)

// Kind tags how a Resolution should be delivered.
type Kind int

const (
	// KindRedirect sends the client to URL.
	KindRedirect Kind = iota
	// KindStream serves Body with Filename and ContentType.
	KindStream
)

// Resolution is the outcome of resolving one asset download.
type Resolution struct {
	Kind        Kind
	URL         string
	Body        io.ReadCloser
	Filename    string
	ContentType string
	// Strategy names which step produced the resolution.
	Strategy string
	// Degraded marks the weakest path: a raw redirect with no filename or
	// extension correction.
	Degraded bool
}

// Config holds resolver settings.
type Config struct {
	// HostMarker identifies storage-provider URLs (substring match).
	HostMarker string
	// PublicBase is this service's own public URL prefix for stored
	// objects. URLs under it resolve against the store directly.
	PublicBase string
	// ObjectSegment is the path segment after which the object path starts.
	ObjectSegment string
	// StripPrefix is removed from extracted object paths.
	StripPrefix string
	// SignedTTL is the validity window for minted signed URLs.
	SignedTTL time.Duration
}

// Resolver resolves asset file references against the object store.
type Resolver struct {
	store      storage.Storage
	cfg        Config
	httpClient *http.Client
}

// strategy is one ordered attempt. applicable=false means the URL shape does
// not match and the next strategy runs; an error means the attempt ran and
// failed, which also falls through.
type strategy struct {
	name string
	run  func(ctx context.Context, fileURL, title string) (res *Resolution, applicable bool, err error)
}

// New creates a resolver over the given store.
func New(store storage.Storage, cfg Config) *Resolver {
	if cfg.ObjectSegment == "" {
		cfg.ObjectSegment = "/object/"
	}
	if cfg.StripPrefix == "" {
		cfg.StripPrefix = "public/assets/"
	}
	if cfg.SignedTTL == 0 {
		cfg.SignedTTL = 60 * time.Second
	}
	return &Resolver{
		store:      store,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Resolve runs the strategy chain. First success wins; the degraded redirect
// always succeeds, so the returned Resolution is never nil on nil error.
func (r *Resolver) Resolve(ctx context.Context, fileURL, title string) (*Resolution, error) {
	if strings.TrimSpace(fileURL) == "" {
		return nil, fmt.Errorf("asset has no file location")
	}

	strategies := []strategy{
		{name: "signed", run: r.resolveSigned},
		{name: "storage", run: r.resolveStorage},
		{name: "direct", run: r.resolveDirect},
	}

	for _, s := range strategies {
		res, applicable, err := s.run(ctx, fileURL, title)
		if err != nil {
			log.Printf("[Resolver] %s strategy failed for %s: %v", s.name, fileURL, err)
			continue
		}
		if !applicable {
			continue
		}
		res.Strategy = s.name
		return res, nil
	}

	// Weakest guarantee: hand back the raw URL without corrections.
	return &Resolution{
		Kind:     KindRedirect,
		URL:      fileURL,
		Strategy: "degraded",
		Degraded: true,
	}, nil
}

// resolveSigned extracts the internal object path from a storage-provider
// URL and mints a short-lived signed URL with forced download.
func (r *Resolver) resolveSigned(ctx context.Context, fileURL, title string) (*Resolution, bool, error) {
	if !r.isStorageURL(fileURL) && !r.isSelfURL(fileURL) {
		return nil, false, nil
	}

	objectPath, ok := r.objectPathFromURL(fileURL)
	if !ok {
		return nil, false, nil
	}

	signed, err := r.store.SignedURL(ctx, objectPath, r.cfg.SignedTTL, true)
	if err != nil {
		return nil, true, err
	}

	return &Resolution{
		Kind:     KindRedirect,
		URL:      signed,
		Filename: filenameFromPath(objectPath, title),
	}, true, nil
}

// resolveStorage fetches bytes straight from the object store, splitting the
// URL on the literal "/assets/" segment.
func (r *Resolver) resolveStorage(ctx context.Context, fileURL, title string) (*Resolution, bool, error) {
	if !r.isStorageURL(fileURL) {
		return nil, false, nil
	}

	parts := strings.SplitN(fileURL, "/assets/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, false, nil
	}
	objectPath := stripQuery(parts[1])

	body, err := r.store.Download(ctx, objectPath)
	if err != nil {
		return nil, true, err
	}

	filename := filenameFromPath(objectPath, title)
	return &Resolution{
		Kind:        KindStream,
		Body:        body,
		Filename:    filename,
		ContentType: MIMEForExtension(path.Ext(filename)),
	}, true, nil
}

// resolveDirect performs a plain HTTP fetch of the URL and infers the saved
// filename from, in order: its own extension, an extension in the source
// URL, and the response's declared content type.
func (r *Resolver) resolveDirect(ctx context.Context, fileURL, title string) (*Resolution, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, true, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, true, fmt.Errorf("fetch returned %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	filename := inferDirectFilename(fileURL, title, contentType)

	if contentType == "" {
		contentType = octetStream
	}

	return &Resolution{
		Kind:        KindStream,
		Body:        resp.Body,
		Filename:    filename,
		ContentType: contentType,
	}, true, nil
}

func (r *Resolver) isStorageURL(fileURL string) bool {
	return r.cfg.HostMarker != "" && strings.Contains(fileURL, r.cfg.HostMarker)
}

func (r *Resolver) isSelfURL(fileURL string) bool {
	return r.cfg.PublicBase != "" && strings.HasPrefix(fileURL, r.cfg.PublicBase)
}

// objectPathFromURL locates the object path inside a URL: for this service's
// own URLs it is everything under the public base, for provider URLs
// everything after the object segment, minus the known public prefix.
func (r *Resolver) objectPathFromURL(fileURL string) (string, bool) {
	if r.isSelfURL(fileURL) {
		p := strings.TrimLeft(stripQuery(strings.TrimPrefix(fileURL, r.cfg.PublicBase)), "/")
		return p, p != ""
	}
	idx := strings.Index(fileURL, r.cfg.ObjectSegment)
	if idx < 0 {
		return "", false
	}
	p := stripQuery(fileURL[idx+len(r.cfg.ObjectSegment):])
	p = strings.TrimPrefix(p, r.cfg.StripPrefix)
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", false
	}
	return p, true
}

// filenameFromPath returns the path basename, falling back to the asset
// title when the path has none.
func filenameFromPath(objectPath, title string) string {
	name := path.Base(objectPath)
	if name == "" || name == "." || name == "/" {
		return sanitizeFilename(title)
	}
	return name
}

// inferDirectFilename applies the extension priority order for the direct
// fetch path: existing extension in the name, extension found in the source
// URL, then an extension derived from the declared content type.
func inferDirectFilename(fileURL, title, contentType string) string {
	name := ""
	if u, err := url.Parse(fileURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = sanitizeFilename(title)
	}

	if hasKnownExtension(name) {
		return name
	}

	if ext := extensionFromURL(fileURL); ext != "" {
		return name + "." + ext
	}

	return name + "." + ExtensionForMIME(contentType)
}

// extensionFromURL finds a recognized extension in the URL's path or query.
// The host is skipped so domains like example.gz do not register.
func extensionFromURL(fileURL string) string {
	if u, err := url.Parse(fileURL); err == nil && u.Host != "" {
		fileURL = u.Path
		if u.RawQuery != "" {
			fileURL += "?" + u.RawQuery
		}
	}
	i := strings.LastIndex(fileURL, ".")
	if i < 0 || i == len(fileURL)-1 {
		return ""
	}
	ext := fileURL[i+1:]
	for j, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			ext = ext[:j]
			break
		}
	}
	if _, ok := extToMIME[strings.ToLower(ext)]; ok {
		return ext
	}
	return ""
}

func sanitizeFilename(title string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		return "download"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	return name
}

func stripQuery(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}
