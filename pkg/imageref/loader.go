package imageref

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes caps a single fetched or decoded image.
const DefaultMaxBytes = 25 << 20

// Loader turns references into bytes or decoded images.
type Loader struct {
	assets   *Assets
	client   *http.Client
	allowed  map[string]bool
	maxBytes int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for remote references.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithAllowedHosts marks hosts whose images may be exported without the
// cross-origin allowance (they grant access permission).
func WithAllowedHosts(hosts ...string) Option {
	return func(l *Loader) {
		for _, h := range hosts {
			l.allowed[strings.ToLower(strings.TrimSpace(h))] = true
		}
	}
}

// WithMaxBytes caps the size of a single image.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) { l.maxBytes = n }
}

// NewLoader creates a loader backed by assets.
func NewLoader(assets *Assets, opts ...Option) *Loader {
	l := &Loader{
		assets:   assets,
		client:   &http.Client{Timeout: 60 * time.Second},
		allowed:  make(map[string]bool),
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Assets returns the backing asset store.
func (l *Loader) Assets() *Assets { return l.assets }

// Bytes returns the raw bytes and MIME type behind ref. Remote references
// fail with ErrCrossOrigin unless allowCrossOrigin is set or their host is
// allowed.
func (l *Loader) Bytes(ctx context.Context, ref string, allowCrossOrigin bool) (string, []byte, error) {
	switch Classify(ref) {
	case KindData:
		return ParseDataURL(ref)
	case KindAsset:
		id, _ := AssetID(ref)
		a, ok := l.assets.Get(id)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return a.Mime, a.Data, nil
	case KindRemote:
		h, err := host(ref)
		if err != nil {
			return "", nil, err
		}
		if !allowCrossOrigin && !l.allowed[h] {
			return "", nil, fmt.Errorf("%w: %s", ErrCrossOrigin, h)
		}
		return l.fetch(ctx, ref)
	default:
		return "", nil, fmt.Errorf("%w: %.40q", ErrInvalidRef, ref)
	}
}

// Load decodes the image behind ref.
func (l *Loader) Load(ctx context.Context, ref string, allowCrossOrigin bool) (image.Image, error) {
	_, data, err := l.Bytes(ctx, ref, allowCrossOrigin)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Normalize re-encodes ref as a same-origin asset reference. The server
// fetches remote images itself, so the result is always exportable.
func (l *Loader) Normalize(ctx context.Context, ref string) (string, error) {
	if Classify(ref) == KindAsset {
		id, _ := AssetID(ref)
		if _, ok := l.assets.Get(id); !ok {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return ref, nil
	}

	mimeType, data, err := l.Bytes(ctx, ref, true)
	if err != nil {
		return "", err
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/" + format
	}

	name := "image"
	if Classify(ref) == KindRemote {
		name = path.Base(strings.SplitN(ref, "?", 2)[0])
	}
	return AssetRef(l.assets.Add(name, data, mimeType)), nil
}

func (l *Loader) fetch(ctx context.Context, ref string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("fetch image: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return "", nil, fmt.Errorf("fetch image: larger than %d bytes", l.maxBytes)
	}

	mimeType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return mimeType, data, nil
}
