package generator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
)

// DefaultDirectBase is the free image service used by DirectURL.
const DefaultDirectBase = "https://pollinations.ai/p/"

// DirectURL generates images by building a URL that renders on fetch. It
// makes no request itself and cannot rewrite text.
type DirectURL struct {
	Base          string
	Width, Height int
	// Seed returns the per-image seed. Nil picks a random one in [0, 1000).
	Seed func() int
}

// NewDirectURL returns a provider for images of the given size.
func NewDirectURL(width, height int) *DirectURL {
	return &DirectURL{Base: DefaultDirectBase, Width: width, Height: height}
}

// RewriteText implements Gateway. It is not supported.
func (d *DirectURL) RewriteText(context.Context, string) (string, error) {
	return "", ErrUnsupported
}

// GenerateImage implements Gateway. The result is a remote image ref, so
// it needs the host on the export allow-list or eager re-encoding.
func (d *DirectURL) GenerateImage(ctx context.Context, prompt string, style Style) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	seed := rand.IntN(1000)
	if d.Seed != nil {
		seed = d.Seed()
	}
	base := d.Base
	if base == "" {
		base = DefaultDirectBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	q := url.Values{}
	q.Set("width", fmt.Sprint(d.Width))
	q.Set("height", fmt.Sprint(d.Height))
	q.Set("seed", fmt.Sprint(seed))
	return base + url.PathEscape(ImagePrompt(style, prompt)) + "?" + q.Encode(), nil
}
