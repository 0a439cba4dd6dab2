// Package export flattens a studio into a bitmap at its full logical size.
//
// The live editor tree is never captured directly: the pipeline builds a
// fresh off-screen tree at scale 1 with no selection chrome, attaches it to
// the document only for the duration of the capture and always detaches it.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/xob0t/poststudio/internal/logger"
	"github.com/xob0t/poststudio/pkg/render"
	"github.com/xob0t/poststudio/pkg/studio"
)

var (
	// ErrExportFailed wraps every capture failure. The studio is left as it
	// was and the export may be retried.
	ErrExportFailed = errors.New("export failed")
	// ErrSizeMismatch reports a bitmap whose size is not the logical canvas
	// size. It is always wrapped together with ErrExportFailed.
	ErrSizeMismatch = errors.New("bitmap size does not match canvas")
)

// Capturer turns a visual tree into a bitmap. *render.Rasterizer is the
// default implementation.
type Capturer interface {
	Capture(ctx context.Context, t *render.Tree, opts render.CaptureOptions) (image.Image, error)
}

// FrameWaiter blocks until the editor has repainted once.
type FrameWaiter func(ctx context.Context) error

// Pipeline exports a single studio.
type Pipeline struct {
	studio           *studio.Studio
	capturer         Capturer
	doc              *Document
	waitFrame        FrameWaiter
	allowCrossOrigin bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDocument shares a document between pipelines.
func WithDocument(d *Document) Option {
	return func(p *Pipeline) { p.doc = d }
}

// WithFrameWaiter installs the hook run after the selection is cleared.
func WithFrameWaiter(f FrameWaiter) Option {
	return func(p *Pipeline) { p.waitFrame = f }
}

// WithCrossOrigin lets remote images without access permission load.
func WithCrossOrigin(allow bool) Option {
	return func(p *Pipeline) { p.allowCrossOrigin = allow }
}

// NewPipeline creates an export pipeline for s.
func NewPipeline(s *studio.Studio, c Capturer, opts ...Option) *Pipeline {
	p := &Pipeline{
		studio:    s,
		capturer:  c,
		doc:       NewDocument(),
		waitFrame: func(context.Context) error { return nil },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Document returns the document temporary trees are attached to.
func (p *Pipeline) Document() *Document { return p.doc }

// ExportRaster captures the studio at its logical canvas size. The
// selection is cleared for the capture and restored on every path.
func (p *Pipeline) ExportRaster(ctx context.Context) (image.Image, error) {
	log := logger.L(ctx)
	start := time.Now()

	sel := p.studio.Drag.Selection()
	p.studio.Drag.ClearSelection()
	defer p.studio.Drag.RestoreSelection(sel)

	if err := p.waitFrame(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	tree := render.Build(p.studio.Snapshot(), 1)
	tree.Offscreen = true

	p.doc.Attach(tree)
	defer p.doc.Detach(tree)

	img, err := p.capturer.Capture(ctx, tree, render.CaptureOptions{
		Scale:            1,
		Width:            tree.Width,
		Height:           tree.Height,
		AllowCrossOrigin: p.allowCrossOrigin,
	})
	if err != nil {
		log.Warn("capture failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	if b := img.Bounds(); b.Dx() != tree.Width || b.Dy() != tree.Height {
		return nil, fmt.Errorf("%w: %w: got %dx%d, want %dx%d",
			ErrExportFailed, ErrSizeMismatch, b.Dx(), b.Dy(), tree.Width, tree.Height)
	}

	log.Debug("exported raster",
		zap.Int("width", tree.Width),
		zap.Int("height", tree.Height),
		zap.Int("layers", len(tree.Layers)),
		zap.Duration("took", time.Since(start)))
	return img, nil
}

// ExportPNG exports the studio and encodes it as PNG to w.
func (p *Pipeline) ExportPNG(ctx context.Context, w io.Writer) error {
	img, err := p.ExportRaster(ctx)
	if err != nil {
		return err
	}
	return EncodePNG(w, img)
}

// Filename returns the download name for an export made at now.
func Filename(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = "post"
	}
	return fmt.Sprintf("%s-%d.png", prefix, now.UnixMilli())
}
