// raster.go - Paints a Tree into an RGBA bitmap.
// Layered approach: background -> layers in paint order -> selection chrome.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"
)

// Box model of the editor nodes, in logical units.
const (
	logoBorder  = 2 // selection ring, always reserved
	textPadding = 8
	textBorder  = 1
)

// ImageSource resolves image references to decoded images.
type ImageSource interface {
	Load(ctx context.Context, ref string, allowCrossOrigin bool) (image.Image, error)
}

// CaptureOptions controls a single capture.
type CaptureOptions struct {
	// Scale is the device pixel ratio on top of the tree scale. Zero means 1.
	Scale float64
	// Width and Height force the output size. Zero derives it from the tree.
	Width, Height int
	// AllowCrossOrigin lets remote images outside the allow-list load.
	AllowCrossOrigin bool
	// Background is the base fill. Nil leaves the base transparent.
	Background color.Color
}

// Rasterizer is the default capture utility.
type Rasterizer struct {
	images ImageSource
	fonts  *FontBook
	log    *zap.Logger
}

// NewRasterizer creates a rasterizer. fonts may be nil, in which case the
// embedded fonts are used.
func NewRasterizer(images ImageSource, fonts *FontBook, log *zap.Logger) *Rasterizer {
	if log == nil {
		log = zap.NewNop()
	}
	if fonts == nil {
		fonts = NewFontBook(nil, log)
	}
	return &Rasterizer{images: images, fonts: fonts, log: log}
}

// Capture paints t. Any image that fails to load fails the capture.
func (r *Rasterizer) Capture(ctx context.Context, t *Tree, opts CaptureOptions) (image.Image, error) {
	if t == nil || t.Width <= 0 || t.Height <= 0 {
		return nil, fmt.Errorf("capture: empty tree")
	}
	ratio := opts.Scale
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		ratio = 1
	}

	w, h := opts.Width, opts.Height
	k := t.Scale * ratio
	if w > 0 && h > 0 {
		k = float64(w) / float64(t.Width)
	} else {
		w = int(math.Round(float64(t.Width) * k))
		h = int(math.Round(float64(t.Height) * k))
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("capture: output size %dx%d", w, h)
	}

	images, err := r.loadImages(ctx, t, opts.AllowCrossOrigin)
	if err != nil {
		return nil, err
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if opts.Background != nil {
		draw.Draw(out, out.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)
	}

	p := painter{dst: out, k: k, canvas: image.Pt(t.Width, t.Height)}
	if bg := t.Background; bg != nil {
		p.background(bg, images[bg.Image])
	}
	for _, n := range t.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch n := n.(type) {
		case *LogoNode:
			p.logo(n, images[n.Image])
		case *TextNode:
			if err := r.text(&p, n); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// loadImages fetches every distinct reference in t concurrently.
func (r *Rasterizer) loadImages(ctx context.Context, t *Tree, allowCrossOrigin bool) (map[string]image.Image, error) {
	refs := t.Images()
	images := make(map[string]image.Image, len(refs))
	if len(refs) == 0 {
		return images, nil
	}
	if r.images == nil {
		return nil, fmt.Errorf("capture: no image source for %d image(s)", len(refs))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, ref := range refs {
		g.Go(func() error {
			img, err := r.images.Load(gctx, ref, allowCrossOrigin)
			if err != nil {
				return fmt.Errorf("load image: %w", err)
			}
			mu.Lock()
			images[ref] = img
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// painter maps logical units to output pixels.
type painter struct {
	dst    *image.RGBA
	k      float64
	canvas image.Point
}

func (p *painter) px(v float64) int { return int(math.Round(v * p.k)) }

func (p *painter) rect(x, y, w, h float64) image.Rectangle {
	return image.Rect(p.px(x), p.px(y), p.px(x+w), p.px(y+h))
}

// outline returns the chrome thickness for a logical stroke width.
func (p *painter) outline(width float64) int {
	return max(1, int(math.Round(width*p.k)))
}

// background covers the canvas with img, pans and zooms it around the canvas
// centre and runs the filter chain over the painted pixels only.
func (p *painter) background(bg *BackgroundNode, img image.Image) {
	cw, ch := float64(p.canvas.X), float64(p.canvas.Y)
	if img != nil {
		zoom := bg.Zoom
		if zoom <= 0 || math.IsNaN(zoom) {
			zoom = 1
		}
		layer := image.NewRGBA(p.dst.Bounds())
		w, h := cw*zoom, ch*zoom
		x := cw/2 + bg.OffsetX - w/2
		y := ch/2 + bg.OffsetY - h/2
		draw.CatmullRom.Scale(layer, p.rect(x, y, w, h), img, coverCrop(img.Bounds(), cw/ch), draw.Src, nil)
		ApplyFilters(layer, bg.Filters)
		draw.Draw(p.dst, p.dst.Bounds(), layer, image.Point{}, draw.Over)
	}
	if bg.Selected {
		p.frame(p.dst.Bounds(), p.outline(4), selectionColor, false)
	}
}

// coverCrop returns the centred sub-rectangle of b with the given aspect
// ratio (width / height), as object-fit: cover picks it.
func coverCrop(b image.Rectangle, aspect float64) image.Rectangle {
	iw, ih := float64(b.Dx()), float64(b.Dy())
	if iw <= 0 || ih <= 0 {
		return b
	}
	if iw/ih > aspect {
		cw := int(math.Round(ih * aspect))
		x0 := b.Min.X + (b.Dx()-cw)/2
		return image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	}
	chh := int(math.Round(iw / aspect))
	y0 := b.Min.Y + (b.Dy()-chh)/2
	return image.Rect(b.Min.X, y0, b.Max.X, y0+chh)
}

func (p *painter) logo(n *LogoNode, img image.Image) {
	outer := p.rect(n.X, n.Y, n.Size, n.Size)
	if outer.Empty() {
		return
	}
	d := outer.Dx()
	ring := p.outline(logoBorder)

	if img != nil {
		inner := image.NewRGBA(image.Rect(0, 0, d, d))
		draw.CatmullRom.Scale(inner, image.Rect(ring, ring, d-ring, d-ring), img, coverCrop(img.Bounds(), 1), draw.Src, nil)
		draw.DrawMask(p.dst, outer, inner, image.Point{}, &disc{d: float64(d)}, image.Point{}, draw.Over)
	}
	if n.Selected {
		draw.DrawMask(p.dst, outer, image.NewUniform(selectionColor), image.Point{},
			&disc{d: float64(d), inner: float64(d - 2*ring)}, image.Point{}, draw.Over)
	}
}

func (r *Rasterizer) text(p *painter, n *TextNode) error {
	size := n.FontSize * p.k
	if size <= 0 {
		return nil
	}
	face, err := r.fonts.Face(n.Family, n.Bold, n.Italic, size)
	if err != nil {
		return err
	}
	defer face.Close()

	m := face.Metrics()
	lineH := size * LineHeight
	ascent := float64(m.Ascent) / 64
	descent := float64(m.Descent) / 64
	halfLeading := (lineH - ascent - descent) / 2

	inset := (textPadding + textBorder) * p.k
	left := n.X*p.k + inset
	top := n.Y*p.k + inset

	d := &font.Drawer{Dst: p.dst, Src: image.NewUniform(n.Color), Face: face}
	var widest fixed.Int26_6
	for i, line := range n.Lines {
		baseline := top + float64(i)*lineH + halfLeading + ascent
		d.Dot = fixed.Point26_6{X: toFixed(left), Y: toFixed(baseline)}
		d.DrawString(line)
		widest = max(widest, d.Dot.X-toFixed(left))
	}

	if n.Selected {
		w := float64(widest)/64 + 2*inset
		h := float64(len(n.Lines))*lineH + 2*inset
		box := image.Rect(int(math.Round(n.X*p.k)), int(math.Round(n.Y*p.k)),
			int(math.Round(n.X*p.k+w)), int(math.Round(n.Y*p.k+h)))
		p.frame(box, p.outline(textBorder), selectionColor, true)
	}
	return nil
}

func toFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }

// frame strokes the inside edge of r. Dashed frames alternate runs of
// three times the stroke width.
func (p *painter) frame(r image.Rectangle, width int, c color.Color, dashed bool) {
	src := image.NewUniform(c)
	dash := 3 * width
	on := func(i int) bool { return !dashed || (i/dash)%2 == 0 }

	for x := r.Min.X; x < r.Max.X; x += width {
		if !on(x - r.Min.X) {
			continue
		}
		x1 := min(x+width, r.Max.X)
		draw.Draw(p.dst, image.Rect(x, r.Min.Y, x1, r.Min.Y+width), src, image.Point{}, draw.Over)
		draw.Draw(p.dst, image.Rect(x, r.Max.Y-width, x1, r.Max.Y), src, image.Point{}, draw.Over)
	}
	for y := r.Min.Y + width; y < r.Max.Y-width; y += width {
		if !on(y - r.Min.Y) {
			continue
		}
		y1 := min(y+width, r.Max.Y-width)
		draw.Draw(p.dst, image.Rect(r.Min.X, y, r.Min.X+width, y1), src, image.Point{}, draw.Over)
		draw.Draw(p.dst, image.Rect(r.Max.X-width, y, r.Max.X, y1), src, image.Point{}, draw.Over)
	}
}

// disc is an anti-aliased alpha mask of a circle of diameter d, or of a
// ring when inner > 0.
type disc struct {
	d, inner float64
}

func (c *disc) ColorModel() color.Model { return color.AlphaModel }

func (c *disc) Bounds() image.Rectangle {
	n := int(math.Ceil(c.d))
	return image.Rect(0, 0, n, n)
}

func (c *disc) At(x, y int) color.Color {
	r := c.d / 2
	dist := math.Hypot(float64(x)+0.5-r, float64(y)+0.5-r)
	a := clamp01(r - dist + 0.5)
	if c.inner > 0 {
		a = math.Min(a, clamp01(dist-c.inner/2+0.5))
	}
	return color.Alpha{A: uint8(math.Round(a * 255))}
}
