package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xob0t/poststudio/pkg/render"
	"github.com/xob0t/poststudio/pkg/studio"
)

// fakeCapturer records what it was asked to capture.
type fakeCapturer struct {
	doc  *Document
	s    *studio.Studio
	err  error
	size image.Point // zero means the requested size

	calls        int
	tree         *render.Tree
	opts         render.CaptureOptions
	attached     bool
	selAtCapture studio.Selection
}

func (f *fakeCapturer) Capture(_ context.Context, t *render.Tree, opts render.CaptureOptions) (image.Image, error) {
	f.calls++
	f.tree, f.opts = t, opts
	f.attached = f.doc.Attached(t)
	f.selAtCapture = f.s.Drag.Selection()
	if f.err != nil {
		return nil, f.err
	}
	size := f.size
	if size == (image.Point{}) {
		size = image.Pt(opts.Width, opts.Height)
	}
	return image.NewRGBA(image.Rectangle{Max: size}), nil
}

func newFixture(t *testing.T) (*studio.Studio, *fakeCapturer, *Pipeline) {
	t.Helper()
	s := studio.New(studio.DefaultCanvas)
	s.SetBackground("asset:bg")
	s.AddLogo("asset:logo")
	s.AddText(studio.Headline)
	require.NoError(t, s.Drag.SetDisplayScale(0.35))

	doc := NewDocument()
	fc := &fakeCapturer{doc: doc, s: s}
	return s, fc, NewPipeline(s, fc, WithDocument(doc))
}

func TestExportRasterUnscaledAndDeselected(t *testing.T) {
	s, fc, p := newFixture(t)
	before := s.Drag.Selection()
	require.False(t, before.None())

	img, err := p.ExportRaster(context.Background())
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 1080, 1500), img.Bounds())
	assert.True(t, fc.attached, "tree attached during capture")
	assert.True(t, fc.selAtCapture.None(), "no selection during capture")
	assert.Equal(t, 1.0, fc.tree.Scale)
	assert.True(t, fc.tree.Offscreen)
	for _, n := range fc.tree.Layers {
		assert.False(t, n.IsSelected())
	}
	assert.Equal(t, render.CaptureOptions{Scale: 1, Width: 1080, Height: 1500}, fc.opts)
	assert.Nil(t, fc.opts.Background, "transparent base")

	assert.Equal(t, before, s.Drag.Selection())
	assert.Zero(t, p.Document().Len())
	assert.Equal(t, 0.35, s.Drag.DisplayScale(), "editor scale untouched")
}

func TestExportRasterFailureRestores(t *testing.T) {
	s, fc, p := newFixture(t)
	fc.err = errors.New("tainted canvas")
	before := s.Drag.Selection()

	_, err := p.ExportRaster(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExportFailed)

	assert.Equal(t, before, s.Drag.Selection())
	assert.Zero(t, p.Document().Len(), "no orphaned tree")

	// retry succeeds once the cause is gone
	fc.err = nil
	_, err = p.ExportRaster(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, fc.calls)
}

func TestExportRasterBackgroundSelectionRestored(t *testing.T) {
	s, _, p := newFixture(t)
	s.Drag.SelectBackground()

	_, err := p.ExportRaster(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Drag.Selection().Background)
}

func TestExportRasterSizeMismatch(t *testing.T) {
	_, fc, p := newFixture(t)
	fc.size = image.Pt(378, 525)

	_, err := p.ExportRaster(context.Background())
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.ErrorIs(t, err, ErrExportFailed)
	assert.Zero(t, p.Document().Len())
}

func TestExportRasterFrameWaiter(t *testing.T) {
	s, fc, _ := newFixture(t)
	var seen studio.Selection
	waited := false
	p := NewPipeline(s, fc, WithDocument(fc.doc), WithFrameWaiter(func(context.Context) error {
		waited = true
		seen = s.Drag.Selection()
		return nil
	}))

	_, err := p.ExportRaster(context.Background())
	require.NoError(t, err)
	assert.True(t, waited)
	assert.True(t, seen.None(), "frame waited after the clear")
}

func TestExportRasterFrameWaiterError(t *testing.T) {
	s, fc, _ := newFixture(t)
	before := s.Drag.Selection()
	p := NewPipeline(s, fc, WithDocument(fc.doc), WithFrameWaiter(func(ctx context.Context) error {
		return context.Canceled
	}))

	_, err := p.ExportRaster(context.Background())
	assert.ErrorIs(t, err, ErrExportFailed)
	assert.Zero(t, fc.calls)
	assert.Equal(t, before, s.Drag.Selection())
}

func TestExportCrossOriginOption(t *testing.T) {
	s, fc, _ := newFixture(t)
	p := NewPipeline(s, fc, WithDocument(fc.doc), WithCrossOrigin(true))
	_, err := p.ExportRaster(context.Background())
	require.NoError(t, err)
	assert.True(t, fc.opts.AllowCrossOrigin)
}

func TestExportPNGWithRasterizer(t *testing.T) {
	s := studio.New(studio.Canvas{Width: 120, Height: 90})
	s.AddText(studio.Subtitle)
	p := NewPipeline(s, render.NewRasterizer(nil, nil, nil))

	var buf bytes.Buffer
	require.NoError(t, p.ExportPNG(context.Background(), &buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 90), img.Bounds())
}

func TestWritePNGFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, WritePNGFile(path, image.NewRGBA(image.Rect(0, 0, 3, 2))))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Width)
	assert.Equal(t, 2, cfg.Height)

	assert.Error(t, WritePNGFile(filepath.Join(t.TempDir(), "missing", "out.png"), image.NewRGBA(image.Rect(0, 0, 1, 1))))
}

func TestFilename(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "post-1700000000123.png", Filename("post", now))
	assert.Equal(t, "post-1700000000123.png", Filename("", now))
	assert.Equal(t, "promo-1700000000123.png", Filename("promo", now))
}

func TestBundleRoundTrip(t *testing.T) {
	in := Bundle{
		Text:    "Hello #brand",
		Image:   []byte("\x89PNG fake"),
		Project: []byte(`{"version":1}`),
		Assets: []BundleAsset{
			{ID: "b2", Name: "logo.png", Mime: "image/png", Data: []byte("logo")},
			{ID: "a1", Mime: "image/jpeg", Data: []byte("bg")},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, in))

	out, err := ReadBundle(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, in.Text, out.Text)
	assert.Equal(t, in.Image, out.Image)
	assert.JSONEq(t, `{"version":1}`, string(out.Project))
	require.Len(t, out.Assets, 2)
	assert.Equal(t, "a1", out.Assets[0].ID)
	assert.Equal(t, []byte("bg"), out.Assets[0].Data)
	assert.Equal(t, "b2", out.Assets[1].ID)
	assert.Equal(t, "image/png", out.Assets[1].Mime)
}

func TestWriteBundleNeedsProject(t *testing.T) {
	assert.ErrorIs(t, WriteBundle(&bytes.Buffer{}, Bundle{Text: "x"}), ErrInvalidBundle)
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadBundleRejects(t *testing.T) {
	tests := map[string][]byte{
		"not a zip":   []byte("plain text"),
		"no project":  zipOf(t, map[string]string{"content.txt": "hi"}),
		"zip slip":    zipOf(t, map[string]string{"project.json": "{}", "../evil.png": "x"}),
		"absolute":    zipOf(t, map[string]string{"project.json": "{}", "/etc/passwd": "x"}),
		"backslashes": zipOf(t, map[string]string{"project.json": "{}", `..\\evil`: "x"}),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadBundle(data)
			assert.ErrorIs(t, err, ErrInvalidBundle)
		})
	}
}
