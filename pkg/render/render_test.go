package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/gomono"
	"gonum.org/v1/gonum/mat"

	"github.com/xob0t/poststudio/internal/config"
	"github.com/xob0t/poststudio/pkg/studio"
)

type memImages map[string]image.Image

func (m memImages) Load(_ context.Context, ref string, _ bool) (image.Image, error) {
	img, ok := m[ref]
	if !ok {
		return nil, errors.New("no such image")
	}
	return img, nil
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestBuildOrderAndSelection(t *testing.T) {
	s := studio.New(studio.DefaultCanvas)
	s.SetBackground("asset:bg")
	logo := s.AddLogo("asset:logo")
	text := s.AddText(studio.Headline)
	s.Layers.Reorder(logo.ID, 5)
	s.Drag.SelectLayer(text.ID)

	tree := Build(s.Snapshot(), 0.35)

	require.NotNil(t, tree.Background)
	assert.False(t, tree.Background.Selected)
	require.Len(t, tree.Layers, 2)
	assert.Equal(t, text.ID, tree.Layers[0].NodeID())
	assert.True(t, tree.Layers[0].IsSelected())
	assert.Equal(t, logo.ID, tree.Layers[1].NodeID())
	assert.False(t, tree.Layers[1].IsSelected())
	assert.Equal(t, []string{"asset:bg", "asset:logo"}, tree.Images())

	w, h := tree.PixelSize()
	assert.Equal(t, 378, w)
	assert.Equal(t, 525, h)
}

func TestBuildInvalidScaleIsOne(t *testing.T) {
	s := studio.New(studio.DefaultCanvas)
	for _, scale := range []float64{0, -2} {
		assert.Equal(t, 1.0, Build(s.Snapshot(), scale).Scale)
	}
}

func TestBuildTextLines(t *testing.T) {
	s := studio.New(studio.DefaultCanvas)
	l := s.AddText(studio.Subtitle)
	require.NoError(t, s.UpdateLayer(l.ID, studio.Patch{Text: ptr("one\r\ntwo\nthree")}))

	tree := Build(s.Snapshot(), 1)
	n := tree.Layers[0].(*TextNode)
	assert.Equal(t, []string{"one", "two", "three"}, n.Lines)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, n.Color)
	assert.False(t, n.Bold)
}

func TestSplitLinesNFC(t *testing.T) {
	// "e" + combining acute composes to a single rune.
	assert.Equal(t, []string{"\u00e9"}, splitLines("e\u0301"))
}

func TestDisplayScale(t *testing.T) {
	assert.Equal(t, 0.22, DisplayScale(375, DefaultDisplay))
	assert.Equal(t, 0.35, DisplayScale(768, DefaultDisplay))
	assert.Equal(t, 0.35, DisplayScale(1920, DefaultDisplay))
	assert.Equal(t, 0.35, DisplayScale(0, DefaultDisplay))
}

// compose multiplies the stages into a single matrix, last stage leftmost.
func compose(chain []Filter) *mat.Dense {
	out := identity4()
	for _, f := range chain {
		var next mat.Dense
		next.Mul(f.Matrix(), out)
		out = &next
	}
	return out
}

func TestNeutralChainIsIdentity(t *testing.T) {
	chain := FilterChain(studio.NeutralAdjustment)
	require.Len(t, chain, 4)
	for _, f := range chain {
		assert.True(t, f.Identity(), f.Kind.String())
	}
	assert.True(t, mat.EqualApprox(compose(chain), identity4(), 1e-9))
	assert.Equal(t, "brightness(1) contrast(1) saturate(1) hue-rotate(0deg)", CSS(chain))
}

func TestFilterChainOrder(t *testing.T) {
	a := studio.NeutralAdjustment
	a.Brightness, a.Contrast, a.Saturation, a.Hue = 150, 80, 0, 90
	chain := FilterChain(a)
	assert.Equal(t, []Filter{
		{Brightness, 1.5},
		{Contrast, 0.8},
		{Saturate, 0},
		{HueRotate, 90},
	}, chain)
}

func TestApplyFilters(t *testing.T) {
	tests := []struct {
		name  string
		chain []Filter
		in    color.RGBA
		want  color.RGBA
	}{
		{"brightness zero is black", []Filter{{Brightness, 0}}, color.RGBA{200, 100, 50, 255}, color.RGBA{0, 0, 0, 255}},
		{"brightness clamps", []Filter{{Brightness, 2}}, color.RGBA{200, 100, 0, 255}, color.RGBA{255, 200, 0, 255}},
		{"contrast zero is grey", []Filter{{Contrast, 0}}, color.RGBA{10, 240, 90, 255}, color.RGBA{128, 128, 128, 255}},
		{"saturate zero keeps grey", []Filter{{Saturate, 0}}, color.RGBA{90, 90, 90, 255}, color.RGBA{90, 90, 90, 255}},
		{"transparent untouched", []Filter{{Brightness, 0}}, color.RGBA{}, color.RGBA{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := solid(2, 2, tt.in)
			ApplyFilters(img, tt.chain)
			assert.Equal(t, tt.want, img.RGBAAt(1, 1))
		})
	}
}

func TestHueRotateFullTurn(t *testing.T) {
	img := solid(1, 1, color.RGBA{200, 40, 40, 255})
	ApplyFilters(img, []Filter{{HueRotate, 360}})
	got := img.RGBAAt(0, 0)
	assert.InDelta(t, 200, int(got.R), 1)
	assert.InDelta(t, 40, int(got.G), 1)
	assert.InDelta(t, 40, int(got.B), 1)
}

func TestCoverCrop(t *testing.T) {
	assert.Equal(t, image.Rect(25, 0, 75, 50), coverCrop(image.Rect(0, 0, 100, 50), 1))
	assert.Equal(t, image.Rect(0, 25, 50, 75), coverCrop(image.Rect(0, 0, 50, 100), 1))
	assert.Equal(t, image.Rect(0, 0, 60, 60), coverCrop(image.Rect(0, 0, 60, 60), 1))
}

func TestCaptureSize(t *testing.T) {
	s := studio.New(studio.Canvas{Width: 100, Height: 140})
	r := NewRasterizer(nil, nil, nil)

	img, err := r.Capture(context.Background(), Build(s.Snapshot(), 0.5), CaptureOptions{})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 70), img.Bounds())

	img, err = r.Capture(context.Background(), Build(s.Snapshot(), 0.5), CaptureOptions{Width: 100, Height: 140})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 140), img.Bounds())
}

func TestCaptureTransparentBase(t *testing.T) {
	s := studio.New(studio.Canvas{Width: 40, Height: 40})
	img, err := NewRasterizer(nil, nil, nil).Capture(context.Background(), Build(s.Snapshot(), 1), CaptureOptions{})
	require.NoError(t, err)
	_, _, _, a := img.At(20, 20).RGBA()
	assert.Zero(t, a)
}

func TestCaptureBackgroundCoversCanvas(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	s := studio.New(studio.Canvas{Width: 60, Height: 80})
	s.SetBackground("asset:bg")

	r := NewRasterizer(memImages{"asset:bg": solid(300, 100, red)}, nil, nil)
	img, err := r.Capture(context.Background(), Build(s.Snapshot(), 1), CaptureOptions{})
	require.NoError(t, err)

	rgba := img.(*image.RGBA)
	for _, p := range []image.Point{{0, 0}, {59, 0}, {30, 40}, {0, 79}, {59, 79}} {
		assert.Equal(t, red, rgba.RGBAAt(p.X, p.Y), "pixel %v", p)
	}
}

func TestCaptureBackgroundPanLeavesGap(t *testing.T) {
	s := studio.New(studio.Canvas{Width: 60, Height: 80})
	s.SetBackground("asset:bg")
	s.Adjust.SetOffset(studio.Point{X: 30, Y: 0})

	r := NewRasterizer(memImages{"asset:bg": solid(60, 80, color.RGBA{0, 0, 255, 255})}, nil, nil)
	img, err := r.Capture(context.Background(), Build(s.Snapshot(), 1), CaptureOptions{})
	require.NoError(t, err)

	rgba := img.(*image.RGBA)
	assert.Zero(t, rgba.RGBAAt(5, 40).A)
	assert.Equal(t, uint8(255), rgba.RGBAAt(50, 40).B)
}

func TestCaptureLogoIsCircle(t *testing.T) {
	green := color.RGBA{0, 255, 0, 255}
	s := studio.New(studio.Canvas{Width: 100, Height: 100})
	l := s.AddLogo("asset:logo")
	require.NoError(t, s.UpdateLayer(l.ID, studio.Patch{X: ptr(0.0), Y: ptr(0.0), Size: ptr(100.0)}))
	s.Drag.ClearSelection()

	r := NewRasterizer(memImages{"asset:logo": solid(10, 10, green)}, nil, nil)
	img, err := r.Capture(context.Background(), Build(s.Snapshot(), 1), CaptureOptions{})
	require.NoError(t, err)

	rgba := img.(*image.RGBA)
	assert.Equal(t, green, rgba.RGBAAt(50, 50))
	assert.Zero(t, rgba.RGBAAt(1, 1).A, "corner outside the circle")
}

func TestCaptureMissingImageFails(t *testing.T) {
	s := studio.New(studio.Canvas{Width: 10, Height: 10})
	s.SetBackground("asset:gone")

	_, err := NewRasterizer(memImages{}, nil, nil).Capture(context.Background(), Build(s.Snapshot(), 1), CaptureOptions{})
	assert.Error(t, err)
}

func TestCaptureDrawsText(t *testing.T) {
	s := studio.New(studio.Canvas{Width: 400, Height: 200})
	l := s.AddText(studio.Headline)
	require.NoError(t, s.UpdateLayer(l.ID, studio.Patch{X: ptr(0.0), Y: ptr(0.0), FontSize: ptr(80.0), Text: ptr("HH")}))
	s.Drag.ClearSelection()

	img, err := NewRasterizer(nil, nil, nil).Capture(context.Background(), Build(s.Snapshot(), 1), CaptureOptions{})
	require.NoError(t, err)

	rgba := img.(*image.RGBA)
	painted := 0
	for y := 0; y < 120; y++ {
		for x := 0; x < 200; x++ {
			if rgba.RGBAAt(x, y).A > 0 {
				painted++
			}
		}
	}
	assert.Greater(t, painted, 100)
}

func TestFontBookFallsBack(t *testing.T) {
	fb := NewFontBook([]FontFiles{{Family: "Kanit", Regular: "/nonexistent/Kanit.ttf"}}, nil)
	face, err := fb.Face("Kanit", false, false, 24)
	require.NoError(t, err)
	defer face.Close()
	assert.Positive(t, face.Metrics().Ascent.Ceil())

	face2, err := fb.Face("Unknown", true, true, 24)
	require.NoError(t, err)
	face2.Close()
}

func TestFontBookHasThaiGlyphs(t *testing.T) {
	fb := NewFontBook(nil, nil)
	for _, bold := range []bool{false, true} {
		face, err := fb.Face("Sarabun", bold, false, 120)
		require.NoError(t, err)
		for _, r := range "สวัสดีครับ Sale 50%" {
			_, ok := face.GlyphAdvance(r)
			assert.True(t, ok, "%U bold=%v", r, bold)
		}
		require.NoError(t, face.Close())
	}
}

func TestFontBookDefaultFamily(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Mono.ttf")
	require.NoError(t, os.WriteFile(path, gomono.TTF, 0o644))

	fb := FontBookFromConfig(config.Fonts{
		DefaultFamily: "Sarabun",
		Families:      []config.FontFamily{{Name: "Sarabun", Regular: path}},
	}, nil)

	// families without files borrow the default family's, so the
	// monospaced file sets every advance
	face, err := fb.Face("Kanit", false, false, 40)
	require.NoError(t, err)
	defer face.Close()
	i, ok := face.GlyphAdvance('i')
	require.True(t, ok)
	m, ok := face.GlyphAdvance('M')
	require.True(t, ok)
	assert.Equal(t, m, i)

	// Thai is not in the file and comes from the embedded face
	_, ok = face.GlyphAdvance('ส')
	assert.True(t, ok)
}

func TestCaptureDrawsThaiText(t *testing.T) {
	s := studio.New(studio.Canvas{Width: 600, Height: 200})
	l := s.AddText(studio.Headline)
	require.NoError(t, s.UpdateLayer(l.ID, studio.Patch{X: ptr(0.0), Y: ptr(0.0), FontSize: ptr(80.0), Text: ptr("สวัสดี")}))
	s.Drag.ClearSelection()

	raster := NewRasterizer(nil, nil, nil)
	thai, err := raster.Capture(context.Background(), Build(s.Snapshot(), 1), CaptureOptions{})
	require.NoError(t, err)

	// the same number of runes drawn as .notdef boxes
	require.NoError(t, s.UpdateLayer(l.ID, studio.Patch{Text: ptr("\U000F0000\U000F0001\U000F0002\U000F0003\U000F0004\U000F0005")}))
	boxes, err := raster.Capture(context.Background(), Build(s.Snapshot(), 1), CaptureOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, thai.(*image.RGBA).Pix, boxes.(*image.RGBA).Pix)
	painted := 0
	rgba := thai.(*image.RGBA)
	for y := 0; y < 150; y++ {
		for x := 0; x < 600; x++ {
			if rgba.RGBAAt(x, y).A > 0 {
				painted++
			}
		}
	}
	assert.Greater(t, painted, 100)
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#f00")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, c)

	c, err = ParseHex("00ff00")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, c)

	_, err = ParseHex("nope")
	assert.Error(t, err)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, ParseHexRGBA("nope"))
}

func ptr[T any](v T) *T { return &v }
