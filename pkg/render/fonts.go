// fonts.go - Font management with per-family TTF files and embedded fallback fonts.
// Uses golang.org/x/image/font for OpenType rendering. Families without a
// configured file, or whose file fails to load, use the default family's
// files, then the embedded Noto Sans Thai and Go fonts. Each rune is drawn
// with the first face that has a glyph for it.
package render

import (
	_ "embed"
	"fmt"
	"image"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/xob0t/poststudio/internal/config"
)

//go:embed fonts/NotoSansThai-Regular.ttf
var thaiTTF []byte

// FontFiles lists the TTF paths for one family. Empty paths fall back.
type FontFiles struct {
	Family     string
	Regular    string
	Bold       string
	Italic     string
	BoldItalic string
}

type variant int

const (
	regular variant = iota
	bold
	italic
	boldItalic
)

func variantOf(isBold, isItalic bool) variant {
	switch {
	case isBold && isItalic:
		return boldItalic
	case isBold:
		return bold
	case isItalic:
		return italic
	default:
		return regular
	}
}

var embedded = map[variant][]byte{
	regular:    goregular.TTF,
	bold:       gobold.TTF,
	italic:     goitalic.TTF,
	boldItalic: gobolditalic.TTF,
}

// FontBook resolves family/variant pairs to parsed fonts, caching them.
type FontBook struct {
	mu       sync.Mutex
	files    map[string]FontFiles
	fallback string
	parsed   map[string]*opentype.Font // by path, or "embedded:<name>"
	failed   map[string]bool
	log      *zap.Logger
	dpi      float64
}

// NewFontBook creates a font book over the given family files.
func NewFontBook(families []FontFiles, log *zap.Logger) *FontBook {
	if log == nil {
		log = zap.NewNop()
	}
	fb := &FontBook{
		files:  make(map[string]FontFiles, len(families)),
		parsed: make(map[string]*opentype.Font),
		failed: make(map[string]bool),
		log:    log,
		dpi:    72,
	}
	for _, f := range families {
		fb.files[f.Family] = f
	}
	return fb
}

// SetFallbackFamily names the family whose files stand in for families
// without their own.
func (fb *FontBook) SetFallbackFamily(family string) {
	fb.mu.Lock()
	fb.fallback = family
	fb.mu.Unlock()
}

// FontBookFromConfig creates a font book over the configured families.
func FontBookFromConfig(fonts config.Fonts, log *zap.Logger) *FontBook {
	families := make([]FontFiles, 0, len(fonts.Families))
	for _, f := range fonts.Families {
		families = append(families, FontFiles{
			Family:     f.Name,
			Regular:    f.Regular,
			Bold:       f.Bold,
			Italic:     f.Italic,
			BoldItalic: f.BoldItalic,
		})
	}
	fb := NewFontBook(families, log)
	fb.SetFallbackFamily(fonts.DefaultFamily)
	return fb
}

func (f FontFiles) path(v variant) string {
	switch v {
	case bold:
		return f.Bold
	case italic:
		return f.Italic
	case boldItalic:
		return f.BoldItalic
	default:
		return f.Regular
	}
}

// fileFont returns the configured font for family/variant, or nil. Caller
// holds fb.mu.
func (fb *FontBook) fileFont(family string, v variant) *opentype.Font {
	p := fb.files[family].path(v)
	if p == "" || fb.failed[p] {
		return nil
	}
	if f, ok := fb.parsed[p]; ok {
		return f
	}
	f, err := parseFile(p)
	if err != nil {
		fb.failed[p] = true
		fb.log.Warn("could not load font, using fallback",
			zap.String("family", family), zap.String("path", p), zap.Error(err))
		return nil
	}
	fb.parsed[p] = f
	return f
}

// embeddedFont parses one of the built-in fonts. Caller holds fb.mu.
func (fb *FontBook) embeddedFont(name string, data []byte) (*opentype.Font, error) {
	key := "embedded:" + name
	if f, ok := fb.parsed[key]; ok {
		return f, nil
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded font %s: %w", name, err)
	}
	fb.parsed[key] = f
	return f, nil
}

// fonts returns the lookup chain for family/variant. Caller holds fb.mu.
// The Thai face only has a regular weight, so styled variants try the Go
// fonts first.
func (fb *FontBook) fonts(family string, v variant) ([]*opentype.Font, error) {
	var chain []*opentype.Font
	if f := fb.fileFont(family, v); f != nil {
		chain = append(chain, f)
	} else if fb.fallback != "" && fb.fallback != family {
		if f := fb.fileFont(fb.fallback, v); f != nil {
			chain = append(chain, f)
		}
	}

	thai, err := fb.embeddedFont("thai", thaiTTF)
	if err != nil {
		return nil, err
	}
	gof, err := fb.embeddedFont(fmt.Sprintf("go-%d", v), embedded[v])
	if err != nil {
		return nil, err
	}
	if v == regular {
		return append(chain, thai, gof), nil
	}
	return append(chain, gof, thai), nil
}

func parseFile(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return opentype.Parse(data)
}

// Face returns a new font.Face at size pixels. The caller closes it.
func (fb *FontBook) Face(family string, isBold, isItalic bool, size float64) (font.Face, error) {
	fb.mu.Lock()
	chain, err := fb.fonts(family, variantOf(isBold, isItalic))
	fb.mu.Unlock()
	if err != nil {
		return nil, err
	}

	faces := make(fallbackFace, 0, len(chain))
	for _, f := range chain {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{
			Size:    size,
			DPI:     fb.dpi,
			Hinting: font.HintingNone,
		})
		if err != nil {
			faces.Close()
			return nil, fmt.Errorf("failed to create font face: %w", err)
		}
		faces = append(faces, face)
	}
	return faces, nil
}

// fallbackFace draws each rune with the first face that has a glyph for it.
// Metrics come from the first face.
type fallbackFace []font.Face

func (ff fallbackFace) pick(r rune) font.Face {
	for _, f := range ff {
		if _, ok := f.GlyphAdvance(r); ok {
			return f
		}
	}
	return ff[0]
}

func (ff fallbackFace) Close() error {
	var first error
	for _, f := range ff {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ff fallbackFace) Glyph(dot fixed.Point26_6, r rune) (image.Rectangle, image.Image, image.Point, fixed.Int26_6, bool) {
	return ff.pick(r).Glyph(dot, r)
}

func (ff fallbackFace) GlyphBounds(r rune) (fixed.Rectangle26_6, fixed.Int26_6, bool) {
	return ff.pick(r).GlyphBounds(r)
}

func (ff fallbackFace) GlyphAdvance(r rune) (fixed.Int26_6, bool) {
	return ff.pick(r).GlyphAdvance(r)
}

func (ff fallbackFace) Kern(r0, r1 rune) fixed.Int26_6 {
	f := ff.pick(r0)
	if f != ff.pick(r1) {
		return 0
	}
	return f.Kern(r0, r1)
}

func (ff fallbackFace) Metrics() font.Metrics {
	return ff[0].Metrics()
}
