// Package studio holds the editable state of a composition: the layer
// store, the selection and drag controller and the background adjustments.
//
// All coordinates are in logical canvas units. On-screen pixels only enter
// through the drag controller, which divides pointer deltas by the display
// scale.
package studio

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/sahilm/fuzzy"
)

// ── Canvas ──

// Canvas is the fixed logical size of the composition and of the export.
type Canvas struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultCanvas is the 3:4-ish portrait post format.
var DefaultCanvas = Canvas{Width: 1080, Height: 1500}

// Point is a position in either logical or screen units, depending on use.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ── Layers ──

// Layer is a positioned, ordered element painted over the background.
// It is implemented only by *LogoLayer and *TextLayer; callers switch on
// the concrete type.
type Layer interface {
	LayerID() string
	Order() int
	Position() Point
	clone() Layer
	setPosition(Point)
	setOrder(int)
}

// LogoLayer is an image overlay drawn as a circle of diameter Size.
type LogoLayer struct {
	ID     string  `json:"id"`
	Image  string  `json:"image"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Size   float64 `json:"size"`
	ZIndex int     `json:"zIndex"`
}

func (l *LogoLayer) LayerID() string { return l.ID }
func (l *LogoLayer) Order() int { return l.ZIndex }
func (l *LogoLayer) Position() Point { return Point{l.X, l.Y} }
func (l *LogoLayer) clone() Layer { c := *l; return &c }
func (l *LogoLayer) setPosition(p Point) { l.X, l.Y = p.X, p.Y }
func (l *LogoLayer) setOrder(z int) { l.ZIndex = z }

// TextLayer is a block of (possibly multi-line) styled text.
type TextLayer struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	FontSize   float64    `json:"fontSize"`
	FontWeight FontWeight `json:"fontWeight"`
	FontStyle  FontStyle  `json:"fontStyle"`
	Color      string     `json:"color"`
	FontFamily string     `json:"fontFamily"`
	ZIndex     int        `json:"zIndex"`
}

func (t *TextLayer) LayerID() string { return t.ID }
func (t *TextLayer) Order() int { return t.ZIndex }
func (t *TextLayer) Position() Point { return Point{t.X, t.Y} }
func (t *TextLayer) clone() Layer { c := *t; return &c }
func (t *TextLayer) setPosition(p Point) { t.X, t.Y = p.X, p.Y }
func (t *TextLayer) setOrder(z int) { t.ZIndex = z }

// FontWeight is a CSS-style numeric weight.
type FontWeight int

const (
	WeightNormal FontWeight = 400
	WeightBold   FontWeight = 800
)

// IsBold reports whether the weight belongs to the bold class.
func (w FontWeight) IsBold() bool { return w >= 600 }

type FontStyle string

const (
	StyleNormal FontStyle = "normal"
	StyleItalic FontStyle = "italic"
)

// TextKind selects the defaults used by AddText.
type TextKind string

const (
	Headline TextKind = "headline"
	Subtitle TextKind = "subtitle"
)

// ── Defaults and bounds ──

const (
	DefaultLogoSize = 300
	MinLogoSize     = 50
	MaxLogoSize     = 800

	MinFontSize = 20
	MaxFontSize = 400

	DefaultTextColor = "#FFFFFF"

	// baseZIndex is the stacking order given to the first layer.
	baseZIndex = 10
)

type textDefaults struct {
	text     string
	pos      Point
	fontSize float64
	weight   FontWeight
}

var textKinds = map[TextKind]textDefaults{
	Headline: {text: "Headline", pos: Point{100, 200}, fontSize: 120, weight: WeightBold},
	Subtitle: {text: "Subtitle text...", pos: Point{100, 400}, fontSize: 60, weight: WeightNormal},
}

// Families is the fixed set of supported font families.
var Families = []string{
	"Sarabun",
	"Prompt",
	"Kanit",
	"Mitr",
	"Chakra Petch",
	"Bai Jamjuree",
	"Playfair Display",
	"Anton",
	"Charm",
}

// DefaultFamily is used for new text layers.
const DefaultFamily = "Sarabun"

// ResolveFamily maps a user-supplied family name onto the supported set:
// exact (case-insensitive) match first, then the best fuzzy match.
func ResolveFamily(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, f := range Families {
		if strings.EqualFold(f, name) {
			return f, true
		}
	}
	matches := fuzzy.Find(name, Families)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}

// NormalizeColor validates a hex colour and returns it as "#RRGGBB".
func NormalizeColor(s string) (string, error) {
	hex := strings.TrimSpace(s)
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return "", fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return fmt.Sprintf("#%02X%02X%02X", r, g, b), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// ── Patch ──

// Patch is a partial layer update. Nil fields are left untouched; fields
// that do not apply to the target layer kind are ignored.
type Patch struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`

	// Logo
	Image *string  `json:"image,omitempty"`
	Size  *float64 `json:"size,omitempty"`

	// Text
	Text       *string     `json:"text,omitempty"`
	FontSize   *float64    `json:"fontSize,omitempty"`
	FontWeight *FontWeight `json:"fontWeight,omitempty"`
	FontStyle  *FontStyle  `json:"fontStyle,omitempty"`
	Color      *string     `json:"color,omitempty"`
	FontFamily *string     `json:"fontFamily,omitempty"`
}

// ErrInvalidPatch wraps every Patch validation failure.
var ErrInvalidPatch = errors.New("invalid layer patch")

// Validate checks field values and canonicalises color and family names
// in place.
func (p *Patch) Validate() error {
	for name, v := range map[string]*float64{"x": p.X, "y": p.Y, "size": p.Size, "fontSize": p.FontSize} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidPatch, name)
		}
	}
	if p.FontStyle != nil && *p.FontStyle != StyleNormal && *p.FontStyle != StyleItalic {
		return fmt.Errorf("%w: font style %q", ErrInvalidPatch, *p.FontStyle)
	}
	if p.FontWeight != nil && (*p.FontWeight < 100 || *p.FontWeight > 900) {
		return fmt.Errorf("%w: font weight %d", ErrInvalidPatch, *p.FontWeight)
	}
	if p.Color != nil {
		c, err := NormalizeColor(*p.Color)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		p.Color = &c
	}
	if p.FontFamily != nil {
		f, ok := ResolveFamily(*p.FontFamily)
		if !ok {
			return fmt.Errorf("%w: unsupported font family %q", ErrInvalidPatch, *p.FontFamily)
		}
		p.FontFamily = &f
	}
	if p.Image != nil && strings.TrimSpace(*p.Image) == "" {
		return fmt.Errorf("%w: empty image reference", ErrInvalidPatch)
	}
	return nil
}

// apply mutates l with the set fields of p.
func (p Patch) apply(l Layer) {
	pos := l.Position()
	if p.X != nil {
		pos.X = *p.X
	}
	if p.Y != nil {
		pos.Y = *p.Y
	}
	l.setPosition(pos)

	switch l := l.(type) {
	case *LogoLayer:
		if p.Image != nil {
			l.Image = *p.Image
		}
		if p.Size != nil {
			l.Size = clamp(*p.Size, MinLogoSize, MaxLogoSize)
		}
	case *TextLayer:
		if p.Text != nil {
			l.Text = *p.Text
		}
		if p.FontSize != nil {
			l.FontSize = clamp(*p.FontSize, MinFontSize, MaxFontSize)
		}
		if p.FontWeight != nil {
			l.FontWeight = *p.FontWeight
		}
		if p.FontStyle != nil {
			l.FontStyle = *p.FontStyle
		}
		if p.Color != nil {
			l.Color = *p.Color
		}
		if p.FontFamily != nil {
			l.FontFamily = *p.FontFamily
		}
	default:
		panic(fmt.Sprintf("studio: unknown layer type %T", l))
	}
}
