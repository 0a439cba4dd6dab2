package studio

import "math"

// Bounds for background adjustments. Offsets are unbounded.
const (
	MinZoom = 0.5
	MaxZoom = 3.0

	MinFilterPercent = 0
	MaxFilterPercent = 200

	MinHue = -180
	MaxHue = 180
)

// Adjustment is the background transform and colour-filter state.
// Brightness, Contrast and Saturation are percentages (100 = neutral);
// Hue is a rotation in degrees.
type Adjustment struct {
	OffsetX    float64 `json:"offsetX"`
	OffsetY    float64 `json:"offsetY"`
	Zoom       float64 `json:"zoom"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
	Hue        float64 `json:"hue"`
}

// NeutralAdjustment leaves the background untouched.
var NeutralAdjustment = Adjustment{Zoom: 1, Brightness: 100, Contrast: 100, Saturation: 100}

// FiltersNeutral reports whether every colour filter is at its neutral value.
func (a Adjustment) FiltersNeutral() bool {
	return a.Brightness == 100 && a.Contrast == 100 && a.Saturation == 100 && a.Hue == 0
}

// Adjustments owns an Adjustment and keeps every field inside its bounds.
type Adjustments struct {
	v Adjustment
}

// NewAdjustments returns neutral adjustments.
func NewAdjustments() *Adjustments {
	return &Adjustments{v: NeutralAdjustment}
}

// Value returns the current state.
func (a *Adjustments) Value() Adjustment { return a.v }

// Reset restores neutral values.
func (a *Adjustments) Reset() { a.v = NeutralAdjustment }

func set(dst *float64, v, lo, hi float64) {
	if math.IsNaN(v) {
		return
	}
	*dst = clamp(v, lo, hi)
}

// SetOffset sets the background pan offset in logical units.
func (a *Adjustments) SetOffset(p Point) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return
	}
	a.v.OffsetX, a.v.OffsetY = p.X, p.Y
}

// Offset returns the background pan offset.
func (a *Adjustments) Offset() Point { return Point{a.v.OffsetX, a.v.OffsetY} }

func (a *Adjustments) SetZoom(v float64) { set(&a.v.Zoom, v, MinZoom, MaxZoom) }
func (a *Adjustments) SetBrightness(v float64) { set(&a.v.Brightness, v, MinFilterPercent, MaxFilterPercent) }
func (a *Adjustments) SetContrast(v float64) { set(&a.v.Contrast, v, MinFilterPercent, MaxFilterPercent) }
func (a *Adjustments) SetSaturation(v float64) { set(&a.v.Saturation, v, MinFilterPercent, MaxFilterPercent) }
func (a *Adjustments) SetHue(v float64) { set(&a.v.Hue, v, MinHue, MaxHue) }

// AdjustmentPatch is a partial update; nil fields are left untouched.
type AdjustmentPatch struct {
	OffsetX    *float64 `json:"offsetX,omitempty"`
	OffsetY    *float64 `json:"offsetY,omitempty"`
	Zoom       *float64 `json:"zoom,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Contrast   *float64 `json:"contrast,omitempty"`
	Saturation *float64 `json:"saturation,omitempty"`
	Hue        *float64 `json:"hue,omitempty"`
}

// Apply runs every set field through its clamping setter.
func (a *Adjustments) Apply(p AdjustmentPatch) {
	if p.OffsetX != nil || p.OffsetY != nil {
		off := a.Offset()
		if p.OffsetX != nil {
			off.X = *p.OffsetX
		}
		if p.OffsetY != nil {
			off.Y = *p.OffsetY
		}
		a.SetOffset(off)
	}
	if p.Zoom != nil {
		a.SetZoom(*p.Zoom)
	}
	if p.Brightness != nil {
		a.SetBrightness(*p.Brightness)
	}
	if p.Contrast != nil {
		a.SetContrast(*p.Contrast)
	}
	if p.Saturation != nil {
		a.SetSaturation(*p.Saturation)
	}
	if p.Hue != nil {
		a.SetHue(*p.Hue)
	}
}

// load replaces the state, clamping every field.
func (a *Adjustments) load(v Adjustment) {
	a.Reset()
	a.Apply(AdjustmentPatch{
		OffsetX: &v.OffsetX, OffsetY: &v.OffsetY, Zoom: &v.Zoom,
		Brightness: &v.Brightness, Contrast: &v.Contrast,
		Saturation: &v.Saturation, Hue: &v.Hue,
	})
}
