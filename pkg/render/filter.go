// filter.go - Background colour filters as affine colour matrices.
//
// Each filter is a 4x4 homogeneous matrix acting on [r g b 1] in sRGB
// (0..1), using the Filter Effects definitions of brightness, contrast,
// saturate and hue-rotate. Channels are clamped after every stage, so the
// chain is applied stage by stage rather than as one product.
package render

import (
	"fmt"
	"image"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/xob0t/poststudio/pkg/studio"
)

type FilterKind int

const (
	Brightness FilterKind = iota
	Contrast
	Saturate
	HueRotate
)

func (k FilterKind) String() string {
	switch k {
	case Brightness:
		return "brightness"
	case Contrast:
		return "contrast"
	case Saturate:
		return "saturate"
	case HueRotate:
		return "hue-rotate"
	default:
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
}

// Filter is one stage. Amount is a ratio (1 = neutral) except for
// HueRotate, where it is degrees.
type Filter struct {
	Kind   FilterKind
	Amount float64
}

// FilterChain returns the four background filters in paint order:
// brightness, contrast, saturate, hue-rotate.
func FilterChain(a studio.Adjustment) []Filter {
	return []Filter{
		{Brightness, a.Brightness / 100},
		{Contrast, a.Contrast / 100},
		{Saturate, a.Saturation / 100},
		{HueRotate, a.Hue},
	}
}

// CSS renders the chain as a CSS filter property value.
func CSS(chain []Filter) string {
	parts := make([]string, len(chain))
	for i, f := range chain {
		if f.Kind == HueRotate {
			parts[i] = fmt.Sprintf("hue-rotate(%gdeg)", f.Amount)
		} else {
			parts[i] = fmt.Sprintf("%s(%g)", f.Kind, f.Amount)
		}
	}
	return strings.Join(parts, " ")
}

func identity4() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// Matrix returns the stage as a 4x4 affine colour matrix.
func (f Filter) Matrix() *mat.Dense {
	a := f.Amount
	switch f.Kind {
	case Brightness:
		return mat.NewDense(4, 4, []float64{
			a, 0, 0, 0,
			0, a, 0, 0,
			0, 0, a, 0,
			0, 0, 0, 1,
		})
	case Contrast:
		o := 0.5 - 0.5*a
		return mat.NewDense(4, 4, []float64{
			a, 0, 0, o,
			0, a, 0, o,
			0, 0, a, o,
			0, 0, 0, 1,
		})
	case Saturate:
		return mat.NewDense(4, 4, []float64{
			0.213 + 0.787*a, 0.715 - 0.715*a, 0.072 - 0.072*a, 0,
			0.213 - 0.213*a, 0.715 + 0.285*a, 0.072 - 0.072*a, 0,
			0.213 - 0.213*a, 0.715 - 0.715*a, 0.072 + 0.928*a, 0,
			0, 0, 0, 1,
		})
	case HueRotate:
		rad := a * math.Pi / 180
		c, s := math.Cos(rad), math.Sin(rad)
		return mat.NewDense(4, 4, []float64{
			0.213 + c*0.787 - s*0.213, 0.715 - c*0.715 - s*0.715, 0.072 - c*0.072 + s*0.928, 0,
			0.213 - c*0.213 + s*0.143, 0.715 + c*0.285 + s*0.140, 0.072 - c*0.072 - s*0.283, 0,
			0.213 - c*0.213 - s*0.787, 0.715 - c*0.715 + s*0.715, 0.072 + c*0.928 + s*0.072, 0,
			0, 0, 0, 1,
		})
	default:
		return identity4()
	}
}

// Identity reports whether the stage leaves colours unchanged.
func (f Filter) Identity() bool {
	return mat.EqualApprox(f.Matrix(), identity4(), 1e-9)
}

// ApplyFilters runs chain over img in place. Pixels are un-premultiplied
// for the colour math and re-premultiplied afterwards.
func ApplyFilters(img *image.RGBA, chain []Filter) {
	var stages [][]float64
	for _, f := range chain {
		if f.Identity() {
			continue
		}
		stages = append(stages, f.Matrix().RawMatrix().Data)
	}
	if len(stages) == 0 {
		return
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			alpha := row[i+3]
			if alpha == 0 {
				continue
			}
			af := float64(alpha)
			r := float64(row[i]) / af
			g := float64(row[i+1]) / af
			bl := float64(row[i+2]) / af
			for _, m := range stages {
				r, g, bl =
					clamp01(m[0]*r+m[1]*g+m[2]*bl+m[3]),
					clamp01(m[4]*r+m[5]*g+m[6]*bl+m[7]),
					clamp01(m[8]*r+m[9]*g+m[10]*bl+m[11])
			}
			row[i] = uint8(math.Round(r * af))
			row[i+1] = uint8(math.Round(g * af))
			row[i+2] = uint8(math.Round(bl * af))
		}
	}
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
