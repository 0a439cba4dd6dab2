package render

// Display chooses the uniform on-screen scale of the canvas.
type Display struct {
	Breakpoint int     // viewport width in CSS px
	SmallScale float64 // below Breakpoint
	LargeScale float64 // at or above Breakpoint
}

// DefaultDisplay fits a 1080px wide canvas on phones and desktops.
var DefaultDisplay = Display{Breakpoint: 768, SmallScale: 0.22, LargeScale: 0.35}

// DisplayScale returns the scale for a viewport width. A non-positive
// width (unknown viewport) uses the large scale.
func DisplayScale(viewportWidth int, d Display) float64 {
	if viewportWidth > 0 && viewportWidth < d.Breakpoint {
		return d.SmallScale
	}
	return d.LargeScale
}
