// color.go - Hex colour parsing for text layers and fills.
package render

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ParseHex parses "#rgb" or "#rrggbb" (the leading '#' is optional).
func ParseHex(s string) (color.RGBA, error) {
	hex := strings.TrimSpace(s)
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// ParseHexRGBA is ParseHex that returns white on any parse error (safe
// default for rendering).
func ParseHexRGBA(s string) color.RGBA {
	c, err := ParseHex(s)
	if err != nil {
		return color.RGBA{255, 255, 255, 255}
	}
	return c
}

// selectionColor outlines selected nodes in editor previews.
var selectionColor = color.RGBA{0x3B, 0x82, 0xF6, 0xFF}
