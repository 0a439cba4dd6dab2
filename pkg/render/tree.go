// Package render maps studio state to a declarative visual tree and paints
// trees into bitmaps.
//
// A Tree keeps every coordinate in logical canvas units plus a single
// uniform Scale. The editor preview builds it at the display scale; export
// builds a fresh tree at scale 1 instead of copying a painted one.
package render

import (
	"image/color"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/xob0t/poststudio/pkg/studio"
)

// LineHeight is the text line height as a multiple of the font size.
const LineHeight = 1.2

// Tree is the visual tree of one canvas.
type Tree struct {
	Width, Height int     // logical canvas size
	Scale         float64 // uniform display scale
	Offscreen     bool    // materialised only for capture

	Background *BackgroundNode // nil when there is no background image
	Layers     []Node          // paint order
}

// PixelSize returns the on-screen size of the tree.
func (t *Tree) PixelSize() (int, int) {
	return int(math.Round(float64(t.Width) * t.Scale)), int(math.Round(float64(t.Height) * t.Scale))
}

// Node is a positioned layer node: *LogoNode or *TextNode.
type Node interface {
	NodeID() string
	IsSelected() bool
	node()
}

// BackgroundNode fills the canvas with a cover-fitted image, then applies
// the pan offset and zoom around the canvas centre and the filter chain.
type BackgroundNode struct {
	Image    string
	OffsetX  float64
	OffsetY  float64
	Zoom     float64
	Filters  []Filter
	Selected bool
}

// LogoNode is a circular image of diameter Size at (X, Y).
type LogoNode struct {
	ID       string
	Image    string
	X, Y     float64
	Size     float64
	Selected bool
}

// TextNode is one or more lines of text whose top-left is at (X, Y).
type TextNode struct {
	ID       string
	Lines    []string
	X, Y     float64
	FontSize float64
	Bold     bool
	Italic   bool
	Color    color.RGBA
	Family   string
	Selected bool
}

func (n *LogoNode) NodeID() string { return n.ID }
func (n *LogoNode) IsSelected() bool { return n.Selected }
func (*LogoNode) node() {}
func (n *TextNode) NodeID() string { return n.ID }
func (n *TextNode) IsSelected() bool { return n.Selected }
func (*TextNode) node() {}

// Build maps a snapshot to a tree at the given display scale. A
// non-positive scale means 1.
func Build(snap studio.Snapshot, scale float64) *Tree {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	t := &Tree{
		Width:  snap.Canvas.Width,
		Height: snap.Canvas.Height,
		Scale:  scale,
		Layers: make([]Node, 0, len(snap.Layers)),
	}

	if snap.Background != "" {
		a := snap.Adjust
		t.Background = &BackgroundNode{
			Image:    snap.Background,
			OffsetX:  a.OffsetX,
			OffsetY:  a.OffsetY,
			Zoom:     a.Zoom,
			Filters:  FilterChain(a),
			Selected: snap.Selection.Background,
		}
	}

	for _, l := range snap.Layers {
		selected := snap.Selection.LayerID == l.LayerID()
		switch l := l.(type) {
		case *studio.LogoLayer:
			t.Layers = append(t.Layers, &LogoNode{
				ID: l.ID, Image: l.Image, X: l.X, Y: l.Y, Size: l.Size, Selected: selected,
			})
		case *studio.TextLayer:
			t.Layers = append(t.Layers, &TextNode{
				ID:       l.ID,
				Lines:    splitLines(l.Text),
				X:        l.X,
				Y:        l.Y,
				FontSize: l.FontSize,
				Bold:     l.FontWeight.IsBold(),
				Italic:   l.FontStyle == studio.StyleItalic,
				Color:    ParseHexRGBA(l.Color),
				Family:   l.FontFamily,
				Selected: selected,
			})
		}
	}
	return t
}

// splitLines normalises text to NFC and splits it on line breaks.
func splitLines(s string) []string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}

// Images returns the distinct image references used by the tree.
func (t *Tree) Images() []string {
	seen := map[string]bool{}
	var refs []string
	add := func(ref string) {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	if t.Background != nil {
		add(t.Background.Image)
	}
	for _, n := range t.Layers {
		if l, ok := n.(*LogoNode); ok {
			add(l.Image)
		}
	}
	return refs
}
