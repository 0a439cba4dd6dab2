package studio

import (
	"errors"
	"math"
)

// Selection is the active edit target: at most one layer, or the
// background, or nothing.
type Selection struct {
	LayerID    string `json:"layerId,omitempty"`
	Background bool   `json:"background,omitempty"`
}

// None reports whether nothing is selected.
func (s Selection) None() bool { return s.LayerID == "" && !s.Background }

type dragTarget int

const (
	dragNone dragTarget = iota
	dragLayer
	dragBackground
)

// ErrInvalidScale is returned for a display scale that is not a positive
// finite number.
var ErrInvalidScale = errors.New("display scale must be a positive finite number")

// Controller tracks the selection and turns pointer drags, measured in
// on-screen pixels, into logical position updates.
type Controller struct {
	store  *Store
	adjust *Adjustments

	sel   Selection
	scale float64

	target        dragTarget
	dragID        string
	pointerStart  Point
	positionStart Point
}

// NewController wires a controller to the layers and background offset it
// moves. The display scale starts at 1.
func NewController(store *Store, adjust *Adjustments) *Controller {
	return &Controller{store: store, adjust: adjust, scale: 1}
}

// Selection returns the current selection.
func (c *Controller) Selection() Selection { return c.sel }

// SelectLayer makes id the active layer. It returns false, leaving the
// selection unchanged, when id does not exist.
func (c *Controller) SelectLayer(id string) bool {
	if !c.store.Has(id) {
		return false
	}
	c.sel = Selection{LayerID: id}
	return true
}

// SelectBackground clears any layer selection and marks the background as
// the drag target.
func (c *Controller) SelectBackground() {
	c.sel = Selection{Background: true}
}

// ClearSelection deselects everything.
func (c *Controller) ClearSelection() {
	c.sel = Selection{}
}

// RestoreSelection reinstates a previously saved selection. A layer that
// no longer exists is not restored.
func (c *Controller) RestoreSelection(s Selection) {
	switch {
	case s.LayerID != "" && c.store.Has(s.LayerID):
		c.sel = Selection{LayerID: s.LayerID}
	case s.Background:
		c.sel = Selection{Background: true}
	default:
		c.sel = Selection{}
	}
}

// forget drops id from the selection and any active drag.
func (c *Controller) forget(id string) {
	if c.sel.LayerID == id {
		c.sel = Selection{}
	}
	if c.target == dragLayer && c.dragID == id {
		c.EndDrag()
	}
}

// DisplayScale returns the on-screen to logical ratio used for drags.
func (c *Controller) DisplayScale() float64 { return c.scale }

// SetDisplayScale sets the ratio between on-screen and logical size.
func (c *Controller) SetDisplayScale(s float64) error {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return ErrInvalidScale
	}
	c.scale = s
	return nil
}

// BeginDrag starts dragging the current selection from pointer position p.
// It returns false when nothing is selected.
func (c *Controller) BeginDrag(p Point) bool {
	switch {
	case c.sel.LayerID != "":
		l, ok := c.store.Get(c.sel.LayerID)
		if !ok {
			return false
		}
		c.target, c.dragID, c.positionStart = dragLayer, l.LayerID(), l.Position()
	case c.sel.Background:
		c.target, c.dragID, c.positionStart = dragBackground, "", c.adjust.Offset()
	default:
		return false
	}
	c.pointerStart = p
	return true
}

// BeginLayerDrag selects id and starts dragging it.
func (c *Controller) BeginLayerDrag(id string, p Point) bool {
	if !c.SelectLayer(id) {
		return false
	}
	return c.BeginDrag(p)
}

// BeginBackgroundDrag deselects any layer and starts panning the background.
func (c *Controller) BeginBackgroundDrag(p Point) bool {
	c.SelectBackground()
	return c.BeginDrag(p)
}

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool { return c.target != dragNone }

// DragMove moves the drag target so it follows the pointer. The screen
// delta is divided by the display scale to get a logical delta.
func (c *Controller) DragMove(p Point) {
	if c.target == dragNone {
		return
	}
	pos := Point{
		X: c.positionStart.X + (p.X-c.pointerStart.X)/c.scale,
		Y: c.positionStart.Y + (p.Y-c.pointerStart.Y)/c.scale,
	}
	switch c.target {
	case dragLayer:
		c.store.Move(c.dragID, pos)
	case dragBackground:
		c.adjust.SetOffset(pos)
	}
}

// EndDrag finishes any drag. It is safe to call when no drag is active,
// which is how a pointer released outside the canvas is handled.
func (c *Controller) EndDrag() {
	c.target = dragNone
	c.dragID = ""
}
