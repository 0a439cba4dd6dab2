package studio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nan() float64 { return math.NaN() }

func TestDragDividesByDisplayScale(t *testing.T) {
	st := New(DefaultCanvas)
	txt := st.AddText(Headline)
	require.NoError(t, st.Drag.SetDisplayScale(0.35))

	require.True(t, st.Drag.BeginLayerDrag(txt.ID, Point{500, 300}))
	st.Drag.DragMove(Point{535, 300})
	st.Drag.EndDrag()

	got, _ := st.Layers.Get(txt.ID)
	assert.InDelta(t, 200.0, got.Position().X, 1e-9)
	assert.InDelta(t, 200.0, got.Position().Y, 1e-9)
}

func TestDragDeltaIsIndependentOfTarget(t *testing.T) {
	scales := []float64{0.22, 0.35, 1, 2.5}
	for _, s := range scales {
		st := New(DefaultCanvas)
		st.SetBackground("asset:bg")
		logo := st.AddLogo("asset:l")
		require.NoError(t, st.Drag.SetDisplayScale(s))

		require.True(t, st.Drag.BeginLayerDrag(logo.ID, Point{10, 10}))
		st.Drag.DragMove(Point{10 + 44, 10 - 22})
		st.Drag.EndDrag()
		got, _ := st.Layers.Get(logo.ID)
		assert.InDelta(t, 390+44/s, got.Position().X, 1e-9)
		assert.InDelta(t, 600-22/s, got.Position().Y, 1e-9)

		require.True(t, st.BeginBackgroundDrag(Point{0, 0}))
		st.Drag.DragMove(Point{44, -22})
		st.Drag.EndDrag()
		assert.InDelta(t, 44/s, st.Adjust.Offset().X, 1e-9)
		assert.InDelta(t, -22/s, st.Adjust.Offset().Y, 1e-9)
	}
}

func TestDragMovesAccumulateFromStart(t *testing.T) {
	st := New(DefaultCanvas)
	txt := st.AddText(Subtitle)

	st.Drag.BeginLayerDrag(txt.ID, Point{0, 0})
	st.Drag.DragMove(Point{10, 0})
	st.Drag.DragMove(Point{20, 0})
	st.Drag.DragMove(Point{5, 5})

	got, _ := st.Layers.Get(txt.ID)
	assert.Equal(t, Point{105, 405}, got.Position())
}

func TestDragLayerKeepsSelection(t *testing.T) {
	st := New(DefaultCanvas)
	a := st.AddText(Headline)
	st.AddLogo("asset:l")

	st.Drag.BeginLayerDrag(a.ID, Point{})
	st.Drag.DragMove(Point{3, 3})
	assert.Equal(t, Selection{LayerID: a.ID}, st.Drag.Selection())
	st.Drag.EndDrag()
	assert.Equal(t, Selection{LayerID: a.ID}, st.Drag.Selection())
}

func TestBackgroundDragClearsLayerSelection(t *testing.T) {
	st := New(DefaultCanvas)
	st.AddText(Headline)
	st.SetBackground("asset:bg")

	require.True(t, st.BeginBackgroundDrag(Point{}))
	assert.Equal(t, Selection{Background: true}, st.Drag.Selection())
}

func TestBackgroundDragNeedsImage(t *testing.T) {
	st := New(DefaultCanvas)
	assert.False(t, st.BeginBackgroundDrag(Point{}))
	assert.False(t, st.Drag.Dragging())
}

func TestSelectionIsExclusive(t *testing.T) {
	st := New(DefaultCanvas)
	a := st.AddText(Headline)
	b := st.AddLogo("asset:l")

	assert.Equal(t, b.ID, st.Drag.Selection().LayerID)
	require.True(t, st.Drag.SelectLayer(a.ID))
	assert.Equal(t, Selection{LayerID: a.ID}, st.Drag.Selection())

	st.Drag.SelectBackground()
	assert.Equal(t, Selection{Background: true}, st.Drag.Selection())

	assert.False(t, st.Drag.SelectLayer("layer-999"))
	assert.Equal(t, Selection{Background: true}, st.Drag.Selection())

	st.Drag.ClearSelection()
	assert.True(t, st.Drag.Selection().None())
}

func TestRemoveSelectedClearsSelectionAndDrag(t *testing.T) {
	st := New(DefaultCanvas)
	a := st.AddText(Headline)
	st.Drag.BeginLayerDrag(a.ID, Point{})

	require.True(t, st.RemoveLayer(a.ID))
	assert.True(t, st.Drag.Selection().None())
	assert.False(t, st.Drag.Dragging())

	// a late move after deletion does nothing
	st.Drag.DragMove(Point{100, 100})
	assert.Equal(t, 0, st.Layers.Len())
}

func TestLateMoveForDeletedLayerIsNoop(t *testing.T) {
	st := New(DefaultCanvas)
	a := st.AddText(Headline)
	b := st.AddText(Subtitle)
	st.Drag.BeginLayerDrag(a.ID, Point{})
	st.Layers.remove(a.ID) // bypasses the session bookkeeping

	st.Drag.DragMove(Point{50, 50})
	got, _ := st.Layers.Get(b.ID)
	assert.Equal(t, Point{100, 400}, got.Position())
}

func TestEndDragWithoutDragIsSafe(t *testing.T) {
	st := New(DefaultCanvas)
	st.Drag.EndDrag()
	st.Drag.DragMove(Point{1, 1})
	assert.False(t, st.Drag.BeginDrag(Point{}))
}

func TestSetDisplayScaleRejectsInvalid(t *testing.T) {
	c := NewController(NewStore(DefaultCanvas), NewAdjustments())
	for _, s := range []float64{0, -1, nan(), math.Inf(1)} {
		assert.ErrorIs(t, c.SetDisplayScale(s), ErrInvalidScale)
	}
	assert.Equal(t, 1.0, c.DisplayScale())
}

func TestRestoreSelection(t *testing.T) {
	st := New(DefaultCanvas)
	a := st.AddText(Headline)
	saved := st.Drag.Selection()

	st.Drag.ClearSelection()
	st.Drag.RestoreSelection(saved)
	assert.Equal(t, saved, st.Drag.Selection())

	st.Layers.remove(a.ID)
	st.Drag.RestoreSelection(saved)
	assert.True(t, st.Drag.Selection().None())

	st.Drag.RestoreSelection(Selection{Background: true})
	assert.True(t, st.Drag.Selection().Background)
}

func TestDragIsUnbounded(t *testing.T) {
	st := New(DefaultCanvas)
	a := st.AddText(Headline)
	st.Drag.BeginLayerDrag(a.ID, Point{})
	st.Drag.DragMove(Point{-5000, 9000})

	got, _ := st.Layers.Get(a.ID)
	assert.Equal(t, Point{-4900, 9200}, got.Position())
}
