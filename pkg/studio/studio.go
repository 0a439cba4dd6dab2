package studio

// Studio is one editing session: layers, selection and drags, background
// image and adjustments, and the post text that goes into bundles.
type Studio struct {
	Layers *Store
	Drag   *Controller
	Adjust *Adjustments

	background string
	content    string
}

// New creates an empty session for canvas.
func New(canvas Canvas) *Studio {
	store := NewStore(canvas)
	adjust := NewAdjustments()
	return &Studio{
		Layers: store,
		Drag:   NewController(store, adjust),
		Adjust: adjust,
	}
}

// Canvas returns the logical canvas size.
func (s *Studio) Canvas() Canvas { return s.Layers.Canvas() }

// Background returns the background image reference ("" when none).
func (s *Studio) Background() string { return s.background }

// SetBackground replaces the background image. A new image never inherits
// the previous image's pan, zoom or filters.
func (s *Studio) SetBackground(ref string) {
	s.background = ref
	s.Adjust.Reset()
	if s.Drag.target == dragBackground {
		s.Drag.EndDrag()
	}
}

// Content returns the post text.
func (s *Studio) Content() string { return s.content }

// SetContent replaces the post text.
func (s *Studio) SetContent(text string) { s.content = text }

// AddLogo adds a logo and selects it.
func (s *Studio) AddLogo(imageRef string) *LogoLayer {
	l := s.Layers.AddLogo(imageRef)
	s.Drag.SelectLayer(l.ID)
	return l
}

// AddText adds a text layer and selects it.
func (s *Studio) AddText(kind TextKind) *TextLayer {
	t := s.Layers.AddText(kind)
	s.Drag.SelectLayer(t.ID)
	return t
}

// UpdateLayer validates and applies p to a layer. Unknown ids are ignored.
func (s *Studio) UpdateLayer(id string, p Patch) error {
	_, err := s.Layers.Update(id, p)
	return err
}

// RemoveLayer deletes a layer, clearing the selection if it pointed at it.
func (s *Studio) RemoveLayer(id string) bool {
	if !s.Layers.remove(id) {
		return false
	}
	s.Drag.forget(id)
	return true
}

// BeginBackgroundDrag pans the background; it needs a background image.
func (s *Studio) BeginBackgroundDrag(p Point) bool {
	if s.background == "" {
		return false
	}
	return s.Drag.BeginBackgroundDrag(p)
}

// Reset clears layers, selection, background and adjustments. The post
// text is kept.
func (s *Studio) Reset() {
	s.Drag.EndDrag()
	s.Drag.ClearSelection()
	s.Layers.Clear()
	s.background = ""
	s.Adjust.Reset()
}

// Clone returns an independent copy of the session with the same selection
// and display scale. A drag in progress is not carried over.
func (s *Studio) Clone() *Studio {
	c := New(s.Canvas())
	c.background = s.background
	c.content = s.content
	c.Adjust.v = s.Adjust.v
	for _, l := range s.Layers.layers {
		c.Layers.layers = append(c.Layers.layers, l.clone())
	}
	c.Layers.nextID = s.Layers.nextID
	c.Drag.RestoreSelection(s.Drag.Selection())
	_ = c.Drag.SetDisplayScale(s.Drag.DisplayScale())
	return c
}

// Snapshot is a read-only copy of everything needed to render.
type Snapshot struct {
	Canvas     Canvas
	Background string
	Adjust     Adjustment
	Layers     []Layer // paint order
	Selection  Selection
}

// Snapshot copies the current state.
func (s *Studio) Snapshot() Snapshot {
	return Snapshot{
		Canvas:     s.Canvas(),
		Background: s.background,
		Adjust:     s.Adjust.Value(),
		Layers:     s.Layers.Ordered(),
		Selection:  s.Drag.Selection(),
	}
}
