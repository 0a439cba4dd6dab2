package studio

import (
	"fmt"
	"sort"
)

// Store holds the layers of one composition in insertion order.
type Store struct {
	canvas Canvas
	layers []Layer
	nextID int
}

// NewStore creates an empty store for the given canvas.
func NewStore(canvas Canvas) *Store {
	return &Store{canvas: canvas}
}

// Canvas returns the logical canvas size.
func (s *Store) Canvas() Canvas { return s.canvas }

func (s *Store) newID() string {
	s.nextID++
	return fmt.Sprintf("layer-%d", s.nextID)
}

// topOrder returns the stacking order for a layer placed above all others.
func (s *Store) topOrder() int {
	if len(s.layers) == 0 {
		return baseZIndex
	}
	top := s.layers[0].Order()
	for _, l := range s.layers[1:] {
		top = max(top, l.Order())
	}
	return top + 1
}

// AddLogo places a new logo centred on the canvas above all other layers.
func (s *Store) AddLogo(imageRef string) *LogoLayer {
	l := &LogoLayer{
		ID:     s.newID(),
		Image:  imageRef,
		X:      float64(s.canvas.Width)/2 - DefaultLogoSize/2,
		Y:      float64(s.canvas.Height)/2 - DefaultLogoSize/2,
		Size:   DefaultLogoSize,
		ZIndex: s.topOrder(),
	}
	s.layers = append(s.layers, l)
	return l
}

// AddText places default-styled text for kind above all other layers.
// Unknown kinds get the subtitle defaults.
func (s *Store) AddText(kind TextKind) *TextLayer {
	d, ok := textKinds[kind]
	if !ok {
		d = textKinds[Subtitle]
	}
	t := &TextLayer{
		ID:         s.newID(),
		Text:       d.text,
		X:          d.pos.X,
		Y:          d.pos.Y,
		FontSize:   d.fontSize,
		FontWeight: d.weight,
		FontStyle:  StyleNormal,
		Color:      DefaultTextColor,
		FontFamily: DefaultFamily,
		ZIndex:     s.topOrder(),
	}
	s.layers = append(s.layers, t)
	return t
}

// insert adds a fully formed layer (used when loading a project). Its id
// must not collide with an existing one.
func (s *Store) insert(l Layer) error {
	if _, ok := s.find(l.LayerID()); ok {
		return fmt.Errorf("duplicate layer id %q", l.LayerID())
	}
	s.layers = append(s.layers, l)
	var n int
	if _, err := fmt.Sscanf(l.LayerID(), "layer-%d", &n); err == nil && n > s.nextID {
		s.nextID = n
	}
	return nil
}

func (s *Store) find(id string) (int, bool) {
	for i, l := range s.layers {
		if l.LayerID() == id {
			return i, true
		}
	}
	return -1, false
}

// Get returns a copy of the layer with id.
func (s *Store) Get(id string) (Layer, bool) {
	i, ok := s.find(id)
	if !ok {
		return nil, false
	}
	return s.layers[i].clone(), true
}

// Has reports whether a layer with id exists.
func (s *Store) Has(id string) bool {
	_, ok := s.find(id)
	return ok
}

// Update validates p and applies it to the layer with id. An invalid patch
// changes nothing. A missing id is a no-op: updates may arrive after the
// layer was deleted.
func (s *Store) Update(id string, p Patch) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	i, ok := s.find(id)
	if !ok {
		return false, nil
	}
	p.apply(s.layers[i])
	return true, nil
}

// Move sets the logical position of a layer. A missing id is a no-op.
func (s *Store) Move(id string, pos Point) bool {
	i, ok := s.find(id)
	if !ok {
		return false
	}
	s.layers[i].setPosition(pos)
	return true
}

// remove deletes the layer with id. Studio.RemoveLayer also clears the
// selection.
func (s *Store) remove(id string) bool {
	i, ok := s.find(id)
	if !ok {
		return false
	}
	s.layers = append(s.layers[:i], s.layers[i+1:]...)
	return true
}

// Reorder shifts the stacking order of a layer by delta. Orders are never
// compacted.
func (s *Store) Reorder(id string, delta int) bool {
	i, ok := s.find(id)
	if !ok {
		return false
	}
	l := s.layers[i]
	l.setOrder(l.Order() + delta)
	return true
}

// Ordered returns copies of all layers in paint order: ascending stacking
// order, ties broken by insertion order.
func (s *Store) Ordered() []Layer {
	out := make([]Layer, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order() < out[j].Order()
	})
	return out
}

// Len returns the number of layers.
func (s *Store) Len() int { return len(s.layers) }

// Clear removes every layer. Ids are not reused afterwards.
func (s *Store) Clear() { s.layers = nil }
