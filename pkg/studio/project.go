// project.go — JSON form of a session, used by bundles and the CLI.
package studio

import (
	"encoding/json"
	"fmt"
	"os"
)

// ProjectVersion is written into every saved project.
const ProjectVersion = 1

// Project is the serialisable state of a session. Layers are stored in
// insertion order so stacking ties resolve the same way after loading.
type Project struct {
	Version    int           `json:"version"`
	Canvas     Canvas        `json:"canvas"`
	Background string        `json:"background,omitempty"`
	Adjust     *Adjustment   `json:"adjust,omitempty"`
	Layers     []LayerRecord `json:"layers"`
	Content    string        `json:"content,omitempty"`
}

// LayerRecord is the tagged JSON form of a Layer.
type LayerRecord struct {
	Kind string     `json:"kind"` // "logo" or "text"
	Logo *LogoLayer `json:"logo,omitempty"`
	Text *TextLayer `json:"text,omitempty"`
}

// RecordOf returns the tagged form of l.
func RecordOf(l Layer) LayerRecord {
	switch l := l.(type) {
	case *LogoLayer:
		return LayerRecord{Kind: "logo", Logo: l}
	case *TextLayer:
		return LayerRecord{Kind: "text", Text: l}
	default:
		panic(fmt.Sprintf("studio: unknown layer type %T", l))
	}
}

func (r LayerRecord) layer() (Layer, error) {
	switch r.Kind {
	case "logo":
		if r.Logo == nil || r.Text != nil {
			return nil, fmt.Errorf("logo record must carry only a logo")
		}
		l := *r.Logo
		if l.Image == "" {
			return nil, fmt.Errorf("logo %q has no image", l.ID)
		}
		if l.Size == 0 {
			l.Size = DefaultLogoSize
		}
		l.Size = clamp(l.Size, MinLogoSize, MaxLogoSize)
		return &l, nil
	case "text":
		if r.Text == nil || r.Logo != nil {
			return nil, fmt.Errorf("text record must carry only a text layer")
		}
		t := *r.Text
		if err := normalizeText(&t); err != nil {
			return nil, fmt.Errorf("text %q: %w", t.ID, err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("unknown layer kind %q", r.Kind)
	}
}

// normalizeText fills defaults and canonicalises style fields.
func normalizeText(t *TextLayer) error {
	if t.FontSize == 0 {
		t.FontSize = textKinds[Subtitle].fontSize
	}
	t.FontSize = clamp(t.FontSize, MinFontSize, MaxFontSize)
	if t.FontWeight == 0 {
		t.FontWeight = WeightNormal
	}
	if t.FontStyle == "" {
		t.FontStyle = StyleNormal
	}
	if t.Color == "" {
		t.Color = DefaultTextColor
	}
	if t.FontFamily == "" {
		t.FontFamily = DefaultFamily
	}
	p := Patch{FontWeight: &t.FontWeight, FontStyle: &t.FontStyle, Color: &t.Color, FontFamily: &t.FontFamily}
	if err := p.Validate(); err != nil {
		return err
	}
	t.Color, t.FontFamily = *p.Color, *p.FontFamily
	return nil
}

// Project returns the serialisable state of the session.
func (s *Studio) Project() *Project {
	adj := s.Adjust.Value()
	p := &Project{
		Version:    ProjectVersion,
		Canvas:     s.Canvas(),
		Background: s.background,
		Adjust:     &adj,
		Content:    s.content,
		Layers:     make([]LayerRecord, 0, s.Layers.Len()),
	}
	for _, l := range s.Layers.layers {
		p.Layers = append(p.Layers, RecordOf(l.clone()))
	}
	return p
}

// FromProject builds a session from p. Adjustments are clamped to their
// bounds; a missing adjust block means neutral values.
func FromProject(p *Project) (*Studio, error) {
	if p.Canvas.Width <= 0 || p.Canvas.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas %dx%d", p.Canvas.Width, p.Canvas.Height)
	}
	s := New(p.Canvas)
	s.background = p.Background
	s.content = p.Content
	if p.Adjust != nil {
		s.Adjust.load(*p.Adjust)
	}
	for i, rec := range p.Layers {
		l, err := rec.layer()
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if l.LayerID() == "" {
			return nil, fmt.Errorf("layer %d: missing id", i)
		}
		if err := s.Layers.insert(l); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return s, nil
}

// ParseProject decodes project JSON and builds a session from it.
func ParseProject(data []byte) (*Studio, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project JSON: %w", err)
	}
	return FromProject(&p)
}

// LoadProject reads a project file.
func LoadProject(path string) (*Studio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	return ParseProject(data)
}

// MarshalProject encodes the session as indented JSON.
func (s *Studio) MarshalProject() ([]byte, error) {
	return json.MarshalIndent(s.Project(), "", "  ")
}

// ExampleProject returns a starter session: a headline and a subtitle on a
// blank canvas.
func ExampleProject() *Studio {
	s := New(DefaultCanvas)
	s.SetContent("Write your post here.\n\n#hashtag")
	s.AddText(Headline)
	s.AddText(Subtitle)
	s.Drag.ClearSelection()
	return s
}
