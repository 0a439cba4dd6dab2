package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xob0t/poststudio/internal/logger"
	"github.com/xob0t/poststudio/pkg/export"
	"github.com/xob0t/poststudio/pkg/generator"
	"github.com/xob0t/poststudio/pkg/imageref"
	"github.com/xob0t/poststudio/pkg/render"
	"github.com/xob0t/poststudio/pkg/studio"
)

// studioView is the JSON state sent to the editor after every change.
type studioView struct {
	Canvas       studio.Canvas        `json:"canvas"`
	Background   string               `json:"background,omitempty"`
	Adjust       studio.Adjustment    `json:"adjust"`
	Filter       string               `json:"filter"`
	Layers       []studio.LayerRecord `json:"layers"` // paint order
	Selection    studio.Selection     `json:"selection"`
	Dragging     bool                 `json:"dragging"`
	DisplayScale float64              `json:"displayScale"`
	Content      string               `json:"content"`
	Rewriting    bool                 `json:"rewriting"`
	Generating   bool                 `json:"generating"`
}

// view snapshots the session. The caller holds s.mu.
func (s *Server) view() studioView {
	snap := s.studio.Snapshot()
	v := studioView{
		Canvas:       snap.Canvas,
		Background:   snap.Background,
		Adjust:       snap.Adjust,
		Filter:       render.CSS(render.FilterChain(snap.Adjust)),
		Layers:       make([]studio.LayerRecord, 0, len(snap.Layers)),
		Selection:    snap.Selection,
		Dragging:     s.studio.Drag.Dragging(),
		DisplayScale: s.studio.Drag.DisplayScale(),
		Content:      s.studio.Content(),
		Rewriting:    s.gen.Rewriting(),
		Generating:   s.gen.Generating(),
	}
	for _, l := range snap.Layers {
		v.Layers = append(v.Layers, studio.RecordOf(l))
	}
	return v
}

// mutate runs f under the session lock and responds with the new state.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, f func(*studio.Studio) error) {
	s.mu.Lock()
	err := f(s.studio)
	v := s.view()
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ── Session ──

func (s *Server) handleGetStudio(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(*studio.Studio) error { return nil })
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(st *studio.Studio) error {
		st.Reset()
		return nil
	})
}

// ── Layers ──

func (s *Server) handleAddLogo(w http.ResponseWriter, r *http.Request) {
	ref, err := s.imageFromRequest(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		l := st.AddLogo(ref)
		logger.L(r.Context()).Info("added logo", zap.String("id", l.ID), zap.String("kind", imageref.Classify(ref).String()))
		return nil
	})
}

func (s *Server) handleAddText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind studio.TextKind `json:"kind"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.Kind == "" {
		req.Kind = studio.Headline
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		st.AddText(req.Kind)
		return nil
	})
}

// handleUpdateLayer patches a layer. An unknown id is not an error: the
// layer may have been removed while the request was in flight.
func (s *Server) handleUpdateLayer(w http.ResponseWriter, r *http.Request) {
	var p studio.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	id := r.PathValue("id")
	s.mutate(w, r, func(st *studio.Studio) error {
		ok, err := st.Layers.Update(id, p)
		if err != nil {
			return err
		}
		if !ok {
			logger.L(r.Context()).Debug("update of unknown layer ignored", zap.String("id", id))
		}
		return nil
	})
}

func (s *Server) handleRemoveLayer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mutate(w, r, func(st *studio.Studio) error {
		st.RemoveLayer(id)
		return nil
	})
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := r.PathValue("id")
	s.mutate(w, r, func(st *studio.Studio) error {
		st.Layers.Reorder(id, req.Delta)
		return nil
	})
}

// ── Selection and drags ──

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID         string `json:"id"`
		Background bool   `json:"background"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		switch {
		case req.ID != "":
			if !st.Drag.SelectLayer(req.ID) {
				return &requestError{status: http.StatusNotFound, msg: "layer " + req.ID + " not found"}
			}
		case req.Background:
			st.Drag.SelectBackground()
		default:
			st.Drag.ClearSelection()
		}
		return nil
	})
}

type pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s *Server) handleDragBegin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pointer
		Target string   `json:"target"` // "layer", "background" or "" for the selection
		ID     string   `json:"id"`
		Scale  *float64 `json:"scale"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p := studio.Point{X: req.X, Y: req.Y}
	s.mutate(w, r, func(st *studio.Studio) error {
		if req.Scale != nil {
			if err := st.Drag.SetDisplayScale(*req.Scale); err != nil {
				return err
			}
		}
		switch req.Target {
		case "layer":
			st.Drag.BeginLayerDrag(req.ID, p)
		case "background":
			st.BeginBackgroundDrag(p)
		case "":
			st.Drag.BeginDrag(p)
		default:
			return badRequest("unknown drag target " + strconv.Quote(req.Target))
		}
		return nil
	})
}

func (s *Server) handleDragMove(w http.ResponseWriter, r *http.Request) {
	var req pointer
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		st.Drag.DragMove(studio.Point{X: req.X, Y: req.Y})
		return nil
	})
}

// handleDragEnd is also sent when the pointer leaves the canvas.
func (s *Server) handleDragEnd(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(st *studio.Studio) error {
		st.Drag.EndDrag()
		return nil
	})
}

// ── Background ──

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var p studio.AdjustmentPatch
	if err := decodeJSON(w, r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		st.Adjust.Apply(p)
		return nil
	})
}

func (s *Server) handleAdjustReset(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(st *studio.Studio) error {
		st.Adjust.Reset()
		return nil
	})
}

func (s *Server) handleBackgroundUpload(w http.ResponseWriter, r *http.Request) {
	ref, err := s.imageFromRequest(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		st.SetBackground(ref)
		return nil
	})
}

func (s *Server) handleBackgroundGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
		Style  string `json:"style"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	style, err := generator.ParseStyle(req.Style)
	if err != nil {
		s.fail(w, r, badRequest(err.Error()))
		return
	}

	ctx := r.Context()
	ref, err := s.gen.GenerateImage(ctx, req.Prompt, style)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.cfg.Export.EagerReencode {
		if local, err := s.loader.Normalize(ctx, ref); err != nil {
			logger.L(ctx).Warn("keeping generated image as a remote reference", zap.Error(err))
		} else {
			ref = local
		}
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		st.SetBackground(ref)
		return nil
	})
}

// imageFromRequest reads an uploaded image (multipart field "file") or a
// JSON {"image": ref} body and returns a reference for it. With eager
// re-encoding every reference becomes a same-origin asset.
func (s *Server) imageFromRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	ctx := r.Context()
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", badRequest("missing file: " + err.Error())
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", err
		}
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return "", fmt.Errorf("%w: %s is not a supported image", imageref.ErrInvalidRef, header.Filename)
		}
		mimeType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = http.DetectContentType(data)
		}
		return imageref.AssetRef(s.assets.Add(header.Filename, data, mimeType)), nil
	}

	var req struct {
		Image string `json:"image"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	ref := strings.TrimSpace(req.Image)
	if imageref.Classify(ref) == imageref.KindInvalid {
		return "", fmt.Errorf("%w: %q", imageref.ErrInvalidRef, ref)
	}
	if !s.cfg.Export.EagerReencode {
		return ref, nil
	}
	return s.loader.Normalize(ctx, ref)
}

// ── Rendering and export ──

// handlePreview renders the editor view at the display scale for the
// given viewport width, selection chrome included.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	viewport := 0
	if v := r.URL.Query().Get("viewport"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.fail(w, r, badRequest("viewport must be an integer"))
			return
		}
		viewport = n
	}
	scale := render.DisplayScale(viewport, s.display)

	s.mu.Lock()
	if err := s.studio.Drag.SetDisplayScale(scale); err != nil {
		s.mu.Unlock()
		s.fail(w, r, err)
		return
	}
	tree := render.Build(s.studio.Snapshot(), scale)
	s.mu.Unlock()

	img, err := s.raster.Capture(r.Context(), tree, render.CaptureOptions{
		Scale:            1,
		AllowCrossOrigin: true,
		Background:       color.White,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := export.EncodePNG(w, img); err != nil {
		logger.L(r.Context()).Warn("write preview", zap.Error(err))
	}
}

// sessionCopy copies the session under the lock for work that may block.
func (s *Server) sessionCopy() *studio.Studio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.studio.Clone()
}

// exportPNG flattens st, a copy of the session.
func (s *Server) exportPNG(ctx context.Context, st *studio.Studio) ([]byte, error) {
	p := export.NewPipeline(st, s.raster,
		export.WithDocument(s.doc),
		export.WithCrossOrigin(s.cfg.Export.AllowCrossOrigin))
	var buf bytes.Buffer
	if err := p.ExportPNG(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) handleExportPNG(w http.ResponseWriter, r *http.Request) {
	data, err := s.exportPNG(r.Context(), s.sessionCopy())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := export.Filename(s.cfg.Export.FilenamePrefix, time.Now())
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

func (s *Server) handleExportBundle(w http.ResponseWriter, r *http.Request) {
	b, err := s.bundle(r.Context(), s.sessionCopy())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBundle(&buf, *b); err != nil {
		s.fail(w, r, err)
		return
	}
	name := strings.TrimSuffix(export.Filename(s.cfg.Export.FilenamePrefix, time.Now()), ".png") + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(buf.Bytes())
}

// bundle collects the flattened image, project and referenced assets of
// st, a copy of the session.
func (s *Server) bundle(ctx context.Context, st *studio.Studio) (*export.Bundle, error) {
	png, err := s.exportPNG(ctx, st)
	if err != nil {
		return nil, err
	}
	project, err := st.MarshalProject()
	if err != nil {
		return nil, err
	}
	b := &export.Bundle{Text: st.Content(), Image: png, Project: project}

	refs := []string{st.Background()}
	for _, l := range st.Layers.Ordered() {
		if logo, ok := l.(*studio.LogoLayer); ok {
			refs = append(refs, logo.Image)
		}
	}
	seen := make(map[string]bool)
	for _, ref := range refs {
		id, ok := imageref.AssetID(ref)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		a, ok := s.assets.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", imageref.ErrNotFound, id)
		}
		b.Assets = append(b.Assets, export.BundleAsset{ID: id, Name: a.Name, Mime: a.Mime, Data: a.Data})
	}
	return b, nil
}

// handleImportBundle replaces the session with a bundle's project. The
// body is the raw ZIP archive.
func (s *Server) handleImportBundle(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBody))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := export.ReadBundle(data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := studio.ParseProject(b.Project)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %w", export.ErrInvalidBundle, err))
		return
	}
	if st.Content() == "" {
		st.SetContent(b.Text)
	}
	for _, a := range b.Assets {
		s.assets.Put(a.ID, a.Name, a.Data, a.Mime)
	}

	s.mu.Lock()
	s.studio = st
	v := s.view()
	s.mu.Unlock()

	logger.L(r.Context()).Info("imported bundle",
		zap.Int("layers", len(v.Layers)),
		zap.Int("assets", len(b.Assets)))
	writeJSON(w, http.StatusOK, v)
}

// ── Content ──

func (s *Server) handleSetContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		st.SetContent(req.Content)
		return nil
	})
}

// handleRewrite rewrites the given text, or the session content when the
// body carries none. A failed rewrite leaves the content untouched and
// returns the fallback message for display.
func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text *string `json:"text"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	var text string
	if req.Text != nil {
		text = *req.Text
	} else {
		s.mu.Lock()
		text = s.studio.Content()
		s.mu.Unlock()
	}

	out, err := s.gen.Rewrite(r.Context(), text)
	if err != nil {
		if errors.Is(err, generator.ErrEmptyInput) || errors.Is(err, generator.ErrBusy) {
			s.fail(w, r, err)
			return
		}
		s.fail(w, r, err, "fallback", out)
		return
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		st.SetContent(out)
		return nil
	})
}

func (s *Server) handleImportContent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, badRequest("missing file: "+err.Error()))
		return
	}
	defer file.Close()

	text, err := s.importer.Import(header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, func(st *studio.Studio) error {
		st.SetContent(text)
		return nil
	})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, generator.Styles)
}

// ── Assets ──

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.assets.List())
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok := s.assets.Get(id)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %s", imageref.ErrNotFound, id))
		return
	}
	w.Header().Set("Content-Type", a.Mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(a.Data)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.assets.Remove(id) {
		s.fail(w, r, fmt.Errorf("%w: %s", imageref.ErrNotFound, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
