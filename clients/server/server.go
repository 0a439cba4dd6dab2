// Package server provides the poststudio web editor and its HTTP API.
//
// The server holds one editing session. Every handler that reads or mutates
// it takes the session lock. Generation runs outside it, and exports
// capture a copy of the session taken under the lock, so remote image
// fetches never block other requests.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xob0t/poststudio/internal/config"
	"github.com/xob0t/poststudio/internal/logger"
	"github.com/xob0t/poststudio/pkg/export"
	"github.com/xob0t/poststudio/pkg/generator"
	"github.com/xob0t/poststudio/pkg/imageref"
	"github.com/xob0t/poststudio/pkg/importer"
	"github.com/xob0t/poststudio/pkg/render"
	"github.com/xob0t/poststudio/pkg/studio"
)

//go:embed web/*
var webContent embed.FS

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 32 << 20
)

// Server is the editor backend.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	assets   *imageref.Assets
	loader   *imageref.Loader
	raster   *render.Rasterizer
	doc      *export.Document
	gen      *generator.Service
	importer *importer.Importer
	display  render.Display

	mu     sync.Mutex
	studio *studio.Studio
}

// New creates a server with an empty session.
func New(cfg *config.Config, gw generator.Gateway, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	assets := imageref.NewAssets()
	loader := imageref.NewLoader(assets,
		imageref.WithAllowedHosts(cfg.Export.AllowedHosts...),
		imageref.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.Timeout()}),
	)
	return &Server{
		cfg:      cfg,
		log:      log,
		assets:   assets,
		loader:   loader,
		raster:   render.NewRasterizer(loader, render.FontBookFromConfig(cfg.Fonts, log), log),
		doc:      export.NewDocument(),
		gen:      generator.NewService(gw, cfg.Gateway.FallbackMessage),
		importer: importer.New(),
		display: render.Display{
			Breakpoint: cfg.Display.Breakpoint,
			SmallScale: cfg.Display.SmallScale,
			LargeScale: cfg.Display.LargeScale,
		},
		studio: studio.New(studio.Canvas{Width: cfg.Canvas.Width, Height: cfg.Canvas.Height}),
	}
}

// Handler returns the HTTP handler with every route mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Session.
	mux.HandleFunc("GET /api/studio", s.handleGetStudio)
	mux.HandleFunc("POST /api/studio/reset", s.handleReset)

	// Layers.
	mux.HandleFunc("POST /api/layers/logo", s.handleAddLogo)
	mux.HandleFunc("POST /api/layers/text", s.handleAddText)
	mux.HandleFunc("PATCH /api/layers/{id}", s.handleUpdateLayer)
	mux.HandleFunc("DELETE /api/layers/{id}", s.handleRemoveLayer)
	mux.HandleFunc("POST /api/layers/{id}/reorder", s.handleReorder)

	// Selection and drags.
	mux.HandleFunc("POST /api/select", s.handleSelect)
	mux.HandleFunc("POST /api/drag/begin", s.handleDragBegin)
	mux.HandleFunc("POST /api/drag/move", s.handleDragMove)
	mux.HandleFunc("POST /api/drag/end", s.handleDragEnd)

	// Background.
	mux.HandleFunc("PUT /api/adjust", s.handleAdjust)
	mux.HandleFunc("POST /api/adjust/reset", s.handleAdjustReset)
	mux.HandleFunc("POST /api/background/upload", s.handleBackgroundUpload)
	mux.HandleFunc("POST /api/background/generate", s.handleBackgroundGenerate)

	// Rendering and export.
	mux.HandleFunc("GET /api/preview", s.handlePreview)
	mux.HandleFunc("POST /api/export/png", s.handleExportPNG)
	mux.HandleFunc("POST /api/export/bundle", s.handleExportBundle)
	mux.HandleFunc("POST /api/import/bundle", s.handleImportBundle)

	// Content.
	mux.HandleFunc("PUT /api/content", s.handleSetContent)
	mux.HandleFunc("POST /api/content/rewrite", s.handleRewrite)
	mux.HandleFunc("POST /api/content/import", s.handleImportContent)
	mux.HandleFunc("GET /api/styles", s.handleStyles)

	// Assets.
	mux.HandleFunc("GET /api/assets", s.handleListAssets)
	mux.HandleFunc("GET /api/assets/{id}", s.handleGetAsset)
	mux.HandleFunc("DELETE /api/assets/{id}", s.handleDeleteAsset)

	// Static files.
	webFS, err := fs.Sub(webContent, "web")
	if err != nil {
		panic(fmt.Sprintf("embed web: %v", err))
	}
	mux.Handle("/", http.FileServer(http.FS(webFS)))

	return s.withLogging(mux)
}

// Run serves the editor on port until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, gw generator.Gateway, log *zap.Logger, port string) error {
	if port == "" {
		port = cfg.Server.Port
	}
	s := New(cfg, gw, log)
	addr := ":" + port
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return logger.NewContext(ctx, log) },
	}

	log.Info("poststudio UI", zap.String("url", "http://localhost"+addr))
	if cfg.Server.OpenBrowser {
		go openBrowser("http://localhost" + addr)
	}

	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// ── Middleware and helpers ──

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := logger.NewContext(r.Context(), s.log.With(zap.String("path", r.URL.Path)))
		next.ServeHTTP(rec, r.WithContext(ctx))
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body")
		}
		return badRequest("invalid JSON: " + err.Error())
	}
	return nil
}

// requestError is a client mistake with a fixed status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{status: http.StatusBadRequest, msg: msg} }

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var reqErr *requestError
	var unsupported *importer.UnsupportedError
	var maxBytes *http.MaxBytesError
	var apiErr *generator.APIError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case generator.NeedsCredential(err):
		return http.StatusUnauthorized
	case errors.Is(err, generator.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, generator.ErrQuota):
		return http.StatusTooManyRequests
	case errors.Is(err, generator.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, export.ErrExportFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, imageref.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, studio.ErrInvalidPatch),
		errors.Is(err, studio.ErrInvalidScale),
		errors.Is(err, imageref.ErrInvalidRef),
		errors.Is(err, imageref.ErrCrossOrigin),
		errors.Is(err, generator.ErrEmptyInput),
		errors.Is(err, export.ErrInvalidBundle),
		errors.Is(err, importer.ErrInvalidText),
		errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &apiErr), errors.Is(err, generator.ErrNoImage), errors.Is(err, generator.ErrNoText):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": ...}. Credential errors add
// "credential": "required" so the UI can ask for another key.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, extra ...any) {
	status := statusFor(err)
	body := map[string]any{"error": err.Error()}
	if generator.NeedsCredential(err) {
		body["credential"] = "required"
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if k, ok := extra[i].(string); ok {
			body[k] = extra[i+1]
		}
	}
	log := logger.L(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Info("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Start()
}
