package generator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xob0t/poststudio/internal/config"
	"github.com/xob0t/poststudio/internal/logger"
)

// FromConfig builds the configured provider.
func FromConfig(g config.Gateway, canvas config.Canvas) (Gateway, error) {
	switch g.Provider {
	case "", "gemini":
		gm := NewGemini(g.APIKey(), g.Timeout())
		if g.Endpoint != "" {
			gm.Endpoint = g.Endpoint
		}
		if g.TextModel != "" {
			gm.TextModel = g.TextModel
		}
		if g.ImageModel != "" {
			gm.ImageModel = g.ImageModel
		}
		if g.AspectRatio != "" {
			gm.AspectRatio = g.AspectRatio
		}
		if g.ImageSize != "" {
			gm.ImageSize = g.ImageSize
		}
		gm.BrandHashtag = g.BrandHashtag
		return gm, nil
	case "direct":
		return NewDirectURL(canvas.Width, canvas.Height), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", g.Provider)
	}
}

// Service applies the editor rules to a Gateway.
type Service struct {
	gw       Gateway
	fallback string

	rewriting  atomic.Bool
	generating atomic.Bool
}

// NewService wraps gw. fallback is returned with failed rewrites so the
// text field always receives something readable.
func NewService(gw Gateway, fallback string) *Service {
	return &Service{gw: gw, fallback: fallback}
}

// Rewriting reports whether a rewrite is in flight.
func (s *Service) Rewriting() bool { return s.rewriting.Load() }

// Generating reports whether an image generation is in flight.
func (s *Service) Generating() bool { return s.generating.Load() }

// Rewrite rewrites text. On failure it returns the fallback message along
// with the error; the caller decides whether to show it.
func (s *Service) Rewrite(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	if !s.rewriting.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer s.rewriting.Store(false)

	log := logger.L(ctx)
	start := time.Now()
	out, err := s.gw.RewriteText(ctx, text)
	if err != nil {
		log.Warn("rewrite failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return s.fallback, err
	}
	log.Info("rewrote content",
		zap.Int("inputChars", len([]rune(text))),
		zap.Int("outputChars", len([]rune(out))),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

// GenerateImage generates a background image reference. Prior state is
// untouched on failure since nothing is returned.
func (s *Service) GenerateImage(ctx context.Context, prompt string, style Style) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}
	if style == "" {
		style = StyleStudio
	}
	if !s.generating.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer s.generating.Store(false)

	log := logger.L(ctx)
	start := time.Now()
	ref, err := s.gw.GenerateImage(ctx, prompt, style)
	if err != nil {
		log.Warn("image generation failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return "", err
	}
	log.Info("generated image", zap.Int("refBytes", len(ref)), zap.Duration("took", time.Since(start)))
	return ref, nil
}
