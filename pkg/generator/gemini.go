package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/xob0t/poststudio/pkg/imageref"
)

const (
	DefaultEndpoint    = "https://generativelanguage.googleapis.com/"
	DefaultTextModel   = "gemini-2.5-flash"
	DefaultImageModel  = "gemini-3-pro-image-preview"
	DefaultAspectRatio = "3:4"
	DefaultImageSize   = "1K"
)

// Gemini calls generateContent through the genai SDK.
type Gemini struct {
	// Endpoint is the API base URL; the SDK appends the API version.
	Endpoint     string
	APIKey       string
	TextModel    string
	ImageModel   string
	AspectRatio  string
	ImageSize    string
	BrandHashtag string
	Client       *http.Client
}

// NewGemini returns a client with the default models and endpoint.
func NewGemini(apiKey string, timeout time.Duration) *Gemini {
	return &Gemini{
		Endpoint:    DefaultEndpoint,
		APIKey:      apiKey,
		TextModel:   DefaultTextModel,
		ImageModel:  DefaultImageModel,
		AspectRatio: DefaultAspectRatio,
		ImageSize:   DefaultImageSize,
		Client:      &http.Client{Timeout: timeout},
	}
}

// RewriteText implements Gateway.
func (g *Gemini) RewriteText(ctx context.Context, src string) (string, error) {
	resp, err := g.generate(ctx, g.TextModel, RewritePrompt(src, g.BrandHashtag), nil)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil && !p.Thought {
				b.WriteString(p.Text)
			}
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// GenerateImage implements Gateway. The image is returned as a data URL.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string, style Style) (string, error) {
	resp, err := g.generate(ctx, g.ImageModel, ImagePrompt(style, prompt), &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: g.AspectRatio, ImageSize: g.ImageSize},
	})
	if err != nil {
		return "", err
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			mime := p.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return imageref.DataURL(mime, p.InlineData.Data), nil
		}
	}
	return "", ErrNoImage
}

func (g *Gemini) generate(ctx context.Context, model, prompt string, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if strings.TrimSpace(g.APIKey) == "" {
		return nil, ErrNoCredential
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.Client,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.Endpoint},
	})
	if err != nil {
		return nil, fmt.Errorf("generation client: %w", err)
	}
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

// mapError turns SDK errors into APIError, wrapped with ErrPermission or
// ErrQuota where the status calls for it.
func mapError(err error) error {
	var sdkErr genai.APIError
	if !errors.As(err, &sdkErr) {
		return fmt.Errorf("generation request: %w", err)
	}
	apiErr := &APIError{StatusCode: sdkErr.Code, Status: sdkErr.Status, Message: sdkErr.Message}
	switch {
	case sdkErr.Code == http.StatusUnauthorized, sdkErr.Code == http.StatusForbidden, sdkErr.Code == http.StatusNotFound,
		sdkErr.Status == "UNAUTHENTICATED", sdkErr.Status == "PERMISSION_DENIED", sdkErr.Status == "NOT_FOUND":
		return fmt.Errorf("%w: %w", ErrPermission, apiErr)
	case sdkErr.Code == http.StatusTooManyRequests, sdkErr.Status == "RESOURCE_EXHAUSTED":
		return fmt.Errorf("%w: %w", ErrQuota, apiErr)
	default:
		return apiErr
	}
}
