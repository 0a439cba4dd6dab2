// Package generator talks to content generation services: rewriting post
// text and generating background images.
//
// Every provider implements Gateway. Service adds the editor rules on top:
// one request in flight per operation, empty input rejected up front and a
// fallback message for failed rewrites.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Gateway is a content generation provider.
type Gateway interface {
	// RewriteText returns src rewritten as a social media post.
	RewriteText(ctx context.Context, src string) (string, error)
	// GenerateImage returns an image reference (data URL or remote URL)
	// for prompt rendered in style.
	GenerateImage(ctx context.Context, prompt string, style Style) (string, error)
}

var (
	ErrEmptyInput   = errors.New("input is empty")
	ErrBusy         = errors.New("a request is already in progress")
	ErrUnsupported  = errors.New("operation not supported by provider")
	ErrNoCredential = errors.New("no API key configured")
	// ErrPermission means the credential was rejected. Callers should ask
	// the user to pick another credential rather than retry.
	ErrPermission = errors.New("credential rejected")
	ErrQuota      = errors.New("quota exceeded")
	ErrNoImage    = errors.New("no image data returned, the model may have refused the prompt")
	ErrNoText     = errors.New("no text returned")
)

// NeedsCredential reports whether err should start a credential selection
// flow.
func NeedsCredential(err error) bool {
	return errors.Is(err, ErrNoCredential) || errors.Is(err, ErrPermission)
}

// APIError is a non-success response from a provider.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generation API: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("generation API: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// ── Styles ──

// Style is an image style. Its value is the prompt description.
type Style string

const (
	StyleStudio     Style = "Studio Photography, clean lighting, professional"
	StylePopArt     Style = "Pop Art, vibrant colors, bold outlines, comic style"
	StyleWatercolor Style = "Watercolor on paper, natural, soft, artistic"
	StyleMinimal    Style = "Minimalist, clean lines, less detail"
)

// Styles lists the styles with their display names, in menu order.
var Styles = []struct {
	Name  string `json:"name"`
	Style Style  `json:"style"`
}{
	{"Studio", StyleStudio},
	{"Pop Art", StylePopArt},
	{"Watercolor", StyleWatercolor},
	{"Minimal", StyleMinimal},
}

// ParseStyle accepts a display name or a style description. Empty input
// selects the studio style.
func ParseStyle(s string) (Style, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StyleStudio, nil
	}
	for _, st := range Styles {
		if strings.EqualFold(s, st.Name) || s == string(st.Style) {
			return st.Style, nil
		}
		if strings.EqualFold(strings.ReplaceAll(s, "_", " "), st.Name) {
			return st.Style, nil
		}
	}
	return "", fmt.Errorf("unknown image style %q", s)
}

// ── Prompts ──

// ImagePrompt builds the image generation prompt.
func ImagePrompt(style Style, subject string) string {
	return fmt.Sprintf("%s. Subject: %s. High quality, aesthetic, visually pleasing for a poster background.",
		style, strings.TrimSpace(subject))
}

// RewritePrompt builds the post rewriting prompt. brandHashtag, when set,
// must appear in the output.
func RewritePrompt(text, brandHashtag string) string {
	rules := []string{
		"Summarize and organize the content.",
		"Make it easy to read, concise, and catchy.",
		"Use correct main points.",
		"STRICTLY NO EMOJIS, NO EMOTICONS. Avoid decorative symbols.",
		"DO NOT use markdown bold syntax (like **text**) or italics. Facebook does not support markdown formatting.",
		"For headings or emphasized sections, use the '#' symbol as a prefix WITHOUT A SPACE (e.g., #Heading, NOT # Heading). This is critical so they function as hashtags on Facebook.",
		"Use clear paragraph spacing.",
		"Add relevant and popular hashtags at the end for better search visibility (SEO).",
	}
	if tag := normalizeHashtag(brandHashtag); tag != "" {
		rules = append(rules, "**MANDATORY**: You MUST include the brand hashtag: "+tag)
	}
	rules = append(rules, "Return ONLY the rewritten text followed by the hashtags.")

	var b strings.Builder
	b.WriteString("You are a professional Facebook content editor.\n")
	b.WriteString("Rewrite the following text content in THAI (unless the input is clearly English, then use English).\n\n")
	b.WriteString("Rules:\n")
	for i, r := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	b.WriteString("\nContent to rewrite:\n")
	b.WriteString(text)
	return b.String()
}

func normalizeHashtag(tag string) string {
	tag = strings.Join(strings.Fields(tag), "")
	if tag == "" || tag == "#" {
		return ""
	}
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return tag
}
