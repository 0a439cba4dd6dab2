// Package config loads poststudio settings from TOML.
package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed default/config.toml
var configFS embed.FS

// Config is the full settings tree.
type Config struct {
	Canvas  Canvas  `toml:"canvas"`
	Display Display `toml:"display"`
	Server  Server  `toml:"server"`
	Gateway Gateway `toml:"gateway"`
	Export  Export  `toml:"export"`
	Fonts   Fonts   `toml:"fonts"`
}

// Canvas is the logical export resolution.
type Canvas struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Display picks the on-screen scale factor from the viewport width.
type Display struct {
	Breakpoint int     `toml:"breakpoint"`
	SmallScale float64 `toml:"small_scale"`
	LargeScale float64 `toml:"large_scale"`
}

type Server struct {
	Port        string `toml:"port"`
	OpenBrowser bool   `toml:"open_browser"`
}

// Gateway configures the text/image generation provider.
type Gateway struct {
	Provider        string `toml:"provider"` // "gemini" or "direct"
	APIKeyEnv       string `toml:"api_key_env"`
	Endpoint        string `toml:"endpoint"`
	TextModel       string `toml:"text_model"`
	ImageModel      string `toml:"image_model"`
	AspectRatio     string `toml:"aspect_ratio"`
	ImageSize       string `toml:"image_size"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	BrandHashtag    string `toml:"brand_hashtag"`
	FallbackMessage string `toml:"fallback_message"`
}

// APIKey reads the credential from the configured environment variable.
func (g Gateway) APIKey() string {
	if g.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(g.APIKeyEnv)
}

// Timeout returns the per-request timeout.
func (g Gateway) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

type Export struct {
	FilenamePrefix   string   `toml:"filename_prefix"`
	EagerReencode    bool     `toml:"eager_reencode"`
	AllowCrossOrigin bool     `toml:"allow_cross_origin"`
	AllowedHosts     []string `toml:"allowed_hosts"`
}

// Fonts maps family names to TTF files. Families without an entry use the
// embedded Go fonts.
type Fonts struct {
	Dir           string       `toml:"dir"`
	DefaultFamily string       `toml:"default_family"`
	Families      []FontFamily `toml:"family"`
}

type FontFamily struct {
	Name       string `toml:"name"`
	Regular    string `toml:"regular"`
	Bold       string `toml:"bold"`
	Italic     string `toml:"italic"`
	BoldItalic string `toml:"bold_italic"`
}

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	data, err := configFS.ReadFile("default/config.toml")
	if err != nil {
		return nil, fmt.Errorf("read embedded config: %w", err)
	}
	cfg := &Config{}
	if err := cfg.Load(string(data)); err != nil {
		return nil, fmt.Errorf("parse embedded config: %w", err)
	}
	return cfg, nil
}

// Load decodes TOML data on top of the current values.
func (c *Config) Load(data string) error {
	if _, err := toml.Decode(data, c); err != nil {
		return err
	}
	return c.validate()
}

// LoadFile returns the defaults overlaid with the file at path. An empty
// path falls back to $POSTSTUDIO_CONFIG and then the user config dir; a
// missing file there is not an error.
func LoadFile(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		path = FilePath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.Load(string(data)); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.resolveFontPaths(filepath.Dir(path))
	return cfg, nil
}

// WriteDefault writes the embedded default config to path, creating
// parent directories. An existing file is not overwritten.
func WriteDefault(path string) error {
	data, err := configFS.ReadFile("default/config.toml")
	if err != nil {
		return fmt.Errorf("read embedded config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FilePath returns the config file location used when none is given.
func FilePath() string {
	if p := os.Getenv("POSTSTUDIO_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "poststudio", "config.toml")
}

func (c *Config) validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("canvas size must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height)
	}
	if c.Display.SmallScale <= 0 || c.Display.LargeScale <= 0 {
		return fmt.Errorf("display scales must be positive")
	}
	switch c.Gateway.Provider {
	case "gemini", "direct":
	default:
		return fmt.Errorf("unknown gateway provider %q", c.Gateway.Provider)
	}
	return nil
}

// resolveFontPaths makes relative font paths absolute against the font dir,
// or the config file's directory when no font dir is set.
func (c *Config) resolveFontPaths(baseDir string) {
	dir := c.Fonts.Dir
	if dir == "" {
		dir = baseDir
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(baseDir, dir)
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range c.Fonts.Families {
		f := &c.Fonts.Families[i]
		f.Regular = resolve(f.Regular)
		f.Bold = resolve(f.Bold)
		f.Italic = resolve(f.Italic)
		f.BoldItalic = resolve(f.BoldItalic)
	}
}
