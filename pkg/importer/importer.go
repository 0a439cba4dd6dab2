// Package importer extracts plain text from uploaded documents so it can be
// used as post content.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxBytes caps a single imported file.
const DefaultMaxBytes = 10 << 20

var (
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidText = errors.New("file is not valid UTF-8 text")
)

// UnsupportedError reports a file format with no extractor.
type UnsupportedError struct {
	Ext       string
	Supported []string
}

func (e *UnsupportedError) Error() string {
	format := e.Ext
	if format == "" {
		format = "files without an extension"
	}
	return fmt.Sprintf("unsupported file format %s (supported: %s)", format, strings.Join(e.Supported, ", "))
}

// Extractor turns file content into text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(data []byte) (string, error)

func (f ExtractorFunc) Extract(data []byte) (string, error) { return f(data) }

// Importer dispatches on file extension.
type Importer struct {
	extractors map[string]Extractor
	maxBytes   int64
}

// New returns an importer with the built-in extractors.
func New() *Importer {
	im := &Importer{extractors: make(map[string]Extractor), maxBytes: DefaultMaxBytes}
	plain := ExtractorFunc(decodeText)
	im.Register(".txt", plain)
	im.Register(".md", ExtractorFunc(extractMarkdown))
	im.Register(".csv", plain)
	im.Register(".docx", ExtractorFunc(extractDocx))
	return im
}

// Register installs e for ext, replacing any existing extractor.
func (im *Importer) Register(ext string, e Extractor) {
	im.extractors[normExt(ext)] = e
}

// SetMaxBytes changes the size limit.
func (im *Importer) SetMaxBytes(n int64) { im.maxBytes = n }

// Supported lists the registered extensions, sorted.
func (im *Importer) Supported() []string {
	exts := make([]string, 0, len(im.extractors))
	for ext := range im.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Import extracts text from r, a file called name.
func (im *Importer) Import(name string, r io.Reader) (string, error) {
	ext := normExt(filepath.Ext(name))
	e, ok := im.extractors[ext]
	if !ok {
		return "", &UnsupportedError{Ext: ext, Supported: im.Supported()}
	}

	data, err := io.ReadAll(io.LimitReader(r, im.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > im.maxBytes {
		return "", fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, name, im.maxBytes)
	}

	text, err := e.Extract(data)
	if err != nil {
		return "", fmt.Errorf("import %s: %w", name, err)
	}
	return strings.TrimSpace(text), nil
}

// ImportFile extracts text from the file at path.
func (im *Importer) ImportFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return im.Import(filepath.Base(path), f)
}

func normExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// decodeText decodes UTF-8, honouring a UTF-8 or UTF-16 byte order mark,
// and normalises line endings. The UTF-8 decoder substitutes invalid
// sequences, so UTF-8 input is validated first.
func decodeText(data []byte) (string, error) {
	if !bytes.HasPrefix(data, []byte{0xFF, 0xFE}) && !bytes.HasPrefix(data, []byte{0xFE, 0xFF}) && !utf8.Valid(data) {
		return "", ErrInvalidText
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidText, err)
	}
	out = bytes.ReplaceAll(out, []byte("\r\n"), []byte("\n"))
	return string(out), nil
}
