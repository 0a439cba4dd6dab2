// bundle.go — Project bundles: a ZIP holding the post text, the flattened
// image, the editable project and the assets it references.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"strings"
)

const (
	bundleText    = "content.txt"
	bundleImage   = "image.png"
	bundleProject = "project.json"
	bundleAssets  = "assets/"

	// maxBundleEntry caps a single decompressed entry.
	maxBundleEntry = 64 << 20
)

// ErrInvalidBundle wraps every ReadBundle failure.
var ErrInvalidBundle = errors.New("invalid project bundle")

// BundleAsset is an asset embedded in a bundle.
type BundleAsset struct {
	ID   string
	Name string
	Mime string
	Data []byte
}

// Bundle is the content of a project bundle. Text and Image are optional;
// Project is required.
type Bundle struct {
	Text    string
	Image   []byte // PNG
	Project []byte // JSON
	Assets  []BundleAsset
}

// WriteBundle writes b to w as a ZIP archive.
func WriteBundle(w io.Writer, b Bundle) error {
	if len(b.Project) == 0 {
		return fmt.Errorf("%w: no project", ErrInvalidBundle)
	}
	zw := zip.NewWriter(w)

	add := func(name string, data []byte) error {
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		_, err = fw.Write(data)
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, b.Project, "", "  "); err != nil {
		return fmt.Errorf("%w: project: %v", ErrInvalidBundle, err)
	}
	if err := add(bundleProject, pretty.Bytes()); err != nil {
		return err
	}
	if b.Text != "" {
		if err := add(bundleText, []byte(b.Text)); err != nil {
			return err
		}
	}
	if len(b.Image) > 0 {
		if err := add(bundleImage, b.Image); err != nil {
			return err
		}
	}
	for _, a := range b.Assets {
		if err := add(assetEntry(a), a.Data); err != nil {
			return err
		}
	}
	return zw.Close()
}

func assetEntry(a BundleAsset) string {
	ext := path.Ext(a.Name)
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(a.Mime); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return bundleAssets + a.ID + ext
}

// ReadBundle parses a bundle from data.
func ReadBundle(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}

	var b Bundle
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(f.Name)
		// Guard against zip slip.
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") || strings.Contains(f.Name, `\`) {
			return nil, fmt.Errorf("%w: illegal path %q", ErrInvalidBundle, f.Name)
		}

		content, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidBundle, f.Name, err)
		}

		switch {
		case name == bundleProject:
			b.Project = content
		case name == bundleText:
			b.Text = string(content)
		case name == bundleImage:
			b.Image = content
		case strings.HasPrefix(name, bundleAssets):
			base := path.Base(name)
			ext := path.Ext(base)
			mimeType := mime.TypeByExtension(ext)
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			b.Assets = append(b.Assets, BundleAsset{
				ID:   strings.TrimSuffix(base, ext),
				Name: base,
				Mime: mimeType,
				Data: content,
			})
		}
	}

	if b.Project == nil {
		return nil, fmt.Errorf("%w: no %s found in archive", ErrInvalidBundle, bundleProject)
	}
	sort.Slice(b.Assets, func(i, j int) bool { return b.Assets[i].ID < b.Assets[j].ID })
	return &b, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBundleEntry+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBundleEntry {
		return nil, fmt.Errorf("entry larger than %d bytes", maxBundleEntry)
	}
	return data, nil
}
