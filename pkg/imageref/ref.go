// Package imageref resolves image references into decoded images.
//
// A reference is one of:
//
//	data:<mime>;base64,<payload>   inline bitmap
//	asset:<id>                     same-origin asset held in Assets
//	http(s)://...                  remote image
//
// Remote images are cross-origin: they can be shown but only exported when
// their host is explicitly allowed. Normalize re-encodes any reference into
// a same-origin asset so exports never hit that restriction.
package imageref

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind classifies a reference.
type Kind int

const (
	KindInvalid Kind = iota
	KindData
	KindAsset
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindAsset:
		return "asset"
	case KindRemote:
		return "remote"
	default:
		return "invalid"
	}
}

const assetScheme = "asset:"

var (
	ErrInvalidRef  = errors.New("invalid image reference")
	ErrNotFound    = errors.New("image asset not found")
	ErrCrossOrigin = errors.New("cross-origin image cannot be exported without access permission")
)

// Classify returns the kind of ref.
func Classify(ref string) Kind {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return KindData
	case strings.HasPrefix(ref, assetScheme) && len(ref) > len(assetScheme):
		return KindAsset
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return KindRemote
	default:
		return KindInvalid
	}
}

// AssetRef returns the reference for an asset id.
func AssetRef(id string) string { return assetScheme + id }

// AssetID extracts the id from an asset reference.
func AssetID(ref string) (string, bool) {
	if Classify(ref) != KindAsset {
		return "", false
	}
	return strings.TrimPrefix(ref, assetScheme), true
}

// DataURL encodes data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL.
func ParseDataURL(ref string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: not a data URL", ErrInvalidRef)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: data URL has no payload", ErrInvalidRef)
	}
	mimeType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: only base64 data URLs are supported", ErrInvalidRef)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	return mimeType, data, nil
}

// host returns the lower-cased host of a remote reference.
func host(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: remote reference has no host", ErrInvalidRef)
	}
	return strings.ToLower(u.Hostname()), nil
}
