package imageref

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	tests := map[string]Kind{
		"data:image/png;base64,AA": KindData,
		"asset:abc":                KindAsset,
		"asset:":                   KindInvalid,
		"https://x.test/a.png":     KindRemote,
		"http://x.test/a.png":      KindRemote,
		"file:///etc/passwd":       KindInvalid,
		"":                         KindInvalid,
	}
	for ref, want := range tests {
		assert.Equal(t, want, Classify(ref), ref)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	ref := DataURL("image/png", []byte{1, 2, 3})
	m, data, err := ParseDataURL(ref)
	require.NoError(t, err)
	assert.Equal(t, "image/png", m)
	assert.Equal(t, []byte{1, 2, 3}, data)

	for _, bad := range []string{"data:image/png,raw", "data:image/png;base64", "data:image/png;base64,!!"} {
		_, _, err := ParseDataURL(bad)
		assert.ErrorIs(t, err, ErrInvalidRef, bad)
	}
}

func TestLoadDataAndAsset(t *testing.T) {
	raw := pngBytes(t, 4, 3, color.RGBA{255, 0, 0, 255})
	assets := NewAssets()
	l := NewLoader(assets)
	ctx := context.Background()

	img, err := l.Load(ctx, DataURL("image/png", raw), false)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())

	id := assets.Add("red.png", raw, "image/png")
	img, err = l.Load(ctx, AssetRef(id), false)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = l.Load(ctx, AssetRef("missing"), false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Load(ctx, "ftp://nowhere", false)
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestRemoteNeedsPermission(t *testing.T) {
	raw := pngBytes(t, 2, 2, color.White)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(raw)
	}))
	defer srv.Close()
	ctx := context.Background()
	ref := srv.URL + "/bg.png?seed=1"

	l := NewLoader(NewAssets())
	_, err := l.Load(ctx, ref, false)
	assert.ErrorIs(t, err, ErrCrossOrigin)

	img, err := l.Load(ctx, ref, true)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())

	u, _ := url.Parse(srv.URL)
	allowed := NewLoader(NewAssets(), WithAllowedHosts(u.Hostname()))
	_, err = allowed.Load(ctx, ref, false)
	assert.NoError(t, err)
}

func TestNormalizeReencodesAsAsset(t *testing.T) {
	raw := pngBytes(t, 2, 2, color.Black)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(raw) // no content type
	}))
	defer srv.Close()

	assets := NewAssets()
	l := NewLoader(assets)
	ctx := context.Background()

	ref, err := l.Normalize(ctx, srv.URL+"/p/cat.png?width=10")
	require.NoError(t, err)
	assert.Equal(t, KindAsset, Classify(ref))
	id, _ := AssetID(ref)
	a, ok := assets.Get(id)
	require.True(t, ok)
	assert.Equal(t, "cat.png", a.Name)
	assert.Equal(t, "image/png", a.Mime)

	// exportable without cross-origin allowance now
	_, err = l.Load(ctx, ref, false)
	assert.NoError(t, err)

	same, err := l.Normalize(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, same)

	fromData, err := l.Normalize(ctx, DataURL("image/png", raw))
	require.NoError(t, err)
	assert.Equal(t, KindAsset, Classify(fromData))

	_, err = l.Normalize(ctx, DataURL("image/png", []byte("not an image")))
	assert.Error(t, err)
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big" {
			w.Write(make([]byte, 64))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l := NewLoader(NewAssets(), WithMaxBytes(16))
	_, _, err := l.Bytes(context.Background(), srv.URL+"/missing", true)
	assert.ErrorContains(t, err, "404")

	_, _, err = l.Bytes(context.Background(), srv.URL+"/big", true)
	assert.ErrorContains(t, err, "larger than")
}

func TestAssetsListAndRemove(t *testing.T) {
	am := NewAssets()
	b := am.Add("b.png", []byte{1}, "image/png")
	am.Add("a.png", []byte{1, 2}, "image/png")
	am.Put("fixed", "c.ttf", []byte{3}, "font/ttf")

	list := am.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a.png", list[0].Name)
	assert.Equal(t, 2, list[0].Size)
	assert.Equal(t, AssetRef("fixed"), list[2].Ref)

	assert.True(t, am.Remove(b))
	assert.False(t, am.Remove(b))
	assert.Len(t, am.List(), 2)
}
