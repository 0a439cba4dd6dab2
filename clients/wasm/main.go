//go:build js && wasm

// poststudio WASM: in-browser export of a saved project.
// Compiled with: GOOS=js GOARCH=wasm go build -o poststudio.wasm ./clients/wasm/
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"strings"
	"syscall/js"

	"go.uber.org/zap"

	"github.com/xob0t/poststudio/internal/logger"
	"github.com/xob0t/poststudio/pkg/export"
	"github.com/xob0t/poststudio/pkg/imageref"
	"github.com/xob0t/poststudio/pkg/importer"
	"github.com/xob0t/poststudio/pkg/render"
	"github.com/xob0t/poststudio/pkg/studio"
)

// Assets registered from JavaScript. Project references of the form
// "asset:<id>" resolve against them.
var (
	assets = imageref.NewAssets()
	loader = imageref.NewLoader(assets)
	raster = render.NewRasterizer(loader, nil, nil)
)

func main() {
	fmt.Println("poststudio WASM loaded")

	js.Global().Set("goRegisterAsset", js.FuncOf(registerAsset))
	js.Global().Set("goRemoveAsset", js.FuncOf(removeAsset))
	js.Global().Set("goExportPNG", js.FuncOf(exportPNG))
	js.Global().Set("goPreviewPNG", js.FuncOf(previewPNG))
	js.Global().Set("goImportText", js.FuncOf(importText))
	js.Global().Set("goReady", js.ValueOf(true))

	select {}
}

func errorValue(format string, args ...any) js.Value {
	return js.ValueOf("error: " + fmt.Sprintf(format, args...))
}

// goRegisterAsset(id, base64Data, mime) stores an asset in Go memory.
func registerAsset(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return errorValue("need id, base64Data, mime")
	}
	data, err := base64.StdEncoding.DecodeString(args[1].String())
	if err != nil {
		return errorValue("invalid base64: %v", err)
	}
	id := args[0].String()
	assets.Put(id, id, data, args[2].String())
	return js.ValueOf(imageref.AssetRef(id))
}

// goRemoveAsset(id) drops an asset.
func removeAsset(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorValue("need id")
	}
	assets.Remove(args[0].String())
	return js.ValueOf("ok")
}

func bgContext() context.Context {
	return logger.NewContext(context.Background(), zap.NewNop())
}

// promise runs work on its own goroutine and returns a JS Promise for the
// result. Image loading may fetch over HTTP, which waits on the event loop
// and so cannot run inside the callback itself.
func promise(work func() (js.Value, error)) js.Value {
	executor := js.FuncOf(func(this js.Value, args []js.Value) any {
		resolve, reject := args[0], args[1]
		go func() {
			v, err := work()
			if err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}
			resolve.Invoke(v)
		}()
		return nil
	})
	defer executor.Release()
	return js.Global().Get("Promise").New(executor)
}

func rejected(format string, args ...any) js.Value {
	err := fmt.Errorf(format, args...)
	return promise(func() (js.Value, error) { return js.Undefined(), err })
}

func encodeBase64PNG(img image.Image) (js.Value, error) {
	var buf bytes.Buffer
	if err := export.EncodePNG(&buf, img); err != nil {
		return js.Undefined(), err
	}
	return js.ValueOf(base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

// goExportPNG(projectJSON) flattens a project at its logical size. It
// returns a Promise for a base64 PNG.
func exportPNG(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return rejected("need projectJSON")
	}
	src := args[0].String()
	return promise(func() (js.Value, error) {
		s, err := studio.ParseProject([]byte(src))
		if err != nil {
			return js.Undefined(), err
		}
		img, err := export.NewPipeline(s, raster).ExportRaster(bgContext())
		if err != nil {
			return js.Undefined(), err
		}
		return encodeBase64PNG(img)
	})
}

// goPreviewPNG(projectJSON, viewportWidth[, selectedLayerId]) renders the
// on-screen view at the display scale. A selected layer gets its selection
// frame. It returns a Promise for a base64 PNG.
func previewPNG(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return rejected("need projectJSON, viewportWidth")
	}
	src := args[0].String()
	viewport := args[1].Int()
	var selected string
	if len(args) > 2 && args[2].Type() == js.TypeString {
		selected = args[2].String()
	}
	return promise(func() (js.Value, error) {
		s, err := studio.ParseProject([]byte(src))
		if err != nil {
			return js.Undefined(), err
		}
		if selected != "" && !s.Drag.SelectLayer(selected) {
			return js.Undefined(), fmt.Errorf("no layer %q", selected)
		}
		scale := render.DisplayScale(viewport, render.DefaultDisplay)
		img, err := raster.Capture(bgContext(), render.Build(s.Snapshot(), scale), render.CaptureOptions{
			Scale:            1,
			AllowCrossOrigin: true,
			Background:       color.White,
		})
		if err != nil {
			return js.Undefined(), err
		}
		return encodeBase64PNG(img)
	})
}

// goImportText(fileName, base64Data) extracts post text from a document.
func importText(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return errorValue("need fileName, base64Data")
	}
	data, err := base64.StdEncoding.DecodeString(args[1].String())
	if err != nil {
		return errorValue("invalid base64: %v", err)
	}
	text, err := importer.New().Import(args[0].String(), bytes.NewReader(data))
	if err != nil {
		return errorValue("%v", err)
	}
	return js.ValueOf(strings.TrimSpace(text))
}
