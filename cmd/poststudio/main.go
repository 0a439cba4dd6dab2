// poststudio: layered post composition and export.
//
// Usage:
//
//	poststudio serve [--port 8080]
//	poststudio render --project <path> -o <file.png|file.zip>
//	poststudio init [--project project.json]
//	poststudio rewrite --in <file>
//	poststudio generate --prompt <text> [--style <name>] -o <file>
//	poststudio import --in <file>
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xob0t/poststudio/clients/server"
	"github.com/xob0t/poststudio/internal/config"
	"github.com/xob0t/poststudio/internal/logger"
	"github.com/xob0t/poststudio/pkg/export"
	"github.com/xob0t/poststudio/pkg/generator"
	"github.com/xob0t/poststudio/pkg/imageref"
	"github.com/xob0t/poststudio/pkg/importer"
	"github.com/xob0t/poststudio/pkg/render"
	"github.com/xob0t/poststudio/pkg/studio"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmds := map[string]func([]string) error{
		"serve":    runServe,
		"render":   runRender,
		"init":     runInit,
		"rewrite":  runRewrite,
		"generate": runGenerate,
		"import":   runImport,
	}
	switch name := os.Args[1]; name {
	case "help", "-h", "--help":
		printUsage()
	default:
		cmd, ok := cmds[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
			printUsage()
			os.Exit(1)
		}
		if err := cmd(os.Args[2:]); err != nil {
			fatal(err)
		}
	}
}

// common holds the flags every command accepts.
type common struct {
	configPath string
	verbose    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to config.toml (default: $POSTSTUDIO_CONFIG or user config dir)")
	fs.BoolVar(&c.verbose, "v", false, "Verbose (development) logging")
}

// setup loads the config and installs the process logger.
func (c *common) setup() (*config.Config, *zap.Logger, error) {
	log, err := logger.New(c.verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	zap.ReplaceGlobals(log)

	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func signalContext(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return logger.NewContext(ctx, log), cancel
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	c.register(fs)
	port := fs.String("port", "", "Port to listen on (default from config)")
	noBrowser := fs.Bool("no-browser", false, "Do not open a browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := c.setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	if *noBrowser {
		cfg.Server.OpenBrowser = false
	}

	gw, err := generator.FromConfig(cfg.Gateway, cfg.Canvas)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(log)
	defer cancel()
	return server.Run(ctx, cfg, gw, log, *port)
}

// runRender flattens a project file (or bundle) to PNG, or packs it into a
// new bundle when the output ends in .zip.
func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	var c common
	c.register(fs)
	var projectPath, output, textPath string
	fs.StringVar(&projectPath, "project", "", "Project JSON or bundle .zip")
	fs.StringVar(&output, "o", "", "Output file (.png or .zip)")
	fs.StringVar(&output, "output", "", "Output file (.png or .zip)")
	fs.StringVar(&textPath, "text", "", "Post text file to include in a bundle (optional)")
	crossOrigin := fs.Bool("allow-cross-origin", false, "Load remote images without an allowed host")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if projectPath == "" {
		return fmt.Errorf("--project is required")
	}
	if output == "" {
		output = export.Filename(strings.TrimSuffix(filepath.Base(projectPath), filepath.Ext(projectPath)), time.Now())
	}

	cfg, log, err := c.setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	assets := imageref.NewAssets()
	s, err := loadProject(projectPath, assets)
	if err != nil {
		return err
	}
	if textPath != "" {
		text, err := importer.New().ImportFile(textPath)
		if err != nil {
			return err
		}
		s.SetContent(text)
	}

	loader := imageref.NewLoader(assets, imageref.WithAllowedHosts(cfg.Export.AllowedHosts...))
	raster := render.NewRasterizer(loader, render.FontBookFromConfig(cfg.Fonts, log), log)
	p := export.NewPipeline(s, raster, export.WithCrossOrigin(*crossOrigin || cfg.Export.AllowCrossOrigin))

	ctx, cancel := signalContext(log)
	defer cancel()

	img, err := p.ExportRaster(ctx)
	if err != nil {
		return err
	}
	if !strings.EqualFold(filepath.Ext(output), ".zip") {
		if err := export.WritePNGFile(output, img); err != nil {
			return err
		}
		log.Info("rendered", zap.String("output", output))
		return nil
	}

	var buf bytes.Buffer
	if err := export.EncodePNG(&buf, img); err != nil {
		return err
	}

	project, err := s.MarshalProject()
	if err != nil {
		return err
	}
	b := export.Bundle{Text: s.Content(), Image: buf.Bytes(), Project: project}
	for _, info := range assets.List() {
		a, _ := assets.Get(info.ID)
		b.Assets = append(b.Assets, export.BundleAsset{ID: info.ID, Name: a.Name, Mime: a.Mime, Data: a.Data})
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := export.WriteBundle(f, b); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info("bundled", zap.String("output", output), zap.Int("assets", len(b.Assets)))
	return nil
}

// loadProject reads a project JSON file or a bundle. Bundle assets are put
// into assets under their original ids.
func loadProject(path string, assets *imageref.Assets) (*studio.Studio, error) {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return studio.LoadProject(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := export.ReadBundle(data)
	if err != nil {
		return nil, err
	}
	for _, a := range b.Assets {
		assets.Put(a.ID, a.Name, a.Data, a.Mime)
	}
	s, err := studio.ParseProject(b.Project)
	if err != nil {
		return nil, err
	}
	if s.Content() == "" {
		s.SetContent(b.Text)
	}
	return s, nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var projectOut, configOut string
	fs.StringVar(&projectOut, "project", "project.json", "Output path for the sample project")
	fs.StringVar(&configOut, "config", "", "Also write the default config.toml here (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := studio.ExampleProject().MarshalProject()
	if err != nil {
		return err
	}
	if err := os.WriteFile(projectOut, data, 0o644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	fmt.Printf("Created: %s\n", projectOut)

	if configOut != "" {
		if err := config.WriteDefault(configOut); err != nil {
			return err
		}
		fmt.Printf("Created: %s\n", configOut)
	}
	fmt.Printf("Run: poststudio render --project %s -o post.png\n", projectOut)
	return nil
}

func runRewrite(args []string) error {
	fs := flag.NewFlagSet("rewrite", flag.ExitOnError)
	var c common
	c.register(fs)
	in := fs.String("in", "", "Text or document to rewrite (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("--in is required")
	}

	cfg, log, err := c.setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	var text string
	if *in == "-" {
		text, err = importer.New().Import("stdin.txt", os.Stdin)
	} else {
		text, err = importer.New().ImportFile(*in)
	}
	if err != nil {
		return err
	}

	gw, err := generator.FromConfig(cfg.Gateway, cfg.Canvas)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(log)
	defer cancel()

	out, err := generator.NewService(gw, cfg.Gateway.FallbackMessage).Rewrite(ctx, text)
	if err != nil {
		if generator.NeedsCredential(err) {
			return fmt.Errorf("%w (set $%s)", err, cfg.Gateway.APIKeyEnv)
		}
		return err
	}
	fmt.Println(out)
	return nil
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	var c common
	c.register(fs)
	var prompt, styleName, output string
	fs.StringVar(&prompt, "prompt", "", "What the background should show")
	fs.StringVar(&styleName, "style", "Studio", "Image style")
	fs.StringVar(&output, "o", "", "Output image file (extension added when missing)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if output == "" {
		return fmt.Errorf("output file is required (-o)")
	}
	style, err := generator.ParseStyle(styleName)
	if err != nil {
		return err
	}

	cfg, log, err := c.setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	gw, err := generator.FromConfig(cfg.Gateway, cfg.Canvas)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(log)
	defer cancel()

	ref, err := generator.NewService(gw, cfg.Gateway.FallbackMessage).GenerateImage(ctx, prompt, style)
	if err != nil {
		return err
	}
	mimeType, data, err := imageref.NewLoader(imageref.NewAssets()).Bytes(ctx, ref, true)
	if err != nil {
		return err
	}
	if filepath.Ext(output) == "" {
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			output += exts[0]
		}
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	log.Info("generated", zap.String("output", output), zap.String("mime", mimeType))
	return nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	in := fs.String("in", "", "Document to extract text from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("--in is required")
	}
	text, err := importer.New().ImportFile(*in)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`poststudio - Layered post composition and export

USAGE:
    poststudio serve [--port 8080] [--no-browser]
    poststudio render --project <path> -o <file>
    poststudio init [--project project.json] [--config config.toml]
    poststudio rewrite --in <file>
    poststudio generate --prompt <text> [--style <name>] -o <file>
    poststudio import --in <file>

COMMON FLAGS:
    --config <path>        Config file (TOML)
    -v                     Verbose logging

RENDER:
    --project <path>       Project JSON or bundle .zip
    -o, --output <path>    Output .png, or .zip for a bundle
    --text <path>          Post text to put in the bundle
    --allow-cross-origin   Load remote images from any host

STYLES:
    Studio, Pop Art, Watercolor, Minimal

EXAMPLES:
    poststudio init
    poststudio render --project project.json -o post.png
    poststudio render --project project.json --text notes.docx -o post.zip
    poststudio generate --prompt "coffee beans on slate" --style Minimal -o bg
    API_KEY=... poststudio rewrite --in notes.md
`)
}
