// Command painter runs a headless painting session: it loads a procedural
// mesh, replays a scripted brush stroke through the orbit controller, and
// saves the composite texture.
//
// Usage:
//
//	painter [-config painter.toml] [-mesh sphere] [-out composite.png] [-sheet layers.png]
//
// Settings come from an optional TOML file and are overridden by flags.
// With -watch, edits to the config file or the layer image reload the
// session assets.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/gogpu/painter"
	_ "github.com/gogpu/painter/backend/soft"
	_ "github.com/gogpu/painter/backend/wgpu"
	"github.com/gogpu/painter/mesh"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "painter:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	level, _ := parseLevel(cfg.LogLevel)
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	painter.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	var src interface{ Changed() (string, bool) } = noChanges{}
	if cfg.Watch {
		w, err := newWatcher(cfg.configPath, cfg.LayerImage)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		defer w.Close()
		src = w
	}

	d := painter.Driver{
		Interval:    cfg.interval(),
		MaxRestarts: cfg.MaxRestarts,
		NewSession: func(context.Context) (painter.Session, error) {
			return newSession(cfg.Config, quit, src, log)
		},
	}
	log.Info("painter starting", "mesh", cfg.Mesh, "size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "ticks", cfg.Ticks)
	return d.Run(ctx)
}

type noChanges struct{}

func (noChanges) Changed() (string, bool) { return "", false }

type flagConfig struct {
	Config
	configPath string
}

func parseFlags(args []string) (flagConfig, error) {
	fs := flag.NewFlagSet("painter", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "TOML config file")
		backend    = fs.String("backend", "", "device backend (empty selects the best available)")
		meshName   = fs.String("mesh", "", "procedural mesh: "+strings.Join(mesh.Names(), ", "))
		width      = fs.Uint("width", 0, "window width")
		height     = fs.Uint("height", 0, "window height")
		paintSize  = fs.Uint("paint-size", 0, "paint surface side in texels")
		layerImage = fs.String("layer", "", "image file loaded as the bottom layer")
		out        = fs.String("out", "", "composite output file (.png or .jpg)")
		sheet      = fs.String("sheet", "", "layer contact sheet output file")
		ticks      = fs.Int("ticks", 0, "ticks before quitting")
		watch      = fs.Bool("watch", false, "reload assets when the config or layer image changes")
		logLevel   = fs.String("log-level", "", "debug, info, warn or error")
	)
	if err := fs.Parse(args); err != nil {
		return flagConfig{}, err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return flagConfig{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backend
		case "mesh":
			cfg.Mesh = *meshName
		case "width":
			cfg.Width = uint32(*width) //nolint:gosec // window sizes fit
		case "height":
			cfg.Height = uint32(*height) //nolint:gosec // window sizes fit
		case "paint-size":
			cfg.PaintSize = uint32(*paintSize) //nolint:gosec // texture sizes fit
		case "layer":
			cfg.LayerImage = *layerImage
		case "out":
			cfg.Output = *out
		case "sheet":
			cfg.Sheet = *sheet
		case "ticks":
			cfg.Ticks = *ticks
		case "watch":
			cfg.Watch = *watch
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.validate(); err != nil {
		return flagConfig{}, err
	}
	if cfg.Output != "" {
		if _, err := painter.FormatFromName(cfg.Output); err != nil {
			return flagConfig{}, err
		}
	}
	if !slices.Contains(mesh.Names(), cfg.Mesh) {
		return flagConfig{}, fmt.Errorf("%w: %q (have %v)", mesh.ErrUnknown, cfg.Mesh, mesh.Names())
	}
	return flagConfig{Config: cfg, configPath: *configPath}, nil
}
