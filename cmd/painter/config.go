package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/painter"
	"github.com/gogpu/painter/controller"
)

// Config is the TOML configuration of a painting session. Flags override
// the file.
type Config struct {
	Backend   string `toml:"backend"`
	Mesh      string `toml:"mesh"`
	Width     uint32 `toml:"width"`
	Height    uint32 `toml:"height"`
	PaintSize uint32 `toml:"paint_size"`
	Frames    int    `toml:"frames"`
	MaxLayers int    `toml:"max_layers"`

	// LayerImage is loaded as the bottom layer when set.
	LayerImage string `toml:"layer_image"`
	Output     string `toml:"output"`
	Sheet      string `toml:"sheet"`

	Ticks       int    `toml:"ticks"`
	IntervalMS  int    `toml:"interval_ms"`
	MaxRestarts int    `toml:"max_restarts"`
	Watch       bool   `toml:"watch"`
	LogLevel    string `toml:"log_level"`

	Brush  BrushConfig   `toml:"brush"`
	Events []EventConfig `toml:"events"`
}

// BrushConfig sets the initial brush.
type BrushConfig struct {
	Radius float32    `toml:"radius"`
	Color  [3]float32 `toml:"color"`
	Erase  bool       `toml:"erase"`
}

// EventConfig is one scripted input event, delivered at Tick.
type EventConfig struct {
	Tick   int     `toml:"tick"`
	Kind   string  `toml:"kind"`
	Key    string  `toml:"key"`
	Button string  `toml:"button"`
	X      float32 `toml:"x"`
	Y      float32 `toml:"y"`
}

func defaultConfig() Config {
	return Config{
		Mesh:        "sphere",
		Width:       800,
		Height:      600,
		PaintSize:   1024,
		Frames:      painter.DefaultFrameCount,
		MaxLayers:   painter.DefaultMaxLayers,
		Output:      "composite.png",
		Ticks:       90,
		IntervalMS:  int(painter.DefaultInterval / time.Millisecond),
		MaxRestarts: 3,
		LogLevel:    "info",
		Brush: BrushConfig{
			Radius: 0.03,
			Color:  [3]float32{painter.DefaultBrushColor[0], painter.DefaultBrushColor[1], painter.DefaultBrushColor[2]},
		},
	}
}

// loadConfig reads path over the defaults. Unknown keys are errors.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := decodeConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w\n%s", err, strict.String())
		}
		return err
	}
	return cfg.validate()
}

var errConfig = errors.New("invalid config")

func (c *Config) validate() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return fmt.Errorf("%w: window size %dx%d", errConfig, c.Width, c.Height)
	case c.PaintSize == 0:
		return fmt.Errorf("%w: paint_size is zero", errConfig)
	case c.Ticks < 0:
		return fmt.Errorf("%w: ticks %d", errConfig, c.Ticks)
	case c.Brush.Radius < 0:
		return fmt.Errorf("%w: brush radius %v", errConfig, c.Brush.Radius)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	for i, e := range c.Events {
		if _, err := e.event(); err != nil {
			return fmt.Errorf("%w: event %d: %w", errConfig, i, err)
		}
	}
	return nil
}

func (c *Config) interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c *Config) options() []painter.Option {
	return []painter.Option{
		painter.WithBackend(c.Backend),
		painter.WithExtent(c.Width, c.Height),
		painter.WithPaintSize(c.PaintSize),
		painter.WithFrameCount(c.Frames),
		painter.WithMaxLayers(c.MaxLayers),
	}
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", errConfig, s)
	}
	return l, nil
}

var (
	eventKinds = map[string]controller.EventType{
		"key-down":   controller.KeyDown,
		"key-up":     controller.KeyUp,
		"mouse-move": controller.MouseMove,
		"mouse-down": controller.MouseDown,
		"mouse-up":   controller.MouseUp,
	}
	eventKeys = map[string]controller.Key{
		"":       controller.KeyNone,
		"escape": controller.KeyEscape,
		"space":  controller.KeySpace,
		"r":      controller.KeyR,
		"c":      controller.KeyC,
		"p":      controller.KeyP,
		"x":      controller.KeyX,
		"n":      controller.KeyN,
	}
	eventButtons = map[string]controller.Button{
		"":       0,
		"left":   controller.ButtonLeft,
		"middle": controller.ButtonMiddle,
		"right":  controller.ButtonRight,
	}
)

func (e EventConfig) event() (controller.Event, error) {
	kind, ok := eventKinds[e.Kind]
	if !ok {
		return controller.Event{}, fmt.Errorf("unknown kind %q", e.Kind)
	}
	key, ok := eventKeys[e.Key]
	if !ok {
		return controller.Event{}, fmt.Errorf("unknown key %q", e.Key)
	}
	button, ok := eventButtons[e.Button]
	if !ok {
		return controller.Event{}, fmt.Errorf("unknown button %q", e.Button)
	}
	return controller.Event{Type: kind, Key: key, Button: button, X: e.X, Y: e.Y}, nil
}

// defaultScript is a horizontal stroke across the middle of the window
// followed by a save.
func defaultScript(width, height uint32) []EventConfig {
	w, h := float32(width), float32(height)
	script := []EventConfig{{Tick: 1, Kind: "mouse-down", Button: "left", X: 0.3 * w, Y: 0.5 * h}}
	for i := 1; i <= 20; i++ {
		script = append(script, EventConfig{Tick: 1 + i, Kind: "mouse-move", X: (0.3 + 0.02*float32(i)) * w, Y: 0.5 * h})
	}
	return append(script,
		EventConfig{Tick: 22, Kind: "mouse-up", Button: "left", X: 0.7 * w, Y: 0.5 * h},
		EventConfig{Tick: 23, Kind: "key-down", Key: "p"},
	)
}
