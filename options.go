package painter

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/painter/backend"
	"github.com/gogpu/painter/internal/resource"
)

// Defaults.
const (
	DefaultFrameCount     = 3
	DefaultPaintSize      = 4096
	DefaultMaxLayers      = 16
	DefaultBrushImageSize = 4096
	DefaultWidth          = 1000
	DefaultHeight         = 1000

	// DefaultFenceTimeout bounds every wait on a frame or pick fence.
	DefaultFenceTimeout = 5 * time.Second
)

// DefaultClearColor is the background of the rendered frame.
var DefaultClearColor = gputypes.Color{R: 0.002, G: 0.003, B: 0.009, A: 1}

// FrameInfo describes a rendered frame. It is passed to the frame hook.
type FrameInfo struct {
	// Frame counts Render calls, starting at 1.
	Frame uint64
	// Slot is the frame slot that was submitted.
	Slot int
	// Recorded reports whether the slot was re-recorded.
	Recorded bool
	Fence    uint64
}

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := painter.New(
//	    painter.WithExtent(1280, 720),
//	    painter.WithPaintSize(2048),
//	    painter.WithFrameHook(func(fi painter.FrameInfo) { ... }),
//	)
type Option func(*options)

// options holds optional configuration for Renderer creation.
type options struct {
	device         backend.Device
	backendName    string
	frames         int
	paintSize      uint32
	maxLayers      int
	width, height  uint32
	brushImageSize uint32
	clearColor     gputypes.Color
	frameHook      func(FrameInfo)
	fenceTimeout   time.Duration
	budgets        resource.Config
}

// defaultOptions returns the default renderer options.
func defaultOptions() options {
	return options{
		frames:         DefaultFrameCount,
		paintSize:      DefaultPaintSize,
		maxLayers:      DefaultMaxLayers,
		width:          DefaultWidth,
		height:         DefaultHeight,
		brushImageSize: DefaultBrushImageSize,
		clearColor:     DefaultClearColor,
		fenceTimeout:   DefaultFenceTimeout,
	}
}

// WithDevice uses d instead of a device from the backend registry. The
// Renderer does not close a device passed this way.
func WithDevice(d backend.Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithBackend opens the named backend from the registry instead of the
// default one.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backendName = name
	}
}

// WithFrameCount sets the number of frames in flight. Values below one
// are ignored.
func WithFrameCount(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.frames = n
		}
	}
}

// WithPaintSize sets the side of the paint surface, layer and composite
// images in texels.
func WithPaintSize(size uint32) Option {
	return func(o *options) {
		if size > 0 {
			o.paintSize = size
		}
	}
}

// WithMaxLayers bounds the layer stack.
func WithMaxLayers(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxLayers = n
		}
	}
}

// WithExtent sets the initial size of the presented frame.
func WithExtent(width, height uint32) Option {
	return func(o *options) {
		if width > 0 && height > 0 {
			o.width, o.height = width, height
		}
	}
}

// WithBrushImageSize bounds the side of the paint trace launch grid.
func WithBrushImageSize(size uint32) Option {
	return func(o *options) {
		if size > 0 {
			o.brushImageSize = size
		}
	}
}

// WithClearColor sets the background of the rendered frame.
func WithClearColor(c gputypes.Color) Option {
	return func(o *options) {
		o.clearColor = c
	}
}

// WithFrameHook registers a function called after every submitted frame.
func WithFrameHook(fn func(FrameInfo)) Option {
	return func(o *options) {
		o.frameHook = fn
	}
}

// WithFenceTimeout bounds waits on frame and pick fences.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithMemoryBudget sets the device-local and host-visible allocation
// budgets. Zero keeps the default of a locality.
func WithMemoryBudget(device, host uint64) Option {
	return func(o *options) {
		o.budgets = resource.Config{DeviceBudget: device, HostBudget: host}
	}
}
