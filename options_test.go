package painter

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/painter/backend"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.frames != DefaultFrameCount || o.paintSize != DefaultPaintSize || o.maxLayers != DefaultMaxLayers {
		t.Errorf("defaults = %+v", o)
	}
	if o.width != DefaultWidth || o.height != DefaultHeight || o.brushImageSize != DefaultBrushImageSize {
		t.Errorf("default sizes = %+v", o)
	}
	if o.fenceTimeout != DefaultFenceTimeout || o.clearColor != DefaultClearColor {
		t.Errorf("default timeout %v clear %v", o.fenceTimeout, o.clearColor)
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{
		WithFrameCount(0),
		WithPaintSize(0),
		WithMaxLayers(-1),
		WithExtent(0, 10),
		WithBrushImageSize(0),
		WithFenceTimeout(-time.Second),
	} {
		opt(&o)
	}
	d := defaultOptions()
	if o.frames != d.frames || o.paintSize != d.paintSize || o.maxLayers != d.maxLayers ||
		o.width != d.width || o.height != d.height || o.brushImageSize != d.brushImageSize ||
		o.fenceTimeout != d.fenceTimeout {
		t.Errorf("invalid values changed the options: %+v", o)
	}
}

func TestOptionsApply(t *testing.T) {
	o := defaultOptions()
	bg := gputypes.Color{R: 1, A: 1}
	for _, opt := range []Option{
		WithFrameCount(2),
		WithPaintSize(512),
		WithMaxLayers(8),
		WithExtent(640, 480),
		WithBrushImageSize(128),
		WithClearColor(bg),
		WithFenceTimeout(time.Second),
		WithMemoryBudget(1<<20, 1<<10),
		WithBackend("soft"),
	} {
		opt(&o)
	}
	if o.frames != 2 || o.paintSize != 512 || o.maxLayers != 8 || o.width != 640 || o.height != 480 {
		t.Errorf("options = %+v", o)
	}
	if o.brushImageSize != 128 || o.clearColor != bg || o.fenceTimeout != time.Second {
		t.Errorf("options = %+v", o)
	}
	if o.budgets.DeviceBudget != 1<<20 || o.budgets.HostBudget != 1<<10 || o.backendName != "soft" {
		t.Errorf("budgets %+v backend %q", o.budgets, o.backendName)
	}
}

func TestWithBackend(t *testing.T) {
	r, err := New(WithBackend(backend.BackendSoftware), WithPaintSize(testPaintSize), WithExtent(testExtent, testExtent))
	if err != nil {
		t.Fatalf("New(WithBackend(software)): %v", err)
	}
	if !r.ownsDevice {
		t.Error("renderer does not own a device it opened")
	}
	r.Close()

	if _, err := New(WithBackend("no-such-backend")); !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("New(WithBackend(unknown)) = %v, want ErrBackendNotAvailable", err)
	}
}

func TestWithFrameHook(t *testing.T) {
	var got []FrameInfo
	r := newTestRenderer(t, WithFrameHook(func(fi FrameInfo) { got = append(got, fi) }))
	mustRender(t, r, 3)

	want := []struct {
		frame    uint64
		slot     int
		recorded bool
	}{
		{1, 0, true},
		{2, 1, true},
		{3, 0, false},
	}
	if len(got) != len(want) {
		t.Fatalf("hook called %d times, want %d", len(got), len(want))
	}
	for i, w := range want {
		g := got[i]
		if g.Frame != w.frame || g.Slot != w.slot || g.Recorded != w.recorded || g.Fence == 0 {
			t.Errorf("frame %d info = %+v", i, g)
		}
	}
}
