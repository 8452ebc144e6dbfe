//go:build !nogpu

package wgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/painter/backend"
	"github.com/gogpu/painter/gpucore"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// newNoopDevice builds a Device over a noop HAL device it does not own.
func newNoopDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	d, err := newDevice(nil, device, queue, true, "noop", opts)
	if err != nil {
		cleanup()
		t.Fatalf("newDevice: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
		cleanup()
	})
	return d
}

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendWGPU) {
		t.Fatal("wgpu device not registered")
	}
}

func TestNoopDevice(t *testing.T) {
	d := newNoopDevice(t)
	if d.Name() != backend.BackendWGPU {
		t.Errorf("Name() = %q", d.Name())
	}
	if d.Adapter() != "noop" {
		t.Errorf("Adapter() = %q", d.Adapter())
	}
	if d.comp.pipeline == nil || d.comp.bindLayout == nil || d.comp.shader == nil {
		t.Error("blend pipeline not created")
	}
	if p := d.RayTracingProperties(); p.HandleSize == 0 || p.BaseAlignment < p.HandleSize {
		t.Errorf("ray tracing properties = %+v", p)
	}
}

func TestBlendDeclines(t *testing.T) {
	d := newNoopDevice(t, WithMinPixels(16))
	tests := []struct {
		name   string
		w, h   int
		dstLen int
		srcLen int
	}{
		{"below threshold", 3, 3, 36, 36},
		{"short source", 4, 4, 64, 60},
		{"short target", 4, 4, 60, 64},
		{"larger than a storage binding", 8192, 8192, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := d.comp.Blend(make([]byte, tt.dstLen), make([]byte, tt.srcLen), tt.w, tt.h, gpucore.BlendOver)
			if ok || err != nil {
				t.Errorf("Blend = %v, %v; want declined", ok, err)
			}
		})
	}
	if n := d.Dispatches(); n != 0 {
		t.Errorf("Dispatches() = %d, want 0", n)
	}
}

func TestBlendDispatch(t *testing.T) {
	d := newNoopDevice(t, WithMinPixels(1))
	dst, src := make([]byte, 8*8*4), make([]byte, 8*8*4)
	for _, mode := range []gpucore.BlendMode{gpucore.BlendNone, gpucore.BlendOver, gpucore.BlendErase} {
		ok, err := d.comp.Blend(dst, src, 8, 8, mode)
		if err != nil || !ok {
			t.Fatalf("Blend(%v) = %v, %v", mode, ok, err)
		}
	}
	if d.comp.size != 8*8*4 || d.comp.bindGroup == nil {
		t.Errorf("buffers sized %d, bind group %v", d.comp.size, d.comp.bindGroup)
	}
	if n := d.Dispatches(); n != 3 {
		t.Errorf("Dispatches() = %d, want 3", n)
	}

	// A new size reallocates.
	big := make([]byte, 16*16*4)
	if ok, err := d.comp.Blend(big, make([]byte, len(big)), 16, 16, gpucore.BlendOver); err != nil || !ok {
		t.Fatalf("Blend 16x16 = %v, %v", ok, err)
	}
	if d.comp.size != uint64(len(big)) {
		t.Errorf("buffers sized %d, want %d", d.comp.size, len(big))
	}
}

func TestCloseReleasesPipeline(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	d, err := newDevice(nil, device, queue, true, "noop", nil)
	if err != nil {
		t.Fatal(err)
	}
	d.Close()
	if d.comp.device != nil || d.comp.pipeline != nil {
		t.Error("Close left GPU objects behind")
	}
	if ok, _ := d.comp.Blend(make([]byte, 4096*4), make([]byte, 4096*4), 64, 64, gpucore.BlendOver); ok {
		t.Error("closed compositor accepted a blend")
	}
	if _, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "late", Size: 16}); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("CreateBuffer after Close = %v, want ErrClosed", err)
	}
	d.Close()
}

type mockDevice struct{}

func (m *mockDevice) Poll(bool) {}
func (m *mockDevice) Destroy()  {}

type mockQueue struct{}

type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider; with hal set it
// also exposes the HAL objects.
type mockProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

type halMockProvider struct {
	mockProvider
}

func (m *halMockProvider) HalDevice() any { return m.device }
func (m *halMockProvider) HalQueue() any  { return m.queue }

func TestNewFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	if _, err := NewFromProvider(&mockProvider{}); err == nil {
		t.Error("NewFromProvider accepted a provider without HAL types")
	}
	if _, err := NewFromProvider(&halMockProvider{}); err == nil {
		t.Error("NewFromProvider accepted a nil HAL device")
	}

	d, err := NewFromProvider(&halMockProvider{mockProvider{device: device, queue: queue}})
	if err != nil {
		t.Fatalf("NewFromProvider: %v", err)
	}
	if d.Adapter() != "shared" || !d.comp.external {
		t.Errorf("adapter %q, external %v", d.Adapter(), d.comp.external)
	}
	d.Close()

	// The shared device outlives the painter device.
	if _, err := device.CreateFence(); err != nil {
		t.Errorf("shared device unusable after Close: %v", err)
	}
}
