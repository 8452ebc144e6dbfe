//go:build !nogpu

package wgpu

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/painter/backend"
	"github.com/gogpu/painter/backend/soft"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	backend.Register(backend.BackendWGPU, func() (backend.Device, error) {
		d, err := New()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// Option configures a Device.
type Option func(*options)

type options struct {
	minPixels int
	soft      []soft.Option
}

// WithMinPixels sets the smallest blend, in texels, sent to the GPU.
func WithMinPixels(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.minPixels = n
		}
	}
}

// WithSoftOptions passes options to the embedded software device.
func WithSoftOptions(opts ...soft.Option) Option {
	return func(o *options) { o.soft = append(o.soft, opts...) }
}

// Device is the wgpu HAL device. The embedded software device plays back
// command streams; same-size layer blends run on the GPU.
type Device struct {
	*soft.Device
	comp    *compositor
	adapter string
}

var _ backend.Device = (*Device)(nil)

// New opens a Vulkan adapter through the HAL. It returns an error
// wrapping backend.ErrBackendNotAvailable when no GPU can be opened.
func New(opts ...Option) (*Device, error) {
	instance, device, queue, name, err := openVulkan()
	if err != nil {
		return nil, fmt.Errorf("%w: wgpu: %w", backend.ErrBackendNotAvailable, err)
	}
	d, err := newDevice(instance, device, queue, false, name, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: wgpu: %w", backend.ErrBackendNotAvailable, err)
	}
	return d, nil
}

// NewFromProvider creates a device on a GPU owned by provider, for
// example a gogpu window. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue. Close leaves the
// shared device open.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	return newDevice(nil, device, queue, true, "shared", opts)
}

func newDevice(instance hal.Instance, device hal.Device, queue hal.Queue, external bool, adapter string, opts []Option) (*Device, error) {
	o := options{minPixels: DefaultMinPixels}
	for _, opt := range opts {
		opt(&o)
	}
	comp, err := newCompositor(instance, device, queue, external, o.minPixels)
	if err != nil {
		return nil, err
	}
	d := &Device{
		Device:  soft.New(append(o.soft, soft.WithBlender(comp))...),
		comp:    comp,
		adapter: adapter,
	}
	slogger().Info("wgpu: device opened", "adapter", adapter, "shared", external, "min_pixels", o.minPixels)
	return d, nil
}

// Name returns "wgpu".
func (d *Device) Name() string { return backend.BackendWGPU }

// Adapter returns the name of the GPU adapter, or "shared" for a
// provider's device.
func (d *Device) Adapter() string { return d.adapter }

// Dispatches returns how many blends ran on the GPU.
func (d *Device) Dispatches() int {
	d.comp.mu.Lock()
	defer d.comp.mu.Unlock()
	return d.comp.dispatches
}

// SetLogger sets the logger of the device and its playback engine.
func (d *Device) SetLogger(l *slog.Logger) {
	setLogger(l)
	d.Device.SetLogger(l)
}

// Close releases the playback engine, then the GPU objects.
func (d *Device) Close() {
	d.Device.Close()
	d.comp.destroy()
}
