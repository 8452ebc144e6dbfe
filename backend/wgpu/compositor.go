//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/painter/gpucore"
)

// Dispatch bounds.
const (
	// DefaultMinPixels is the smallest blend sent to the GPU.
	DefaultMinPixels = 64 * 64
	// maxStorageBinding is the largest storage buffer a blend binds.
	maxStorageBinding = 128 << 20

	fenceTimeout = 5 * time.Second
)

// compositor runs same-size image blends as a compute pass. Buffers are
// kept between dispatches and recreated when the image size changes.
type compositor struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	size      uint64
	params    hal.Buffer
	src       hal.Buffer
	dst       hal.Buffer
	staging   hal.Buffer
	bindGroup hal.BindGroup
	readback  []byte

	minPixels  int
	dispatches int
}

// openVulkan opens the first discrete or integrated GPU, or the first
// adapter when there is neither.
func openVulkan() (hal.Instance, hal.Device, hal.Queue, string, error) {
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, nil, nil, "", fmt.Errorf("vulkan backend not available")
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, "", fmt.Errorf("no GPU adapters found")
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, "", fmt.Errorf("open device: %w", err)
	}
	return instance, open.Device, open.Queue, selected.Info.Name, nil
}

func newCompositor(instance hal.Instance, device hal.Device, queue hal.Queue, external bool, minPixels int) (*compositor, error) {
	c := &compositor{
		instance:  instance,
		device:    device,
		queue:     queue,
		external:  external,
		minPixels: minPixels,
	}
	if err := c.createPipeline(); err != nil {
		c.destroy()
		return nil, err
	}
	return c, nil
}

func (c *compositor) createPipeline() error {
	spirv, err := compileShader(blendShaderWGSL)
	if err != nil {
		return err
	}
	c.shader, err = c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "painter_blend",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create shader module: %w", err)
	}

	c.bindLayout, err = c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "painter_blend_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group layout: %w", err)
	}

	c.pipeLayout, err = c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "painter_blend_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{c.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}

	c.pipeline, err = c.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "painter_blend_pipeline",
		Layout:  c.pipeLayout,
		Compute: hal.ComputeState{Module: c.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create compute pipeline: %w", err)
	}
	return nil
}

// Blend implements soft.Blender.
func (c *compositor) Blend(dst, src []byte, width, height int, mode gpucore.BlendMode) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := width * height
	size := uint64(n) * 4 //nolint:gosec // n is positive
	if c.device == nil || n < c.minPixels || size > maxStorageBinding {
		return false, nil
	}
	if uint64(len(dst)) != size || uint64(len(src)) != size {
		return false, nil
	}
	if err := c.dispatch(dst, src, uint32(width), uint32(height), mode, size); err != nil { //nolint:gosec // bounded by the device image limit
		slogger().Warn("wgpu: blend dispatch failed, using CPU kernel",
			"mode", mode.String(),
			"size", fmt.Sprintf("%dx%d", width, height),
			"err", err)
		return false, nil
	}
	c.dispatches++
	return true, nil
}

func (c *compositor) dispatch(dst, src []byte, w, h uint32, mode gpucore.BlendMode, size uint64) error {
	if err := c.ensureBuffers(size); err != nil {
		return err
	}
	c.queue.WriteBuffer(c.params, 0, blendParams(w, h, uint32(mode)))
	c.queue.WriteBuffer(c.src, 0, src)
	c.queue.WriteBuffer(c.dst, 0, dst)

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "painter_blend_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("painter_blend"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "painter_blend_pass"})
	pass.SetPipeline(c.pipeline)
	pass.SetBindGroup(0, c.bindGroup, nil)
	pass.Dispatch(groups(int(w)), groups(int(h)), 1)
	pass.End()
	encoder.CopyBufferToBuffer(c.dst, c.staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	fence, err := c.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer c.device.DestroyFence(fence)
	if err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := c.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !ok {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", ok, err)
	}
	if err := c.queue.ReadBuffer(c.staging, 0, c.readback); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	copy(dst, c.readback)
	return nil
}

// ensureBuffers sizes the storage buffers and bind group for size bytes.
func (c *compositor) ensureBuffers(size uint64) error {
	if c.size == size && c.bindGroup != nil {
		return nil
	}
	c.destroyBuffers()

	var err error
	c.params, err = c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "painter_blend_params", Size: 16,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create params buffer: %w", err)
	}
	c.src, err = c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "painter_blend_src", Size: size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create source buffer: %w", err)
	}
	c.dst, err = c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "painter_blend_dst", Size: size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create target buffer: %w", err)
	}
	c.staging, err = c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "painter_blend_staging", Size: size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	c.bindGroup, err = c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "painter_blend_bind", Layout: c.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: c.params.NativeHandle(), Offset: 0, Size: 16}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: c.src.NativeHandle(), Offset: 0, Size: size}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: c.dst.NativeHandle(), Offset: 0, Size: size}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	c.size = size
	c.readback = make([]byte, size)
	slogger().Debug("wgpu: blend buffers allocated", "bytes", size)
	return nil
}

func (c *compositor) destroyBuffers() {
	if c.device == nil {
		return
	}
	if c.bindGroup != nil {
		c.device.DestroyBindGroup(c.bindGroup)
		c.bindGroup = nil
	}
	for _, b := range []*hal.Buffer{&c.params, &c.src, &c.dst, &c.staging} {
		if *b != nil {
			c.device.DestroyBuffer(*b)
			*b = nil
		}
	}
	c.size = 0
	c.readback = nil
}

// destroy releases the pipeline and buffers, and the device and instance
// unless they belong to a provider.
func (c *compositor) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return
	}
	c.destroyBuffers()
	if c.pipeline != nil {
		c.device.DestroyComputePipeline(c.pipeline)
		c.pipeline = nil
	}
	if c.pipeLayout != nil {
		c.device.DestroyPipelineLayout(c.pipeLayout)
		c.pipeLayout = nil
	}
	if c.bindLayout != nil {
		c.device.DestroyBindGroupLayout(c.bindLayout)
		c.bindLayout = nil
	}
	if c.shader != nil {
		c.device.DestroyShaderModule(c.shader)
		c.shader = nil
	}
	if !c.external {
		c.device.Destroy()
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.device, c.queue, c.instance = nil, nil, nil
}
