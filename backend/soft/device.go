// Package soft implements the CPU reference device.
//
// The device executes every submission synchronously on the calling
// goroutine (image passes are split across a worker pool). It implements
// each engine program as a Go kernel and validates what a GPU driver would
// leave undefined: unbarriered reads after transfer or shader writes,
// dispatch tables that do not start at shader group handles, and pipelines
// used with attachments of a different size.
//
// Importing the package registers the device as "software":
//
//	import _ "github.com/gogpu/painter/backend/soft"
package soft

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter/backend"
	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/bvh"
	"github.com/gogpu/painter/internal/parallel"
	"github.com/gogpu/painter/recording"
)

// Device properties.
const (
	// DefaultHandleSize is the shader group handle size.
	DefaultHandleSize = 32
	// DefaultBaseAlignment is the dispatch table base alignment.
	DefaultBaseAlignment = 64
	// MaxImageDimension is the largest image side.
	MaxImageDimension = 16384
	// MaxBufferSize is the largest buffer.
	MaxBufferSize = 1 << 31

	minHandleSize = 16
)

func init() {
	backend.Register(backend.BackendSoftware, func() (backend.Device, error) {
		return New(), nil
	})
}

// Option configures a Device.
type Option func(*Device)

// WithRayTracingProperties overrides the handle size and base alignment.
// Handle sizes below 16 bytes are raised to 16.
func WithRayTracingProperties(p gpucore.RayTracingProperties) Option {
	return func(d *Device) {
		p.HandleSize = max(p.HandleSize, minHandleSize)
		if p.MaxRecursion == 0 {
			p.MaxRecursion = 1
		}
		d.props = p
	}
}

// WithWorkers sets the number of goroutines used by image passes.
func WithWorkers(n int) Option {
	return func(d *Device) { d.workers = n }
}

// Blender blends a whole RGBA8 image into another of the same size.
// Blend reports false when it declined the work; the device then runs
// its own kernel.
type Blender interface {
	Blend(dst, src []byte, width, height int, mode gpucore.BlendMode) (bool, error)
}

// WithBlender routes the full-screen layer passes through b.
func WithBlender(b Blender) Option {
	return func(d *Device) { d.blender = b }
}

type buffer struct {
	desc gpucore.BufferDesc
	data []byte
}

type texture struct {
	desc gpucore.ImageDesc
	w, h int
	// pix holds 4 bytes per texel: RGBA8 or float32 depth bits.
	pix []byte
}

type slotKey struct {
	binding, element uint32
}

type group struct {
	layoutID gpucore.GroupLayoutID
	layout   *gpucore.GroupLayoutDesc
	slots    map[slotKey]gpucore.Binding
}

type pipeline struct {
	kernel  *kernel
	layouts []gpucore.GroupLayoutID
	raster  *gpucore.RasterPipelineDesc
	rt      *gpucore.RayTracePipelineDesc
	handles [][]byte
}

type instance struct {
	blas     *bvh.BVH
	toObject mgl32.Mat4
	customID uint32
}

type accelStruct struct {
	blas      *bvh.BVH
	instances []instance
}

// Device is the CPU reference device.
//
// Device is safe for concurrent use; submissions are serialized.
type Device struct {
	mu      sync.Mutex
	props   gpucore.RayTracingProperties
	workers int
	pool    *parallel.WorkerPool
	blender Blender

	next      uint64
	buffers   map[gpucore.BufferID]*buffer
	textures  map[gpucore.ImageID]*texture
	layouts   map[gpucore.GroupLayoutID]*gpucore.GroupLayoutDesc
	groups    map[gpucore.GroupID]*group
	pipelines map[gpucore.PipelineID]*pipeline
	accels    map[gpucore.AccelID]*accelStruct

	fence  uint64
	closed bool
}

var _ backend.Device = (*Device)(nil)

// New creates a software device.
func New(opts ...Option) *Device {
	d := &Device{
		props: gpucore.RayTracingProperties{
			HandleSize:    DefaultHandleSize,
			BaseAlignment: DefaultBaseAlignment,
			MaxRecursion:  1,
		},
		buffers:   make(map[gpucore.BufferID]*buffer),
		textures:  make(map[gpucore.ImageID]*texture),
		layouts:   make(map[gpucore.GroupLayoutID]*gpucore.GroupLayoutDesc),
		groups:    make(map[gpucore.GroupID]*group),
		pipelines: make(map[gpucore.PipelineID]*pipeline),
		accels:    make(map[gpucore.AccelID]*accelStruct),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.pool = parallel.NewWorkerPool(d.workers)
	return d
}

// Name returns "software".
func (d *Device) Name() string { return backend.BackendSoftware }

// Limits returns the device limits.
func (d *Device) Limits() gpucore.Limits {
	return gpucore.Limits{MaxImageDimension: MaxImageDimension, MaxBufferSize: MaxBufferSize}
}

// RayTracingProperties returns the handle size and base alignment.
func (d *Device) RayTracingProperties() gpucore.RayTracingProperties { return d.props }

func (d *Device) id() uint64 {
	d.next++
	return d.next
}

func (d *Device) check() error {
	if d.closed {
		return backend.ErrClosed
	}
	return nil
}

// CreateBuffer creates a zero-filled buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	if desc.Size == 0 || desc.Size > MaxBufferSize {
		return 0, fmt.Errorf("%w: buffer %q of %d bytes", backend.ErrOutOfMemory, desc.Label, desc.Size)
	}
	id := gpucore.BufferID(d.id())
	d.buffers[id] = &buffer{desc: *desc, data: make([]byte, desc.Size)}
	return id, nil
}

func (d *Device) buffer(id gpucore.BufferID) (*buffer, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", backend.ErrInvalidID, id)
	}
	return b, nil
}

// WriteBuffer copies data into the buffer. Device-local buffers are
// writable too: the software device has no separate upload path.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.buffer(id)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("%w: write [%d, %d) past buffer %q", backend.ErrInvalidID, offset, offset+uint64(len(data)), b.desc.Label)
	}
	copy(b.data[offset:], data)
	return nil
}

// ReadBuffer copies buffer contents into dst.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.buffer(id)
	if err != nil {
		return err
	}
	if offset+uint64(len(dst)) > uint64(len(b.data)) {
		return fmt.Errorf("%w: read [%d, %d) past buffer %q", backend.ErrInvalidID, offset, offset+uint64(len(dst)), b.desc.Label)
	}
	copy(dst, b.data[offset:])
	return nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, id)
}

// CreateImage creates a zero-filled image.
func (d *Device) CreateImage(desc *gpucore.ImageDesc) (gpucore.ImageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	if desc.Width == 0 || desc.Height == 0 || desc.Width > MaxImageDimension || desc.Height > MaxImageDimension {
		return 0, fmt.Errorf("%w: image %q of %dx%d", backend.ErrOutOfMemory, desc.Label, desc.Width, desc.Height)
	}
	id := gpucore.ImageID(d.id())
	d.textures[id] = &texture{
		desc: *desc,
		w:    int(desc.Width),
		h:    int(desc.Height),
		pix:  make([]byte, desc.SizeBytes()),
	}
	return id, nil
}

func (d *Device) texture(id gpucore.ImageID) (*texture, error) {
	t, ok := d.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: image %d", backend.ErrInvalidID, id)
	}
	return t, nil
}

// WriteImage uploads whole-image texel data.
func (d *Device) WriteImage(id gpucore.ImageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.texture(id)
	if err != nil {
		return err
	}
	if len(data) != len(t.pix) {
		return fmt.Errorf("%w: image %q expects %d bytes, got %d", backend.ErrInvalidID, t.desc.Label, len(t.pix), len(data))
	}
	copy(t.pix, data)
	return nil
}

// ReadImage reads back whole-image texel data.
func (d *Device) ReadImage(id gpucore.ImageID, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.texture(id)
	if err != nil {
		return err
	}
	if len(dst) != len(t.pix) {
		return fmt.Errorf("%w: image %q holds %d bytes, got %d", backend.ErrInvalidID, t.desc.Label, len(t.pix), len(dst))
	}
	copy(dst, t.pix)
	return nil
}

// DestroyImage releases an image.
func (d *Device) DestroyImage(id gpucore.ImageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

// CreateGroupLayout records a group shape.
func (d *Device) CreateGroupLayout(desc *gpucore.GroupLayoutDesc) (gpucore.GroupLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	cp := *desc
	cp.Entries = append([]gpucore.LayoutEntry(nil), desc.Entries...)
	id := gpucore.GroupLayoutID(d.id())
	d.layouts[id] = &cp
	return id, nil
}

// DestroyGroupLayout releases a layout.
func (d *Device) DestroyGroupLayout(id gpucore.GroupLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.layouts, id)
}

// CreateGroup creates an empty group of a layout.
func (d *Device) CreateGroup(layout gpucore.GroupLayoutID) (gpucore.GroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	l, ok := d.layouts[layout]
	if !ok {
		return 0, fmt.Errorf("%w: layout %d", backend.ErrInvalidID, layout)
	}
	id := gpucore.GroupID(d.id())
	d.groups[id] = &group{layoutID: layout, layout: l, slots: make(map[slotKey]gpucore.Binding)}
	return id, nil
}

// UpdateGroup validates all bindings and then applies them.
func (d *Device) UpdateGroup(id gpucore.GroupID, bindings []gpucore.Binding) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[id]
	if !ok {
		return fmt.Errorf("%w: group %d", backend.ErrInvalidID, id)
	}
	for _, b := range bindings {
		if err := d.checkBinding(g.layout, b); err != nil {
			return err
		}
	}
	for _, b := range bindings {
		g.slots[slotKey{b.Binding, b.Element}] = b
	}
	return nil
}

func (d *Device) checkBinding(layout *gpucore.GroupLayoutDesc, b gpucore.Binding) error {
	e, ok := layout.Entry(b.Binding)
	if !ok || b.Element >= e.Len() {
		return fmt.Errorf("%w: binding %d[%d] not in layout %q", backend.ErrBindingMismatch, b.Binding, b.Element, layout.Label)
	}
	switch {
	case e.Kind.IsBuffer():
		if _, ok := d.buffers[b.Buffer]; !ok {
			return fmt.Errorf("%w: binding %d: buffer %d", backend.ErrBindingMismatch, b.Binding, b.Buffer)
		}
	case e.Kind.IsImage():
		if _, ok := d.textures[b.Image]; !ok {
			return fmt.Errorf("%w: binding %d: image %d", backend.ErrBindingMismatch, b.Binding, b.Image)
		}
	case e.Kind == gpucore.BindingAccel:
		if _, ok := d.accels[b.Accel]; !ok {
			return fmt.Errorf("%w: binding %d: accel %d", backend.ErrBindingMismatch, b.Binding, b.Accel)
		}
	}
	return nil
}

// DestroyGroup releases a group.
func (d *Device) DestroyGroup(id gpucore.GroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.groups, id)
}

// CreateRasterPipeline creates a pipeline running one of the raster kernels.
func (d *Device) CreateRasterPipeline(desc *gpucore.RasterPipelineDesc) (gpucore.PipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	k, ok := kernels[desc.Program]
	if !ok || k.trace != nil {
		return 0, fmt.Errorf("%w: raster program %q", backend.ErrUnknownProgram, desc.Program)
	}
	if err := d.checkLayouts(desc.Layouts); err != nil {
		return 0, err
	}
	cp := *desc
	id := gpucore.PipelineID(d.id())
	d.pipelines[id] = &pipeline{kernel: k, layouts: append([]gpucore.GroupLayoutID(nil), desc.Layouts...), raster: &cp}
	return id, nil
}

// CreateRayTracePipeline creates a pipeline running one of the ray-trace
// kernels and assigns a unique handle to every shader group.
func (d *Device) CreateRayTracePipeline(desc *gpucore.RayTracePipelineDesc) (gpucore.PipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	k, ok := kernels[desc.Program]
	if !ok || k.trace == nil {
		return 0, fmt.Errorf("%w: ray-trace program %q", backend.ErrUnknownProgram, desc.Program)
	}
	if len(desc.Groups) == 0 {
		return 0, fmt.Errorf("%w: ray-trace program %q without shader groups", backend.ErrUnknownProgram, desc.Program)
	}
	if desc.MaxRecursion > d.props.MaxRecursion {
		return 0, fmt.Errorf("%w: recursion %d exceeds %d", backend.ErrUnknownProgram, desc.MaxRecursion, d.props.MaxRecursion)
	}
	if err := d.checkLayouts(desc.Layouts); err != nil {
		return 0, err
	}
	cp := *desc
	id := gpucore.PipelineID(d.id())
	p := &pipeline{kernel: k, layouts: append([]gpucore.GroupLayoutID(nil), desc.Layouts...), rt: &cp}
	for g := range desc.Groups {
		p.handles = append(p.handles, d.handle(id, uint32(g))) //nolint:gosec // G115: few groups
	}
	d.pipelines[id] = p
	return id, nil
}

func (d *Device) checkLayouts(ids []gpucore.GroupLayoutID) error {
	for _, l := range ids {
		if _, ok := d.layouts[l]; !ok {
			return fmt.Errorf("%w: layout %d", backend.ErrInvalidID, l)
		}
	}
	return nil
}

// handle builds the opaque handle of group g: a magic, the pipeline and
// the group number, then a fill pattern. It is never all zero.
func (d *Device) handle(p gpucore.PipelineID, g uint32) []byte {
	h := make([]byte, d.props.HandleSize)
	copy(h, "SBTH")
	binary.LittleEndian.PutUint64(h[4:], uint64(p))
	binary.LittleEndian.PutUint32(h[12:], g+1)
	for i := minHandleSize; i < len(h); i++ {
		h[i] = byte(0x5A ^ i)
	}
	return h
}

// ShaderGroupHandles returns count handles starting at group first.
func (d *Device) ShaderGroupHandles(id gpucore.PipelineID, first, count uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[id]
	if !ok || p.rt == nil {
		return nil, fmt.Errorf("%w: ray-trace pipeline %d", backend.ErrInvalidID, id)
	}
	if uint64(first)+uint64(count) > uint64(len(p.handles)) {
		return nil, fmt.Errorf("%w: groups [%d, %d) of %d", backend.ErrInvalidID, first, first+count, len(p.handles))
	}
	out := make([]byte, 0, int(count)*int(d.props.HandleSize))
	for _, h := range p.handles[first : first+count] {
		out = append(out, h...)
	}
	return out, nil
}

// DestroyPipeline releases a pipeline.
func (d *Device) DestroyPipeline(id gpucore.PipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, id)
}

// BuildBLAS builds a bottom-level structure from vertex and index buffers.
func (d *Device) BuildBLAS(geom *gpucore.GeometryDesc) (gpucore.AccelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	vb, err := d.buffer(geom.Vertices)
	if err != nil {
		return 0, err
	}
	ib, err := d.buffer(geom.Indices)
	if err != nil {
		return 0, err
	}
	if uint64(geom.VertexCount)*geom.VertexStride > uint64(len(vb.data)) || uint64(geom.IndexCount)*4 > uint64(len(ib.data)) {
		return 0, fmt.Errorf("%w: geometry exceeds its buffers", backend.ErrInvalidID)
	}

	pos := make([]mgl32.Vec3, geom.VertexCount)
	for i := range pos {
		off := uint64(i) * geom.VertexStride
		pos[i] = mgl32.Vec3{f32(vb.data[off:]), f32(vb.data[off+4:]), f32(vb.data[off+8:])}
	}
	idx := make([]uint32, geom.IndexCount)
	for i := range idx {
		idx[i] = binary.LittleEndian.Uint32(ib.data[i*4:])
	}
	b, err := bvh.Build(pos, idx)
	if err != nil {
		return 0, err
	}
	id := gpucore.AccelID(d.id())
	d.accels[id] = &accelStruct{blas: b}
	slogger().Debug("soft: blas built", "triangles", len(idx)/3, "nodes", len(b.Nodes))
	return id, nil
}

// BuildTLAS builds a top-level structure over bottom-level instances.
func (d *Device) BuildTLAS(instances []gpucore.Instance) (gpucore.AccelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	a := &accelStruct{}
	for _, in := range instances {
		blas, ok := d.accels[in.BLAS]
		if !ok || blas.blas == nil {
			return 0, fmt.Errorf("%w: blas %d", backend.ErrInvalidID, in.BLAS)
		}
		a.instances = append(a.instances, instance{blas: blas.blas, toObject: in.Transform.Inv(), customID: in.CustomID})
	}
	id := gpucore.AccelID(d.id())
	d.accels[id] = a
	return id, nil
}

// DestroyAccel releases an acceleration structure.
func (d *Device) DestroyAccel(id gpucore.AccelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.accels, id)
}

// Submit executes the recording and returns its fence, which has already
// signaled when Submit returns.
func (d *Device) Submit(r *recording.Recording) (gpucore.FenceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	start := time.Now()
	if err := r.Playback(newExecutor(d)); err != nil {
		return 0, err
	}
	d.fence++
	slogger().Debug("soft: submitted",
		"label", r.Label(),
		"commands", len(r.Commands()),
		"fence", d.fence,
		"elapsed", time.Since(start))
	return gpucore.FenceID(d.fence), nil
}

// Wait returns immediately for any submitted fence.
func (d *Device) Wait(f gpucore.FenceID, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f == gpucore.InvalidID || uint64(f) > d.fence {
		return fmt.Errorf("%w: fence %d was never submitted", backend.ErrInvalidID, f)
	}
	return nil
}

// WaitIdle returns immediately: submissions complete synchronously.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.check()
}

// Close releases all device resources.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.pool.Close()
	d.buffers, d.textures = nil, nil
	d.layouts, d.groups = nil, nil
	d.pipelines, d.accels = nil, nil
}

func f32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
