package soft

import (
	"bytes"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/painter/backend"
	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/recording"
)

type resKind uint8

const (
	resBuffer resKind = iota + 1
	resImage
)

// resKey names a resource in the hazard table.
type resKey struct {
	kind resKind
	id   uint64
}

// executor plays one recording against the device. It tracks writes that
// no barrier has made visible yet.
type executor struct {
	d *Device

	// pending holds transfer and shader writes not yet covered by a
	// barrier. Attachment writes are visible at the end of their pass.
	pending map[resKey]gpucore.Access

	pass   *recording.RenderPass
	color  *texture
	depth  *texture
	pipe   *pipeline
	groups map[uint32]*group
	push   []byte
}

var _ recording.Executor = (*executor)(nil)

func newExecutor(d *Device) *executor {
	return &executor{
		d:       d,
		pending: make(map[resKey]gpucore.Access),
		groups:  make(map[uint32]*group),
	}
}

func imageKey(id gpucore.ImageID) resKey   { return resKey{resImage, uint64(id)} }
func bufferKey(id gpucore.BufferID) resKey { return resKey{resBuffer, uint64(id)} }

func (e *executor) hazard(k resKey, what string) error {
	if a := e.pending[k]; a != 0 {
		return fmt.Errorf("%w: %s accessed before a barrier covers write access %#x", backend.ErrHazard, what, uint32(a))
	}
	return nil
}

func (e *executor) ClearImage(id gpucore.ImageID, c gputypes.Color) error {
	t, err := e.d.texture(id)
	if err != nil {
		return err
	}
	if err := e.hazard(imageKey(id), t.desc.Label); err != nil {
		return err
	}
	t.fill(colorTexel(c))
	e.pending[imageKey(id)] |= gpucore.AccessTransferWrite
	return nil
}

func (e *executor) Barrier(b gpucore.Barrier) error {
	for k, a := range e.pending {
		if a &^= b.SrcAccess; a == 0 {
			delete(e.pending, k)
		} else {
			e.pending[k] = a
		}
	}
	return nil
}

func (e *executor) BeginRenderPass(p recording.RenderPass) error {
	color, err := e.d.texture(p.Color)
	if err != nil {
		return err
	}
	if err := e.hazard(imageKey(p.Color), color.desc.Label); err != nil {
		return err
	}
	var depth *texture
	if p.Depth != gpucore.InvalidID {
		if depth, err = e.d.texture(p.Depth); err != nil {
			return err
		}
		if depth.w != color.w || depth.h != color.h {
			return fmt.Errorf("%w: depth %dx%d, color %dx%d", backend.ErrViewportMismatch, depth.w, depth.h, color.w, color.h)
		}
		if err := e.hazard(imageKey(p.Depth), depth.desc.Label); err != nil {
			return err
		}
		if p.DepthLoad == gputypes.LoadOpClear {
			depth.fill(math.Float32bits(p.ClearDepth))
		}
	}
	if p.ColorLoad == gputypes.LoadOpClear {
		color.fill(colorTexel(p.ClearColor))
	}
	e.pass = &p
	e.color, e.depth = color, depth
	return nil
}

func (e *executor) EndRenderPass() error {
	e.pass, e.color, e.depth = nil, nil, nil
	return nil
}

func (e *executor) SetPipeline(id gpucore.PipelineID) error {
	p, ok := e.d.pipelines[id]
	if !ok {
		return fmt.Errorf("%w: pipeline %d", backend.ErrInvalidID, id)
	}
	e.pipe = p
	return nil
}

func (e *executor) SetGroup(index uint32, id gpucore.GroupID) error {
	g, ok := e.d.groups[id]
	if !ok {
		return fmt.Errorf("%w: group %d", backend.ErrInvalidID, id)
	}
	e.groups[index] = g
	return nil
}

func (e *executor) PushConstants(data []byte) error {
	e.push = data
	return nil
}

// bound checks that every set of the pipeline holds a group of the right
// layout and that none of its resources has an unbarriered write.
func (e *executor) bound() ([]*group, error) {
	sets := make([]*group, len(e.pipe.layouts))
	for i, want := range e.pipe.layouts {
		g := e.groups[uint32(i)] //nolint:gosec // G115: few sets
		if g == nil || g.layoutID != want {
			return nil, fmt.Errorf("%w: set %d does not hold a group of layout %d", backend.ErrBindingMismatch, i, want)
		}
		for _, b := range g.slots {
			if err := e.checkSlot(g, b); err != nil {
				return nil, err
			}
		}
		sets[i] = g
	}
	return sets, nil
}

func (e *executor) checkSlot(g *group, b gpucore.Binding) error {
	entry, _ := g.layout.Entry(b.Binding)
	switch {
	case entry.Kind.IsBuffer():
		return e.hazard(bufferKey(b.Buffer), fmt.Sprintf("%s binding %d", g.layout.Label, b.Binding))
	case entry.Kind.IsImage():
		return e.hazard(imageKey(b.Image), fmt.Sprintf("%s binding %d[%d]", g.layout.Label, b.Binding, b.Element))
	}
	return nil
}

func (e *executor) Draw(vertexCount, _ uint32) error {
	if e.pipe == nil || e.pipe.raster == nil {
		return fmt.Errorf("%w: draw without a raster pipeline", backend.ErrBindingMismatch)
	}
	if e.color == nil {
		return fmt.Errorf("%w: draw outside a render pass", backend.ErrBindingMismatch)
	}
	desc := e.pipe.raster
	if desc.Viewport.Width != uint32(e.color.w) || desc.Viewport.Height != uint32(e.color.h) { //nolint:gosec // G115: bounded by MaxImageDimension
		return fmt.Errorf("%w: pipeline %q built for %dx%d, attachment is %dx%d",
			backend.ErrViewportMismatch, desc.Label, desc.Viewport.Width, desc.Viewport.Height, e.color.w, e.color.h)
	}
	if desc.DepthTest && e.depth == nil {
		return fmt.Errorf("%w: depth-tested pipeline %q without a depth attachment", backend.ErrBindingMismatch, desc.Label)
	}
	sets, err := e.bound()
	if err != nil {
		return err
	}
	inv := &invocation{d: e.d, sets: sets, push: e.push, blend: desc.Blend, depthTest: desc.DepthTest, color: e.color, depth: e.depth}
	return e.pipe.kernel.draw(inv, vertexCount)
}

func (e *executor) TraceRays(t gpucore.ShaderTables, width, height, _ uint32) error {
	if e.pipe == nil || e.pipe.rt == nil {
		return fmt.Errorf("%w: trace without a ray-trace pipeline", backend.ErrBindingMismatch)
	}
	if err := e.resolveTables(t); err != nil {
		return err
	}
	sets, err := e.bound()
	if err != nil {
		return err
	}
	inv := &invocation{d: e.d, sets: sets, push: e.push, extent: e.pipe.rt.Extent}
	if err := e.pipe.kernel.trace(inv, width, height); err != nil {
		return err
	}
	for _, w := range e.pipe.kernel.writes {
		for _, k := range inv.keys(w) {
			e.pending[k] |= gpucore.AccessShaderWrite
		}
	}
	return nil
}

// resolveTables checks that each region starts at the handle of its shader
// group: raygen, miss and closest hit are groups 0, 1 and 2.
func (e *executor) resolveTables(t gpucore.ShaderTables) error {
	props := e.d.props
	if t.RayGen.Offset%uint64(props.BaseAlignment) != 0 {
		return fmt.Errorf("%w: raygen offset %d, alignment %d", backend.ErrMisalignedTable, t.RayGen.Offset, props.BaseAlignment)
	}
	for g, r := range [...]gpucore.StridedRegion{t.RayGen, t.Miss, t.Hit} {
		if g >= len(e.pipe.handles) {
			break
		}
		b, err := e.d.buffer(r.Buffer)
		if err != nil {
			return err
		}
		if err := e.hazard(bufferKey(r.Buffer), b.desc.Label); err != nil {
			return err
		}
		end := r.Offset + uint64(props.HandleSize)
		if end > uint64(len(b.data)) || !bytes.Equal(b.data[r.Offset:end], e.pipe.handles[g]) {
			return fmt.Errorf("%w: group %d region at offset %d", backend.ErrInvalidShaderGroupHandle, g, r.Offset)
		}
	}
	return nil
}

// invocation is what a kernel sees of one draw or dispatch.
type invocation struct {
	d    *Device
	sets []*group
	push []byte

	blend     gpucore.BlendMode
	depthTest bool
	color     *texture
	depth     *texture

	extent gpucore.Extent
}

func (inv *invocation) slot(set, binding, element uint32) (gpucore.Binding, error) {
	if int(set) >= len(inv.sets) {
		return gpucore.Binding{}, fmt.Errorf("%w: set %d", backend.ErrUnboundResource, set)
	}
	b, ok := inv.sets[set].slots[slotKey{binding, element}]
	if !ok {
		return gpucore.Binding{}, fmt.Errorf("%w: set %d binding %d[%d]", backend.ErrUnboundResource, set, binding, element)
	}
	return b, nil
}

func (inv *invocation) buffer(set, binding uint32) ([]byte, error) {
	b, err := inv.slot(set, binding, 0)
	if err != nil {
		return nil, err
	}
	buf, err := inv.d.buffer(b.Buffer)
	if err != nil {
		return nil, err
	}
	end := uint64(len(buf.data))
	if b.Size != 0 {
		end = min(end, b.Offset+b.Size)
	}
	if b.Offset > end {
		return nil, fmt.Errorf("%w: binding %d offset %d past buffer %q", backend.ErrUnboundResource, binding, b.Offset, buf.desc.Label)
	}
	return buf.data[b.Offset:end], nil
}

func (inv *invocation) texture(set, binding, element uint32) (*texture, error) {
	b, err := inv.slot(set, binding, element)
	if err != nil {
		return nil, err
	}
	return inv.d.texture(b.Image)
}

func (inv *invocation) accel(set, binding uint32) (*accelStruct, error) {
	b, err := inv.slot(set, binding, 0)
	if err != nil {
		return nil, err
	}
	a, ok := inv.d.accels[b.Accel]
	if !ok {
		return nil, fmt.Errorf("%w: accel %d", backend.ErrInvalidID, b.Accel)
	}
	return a, nil
}

// keys returns the hazard keys of every element bound at ref.
func (inv *invocation) keys(ref bindingRef) []resKey {
	if int(ref.set) >= len(inv.sets) {
		return nil
	}
	g := inv.sets[ref.set]
	var out []resKey
	for k, b := range g.slots {
		if k.binding != ref.binding {
			continue
		}
		entry, _ := g.layout.Entry(b.Binding)
		switch {
		case entry.Kind.IsBuffer():
			out = append(out, bufferKey(b.Buffer))
		case entry.Kind.IsImage():
			out = append(out, imageKey(b.Image))
		}
	}
	return out
}
