package painter

import (
	"fmt"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/resource"
)

// allocateTargets creates the extent-sized objects: the shared depth image
// and one presentable target per frame slot. Existing slots keep their
// index and fence.
func (r *Renderer) allocateTargets() error {
	w, h := r.extent.Width, r.extent.Height
	depth, err := r.mem.AllocateImage("depth", w, h, gpucore.FormatDepth, gpucore.ImageUsageDepthAttachment)
	if err != nil {
		return fatal("allocate depth", err)
	}
	r.res.depth = depth

	if r.slots == nil {
		r.slots = make([]*frameSlot, r.o.frames)
		for i := range r.slots {
			r.slots[i] = &frameSlot{index: i}
		}
	}
	for _, s := range r.slots {
		target, err := r.mem.AllocateImage(fmt.Sprintf("frame-%d", s.index), w, h, gpucore.FormatColor,
			gpucore.ImageUsageColorAttachment|gpucore.ImageUsageCopySrc|gpucore.ImageUsageSampled)
		if err != nil {
			return fatal("allocate frame target", err)
		}
		s.target = target
	}
	return nil
}

// freeTargets releases what allocateTargets created. The device must be
// idle.
func (r *Renderer) freeTargets() {
	if r.res.depth != nil {
		r.mem.FreeImage(r.res.depth)
		r.res.depth = nil
	}
	for _, s := range r.slots {
		if s.target != nil {
			r.mem.FreeImage(s.target)
			s.target = nil
		}
		s.rec = nil
		s.state = SlotStale
	}
	r.last = nil
}

// layerBindings binds every element of the layer array: stacked layers at
// their position, the empty placeholder elsewhere.
func (r *Renderer) layerBindings() []gpucore.Binding {
	out := r.layers.Bindings(gpucore.RasterLayers)
	for i := len(out); i < r.o.maxLayers; i++ {
		out = append(out, r.res.emptyLayer.Bind(gpucore.RasterLayers, uint32(i))) //nolint:gosec // G115: bounded by maxLayers
	}
	return out
}

// rebindLayers rewrites the whole layer array of the raster group and
// invalidates every slot.
func (r *Renderer) rebindLayers() error {
	if err := r.mem.Bind(r.groups.raster, r.layerBindings()); err != nil {
		return r.check(fatal("rebind layers", err))
	}
	r.invalidate()
	return nil
}

// bindMesh points the raster, ray-trace and select groups at the current
// mesh and index, or at the placeholders when no mesh is loaded.
func (r *Renderer) bindMesh() error {
	vertices, indices := r.res.emptyVertices, r.res.emptyIndices
	if r.meshRes.vertices != nil {
		vertices, indices = r.meshRes.vertices, r.meshRes.indices
	}
	if err := r.mem.Bind(r.groups.raster, []gpucore.Binding{
		vertices.Bind(gpucore.RasterVertices),
		indices.Bind(gpucore.RasterIndices),
	}); err != nil {
		return fatal("bind mesh", err)
	}
	if idx := r.index.Index(); idx != nil {
		accel := gpucore.Binding{Binding: gpucore.TraceAccel, Accel: idx.TLAS}
		if err := r.mem.Bind(r.groups.trace, []gpucore.Binding{accel}); err != nil {
			return fatal("bind index", err)
		}
		accel.Binding = gpucore.SelectAccel
		if err := r.mem.Bind(r.groups.sel, []gpucore.Binding{accel}); err != nil {
			return fatal("bind index", err)
		}
	}
	return nil
}

// freeMesh releases the mesh regions. The device must be idle.
func (r *Renderer) freeMesh() {
	for _, reg := range []*resource.Region{r.meshRes.vertices, r.meshRes.indices} {
		if reg != nil {
			r.mem.Free(reg)
		}
	}
	r.meshRes = meshResources{}
}
