package painter

import (
	"fmt"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/accel"
	"github.com/gogpu/painter/mesh"
)

// LoadMesh uploads m, rebuilds the spatial index over it and rebinds the
// groups that read mesh data. It waits for the device to go idle first.
// The paint surface and layers are kept.
func (r *Renderer) LoadMesh(m *mesh.Mesh) error {
	if err := r.guard(); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("painter: %w", mesh.ErrEmpty)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("painter: mesh %q: %w", m.Name, err)
	}
	if err := r.idle("load mesh"); err != nil {
		return err
	}
	r.freeMesh()

	vb, ib := m.VertexBytes(), m.IndexBytes()
	usage := gpucore.BufferUsageStorage | gpucore.BufferUsageAccelInput | gpucore.BufferUsageCopyDst
	vertices, err := r.mem.Allocate(m.Name+"-vertices", uint64(len(vb)), usage, gpucore.LocalityDevice)
	if err != nil {
		return r.check(fatal("load mesh", err))
	}
	indices, err := r.mem.Allocate(m.Name+"-indices", uint64(len(ib)), usage, gpucore.LocalityDevice)
	if err != nil {
		r.mem.Free(vertices)
		return r.check(fatal("load mesh", err))
	}
	r.meshRes = meshResources{vertices: vertices, indices: indices}
	if err := vertices.Upload(0, vb); err != nil {
		return r.check(fatal("upload vertices", err))
	}
	if err := indices.Upload(0, ib); err != nil {
		return r.check(fatal("upload indices", err))
	}

	if _, err := r.index.Build(accel.Geometry{
		Vertices:     vertices,
		Indices:      indices,
		VertexStride: gpucore.VertexSize,
		VertexCount:  uint32(len(m.Vertices)), //nolint:gosec // G115: validated
		IndexCount:   uint32(len(m.Indices)),  //nolint:gosec // G115: validated
	}); err != nil {
		return r.check(err)
	}
	if err := r.bindMesh(); err != nil {
		return r.check(err)
	}
	r.mesh = m
	r.meshRes.indexCount = uint32(len(m.Indices)) //nolint:gosec // G115: validated
	r.invalidate()
	slogger().Info("painter: mesh loaded",
		"name", m.Name, "vertices", len(m.Vertices), "triangles", m.Triangles())
	return nil
}

// ClearMesh destroys the spatial index and the mesh regions. Frames render
// only the background and the brush cursor until the next LoadMesh.
func (r *Renderer) ClearMesh() error {
	if err := r.guard(); err != nil {
		return err
	}
	if r.mesh == nil {
		return nil
	}
	if err := r.index.Destroy(); err != nil {
		return r.check(err)
	}
	r.freeMesh()
	if err := r.bindMesh(); err != nil {
		return r.check(err)
	}
	slogger().Info("painter: mesh cleared", "name", r.mesh.Name)
	r.mesh = nil
	r.invalidate()
	return nil
}

// Mesh returns the loaded mesh, or nil.
func (r *Renderer) Mesh() *mesh.Mesh { return r.mesh }
