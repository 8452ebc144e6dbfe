package accel_test

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter/backend"
	"github.com/gogpu/painter/backend/soft"
	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/accel"
	"github.com/gogpu/painter/internal/resource"
)

func uploadQuad(t *testing.T, m *resource.Manager) accel.Geometry {
	t.Helper()
	verts := []gpucore.Vertex{
		{Position: mgl32.Vec3{-1, -1, 0}},
		{Position: mgl32.Vec3{1, -1, 0}},
		{Position: mgl32.Vec3{1, 1, 0}},
		{Position: mgl32.Vec3{-1, 1, 0}},
	}
	idx := []uint32{0, 1, 2, 0, 2, 3}
	vb, err := m.Allocate("vertices", uint64(len(verts))*gpucore.VertexSize, gpucore.BufferUsageStorage|gpucore.BufferUsageAccelInput, gpucore.LocalityDevice)
	if err != nil {
		t.Fatal(err)
	}
	ib, err := m.Allocate("indices", uint64(len(idx))*4, gpucore.BufferUsageStorage|gpucore.BufferUsageAccelInput, gpucore.LocalityDevice)
	if err != nil {
		t.Fatal(err)
	}
	if err := vb.Upload(0, gpucore.EncodeVertices(verts)); err != nil {
		t.Fatal(err)
	}
	if err := ib.Upload(0, gpucore.EncodeIndices(idx)); err != nil {
		t.Fatal(err)
	}
	return accel.Geometry{
		Vertices: vb, Indices: ib,
		VertexStride: gpucore.VertexSize,
		VertexCount:  uint32(len(verts)),
		IndexCount:   uint32(len(idx)),
	}
}

func newBuilder(t *testing.T) (*soft.Device, *resource.Manager, *accel.Builder) {
	t.Helper()
	d := soft.New()
	m := resource.NewManager(d, resource.Config{})
	t.Cleanup(func() {
		m.Close()
		d.Close()
	})
	return d, m, accel.NewBuilder(d)
}

func TestBuildReplacesIndex(t *testing.T) {
	d, m, b := newBuilder(t)
	g := uploadQuad(t, m)

	first, err := b.Build(g)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if first.Triangles != 2 || first.Generation != 1 {
		t.Errorf("first index = %+v", first)
	}
	second, err := b.Build(g)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if second.Generation != 2 || b.Index() != second {
		t.Errorf("second index = %+v, Index() = %+v", second, b.Index())
	}

	// The first bottom level is gone: instancing it fails.
	if _, err := d.BuildTLAS([]gpucore.Instance{{BLAS: first.BLAS, Transform: mgl32.Ident4()}}); !errors.Is(err, backend.ErrInvalidID) {
		t.Errorf("BuildTLAS(destroyed blas) = %v, want ErrInvalidID", err)
	}
	if _, err := d.BuildTLAS([]gpucore.Instance{{BLAS: second.BLAS, Transform: mgl32.Ident4()}}); err != nil {
		t.Errorf("BuildTLAS(live blas) = %v", err)
	}
}

func TestBuildFailuresAreFatal(t *testing.T) {
	_, m, b := newBuilder(t)
	g := uploadQuad(t, m)

	tests := []struct {
		name   string
		mutate func(*accel.Geometry)
	}{
		{"empty", func(g *accel.Geometry) { g.IndexCount = 0 }},
		{"partial triangle", func(g *accel.Geometry) { g.IndexCount = 4 }},
		{"short stride", func(g *accel.Geometry) { g.VertexStride = 8 }},
		{"vertices past region", func(g *accel.Geometry) { g.VertexCount = 100 }},
		{"missing indices", func(g *accel.Geometry) { g.Indices = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := g
			tt.mutate(&bad)
			_, err := b.Build(bad)
			if !errors.Is(err, accel.ErrBuildFailed) || !resource.IsFatal(err) {
				t.Fatalf("Build() = %v, want fatal ErrBuildFailed", err)
			}
		})
	}
}

func TestBuildOutOfRangeIndexIsFatal(t *testing.T) {
	_, m, b := newBuilder(t)
	g := uploadQuad(t, m)
	if err := g.Indices.Upload(0, gpucore.EncodeIndices([]uint32{0, 1, 9})); err != nil {
		t.Fatal(err)
	}
	_, err := b.Build(g)
	if !errors.Is(err, accel.ErrBuildFailed) || !resource.IsFatal(err) {
		t.Fatalf("Build() = %v, want fatal ErrBuildFailed", err)
	}
}

func TestDestroy(t *testing.T) {
	_, m, b := newBuilder(t)
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy without index: %v", err)
	}
	if _, err := b.Build(uploadQuad(t, m)); err != nil {
		t.Fatal(err)
	}
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if b.Index() != nil {
		t.Error("Index() after Destroy is not nil")
	}
}
