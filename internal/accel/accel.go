// Package accel builds the two-level spatial index the ray-trace passes
// query: one bottom level over the mesh and a top level with a single
// identity instance. Indexes are always rebuilt from scratch.
package accel

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/resource"
)

// ErrBuildFailed is returned, wrapped in a *resource.FatalError, when an
// index cannot be built.
var ErrBuildFailed = errors.New("accel: build failed")

// MaxTriangles bounds the geometry of one index.
const MaxTriangles = 1 << 24

// Device is the subset of the device index builds need.
type Device interface {
	WaitIdle() error
	BuildBLAS(geom *gpucore.GeometryDesc) (gpucore.AccelID, error)
	BuildTLAS(instances []gpucore.Instance) (gpucore.AccelID, error)
	DestroyAccel(id gpucore.AccelID)
}

// Geometry is indexed triangle geometry in device regions. Positions are
// three float32 at the start of every vertex.
type Geometry struct {
	Vertices     *resource.Region
	Indices      *resource.Region
	VertexStride uint64
	VertexCount  uint32
	IndexCount   uint32
}

// Index is a built two-level index.
type Index struct {
	BLAS gpucore.AccelID
	TLAS gpucore.AccelID

	Triangles uint32
	// Generation increases with every build of the owning Builder.
	Generation uint64
}

// Builder owns at most one Index at a time.
type Builder struct {
	dev        Device
	index      *Index
	generation uint64
}

// NewBuilder creates a builder for dev.
func NewBuilder(dev Device) *Builder {
	return &Builder{dev: dev}
}

// Index returns the current index, or nil.
func (b *Builder) Index() *Index { return b.index }

// Build waits for the device to go idle, destroys the current index and
// builds a new one over g. Any failure is fatal.
func (b *Builder) Build(g Geometry) (*Index, error) {
	if err := validate(g); err != nil {
		return nil, resource.Fatal("build index", err)
	}
	if err := b.dev.WaitIdle(); err != nil {
		return nil, resource.Fatal("build index", err)
	}
	b.release()

	blas, err := b.dev.BuildBLAS(&gpucore.GeometryDesc{
		Vertices:     g.Vertices.ID,
		VertexStride: g.VertexStride,
		VertexCount:  g.VertexCount,
		Indices:      g.Indices.ID,
		IndexCount:   g.IndexCount,
	})
	if err != nil {
		return nil, resource.Fatal("build index", fmt.Errorf("%w: bottom level: %w", ErrBuildFailed, err))
	}
	tlas, err := b.dev.BuildTLAS([]gpucore.Instance{{BLAS: blas, Transform: mgl32.Ident4()}})
	if err != nil {
		b.dev.DestroyAccel(blas)
		return nil, resource.Fatal("build index", fmt.Errorf("%w: top level: %w", ErrBuildFailed, err))
	}

	b.generation++
	b.index = &Index{BLAS: blas, TLAS: tlas, Triangles: g.IndexCount / 3, Generation: b.generation}
	slogger().Info("accel: index built",
		"triangles", b.index.Triangles,
		"vertices", g.VertexCount,
		"generation", b.generation)
	return b.index, nil
}

// Destroy waits for the device to go idle and releases both levels of the
// current index. It is a no-op without an index.
func (b *Builder) Destroy() error {
	if b.index == nil {
		return nil
	}
	if err := b.dev.WaitIdle(); err != nil {
		return resource.Fatal("destroy index", err)
	}
	b.release()
	return nil
}

func (b *Builder) release() {
	if b.index == nil {
		return
	}
	b.dev.DestroyAccel(b.index.TLAS)
	b.dev.DestroyAccel(b.index.BLAS)
	slogger().Debug("accel: index destroyed", "generation", b.index.Generation)
	b.index = nil
}

func validate(g Geometry) error {
	switch {
	case g.Vertices == nil || g.Indices == nil:
		return fmt.Errorf("%w: missing geometry regions", ErrBuildFailed)
	case g.IndexCount == 0 || g.VertexCount == 0:
		return fmt.Errorf("%w: empty geometry", ErrBuildFailed)
	case g.IndexCount%3 != 0:
		return fmt.Errorf("%w: index count %d is not a multiple of 3", ErrBuildFailed, g.IndexCount)
	case g.IndexCount/3 > MaxTriangles:
		return fmt.Errorf("%w: %d triangles exceed %d", ErrBuildFailed, g.IndexCount/3, MaxTriangles)
	case g.VertexStride < 12:
		return fmt.Errorf("%w: vertex stride %d", ErrBuildFailed, g.VertexStride)
	case uint64(g.VertexCount)*g.VertexStride > g.Vertices.Size:
		return fmt.Errorf("%w: %d vertices exceed the vertex region", ErrBuildFailed, g.VertexCount)
	case uint64(g.IndexCount)*4 > g.Indices.Size:
		return fmt.Errorf("%w: %d indices exceed the index region", ErrBuildFailed, g.IndexCount)
	}
	return nil
}
