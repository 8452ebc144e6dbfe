package gpucore

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Program names. Devices ship an implementation of each program: Go
// kernels on the software device, WGSL modules on the wgpu device.
const (
	ProgramApplyPaint = "apply_paint"
	ProgramLayerStack = "layer_stack"
	ProgramRaster     = "raster"
	ProgramPost       = "post"
	ProgramPaint      = "paint"
	ProgramSelect     = "select"
)

// BlendMode selects the fixed-function blend of a raster pipeline.
// Colors are premultiplied.
type BlendMode uint8

const (
	// BlendNone writes the fragment color.
	BlendNone BlendMode = iota
	// BlendOver composites the fragment over the attachment.
	BlendOver
	// BlendErase removes attachment coverage by the fragment alpha.
	BlendErase
)

// String returns the blend mode name.
func (m BlendMode) String() string {
	switch m {
	case BlendNone:
		return "none"
	case BlendOver:
		return "over"
	case BlendErase:
		return "erase"
	default:
		return fmt.Sprintf("BlendMode(%d)", m)
	}
}

// RasterPipelineDesc describes a graphics pipeline.
type RasterPipelineDesc struct {
	Label   string
	Program string
	Layouts []GroupLayoutID

	Blend BlendMode
	// DepthTest enables a less-than depth test with depth writes.
	DepthTest bool

	// Viewport is the attachment size the pipeline was built for.
	Viewport Extent

	// PushConstantSize is the size of the per-draw constant block.
	PushConstantSize uint32
}

// ShaderGroupKind is the type of a ray-trace shader group.
type ShaderGroupKind uint8

const (
	// GroupGeneral holds a raygen or miss entry.
	GroupGeneral ShaderGroupKind = iota
	// GroupTriangleHit holds a closest-hit entry for triangle geometry.
	GroupTriangleHit
)

// ShaderGroupDesc names the entry point of one shader group.
type ShaderGroupDesc struct {
	Kind  ShaderGroupKind
	Entry string
}

// RayTracePipelineDesc describes a ray-trace pipeline.
type RayTracePipelineDesc struct {
	Label   string
	Program string
	Layouts []GroupLayoutID
	Groups  []ShaderGroupDesc

	// Extent is the presentation size the pipeline was built for.
	Extent Extent

	MaxRecursion uint32
}

// GeometryDesc describes indexed triangle geometry for a BLAS build.
// Vertex positions are three float32 at the start of each vertex.
type GeometryDesc struct {
	Vertices     BufferID
	VertexStride uint64
	VertexCount  uint32
	Indices      BufferID
	IndexCount   uint32
}

// Instance places a BLAS into a TLAS.
type Instance struct {
	BLAS      AccelID
	Transform mgl32.Mat4
	CustomID  uint32
}

// Descriptor set order of the engine programs. Raster, apply-paint and
// layer-stack programs bind the raster group at set 0. The post program
// binds the post group at set 0. The paint program binds raster, ray-trace
// and post groups at sets 0, 1 and 2. The select program binds the select
// group at set 0.
const (
	SetRaster   = 0
	SetRayTrace = 1
	SetPost     = 2
	SetSelect   = 0
)

// Raster group bindings.
const (
	RasterMatrices  = 0
	RasterVertices  = 1
	RasterIndices   = 2
	RasterPaint     = 3
	RasterLighting  = 4
	RasterComposite = 5
	RasterLayers    = 6
)

// Ray-trace group bindings. The paint program reads the brush block from
// the post group.
const (
	TraceAccel = 0
	TracePaint = 1
)

// Select group bindings.
const (
	SelectAccel  = 0
	SelectResult = 1
	SelectParams = 2
)

// PostBrush is the only binding of the post group.
const PostBrush = 0
