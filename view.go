package painter

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter/gpucore"
)

// Camera defaults.
const (
	DefaultFovY = 45
	DefaultNear = 0.01
	DefaultFar  = 30
)

// DefaultEye is the initial camera position, looking at the origin.
var DefaultEye = mgl32.Vec3{0, 0, 3}

// View is the camera state supplied by the controller every tick.
type View struct {
	View    mgl32.Mat4
	Proj    mgl32.Mat4
	ViewInv mgl32.Mat4
	ProjInv mgl32.Mat4

	// Cursor is the normalized window position used by Pick, Y down.
	Cursor mgl32.Vec2
}

// NewView builds a perspective view looking from eye at center. fovY is
// in degrees.
func NewView(eye, center, up mgl32.Vec3, fovY, aspect, near, far float32) View {
	v := mgl32.LookAtV(eye, center, up)
	p := mgl32.Perspective(mgl32.DegToRad(fovY), aspect, near, far)
	return View{View: v, Proj: p, ViewInv: v.Inv(), ProjInv: p.Inv(), Cursor: mgl32.Vec2{0.5, 0.5}}
}

// DefaultView is the initial camera for a frame of the given size.
func DefaultView(width, height uint32) View {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	return NewView(DefaultEye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, DefaultFovY, aspect, DefaultNear, DefaultFar)
}

// Eye returns the camera position.
func (v View) Eye() mgl32.Vec3 {
	return v.ViewInv.Col(3).Vec3()
}

func (v View) matrices() gpucore.Matrices {
	return gpucore.Matrices{
		Model:   mgl32.Ident4(),
		View:    v.View,
		Proj:    v.Proj,
		ViewInv: v.ViewInv,
		ProjInv: v.ProjInv,
	}
}

func (v View) pick() gpucore.Pick {
	return gpucore.Pick{ViewInv: v.ViewInv, ProjInv: v.ProjInv, Cursor: v.Cursor}
}

// Brush is the brush state: position in normalized window coordinates,
// radius in window heights, mode and straight RGBA color.
type Brush = gpucore.Brush

// BrushMode selects what the brush does.
type BrushMode = gpucore.BrushMode

// Brush modes. Only BrushPaint is active.
const (
	BrushPaint = gpucore.BrushPaint
	BrushIdle  = gpucore.BrushIdle
	BrushView  = gpucore.BrushView
)

// Brush defaults.
const DefaultBrushRadius = 0.01

// DefaultBrushColor is the initial brush color.
var DefaultBrushColor = [4]float32{0.1, 0.95, 0.3, 1}

// DefaultBrush returns an idle brush at the window center.
func DefaultBrush() Brush {
	return Brush{X: 0.5, Y: 0.5, Radius: DefaultBrushRadius, Mode: BrushIdle, Color: DefaultBrushColor}
}

// BlendMode is how painted strokes combine with the active layer.
type BlendMode = gpucore.BlendMode

// Paint blend modes.
const (
	BlendOver  = gpucore.BlendOver
	BlendErase = gpucore.BlendErase
)

// DefaultLighting is the shading block of the raster pass.
func DefaultLighting() gpucore.Lighting {
	return gpucore.Lighting{
		ClearColor: [4]float32{0.1, 0.2, 0.5, 1},
		LightDir:   mgl32.Vec3{-0.707106769, -0.5, -0.5},
		Intensity:  1,
	}
}

// footprint returns the side of the paint trace launch grid for a brush:
// the brush diameter in paint texels, at least one ray and at most limit.
func footprint(radius float32, paintSize, limit uint32) uint32 {
	side := int64(math.Ceil(2 * float64(radius) * float64(paintSize)))
	return uint32(max(1, min(side, int64(limit)))) //nolint:gosec // G115: clamped to limit
}

func brushActive(b Brush) bool {
	return b.Mode == BrushPaint && b.Radius > 0
}
