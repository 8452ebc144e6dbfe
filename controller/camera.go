package controller

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter"
)

// Drag gains, in radians or world units per window width.
const (
	tumbleGain = math.Pi
	panGain    = 3

	// minDistance keeps zoom from crossing the pivot.
	minDistance = 0.05
)

var up = mgl32.Vec3{0, 1, 0}

// Camera is an orbit camera. The eye at Pos looks at Target; tumble and
// zoom move the eye around Pivot.
type Camera struct {
	Pos    mgl32.Vec3
	Target mgl32.Vec3
	Pivot  mgl32.Vec3
}

// DefaultCamera looks at the origin from painter.DefaultEye.
func DefaultCamera() Camera {
	return Camera{Pos: painter.DefaultEye}
}

// Tumble rotates the eye of start around its pivot by a drag of d window
// widths: horizontal drags turn around the world up axis, vertical drags
// around the camera's right axis.
func Tumble(start Camera, d mgl32.Vec2) Camera {
	arm := start.Pos.Sub(start.Pivot)
	right := axis(arm.Cross(up), mgl32.Vec3{1, 0, 0})
	q := mgl32.QuatRotate(d[1]*tumbleGain, right).Mul(mgl32.QuatRotate(-d[0]*tumbleGain, up))
	c := start
	c.Pos = q.Rotate(arm).Add(start.Pivot)
	return c
}

// Pan moves the eye and target of start in the view plane.
func Pan(start Camera, d mgl32.Vec2) Camera {
	back := axis(start.Pos.Sub(start.Target), mgl32.Vec3{0, 0, 1})
	x := axis(back.Cross(up), mgl32.Vec3{1, 0, 0})
	y := axis(x.Cross(back), up)
	delta := x.Mul(d[0] * panGain).Add(y.Mul(d[1] * panGain))
	c := start
	c.Pos = start.Pos.Add(delta)
	c.Target = start.Target.Add(delta)
	return c
}

// Zoom moves the eye of start toward its pivot by a horizontal drag, never
// closer than minDistance.
func Zoom(start Camera, d mgl32.Vec2) Camera {
	arm := start.Pos.Sub(start.Pivot)
	dist := arm.Len()
	dir := axis(arm, mgl32.Vec3{0, 0, 1})
	c := start
	c.Pos = start.Pivot.Add(dir.Mul(max(dist-d[0], minDistance)))
	return c
}

// axis normalizes v, or returns fallback when v is degenerate.
func axis(v, fallback mgl32.Vec3) mgl32.Vec3 {
	if v.Len() < 1e-6 {
		return fallback
	}
	return v.Normalize()
}
