// Package controller turns window input into painter view and brush state.
//
// A Controller keeps an orbit camera and a brush. Handle consumes input
// events and returns the application requests they make (quit, reload,
// save); Update pushes the camera and brush to a painter Target once per
// tick. While Space is held, mouse drags move the camera: left tumbles
// around the pivot, middle pans and right zooms. Tumble and zoom first pick
// the surface under the cursor as the new pivot. Otherwise a left press
// paints until release.
package controller

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter"
)

// Target receives the controller state. *painter.Renderer implements it.
type Target interface {
	SetView(painter.View) error
	SetBrush(painter.Brush) error
	Pick(painter.View) (mgl32.Vec3, bool, error)
}

// Mode is what mouse presses do.
type Mode uint8

// Modes.
const (
	ModeIdle Mode = iota
	ModePaint
	ModeView
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModePaint:
		return "paint"
	case ModeView:
		return "view"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

func (m Mode) brushMode() painter.BrushMode {
	switch m {
	case ModePaint:
		return painter.BrushPaint
	case ModeView:
		return painter.BrushView
	default:
		return painter.BrushIdle
	}
}

// DragMode is the camera motion of a view drag.
type DragMode uint8

// Drag modes.
const (
	DragTumble DragMode = iota + 1
	DragPan
	DragZoom
)

type drag struct {
	mode   DragMode
	origin mgl32.Vec2
	start  Camera
	cached bool
}

// targetLerpStep is how far the look-at target moves toward a new pivot
// per tick of a tumble or zoom.
const targetLerpStep = 0.001

// Controller is an orbit camera and brush driven by input events.
// It is not safe for concurrent use.
type Controller struct {
	cam    Camera
	mode   Mode
	drag   *drag
	cursor mgl32.Vec2

	width, height uint32
	color         [4]float32
	radius        float32

	pivotChanged bool
	lerp         float32
}

// New creates a controller for a window of the given size, with the
// default camera and brush.
func New(width, height uint32) *Controller {
	return &Controller{
		cam:    DefaultCamera(),
		cursor: mgl32.Vec2{0.5, 0.5},
		width:  max(width, 1),
		height: max(height, 1),
		color:  painter.DefaultBrushColor,
		radius: painter.DefaultBrushRadius,
	}
}

// Camera returns the current camera.
func (c *Controller) Camera() Camera { return c.cam }

// SetCamera replaces the camera and ends any drag.
func (c *Controller) SetCamera(cam Camera) {
	c.cam = cam
	c.drag = nil
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode { return c.mode }

// Dragging reports the active drag, if any.
func (c *Controller) Dragging() (DragMode, bool) {
	if c.drag == nil {
		return 0, false
	}
	return c.drag.mode, true
}

// Cursor returns the pointer in normalized window coordinates, Y down.
func (c *Controller) Cursor() mgl32.Vec2 { return c.cursor }

// SetColor sets the brush color. Alpha stays opaque.
func (c *Controller) SetColor(r, g, b float32) {
	c.color = [4]float32{r, g, b, 1}
}

// SetRadius sets the brush radius in window heights.
func (c *Controller) SetRadius(r float32) {
	c.radius = max(r, 0)
}

// Resize updates the window size used to normalize pointer positions and
// the projection aspect.
func (c *Controller) Resize(width, height uint32) {
	c.width, c.height = max(width, 1), max(height, 1)
}

// Handle applies an input event and returns the actions it requests.
func (c *Controller) Handle(e Event) Action {
	switch e.Type {
	case KeyDown:
		if e.Key == KeySpace && c.mode == ModeIdle {
			c.mode = ModeView
		}
		return keyActions[e.Key]
	case KeyUp:
		if e.Key == KeySpace && c.mode == ModeView {
			c.mode = ModeIdle
		}
	case MouseMove:
		c.cursor = c.normalize(e.X, e.Y)
	case MouseDown:
		c.cursor = c.normalize(e.X, e.Y)
		c.press(e.Button)
	case MouseUp:
		c.cursor = c.normalize(e.X, e.Y)
		c.drag = nil
		if c.mode == ModePaint {
			c.mode = ModeIdle
		}
	}
	return 0
}

func (c *Controller) press(b Button) {
	switch c.mode {
	case ModeIdle:
		if b == ButtonLeft {
			c.mode = ModePaint
		}
	case ModeView:
		d := &drag{origin: c.cursor}
		switch b {
		case ButtonLeft:
			d.mode = DragTumble
			c.pivotChanged = true
		case ButtonMiddle:
			d.mode = DragPan
		case ButtonRight:
			d.mode = DragZoom
			c.pivotChanged = true
		default:
			return
		}
		c.drag = d
	}
}

func (c *Controller) normalize(x, y float32) mgl32.Vec2 {
	return mgl32.Vec2{x / float32(c.width), y / float32(c.height)}
}

// View returns the painter view of the current camera and cursor.
func (c *Controller) View() painter.View {
	aspect := float32(c.width) / float32(c.height)
	v := painter.NewView(c.cam.Pos, c.cam.Target, up, painter.DefaultFovY, aspect, painter.DefaultNear, painter.DefaultFar)
	v.Cursor = c.cursor
	return v
}

// Brush returns the brush at the cursor in the current mode.
func (c *Controller) Brush() painter.Brush {
	return painter.Brush{
		X:      c.cursor[0],
		Y:      c.cursor[1],
		Radius: c.radius,
		Mode:   c.mode.brushMode(),
		Color:  c.color,
	}
}

// Update advances the camera by one tick and pushes view and brush to t.
// A pending pivot change picks the surface under the cursor first; a miss
// keeps the old pivot.
func (c *Controller) Update(t Target) error {
	if c.pivotChanged {
		c.pivotChanged = false
		c.lerp = 0
		p, hit, err := t.Pick(c.View())
		if err != nil {
			return fmt.Errorf("controller: pick pivot: %w", err)
		}
		if hit {
			c.cam.Pivot = p
		}
	}
	if d := c.drag; d != nil {
		if !d.cached {
			d.start, d.cached = c.cam, true
		}
		delta := c.cursor.Sub(d.origin)
		switch d.mode {
		case DragTumble:
			c.cam.Pos = Tumble(d.start, delta).Pos
			c.lerpTarget()
		case DragPan:
			p := Pan(d.start, delta)
			c.cam.Pos, c.cam.Target = p.Pos, p.Target
		case DragZoom:
			c.cam.Pos = Zoom(d.start, delta).Pos
			c.lerpTarget()
		}
	}
	if err := t.SetView(c.View()); err != nil {
		return err
	}
	return t.SetBrush(c.Brush())
}

// lerpTarget eases the look-at target toward the pivot, faster the longer
// the drag lasts.
func (c *Controller) lerpTarget() {
	c.lerp += targetLerpStep
	if c.lerp >= 1 {
		return
	}
	c.cam.Target = c.cam.Target.Add(c.cam.Pivot.Sub(c.cam.Target).Mul(c.lerp))
}
