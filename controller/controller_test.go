package controller

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter"
	"github.com/gogpu/painter/backend/soft"
	"github.com/gogpu/painter/mesh"
)

const (
	testW = 400
	testH = 400
	eps   = 1e-4
)

// fakeTarget records what the controller pushes.
type fakeTarget struct {
	views   []painter.View
	brushes []painter.Brush
	picks   []painter.View

	hit     mgl32.Vec3
	miss    bool
	pickErr error
}

func (f *fakeTarget) SetView(v painter.View) error {
	f.views = append(f.views, v)
	return nil
}

func (f *fakeTarget) SetBrush(b painter.Brush) error {
	f.brushes = append(f.brushes, b)
	return nil
}

func (f *fakeTarget) Pick(v painter.View) (mgl32.Vec3, bool, error) {
	f.picks = append(f.picks, v)
	if f.pickErr != nil {
		return mgl32.Vec3{}, false, f.pickErr
	}
	return f.hit, !f.miss, nil
}

func (f *fakeTarget) lastBrush(t *testing.T) painter.Brush {
	t.Helper()
	if len(f.brushes) == 0 {
		t.Fatal("no brush pushed")
	}
	return f.brushes[len(f.brushes)-1]
}

func mustUpdate(t *testing.T, c *Controller, tgt Target) {
	t.Helper()
	if err := c.Update(tgt); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func near(a, b mgl32.Vec3) bool {
	return a.ApproxEqualThreshold(b, eps)
}

// startDrag holds Space and presses b at the pixel (x, y).
func startDrag(c *Controller, b Button, x, y float32) {
	c.Handle(Event{Type: KeyDown, Key: KeySpace})
	c.Handle(Event{Type: MouseDown, Button: b, X: x, Y: y})
}

func TestDefaults(t *testing.T) {
	c := New(testW, testH)
	if c.Mode() != ModeIdle {
		t.Errorf("mode = %v, want idle", c.Mode())
	}
	want := painter.DefaultView(testW, testH)
	got := c.View()
	if !got.View.ApproxEqualThreshold(want.View, eps) || !got.Proj.ApproxEqualThreshold(want.Proj, eps) {
		t.Error("default view differs from painter.DefaultView")
	}
	b := c.Brush()
	if b.Radius != painter.DefaultBrushRadius || b.Color != painter.DefaultBrushColor || b.Mode != painter.BrushIdle {
		t.Errorf("default brush = %+v", b)
	}
}

func TestKeyActions(t *testing.T) {
	tests := []struct {
		key  Key
		want Action
	}{
		{KeyEscape, ActionQuit},
		{KeyR, ActionReload},
		{KeyC, ActionClearPaint},
		{KeyP, ActionSave},
		{KeyX, ActionToggleErase},
		{KeyN, ActionNewLayer},
		{KeySpace, 0},
		{KeyNone, 0},
	}
	c := New(testW, testH)
	for _, tt := range tests {
		if got := c.Handle(Event{Type: KeyDown, Key: tt.key}); got != tt.want {
			t.Errorf("KeyDown %d = %v, want %v", tt.key, got, tt.want)
		}
		if got := c.Handle(Event{Type: KeyUp, Key: tt.key}); got != 0 {
			t.Errorf("KeyUp %d = %v, want none", tt.key, got)
		}
	}
}

func TestActionString(t *testing.T) {
	tests := map[Action]string{
		0:                               "none",
		ActionQuit:                      "quit",
		ActionSave | ActionToggleErase:  "save|toggle-erase",
		ActionReload | ActionClearPaint: "reload|clear-paint",
	}
	for a, want := range tests {
		if got := a.String(); got != want {
			t.Errorf("Action(%#x).String() = %q, want %q", uint8(a), got, want)
		}
	}
	if !(ActionQuit | ActionSave).Has(ActionSave) || ActionQuit.Has(ActionSave) || ActionQuit.Has(0) {
		t.Error("Has")
	}
}

func TestPaintStroke(t *testing.T) {
	c := New(testW, testH)
	tgt := &fakeTarget{}

	c.Handle(Event{Type: MouseDown, Button: ButtonLeft, X: 100, Y: 300})
	if c.Mode() != ModePaint {
		t.Fatalf("mode after left press = %v, want paint", c.Mode())
	}
	mustUpdate(t, c, tgt)
	b := tgt.lastBrush(t)
	if b.Mode != painter.BrushPaint || b.X != 0.25 || b.Y != 0.75 {
		t.Errorf("painting brush = %+v", b)
	}

	c.Handle(Event{Type: MouseMove, X: 200, Y: 200})
	mustUpdate(t, c, tgt)
	if b := tgt.lastBrush(t); b.X != 0.5 || b.Y != 0.5 {
		t.Errorf("brush did not follow the cursor: %+v", b)
	}
	if v := tgt.views[len(tgt.views)-1]; v.Cursor != (mgl32.Vec2{0.5, 0.5}) {
		t.Errorf("view cursor = %v", v.Cursor)
	}

	c.Handle(Event{Type: MouseUp, Button: ButtonLeft, X: 200, Y: 200})
	mustUpdate(t, c, tgt)
	if c.Mode() != ModeIdle || tgt.lastBrush(t).Mode != painter.BrushIdle {
		t.Errorf("release left mode %v", c.Mode())
	}
	if len(tgt.picks) != 0 {
		t.Errorf("painting picked %d times", len(tgt.picks))
	}
}

func TestBrushSettings(t *testing.T) {
	c := New(testW, testH)
	c.SetColor(1, 0, 0)
	c.SetRadius(-1)
	b := c.Brush()
	if b.Color != [4]float32{1, 0, 0, 1} || b.Radius != 0 {
		t.Errorf("brush = %+v", b)
	}
	c.SetRadius(0.2)
	if c.Brush().Radius != 0.2 {
		t.Error("SetRadius ignored")
	}
}

func TestViewModeRequiresSpace(t *testing.T) {
	c := New(testW, testH)
	c.Handle(Event{Type: KeyDown, Key: KeySpace})
	if c.Mode() != ModeView {
		t.Fatalf("mode with Space held = %v", c.Mode())
	}
	c.Handle(Event{Type: MouseDown, Button: ButtonMiddle, X: 10, Y: 10})
	if m, ok := c.Dragging(); !ok || m != DragPan {
		t.Errorf("middle press in view mode: drag %v %v", m, ok)
	}
	c.Handle(Event{Type: MouseUp, Button: ButtonMiddle})
	if _, ok := c.Dragging(); ok {
		t.Error("release did not end the drag")
	}
	c.Handle(Event{Type: KeyUp, Key: KeySpace})
	if c.Mode() != ModeIdle {
		t.Errorf("mode after Space release = %v", c.Mode())
	}
	c.Handle(Event{Type: MouseDown, Button: ButtonMiddle})
	if _, ok := c.Dragging(); ok || c.Mode() != ModeIdle {
		t.Error("middle press outside view mode started something")
	}
}

func TestTumbleAroundPickedPivot(t *testing.T) {
	c := New(testW, testH)
	tgt := &fakeTarget{hit: mgl32.Vec3{0.5, 0.25, 0}}

	startDrag(c, ButtonLeft, 200, 200)
	mustUpdate(t, c, tgt)
	if len(tgt.picks) != 1 {
		t.Fatalf("picks = %d, want 1", len(tgt.picks))
	}
	if tgt.picks[0].Cursor != (mgl32.Vec2{0.5, 0.5}) {
		t.Errorf("pick cursor = %v", tgt.picks[0].Cursor)
	}
	if !near(c.Camera().Pivot, tgt.hit) {
		t.Fatalf("pivot = %v, want %v", c.Camera().Pivot, tgt.hit)
	}
	// The target eases toward the new pivot.
	if want := tgt.hit.Mul(targetLerpStep); !near(c.Camera().Target, want) {
		t.Errorf("target = %v, want %v", c.Camera().Target, want)
	}

	arm := painter.DefaultEye.Sub(tgt.hit).Len()
	c.Handle(Event{Type: MouseMove, X: 300, Y: 200})
	mustUpdate(t, c, tgt)
	mustUpdate(t, c, tgt)
	if len(tgt.picks) != 1 {
		t.Errorf("a drag picked %d times, want once at the press", len(tgt.picks))
	}
	cam := c.Camera()
	if d := cam.Pos.Sub(cam.Pivot).Len(); math.Abs(float64(d-arm)) > eps {
		t.Errorf("tumble changed the pivot distance: %v, want %v", d, arm)
	}
	if math.Abs(float64(cam.Pos[1]-painter.DefaultEye[1])) > eps {
		t.Errorf("horizontal tumble moved the eye vertically: %v", cam.Pos)
	}
	if cam.Pos[0] >= painter.DefaultEye[0] {
		t.Errorf("dragging right should swing the eye left, got %v", cam.Pos)
	}
}

func TestPickMissKeepsPivot(t *testing.T) {
	c := New(testW, testH)
	tgt := &fakeTarget{miss: true, hit: mgl32.Vec3{9, 9, 9}}
	startDrag(c, ButtonRight, 200, 200)
	mustUpdate(t, c, tgt)
	if c.Camera().Pivot != (mgl32.Vec3{}) {
		t.Errorf("pivot after a miss = %v", c.Camera().Pivot)
	}
}

func TestPickError(t *testing.T) {
	c := New(testW, testH)
	boom := errors.New("device lost")
	tgt := &fakeTarget{pickErr: boom}
	startDrag(c, ButtonLeft, 200, 200)
	if err := c.Update(tgt); !errors.Is(err, boom) {
		t.Fatalf("Update = %v, want the pick error", err)
	}
	if len(tgt.views) != 0 {
		t.Error("view pushed after a failed pick")
	}
}

func TestPanAndZoom(t *testing.T) {
	tests := []struct {
		name   string
		button Button
		dx     float32
		pos    mgl32.Vec3
		target mgl32.Vec3
	}{
		{"pan right", ButtonMiddle, 0.1, mgl32.Vec3{-0.3, 0, 3}, mgl32.Vec3{-0.3, 0, 0}},
		{"zoom in", ButtonRight, 0.5, mgl32.Vec3{0, 0, 2.5}, mgl32.Vec3{}},
		{"zoom out", ButtonRight, -1, mgl32.Vec3{0, 0, 4}, mgl32.Vec3{}},
		{"zoom past pivot", ButtonRight, 10, mgl32.Vec3{0, 0, minDistance}, mgl32.Vec3{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(testW, testH)
			tgt := &fakeTarget{miss: true}
			startDrag(c, tt.button, 200, 200)
			mustUpdate(t, c, tgt)
			c.Handle(Event{Type: MouseMove, X: 200 + tt.dx*testW, Y: 200})
			mustUpdate(t, c, tgt)
			cam := c.Camera()
			if !near(cam.Pos, tt.pos) || !near(cam.Target, tt.target) {
				t.Errorf("camera = %+v, want pos %v target %v", cam, tt.pos, tt.target)
			}
		})
	}
}

func TestCameraMath(t *testing.T) {
	start := DefaultCamera()
	quarter := Tumble(start, mgl32.Vec2{-0.5, 0})
	if !near(quarter.Pos, mgl32.Vec3{3, 0, 0}) {
		t.Errorf("quarter turn = %v, want (3, 0, 0)", quarter.Pos)
	}
	over := Tumble(start, mgl32.Vec2{0, 0.25})
	if over.Pos[1] <= 0 || math.Abs(float64(over.Pos.Len()-3)) > eps {
		t.Errorf("dragging down should raise the eye on the sphere, got %v", over.Pos)
	}
	still := Pan(start, mgl32.Vec2{})
	if still != start {
		t.Errorf("zero pan moved the camera: %+v", still)
	}
	// A degenerate arm falls back to fixed axes.
	degenerate := Camera{Pos: mgl32.Vec3{0, 1, 0}, Pivot: mgl32.Vec3{0, 1, 0}}
	if z := Zoom(degenerate, mgl32.Vec2{1, 0}); !near(z.Pos, mgl32.Vec3{0, 1, minDistance}) {
		t.Errorf("zoom from the pivot = %v", z.Pos)
	}
}

func TestResizeNormalizesCursor(t *testing.T) {
	c := New(testW, testH)
	c.Resize(800, 200)
	c.Handle(Event{Type: MouseMove, X: 200, Y: 50})
	if c.Cursor() != (mgl32.Vec2{0.25, 0.25}) {
		t.Errorf("cursor = %v", c.Cursor())
	}
	c.Resize(0, 0)
	c.Handle(Event{Type: MouseMove, X: 1, Y: 1})
	if c.Cursor() != (mgl32.Vec2{1, 1}) {
		t.Errorf("cursor with a zero-sized window = %v", c.Cursor())
	}
}

func TestDriveRenderer(t *testing.T) {
	d := soft.New(soft.WithWorkers(2))
	t.Cleanup(d.Close)
	const size = 32
	r, err := painter.New(
		painter.WithDevice(d),
		painter.WithPaintSize(64),
		painter.WithExtent(size, size),
		painter.WithFrameCount(2),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	if err := r.LoadMesh(mesh.Plane(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateLayer("base"); err != nil {
		t.Fatal(err)
	}

	c := New(size, size)
	// Off the diagonal and inside the plane.
	startDrag(c, ButtonLeft, 0.3*size, 0.4*size)
	mustUpdate(t, c, r)
	if err := r.Render(); err != nil {
		t.Fatal(err)
	}

	k := painter.DefaultEye[2] * float32(math.Tan(float64(mgl32.DegToRad(painter.DefaultFovY))/2))
	want := mgl32.Vec3{(2*0.3 - 1) * k, (1 - 2*0.4) * k, 0}
	if got := c.Camera().Pivot; !got.ApproxEqualThreshold(want, 0.1) {
		t.Errorf("pivot = %v, want near %v", got, want)
	}
	if r.Brush().Mode != painter.BrushView {
		t.Errorf("renderer brush mode = %v, want view", r.Brush().Mode)
	}
	if r.View().Eye() != c.View().Eye() {
		t.Error("renderer view differs from the controller's")
	}
}
