package painter

import (
	"bytes"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/recording"
)

// lastRecording renders one frame and returns the stream of its slot.
func lastRecording(t *testing.T, r *Renderer) *recording.Recording {
	t.Helper()
	mustRender(t, r, 1)
	rec := r.Recording(r.last.index)
	if rec == nil {
		t.Fatal("rendered slot holds no recording")
	}
	return rec
}

func renderPasses(rec *recording.Recording) []recording.RenderPass {
	var out []recording.RenderPass
	for _, c := range rec.Commands() {
		if b, ok := c.(recording.BeginRenderPassCommand); ok {
			out = append(out, b.Pass)
		}
	}
	return out
}

func layerDraws(rec *recording.Recording) []uint32 {
	var out []uint32
	for _, c := range rec.Commands() {
		if p, ok := c.(recording.PushConstantsCommand); ok {
			i, _ := gpucore.DecodeLayerIndex(p.Data)
			out = append(out, i)
		}
	}
	return out
}

func TestGraphBrushTrace(t *testing.T) {
	tests := []struct {
		name     string
		mode     BrushMode
		mesh     bool
		traces   int
		barriers int
	}{
		{"idle brush", BrushIdle, true, 0, 1},
		{"view brush", BrushView, true, 0, 1},
		{"painting", BrushPaint, true, 1, 2},
		{"painting without mesh", BrushPaint, false, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t)
			mustLayer(t, r)
			if tt.mesh {
				mustPlane(t, r)
			}
			b := paintBrush()
			b.Mode = tt.mode
			if err := r.SetBrush(b); err != nil {
				t.Fatal(err)
			}
			rec := lastRecording(t, r)
			if got := rec.Count(recording.CmdTraceRays); got != tt.traces {
				t.Errorf("trace commands = %d, want %d", got, tt.traces)
			}
			if got := rec.Count(recording.CmdBarrier); got != tt.barriers {
				t.Errorf("barriers = %d, want %d", got, tt.barriers)
			}
		})
	}
}

func TestGraphPassOrder(t *testing.T) {
	r := newTestRenderer(t)
	id := mustLayer(t, r)
	mustPlane(t, r)
	if err := r.SetBrush(paintBrush()); err != nil {
		t.Fatal(err)
	}
	rec := lastRecording(t, r)

	var kinds []recording.CommandType
	for _, c := range rec.Commands() {
		switch c.Type() {
		case recording.CmdClearImage, recording.CmdBarrier, recording.CmdTraceRays, recording.CmdBeginRenderPass:
			kinds = append(kinds, c.Type())
		}
	}
	want := []recording.CommandType{
		recording.CmdClearImage,
		recording.CmdBarrier,
		recording.CmdTraceRays,
		recording.CmdBarrier,
		recording.CmdBeginRenderPass, // apply paint
		recording.CmdBeginRenderPass, // layer stack
		recording.CmdBeginRenderPass, // raster
		recording.CmdBeginRenderPass, // post
	}
	if len(kinds) != len(want) {
		t.Fatalf("command sequence %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("command %d is %v, want %v (sequence %v)", i, kinds[i], want[i], kinds)
		}
	}

	l, _ := r.layers.Get(id)
	passes := renderPasses(rec)
	checks := []struct {
		label string
		color gpucore.ImageID
		load  gputypes.LoadOp
	}{
		{"apply-paint", l.Image.ID, gputypes.LoadOpLoad},
		{"layer-stack", r.res.composite.ID, gputypes.LoadOpClear},
		{"raster", r.last.target.ID, gputypes.LoadOpClear},
		{"post", r.last.target.ID, gputypes.LoadOpLoad},
	}
	for i, c := range checks {
		p := passes[i]
		if p.Label != c.label || p.Color != c.color || p.ColorLoad != c.load {
			t.Errorf("pass %d = %s on %d (load %v), want %s on %d (load %v)",
				i, p.Label, p.Color, p.ColorLoad, c.label, c.color, c.load)
		}
	}
	if passes[1].ClearColor != (gputypes.Color{}) {
		t.Errorf("composite clear color = %v, want transparent", passes[1].ClearColor)
	}
	if passes[2].Depth != r.res.depth.ID || passes[2].ClearDepth != 1 {
		t.Errorf("raster depth attachment %d cleared to %v", passes[2].Depth, passes[2].ClearDepth)
	}
}

func TestGraphTraceFootprint(t *testing.T) {
	r := newTestRenderer(t, WithBrushImageSize(5))
	mustLayer(t, r)
	mustPlane(t, r)
	b := paintBrush()
	b.Radius = 0.5
	if err := r.SetBrush(b); err != nil {
		t.Fatal(err)
	}
	for _, c := range lastRecording(t, r).Commands() {
		if tr, ok := c.(recording.TraceRaysCommand); ok {
			if tr.Width != 5 || tr.Height != 5 || tr.Depth != 1 {
				t.Errorf("trace grid %dx%dx%d, want 5x5x1", tr.Width, tr.Height, tr.Depth)
			}
			if tr.Tables != r.passes[PassPaint].table.Regions() {
				t.Error("trace does not use the paint dispatch table")
			}
			return
		}
	}
	t.Fatal("no trace recorded")
}

func TestGraphWithoutLayers(t *testing.T) {
	r := newTestRenderer(t)
	rec := lastRecording(t, r)
	passes := renderPasses(rec)
	if len(passes) != 3 {
		t.Fatalf("render passes = %d, want layer-stack, raster and post", len(passes))
	}
	if len(layerDraws(rec)) != 0 {
		t.Error("layer draws recorded without layers")
	}
	if rec.Count(recording.CmdDraw) != 1 {
		t.Errorf("draws = %d, want only the post overlay", rec.Count(recording.CmdDraw))
	}
}

func TestStaleSlotKeepsRecording(t *testing.T) {
	r := newTestRenderer(t)
	for i := range testFrames {
		if r.Recording(i) != nil {
			t.Fatalf("slot %d holds a recording before the first frame", i)
		}
	}
	if r.Recording(-1) != nil || r.Recording(testFrames) != nil {
		t.Error("out of range slot returned a recording")
	}
	mustRender(t, r, testFrames)
	old := make([]uint64, testFrames)
	for i := range old {
		old[i] = r.Recording(i).Serial()
	}

	mustLayer(t, r)
	for i, s := range r.SlotStates() {
		if s != SlotStale {
			t.Errorf("slot %d is %v after CreateLayer, want stale", i, s)
		}
		if rec := r.Recording(i); rec == nil || rec.Serial() != old[i] {
			t.Errorf("stale slot %d lost its previous recording", i)
		}
	}
}

func TestCreateLayerReRecordsFrames(t *testing.T) {
	r := newTestRenderer(t)
	first := mustLayer(t, r)
	mustRender(t, r, testFrames)
	old := make([]uint64, testFrames)
	for i := range old {
		old[i] = r.Recording(i).Serial()
	}

	id := mustLayer(t, r)
	if r.FramesNeedUpdate() != testFrames {
		t.Fatalf("FramesNeedUpdate after CreateLayer = %d, want %d", r.FramesNeedUpdate(), testFrames)
	}
	if !r.groups.raster.IsBound(gpucore.RasterLayers, 1) {
		t.Fatal("new layer element not bound")
	}
	l, _ := r.layers.Get(id)

	for i := range testFrames {
		rec := lastRecording(t, r)
		if rec.Serial() == old[r.last.index] {
			t.Fatalf("frame %d resubmitted a stream recorded before CreateLayer", i)
		}
		draws := layerDraws(rec)
		if len(draws) != 2 || draws[0] != 0 || draws[1] != 1 {
			t.Errorf("layer draws %v, want [0 1]", draws)
		}
		if p := renderPasses(rec)[0]; p.Color != l.Image.ID {
			t.Errorf("apply pass targets image %d, want the new active layer %d", p.Color, l.Image.ID)
		}
	}
	if r.FramesNeedUpdate() != 0 {
		t.Errorf("FramesNeedUpdate = %d after re-recording every slot", r.FramesNeedUpdate())
	}

	if err := r.SetLayerVisible(first, false); err != nil {
		t.Fatal(err)
	}
	if draws := layerDraws(lastRecording(t, r)); len(draws) != 1 || draws[0] != 1 {
		t.Errorf("layer draws with the bottom layer hidden = %v, want [1]", draws)
	}
}

func TestRecordedStreamsReplay(t *testing.T) {
	r := newTestRenderer(t)
	mustLayer(t, r)
	mustPlane(t, r)
	if err := r.SetBrush(paintBrush()); err != nil {
		t.Fatal(err)
	}
	mustRender(t, r, testFrames)
	a, err := r.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	mustRender(t, r, testFrames)
	b, err := r.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("replaying recorded streams changed the frame")
	}
}
