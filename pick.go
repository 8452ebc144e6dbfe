package painter

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/recording"
)

// Pick returns the world-space point of the mesh under v.Cursor. It traces
// a single ray, waits for the result and reads it back, so it blocks the
// caller for a full device round trip. A miss, or no mesh, returns false
// and no error.
func (r *Renderer) Pick(v View) (mgl32.Vec3, bool, error) {
	if err := r.guard(); err != nil {
		return mgl32.Vec3{}, false, err
	}
	if r.index.Index() == nil || r.meshRes.indexCount == 0 {
		if err := r.idle("pick"); err != nil {
			return mgl32.Vec3{}, false, err
		}
		return mgl32.Vec3{}, false, nil
	}

	params := v.pick()
	if err := r.res.pick.Write(0, params.Encode()); err != nil {
		return mgl32.Vec3{}, false, r.check(fatal("write pick", err))
	}

	p := r.passes[PassSelect]
	rec := recording.NewRecorder("pick")
	rec.SetPipeline(p.pipeline)
	bindGroups(rec, p)
	rec.TraceRays(p.table.Regions(), 1, 1, 1)
	if err := r.submitWait("pick", rec); err != nil {
		return mgl32.Vec3{}, false, err
	}

	buf := make([]byte, gpucore.SelectionSize)
	if err := r.res.selection.Read(0, buf); err != nil {
		return mgl32.Vec3{}, false, r.check(fatal("read selection", err))
	}
	sel, err := gpucore.DecodeSelection(buf)
	if err != nil {
		return mgl32.Vec3{}, false, r.check(fatal("read selection", err))
	}
	slogger().Debug("painter: pick", "cursor", v.Cursor, "hit", sel.Hit, "position", sel.Position)
	return sel.Position, sel.Hit, nil
}
