package painter

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/recording"
)

// Barriers of the frame graph.
var (
	// clearToShader makes the paint surface clear visible to the trace and
	// to the apply pass.
	clearToShader = gpucore.Barrier{
		SrcStage:  gpucore.SyncTransfer,
		DstStage:  gpucore.SyncRayTracing | gpucore.SyncFragment,
		SrcAccess: gpucore.AccessTransferWrite,
		DstAccess: gpucore.AccessShaderRead | gpucore.AccessShaderWrite,
	}
	// traceToFragment makes the paint splat visible to the apply pass.
	traceToFragment = gpucore.Barrier{
		SrcStage:  gpucore.SyncRayTracing,
		DstStage:  gpucore.SyncFragment,
		SrcAccess: gpucore.AccessShaderWrite,
		DstAccess: gpucore.AccessShaderRead,
	}
)

var transparent = gputypes.Color{}

// recordFrame records the full pass sequence of one frame into the target
// of slot s.
func (r *Renderer) recordFrame(s *frameSlot) (*recording.Recording, error) {
	rec := recording.NewRecorder(fmt.Sprintf("frame-%d", s.index))

	// Paint surface: clear, splat, make visible.
	rec.ClearImage(r.res.paint.ID, transparent)
	rec.Barrier(clearToShader)
	if r.tracesBrush() {
		p := r.passes[PassPaint]
		side := footprint(r.brush.Radius, r.o.paintSize, r.o.brushImageSize)
		rec.SetPipeline(p.pipeline)
		bindGroups(rec, p)
		rec.TraceRays(p.table.Regions(), side, side, 1)
		rec.Barrier(traceToFragment)
	}

	// Apply the splat to the active layer.
	if active, _ := r.layers.Active(); active != nil {
		p := r.passes[PassApplyPaint]
		rec.BeginRenderPass(recording.RenderPass{
			Label:     "apply-paint",
			Color:     active.Image.ID,
			ColorLoad: gputypes.LoadOpLoad,
		})
		rec.SetPipeline(p.pipeline)
		bindGroups(rec, p)
		rec.Draw(3, 1)
		rec.EndRenderPass()
	}

	// Composite visible layers back to front.
	p := r.passes[PassLayerStack]
	rec.BeginRenderPass(recording.RenderPass{
		Label:      "layer-stack",
		Color:      r.res.composite.ID,
		ColorLoad:  gputypes.LoadOpClear,
		ClearColor: transparent,
	})
	if visible := r.layers.VisibleIndices(); len(visible) > 0 {
		rec.SetPipeline(p.pipeline)
		bindGroups(rec, p)
		for _, i := range visible {
			rec.PushConstants(gpucore.EncodeLayerIndex(i))
			rec.Draw(3, 1)
		}
	}
	rec.EndRenderPass()

	// Mesh textured with the composite.
	p = r.passes[PassRaster]
	rec.BeginRenderPass(recording.RenderPass{
		Label:      "raster",
		Color:      s.target.ID,
		ColorLoad:  gputypes.LoadOpClear,
		ClearColor: r.o.clearColor,
		Depth:      r.res.depth.ID,
		DepthLoad:  gputypes.LoadOpClear,
		ClearDepth: 1,
	})
	if r.meshRes.indexCount > 0 {
		rec.SetPipeline(p.pipeline)
		bindGroups(rec, p)
		rec.Draw(r.meshRes.indexCount, 1)
	}
	rec.EndRenderPass()

	// Brush cursor overlay.
	p = r.passes[PassPost]
	rec.BeginRenderPass(recording.RenderPass{
		Label:     "post",
		Color:     s.target.ID,
		ColorLoad: gputypes.LoadOpLoad,
	})
	rec.SetPipeline(p.pipeline)
	bindGroups(rec, p)
	rec.Draw(3, 1)
	rec.EndRenderPass()

	out, err := rec.Finish()
	if err != nil {
		return nil, err
	}
	slogger().Debug("painter: frame recorded",
		"slot", s.index, "commands", len(out.Commands()), "trace", r.tracesBrush())
	return out, nil
}

// tracesBrush reports whether recordings dispatch the paint trace.
func (r *Renderer) tracesBrush() bool {
	return brushActive(r.brush) && r.meshRes.indexCount > 0 && r.index.Index() != nil
}

// bindGroups binds the groups of a pass in set order.
func bindGroups(rec *recording.Recorder, p *pass) {
	for set, g := range p.groups {
		rec.SetGroup(uint32(set), g.ID) //nolint:gosec // G115: few sets
	}
}
