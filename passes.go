package painter

import (
	"fmt"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/resource"
	"github.com/gogpu/painter/internal/sbt"
)

// PassID names one entry of the pass registry.
type PassID uint8

// Passes in frame graph order, followed by the pick pass.
const (
	PassPaint PassID = iota
	PassApplyPaint
	PassLayerStack
	PassRaster
	PassPost
	PassSelect

	passCount
)

var passNames = [...]string{
	PassPaint:      "paint",
	PassApplyPaint: "apply-paint",
	PassLayerStack: "layer-stack",
	PassRaster:     "raster",
	PassPost:       "post",
	PassSelect:     "select",
}

// String returns the pass name.
func (id PassID) String() string {
	if int(id) < len(passNames) {
		return passNames[id]
	}
	return fmt.Sprintf("PassID(%d)", id)
}

// pass is a registry entry: the pipeline of a pass, the groups it binds in
// set order and, for ray-trace passes, its dispatch table.
type pass struct {
	id       PassID
	program  string
	rayTrace bool
	// extentBound passes are rebuilt by Resize.
	extentBound bool

	groups   []*resource.Group
	pipeline gpucore.PipelineID
	table    *sbt.Table
	builds   int
}

// shaderGroups is the group order of both ray-trace programs.
var shaderGroups = []gpucore.ShaderGroupDesc{
	sbt.GroupRayGen: {Kind: gpucore.GroupGeneral, Entry: "raygen"},
	sbt.GroupMiss:   {Kind: gpucore.GroupGeneral, Entry: "miss"},
	sbt.GroupHit:    {Kind: gpucore.GroupTriangleHit, Entry: "closest_hit"},
}

// initPasses fills the registry. Groups must exist.
func (r *Renderer) initPasses() {
	g := &r.groups
	r.passes = [passCount]*pass{
		PassPaint:      {id: PassPaint, program: gpucore.ProgramPaint, rayTrace: true, extentBound: true, groups: []*resource.Group{g.raster, g.trace, g.post}},
		PassApplyPaint: {id: PassApplyPaint, program: gpucore.ProgramApplyPaint, groups: []*resource.Group{g.raster}},
		PassLayerStack: {id: PassLayerStack, program: gpucore.ProgramLayerStack, groups: []*resource.Group{g.raster}},
		PassRaster:     {id: PassRaster, program: gpucore.ProgramRaster, extentBound: true, groups: []*resource.Group{g.raster}},
		PassPost:       {id: PassPost, program: gpucore.ProgramPost, extentBound: true, groups: []*resource.Group{g.post}},
		PassSelect:     {id: PassSelect, program: gpucore.ProgramSelect, rayTrace: true, extentBound: true, groups: []*resource.Group{g.sel}},
	}
}

func (p *pass) layouts() []gpucore.GroupLayoutID {
	out := make([]gpucore.GroupLayoutID, len(p.groups))
	for i, g := range p.groups {
		out[i] = g.LayoutID()
	}
	return out
}

// rasterDesc returns the pipeline description of a raster pass.
func (r *Renderer) rasterDesc(p *pass) *gpucore.RasterPipelineDesc {
	paint := gpucore.Extent{Width: r.o.paintSize, Height: r.o.paintSize}
	desc := &gpucore.RasterPipelineDesc{
		Label:   p.id.String(),
		Program: p.program,
		Layouts: p.layouts(),
	}
	switch p.id {
	case PassApplyPaint:
		desc.Blend = r.paintBlend
		desc.Viewport = paint
	case PassLayerStack:
		desc.Blend = gpucore.BlendOver
		desc.Viewport = paint
		desc.PushConstantSize = gpucore.PushLayerSize
	case PassRaster:
		desc.Blend = gpucore.BlendNone
		desc.DepthTest = true
		desc.Viewport = r.extent
	case PassPost:
		desc.Blend = gpucore.BlendOver
		desc.Viewport = r.extent
	}
	return desc
}

// buildPass creates the pipeline of a pass and, for ray-trace passes, its
// dispatch table. Any failure is fatal.
func (r *Renderer) buildPass(id PassID) error {
	p := r.passes[id]
	r.destroyPass(p)

	var (
		pid gpucore.PipelineID
		err error
	)
	if p.rayTrace {
		pid, err = r.dev.CreateRayTracePipeline(&gpucore.RayTracePipelineDesc{
			Label:        p.id.String(),
			Program:      p.program,
			Layouts:      p.layouts(),
			Groups:       shaderGroups,
			Extent:       r.extent,
			MaxRecursion: 1,
		})
	} else {
		pid, err = r.dev.CreateRasterPipeline(r.rasterDesc(p))
	}
	if err != nil {
		return fatal("build pass "+p.id.String(), err)
	}
	p.pipeline = pid

	if p.rayTrace {
		table, err := sbt.Build(r.dev, pid, sbt.GroupCount)
		if err != nil {
			return fatal("build dispatch table "+p.id.String(), err)
		}
		p.table = table
	}
	p.builds++
	slogger().Debug("painter: pass built", "pass", p.id, "pipeline", pid, "builds", p.builds)
	return nil
}

func (r *Renderer) destroyPass(p *pass) {
	if p == nil {
		return
	}
	p.table.Destroy()
	p.table = nil
	if p.pipeline != gpucore.InvalidID {
		r.dev.DestroyPipeline(p.pipeline)
		p.pipeline = gpucore.InvalidID
	}
}

// rebuildPasses rebuilds the passes selected by keep.
func (r *Renderer) rebuildPasses(keep func(*pass) bool) error {
	for _, p := range r.passes {
		if !keep(p) {
			continue
		}
		if err := r.buildPass(p.id); err != nil {
			return err
		}
	}
	return nil
}

// group layouts

func rasterLayout(maxLayers int) gpucore.GroupLayoutDesc {
	return gpucore.GroupLayoutDesc{Label: "raster", Entries: []gpucore.LayoutEntry{
		{Binding: gpucore.RasterMatrices, Kind: gpucore.BindingUniform, Stages: gpucore.StageGraphics | gpucore.StageRayGen},
		{Binding: gpucore.RasterVertices, Kind: gpucore.BindingStorage, Stages: gpucore.StageVertex | gpucore.StageClosestHit},
		{Binding: gpucore.RasterIndices, Kind: gpucore.BindingStorage, Stages: gpucore.StageVertex | gpucore.StageClosestHit},
		{Binding: gpucore.RasterPaint, Kind: gpucore.BindingSampledImage, Stages: gpucore.StageFragment},
		{Binding: gpucore.RasterLighting, Kind: gpucore.BindingUniform, Stages: gpucore.StageFragment},
		{Binding: gpucore.RasterComposite, Kind: gpucore.BindingSampledImage, Stages: gpucore.StageFragment},
		{Binding: gpucore.RasterLayers, Kind: gpucore.BindingSampledImage, Stages: gpucore.StageFragment,
			Count: uint32(maxLayers), PartiallyBound: true}, //nolint:gosec // G115: small
	}}
}

func traceLayout() gpucore.GroupLayoutDesc {
	return gpucore.GroupLayoutDesc{Label: "raytrace", Entries: []gpucore.LayoutEntry{
		{Binding: gpucore.TraceAccel, Kind: gpucore.BindingAccel, Stages: gpucore.StageRayGen | gpucore.StageClosestHit},
		{Binding: gpucore.TracePaint, Kind: gpucore.BindingStorageImage, Stages: gpucore.StageRayGen | gpucore.StageClosestHit},
	}}
}

func postLayout() gpucore.GroupLayoutDesc {
	return gpucore.GroupLayoutDesc{Label: "post", Entries: []gpucore.LayoutEntry{
		{Binding: gpucore.PostBrush, Kind: gpucore.BindingUniform, Stages: gpucore.StageFragment | gpucore.StageRayGen},
	}}
}

func selectLayout() gpucore.GroupLayoutDesc {
	return gpucore.GroupLayoutDesc{Label: "select", Entries: []gpucore.LayoutEntry{
		{Binding: gpucore.SelectAccel, Kind: gpucore.BindingAccel, Stages: gpucore.StageRayGen},
		{Binding: gpucore.SelectResult, Kind: gpucore.BindingStorage, Stages: gpucore.StageRayGen},
		{Binding: gpucore.SelectParams, Kind: gpucore.BindingUniform, Stages: gpucore.StageRayGen},
	}}
}
