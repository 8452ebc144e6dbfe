package soft

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter/backend"
	"github.com/gogpu/painter/gpucore"
)

// bindingRef names a binding of one descriptor set.
type bindingRef struct {
	set, binding uint32
}

// kernel is the Go implementation of one engine program. Raster programs
// set draw, ray-trace programs set trace and list the bindings they write.
type kernel struct {
	name   string
	draw   func(inv *invocation, vertexCount uint32) error
	trace  func(inv *invocation, width, height uint32) error
	writes []bindingRef
}

var kernels = map[string]*kernel{
	gpucore.ProgramApplyPaint: {name: gpucore.ProgramApplyPaint, draw: applyPaint},
	gpucore.ProgramLayerStack: {name: gpucore.ProgramLayerStack, draw: layerStack},
	gpucore.ProgramRaster:     {name: gpucore.ProgramRaster, draw: rasterMesh},
	gpucore.ProgramPost:       {name: gpucore.ProgramPost, draw: post},
	gpucore.ProgramPaint: {
		name:   gpucore.ProgramPaint,
		trace:  paint,
		writes: []bindingRef{{gpucore.SetRayTrace, gpucore.TracePaint}},
	},
	gpucore.ProgramSelect: {
		name:   gpucore.ProgramSelect,
		trace:  selectPoint,
		writes: []bindingRef{{gpucore.SetSelect, gpucore.SelectResult}},
	},
}

// Ray extents of the trace kernels.
const (
	rayTMin = 1e-4
	rayTMax = math.MaxFloat32
)

// applyPaint blends the paint surface over the attachment with the
// pipeline's blend mode.
func applyPaint(inv *invocation, vertexCount uint32) error {
	if vertexCount < 3 {
		return nil
	}
	src, err := inv.texture(gpucore.SetRaster, gpucore.RasterPaint, 0)
	if err != nil {
		return err
	}
	if done, err := inv.offload(src); done || err != nil {
		return err
	}
	inv.fullscreen(func(_, _ int, u, v float32) (rgba, bool) {
		c := src.sample(u, v)
		return c, c[3] > 0 || inv.blend == gpucore.BlendNone
	})
	return nil
}

// layerStack composites the layer selected by the push constant.
func layerStack(inv *invocation, vertexCount uint32) error {
	if vertexCount < 3 {
		return nil
	}
	idx, err := gpucore.DecodeLayerIndex(inv.push)
	if err != nil {
		return fmt.Errorf("%w: %w", backend.ErrUnboundResource, err)
	}
	src, err := inv.texture(gpucore.SetRaster, gpucore.RasterLayers, idx)
	if err != nil {
		return err
	}
	if done, err := inv.offload(src); done || err != nil {
		return err
	}
	inv.fullscreen(func(_, _ int, u, v float32) (rgba, bool) {
		c := src.sample(u, v)
		return c, c[3] > 0 || inv.blend == gpucore.BlendNone
	})
	return nil
}

// rasterMesh pulls vertexCount indices and draws the mesh textured with
// the composite texture.
func rasterMesh(inv *invocation, vertexCount uint32) error {
	mb, err := inv.buffer(gpucore.SetRaster, gpucore.RasterMatrices)
	if err != nil {
		return err
	}
	m, err := gpucore.DecodeMatrices(mb)
	if err != nil {
		return err
	}
	lb, err := inv.buffer(gpucore.SetRaster, gpucore.RasterLighting)
	if err != nil {
		return err
	}
	light, err := gpucore.DecodeLighting(lb)
	if err != nil {
		return err
	}
	vb, err := inv.buffer(gpucore.SetRaster, gpucore.RasterVertices)
	if err != nil {
		return err
	}
	ib, err := inv.buffer(gpucore.SetRaster, gpucore.RasterIndices)
	if err != nil {
		return err
	}
	comp, err := inv.texture(gpucore.SetRaster, gpucore.RasterComposite, 0)
	if err != nil {
		return err
	}

	mvp := m.Proj.Mul4(m.View).Mul4(m.Model)
	w, h := inv.color.w, inv.color.h
	tris := make([]screenTriangle, 0, vertexCount/3)
	for i := uint32(0); i+2 < vertexCount; i += 3 {
		var cv [3]clipVertex
		for k := range uint32(3) {
			idx, ok := gpucore.IndexAt(ib, i+k)
			if !ok {
				return fmt.Errorf("%w: index %d past the index buffer", backend.ErrUnboundResource, i+k)
			}
			v, ok := gpucore.VertexAt(vb, idx)
			if !ok {
				return fmt.Errorf("%w: vertex %d past the vertex buffer", backend.ErrUnboundResource, idx)
			}
			cv[k] = clipVertex{
				clip:   mvp.Mul4x1(v.Position.Vec4(1)),
				normal: m.Model.Mul4x1(v.Normal.Vec4(0)).Vec3(),
				uv:     v.UV,
			}
		}
		if s, ok := setup(cv, w, h); ok {
			tris = append(tris, s)
		}
	}

	toLight := light.LightDir.Mul(-1)
	if toLight.Len() > 0 {
		toLight = toLight.Normalize()
	}
	const base = 0.8
	inv.rasterize(tris, func(f fragment) rgba {
		n := f.normal
		if n.Len() > 0 {
			n = n.Normalize()
		}
		shade := max(0, n.Dot(toLight)) * light.Intensity
		c := comp.sample(f.uv[0], f.uv[1])
		k := 1 - c[3]
		var out rgba
		for i := range 3 {
			lit := base * (light.ClearColor[i] + shade)
			out[i] = c[i] + lit*k
		}
		out[3] = 1
		return out
	})
	return nil
}

// post draws the brush cursor ring.
func post(inv *invocation, vertexCount uint32) error {
	if vertexCount < 3 {
		return nil
	}
	bb, err := inv.buffer(0, gpucore.PostBrush)
	if err != nil {
		return err
	}
	brush, err := gpucore.DecodeBrush(bb)
	if err != nil {
		return err
	}
	var ring rgba
	switch brush.Mode {
	case gpucore.BrushPaint:
		ring = rgba{brush.Color[0], brush.Color[1], brush.Color[2], 1}
	case gpucore.BrushIdle:
		ring = rgba{0.5, 0.5, 0.5, 0.5}
	default:
		return nil
	}
	w, h := float32(inv.color.w), float32(inv.color.h)
	cx, cy, r := brush.X*w, brush.Y*h, brush.Radius*h
	inv.fullscreen(func(x, y int, _, _ float32) (rgba, bool) {
		dx, dy := float32(x)+0.5-cx, float32(y)+0.5-cy
		d := float32(math.Sqrt(float64(dx*dx + dy*dy)))
		return ring, float32(math.Abs(float64(d-r))) <= 1
	})
	return nil
}

// paint splats the brush color into the paint surface wherever rays over
// the brush disc hit the mesh. The launch grid covers the disc's bounding
// square.
func paint(inv *invocation, width, height uint32) error {
	bb, err := inv.buffer(gpucore.SetPost, gpucore.PostBrush)
	if err != nil {
		return err
	}
	brush, err := gpucore.DecodeBrush(bb)
	if err != nil {
		return err
	}
	if brush.Mode != gpucore.BrushPaint {
		return nil
	}
	mb, err := inv.buffer(gpucore.SetRaster, gpucore.RasterMatrices)
	if err != nil {
		return err
	}
	m, err := gpucore.DecodeMatrices(mb)
	if err != nil {
		return err
	}
	vb, err := inv.buffer(gpucore.SetRaster, gpucore.RasterVertices)
	if err != nil {
		return err
	}
	as, err := inv.accel(gpucore.SetRayTrace, gpucore.TraceAccel)
	if err != nil {
		return err
	}
	dst, err := inv.texture(gpucore.SetRayTrace, gpucore.TracePaint, 0)
	if err != nil {
		return err
	}

	aspect := float32(1)
	if inv.extent.Width > 0 {
		aspect = float32(inv.extent.Height) / float32(inv.extent.Width)
	}
	a := brush.Color[3]
	color := rgba{brush.Color[0] * a, brush.Color[1] * a, brush.Color[2] * a, a}
	for j := range height {
		dy := (float32(j)+0.5)/float32(height)*2 - 1
		for i := range width {
			dx := (float32(i)+0.5)/float32(width)*2 - 1
			if dx*dx+dy*dy > 1 {
				continue
			}
			sx := brush.X + dx*brush.Radius*aspect
			sy := brush.Y + dy*brush.Radius
			orig, dir := cameraRay(m.ViewInv, m.ProjInv, sx, sy)
			hit, ok := as.intersect(orig, dir)
			if !ok {
				continue
			}
			uv, ok := hitUV(hit, vb)
			if !ok {
				continue
			}
			dst.set(texel(uv[0], dst.w), texel(uv[1], dst.h), color)
		}
	}
	return nil
}

// selectPoint traces the pick ray and writes the selection block.
func selectPoint(inv *invocation, _, _ uint32) error {
	pb, err := inv.buffer(gpucore.SetSelect, gpucore.SelectParams)
	if err != nil {
		return err
	}
	pick, err := gpucore.DecodePick(pb)
	if err != nil {
		return err
	}
	as, err := inv.accel(gpucore.SetSelect, gpucore.SelectAccel)
	if err != nil {
		return err
	}
	out, err := inv.buffer(gpucore.SetSelect, gpucore.SelectResult)
	if err != nil {
		return err
	}
	if len(out) < gpucore.SelectionSize {
		return fmt.Errorf("%w: selection buffer of %d bytes", backend.ErrUnboundResource, len(out))
	}

	orig, dir := cameraRay(pick.ViewInv, pick.ProjInv, pick.Cursor[0], pick.Cursor[1])
	var sel gpucore.Selection
	if hit, ok := as.intersect(orig, dir); ok {
		sel = gpucore.Selection{Hit: true, Position: orig.Add(dir.Mul(hit.t))}
	}
	copy(out, sel.Encode())
	return nil
}

// cameraRay returns the world-space ray through a normalized window
// position (Y down).
func cameraRay(viewInv, projInv mgl32.Mat4, x, y float32) (orig, dir mgl32.Vec3) {
	target := projInv.Mul4x1(mgl32.Vec4{2*x - 1, 1 - 2*y, 1, 1})
	if target[3] != 0 {
		target = target.Mul(1 / target[3])
	}
	d := target.Vec3()
	if d.Len() > 0 {
		d = d.Normalize()
	}
	dir = viewInv.Mul4x1(d.Vec4(0)).Vec3()
	if dir.Len() > 0 {
		dir = dir.Normalize()
	}
	orig = viewInv.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	return orig, dir
}

// traceHit is the nearest hit over all instances of a top-level structure.
type traceHit struct {
	t        float32
	instance int
	triangle uint32
	i0, i1   uint32
	i2       uint32
	u, v     float32
}

// intersect traces a world-space ray. Instances transform the ray into
// object space with a direction of w = 0, so t stays in world units.
func (a *accelStruct) intersect(orig, dir mgl32.Vec3) (traceHit, bool) {
	best := traceHit{t: rayTMax}
	found := false
	for i, in := range a.instances {
		o := in.toObject.Mul4x1(orig.Vec4(1)).Vec3()
		d := in.toObject.Mul4x1(dir.Vec4(0)).Vec3()
		h, ok := in.blas.Intersect(o, d, rayTMin, best.t)
		if !ok {
			continue
		}
		i0, i1, i2 := in.blas.Vertices(h.Triangle)
		best = traceHit{t: h.T, instance: i, triangle: h.Triangle, i0: i0, i1: i1, i2: i2, u: h.U, v: h.V}
		found = true
	}
	return best, found
}

func hitUV(h traceHit, vb []byte) (mgl32.Vec2, bool) {
	v0, ok0 := gpucore.VertexAt(vb, h.i0)
	v1, ok1 := gpucore.VertexAt(vb, h.i1)
	v2, ok2 := gpucore.VertexAt(vb, h.i2)
	if !ok0 || !ok1 || !ok2 {
		return mgl32.Vec2{}, false
	}
	w := 1 - h.u - h.v
	return v0.UV.Mul(w).Add(v1.UV.Mul(h.u)).Add(v2.UV.Mul(h.v)), true
}
