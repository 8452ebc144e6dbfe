package soft

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/painter/gpucore"
)

// rgba is a premultiplied color.
type rgba [4]float32

func toByte(f float32) byte {
	return uint8(clamp01(f)*255 + 0.5)
}

func clamp01(f float32) float32 {
	switch {
	case f < 0 || f != f:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func colorTexel(c gputypes.Color) uint32 {
	return uint32(toByte(float32(c.R))) |
		uint32(toByte(float32(c.G)))<<8 |
		uint32(toByte(float32(c.B)))<<16 |
		uint32(toByte(float32(c.A)))<<24
}

func (t *texture) fill(texel uint32) {
	if len(t.pix) == 0 {
		return
	}
	binary.LittleEndian.PutUint32(t.pix, texel)
	for n := 4; n < len(t.pix); n *= 2 {
		copy(t.pix[n:], t.pix[:n])
	}
}

func (t *texture) at(x, y int) rgba {
	i := (y*t.w + x) * 4
	p := t.pix[i : i+4 : i+4]
	return rgba{float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255}
}

func (t *texture) set(x, y int, c rgba) {
	i := (y*t.w + x) * 4
	p := t.pix[i : i+4 : i+4]
	p[0], p[1], p[2], p[3] = toByte(c[0]), toByte(c[1]), toByte(c[2]), toByte(c[3])
}

func (t *texture) depthAt(x, y int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(t.pix[(y*t.w+x)*4:]))
}

func (t *texture) setDepth(x, y int, z float32) {
	binary.LittleEndian.PutUint32(t.pix[(y*t.w+x)*4:], math.Float32bits(z))
}

// texel maps a coordinate in [0, 1] to a texel index, clamped to the edge.
func texel(f float32, n int) int {
	i := int(math.Floor(float64(f) * float64(n)))
	return max(0, min(n-1, i))
}

// sample is a nearest, clamp-to-edge lookup.
func (t *texture) sample(u, v float32) rgba {
	return t.at(texel(u, t.w), texel(v, t.h))
}

func blend(dst, src rgba, mode gpucore.BlendMode) rgba {
	switch mode {
	case gpucore.BlendOver:
		k := 1 - src[3]
		return rgba{src[0] + dst[0]*k, src[1] + dst[1]*k, src[2] + dst[2]*k, src[3] + dst[3]*k}
	case gpucore.BlendErase:
		k := 1 - src[3]
		return rgba{dst[0] * k, dst[1] * k, dst[2] * k, dst[3] * k}
	default:
		return src
	}
}

// fullscreen runs fn for every pixel of the color attachment and blends
// the colors it returns. fn reports false to leave a pixel untouched.
func (inv *invocation) fullscreen(fn func(x, y int, u, v float32) (rgba, bool)) {
	t := inv.color
	inv.d.pool.ForBands(t.h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := (float32(y) + 0.5) / float32(t.h)
			for x := range t.w {
				u := (float32(x) + 0.5) / float32(t.w)
				src, ok := fn(x, y, u, v)
				if !ok {
					continue
				}
				t.set(x, y, blend(t.at(x, y), src, inv.blend))
			}
		}
	})
}

// offload hands a same-size blend of src into the color attachment to the
// device blender.
func (inv *invocation) offload(src *texture) (bool, error) {
	b := inv.d.blender
	if b == nil || src.w != inv.color.w || src.h != inv.color.h {
		return false, nil
	}
	return b.Blend(inv.color.pix, src.pix, src.w, src.h, inv.blend)
}

// fragment holds perspective-correct interpolated vertex attributes.
type fragment struct {
	normal mgl32.Vec3
	uv     mgl32.Vec2
}

type clipVertex struct {
	clip   mgl32.Vec4
	normal mgl32.Vec3
	uv     mgl32.Vec2
}

// screenTriangle is a triangle after the viewport transform.
type screenTriangle struct {
	x, y, z, invW [3]float32
	v             [3]clipVertex
	area          float32
	y0, y1        int
	x0, x1        int
}

const minClipW = 1e-6

// setup projects a triangle to the attachment. It reports false for
// triangles behind the eye, degenerate or entirely off screen.
func setup(vs [3]clipVertex, w, h int) (screenTriangle, bool) {
	var s screenTriangle
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	for i, v := range vs {
		cw := v.clip[3]
		if cw <= minClipW {
			return s, false
		}
		s.invW[i] = 1 / cw
		s.x[i] = (v.clip[0]*s.invW[i] + 1) / 2 * float32(w)
		s.y[i] = (1 - v.clip[1]*s.invW[i]) / 2 * float32(h)
		s.z[i] = (v.clip[2]*s.invW[i] + 1) / 2
		s.v[i] = v
		minX, maxX = min(minX, s.x[i]), max(maxX, s.x[i])
		minY, maxY = min(minY, s.y[i]), max(maxY, s.y[i])
	}
	s.area = edge(s.x[0], s.y[0], s.x[1], s.y[1], s.x[2], s.y[2])
	if s.area == 0 || s.area != s.area {
		return s, false
	}
	s.x0 = max(0, int(math.Floor(float64(minX))))
	s.x1 = min(w-1, int(math.Ceil(float64(maxX))))
	s.y0 = max(0, int(math.Floor(float64(minY))))
	s.y1 = min(h-1, int(math.Ceil(float64(maxY))))
	return s, s.x0 <= s.x1 && s.y0 <= s.y1
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// rasterize draws the triangles in order. Rows are split across workers;
// within a row triangles keep submission order, so overlapping fragments
// resolve the same way on every run.
func (inv *invocation) rasterize(tris []screenTriangle, shade func(fragment) rgba) {
	t := inv.color
	inv.d.pool.ForBands(t.h, func(y0, y1 int) {
		for i := range tris {
			s := &tris[i]
			ya, yb := max(y0, s.y0), min(y1-1, s.y1)
			for y := ya; y <= yb; y++ {
				py := float32(y) + 0.5
				for x := s.x0; x <= s.x1; x++ {
					inv.shadePixel(s, x, y, float32(x)+0.5, py, shade)
				}
			}
		}
	})
}

func (inv *invocation) shadePixel(s *screenTriangle, x, y int, px, py float32, shade func(fragment) rgba) {
	b0 := edge(s.x[1], s.y[1], s.x[2], s.y[2], px, py) / s.area
	b1 := edge(s.x[2], s.y[2], s.x[0], s.y[0], px, py) / s.area
	b2 := edge(s.x[0], s.y[0], s.x[1], s.y[1], px, py) / s.area
	if b0 < 0 || b1 < 0 || b2 < 0 {
		return
	}
	z := b0*s.z[0] + b1*s.z[1] + b2*s.z[2]
	if z < 0 || z > 1 {
		return
	}
	if inv.depthTest {
		if z >= inv.depth.depthAt(x, y) {
			return
		}
		inv.depth.setDepth(x, y, z)
	}

	p0, p1, p2 := b0*s.invW[0], b1*s.invW[1], b2*s.invW[2]
	norm := 1 / (p0 + p1 + p2)
	p0, p1, p2 = p0*norm, p1*norm, p2*norm
	f := fragment{
		normal: s.v[0].normal.Mul(p0).Add(s.v[1].normal.Mul(p1)).Add(s.v[2].normal.Mul(p2)),
		uv:     s.v[0].uv.Mul(p0).Add(s.v[1].uv.Mul(p1)).Add(s.v[2].uv.Mul(p2)),
	}
	inv.color.set(x, y, blend(inv.color.at(x, y), shade(f), inv.blend))
}
