// Package bvh builds a flat bounding volume hierarchy over indexed
// triangles and traverses it without recursion.
//
// The node array is laid out for upload: every node is two vec4 (32 bytes).
// For an inner node Min.W holds the left child index and Max.W the right
// child index, both positive. For a leaf Min.W holds the negated index of
// the first primitive in Prims and Max.W the negated primitive count, so
// Max.W < 0 identifies a leaf.
package bvh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Build limits.
const (
	// MaxLeafSize is the largest number of triangles stored in one leaf.
	MaxLeafSize = 4

	// MaxDepth bounds the tree depth and therefore the traversal stack.
	MaxDepth = 48

	// MaxPrims is the largest triangle count a node index can encode in a
	// float32 W component.
	MaxPrims = 1 << 24

	// NodeSize is the encoded size of one node in bytes.
	NodeSize = 32
)

// Build errors.
var (
	// ErrEmpty is returned for geometry without triangles.
	ErrEmpty = errors.New("bvh: no triangles")

	// ErrTooLarge is returned when the triangle count cannot be encoded.
	ErrTooLarge = errors.New("bvh: too many triangles")

	// ErrBadIndex is returned for indices outside the vertex array.
	ErrBadIndex = errors.New("bvh: index out of range")
)

// Node is one BVH node, see the package documentation for the encoding.
type Node struct {
	Min mgl32.Vec4
	Max mgl32.Vec4
}

// IsLeaf reports whether the node is a leaf.
func (n Node) IsLeaf() bool { return n.Max[3] < 0 }

// Children returns the child indices of an inner node.
func (n Node) Children() (left, right int) { return int(n.Min[3]), int(n.Max[3]) }

// Span returns the primitive range of a leaf.
func (n Node) Span() (first, count int) { return int(-n.Min[3]), int(-n.Max[3]) }

// BVH is a built hierarchy together with the triangle data it indexes.
type BVH struct {
	Nodes []Node
	// Prims maps leaf slots to triangle indices of the source mesh.
	Prims []uint32

	Positions []mgl32.Vec3
	Indices   []uint32
}

// Hit is the nearest intersection found by Intersect.
type Hit struct {
	T        float32
	Triangle uint32
	// U and V are the barycentric weights of the second and third vertex.
	U, V float32
}

type primRef struct {
	min, max, center mgl32.Vec3
	tri              uint32
}

// Build constructs a BVH over the triangles formed by indices.
func Build(positions []mgl32.Vec3, indices []uint32) (*BVH, error) {
	triCount := len(indices) / 3
	if triCount == 0 {
		return nil, ErrEmpty
	}
	if triCount >= MaxPrims {
		return nil, fmt.Errorf("%w: %d", ErrTooLarge, triCount)
	}

	refs := make([]primRef, triCount)
	for t := range refs {
		var lo, hi mgl32.Vec3
		for k := 0; k < 3; k++ {
			idx := indices[t*3+k]
			if int(idx) >= len(positions) {
				return nil, fmt.Errorf("%w: triangle %d index %d of %d vertices", ErrBadIndex, t, idx, len(positions))
			}
			p := positions[idx]
			if k == 0 {
				lo, hi = p, p
				continue
			}
			lo, hi = minVec(lo, p), maxVec(hi, p)
		}
		refs[t] = primRef{min: lo, max: hi, center: lo.Add(hi).Mul(0.5), tri: uint32(t)} //nolint:gosec // G115: bounded by MaxPrims
	}

	b := &BVH{
		Nodes:     make([]Node, 0, 2*triCount/MaxLeafSize+1),
		Prims:     make([]uint32, 0, triCount),
		Positions: positions,
		Indices:   indices,
	}
	b.Nodes = append(b.Nodes, Node{})
	b.build(0, refs, 0)
	return b, nil
}

func (b *BVH) build(at int, refs []primRef, depth int) {
	lo, hi := refs[0].min, refs[0].max
	clo, chi := refs[0].center, refs[0].center
	for _, r := range refs[1:] {
		lo, hi = minVec(lo, r.min), maxVec(hi, r.max)
		clo, chi = minVec(clo, r.center), maxVec(chi, r.center)
	}

	if len(refs) <= MaxLeafSize || depth >= MaxDepth-1 {
		first := len(b.Prims)
		for _, r := range refs {
			b.Prims = append(b.Prims, r.tri)
		}
		b.Nodes[at] = Node{
			Min: lo.Vec4(-float32(first)),
			Max: hi.Vec4(-float32(len(refs))),
		}
		return
	}

	// Median split along the axis of largest centroid spread.
	spread := chi.Sub(clo)
	axis := 0
	if spread[1] > spread[axis] {
		axis = 1
	}
	if spread[2] > spread[axis] {
		axis = 2
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].center[axis] != refs[j].center[axis] {
			return refs[i].center[axis] < refs[j].center[axis]
		}
		return refs[i].tri < refs[j].tri
	})
	mid := len(refs) / 2

	left := len(b.Nodes)
	b.Nodes = append(b.Nodes, Node{}, Node{})
	right := left + 1
	b.Nodes[at] = Node{
		Min: lo.Vec4(float32(left)),
		Max: hi.Vec4(float32(right)),
	}
	b.build(left, refs[:mid], depth+1)
	b.build(right, refs[mid:], depth+1)
}

// Bounds returns the bounding box of the whole hierarchy.
func (b *BVH) Bounds() (lo, hi mgl32.Vec3) {
	return b.Nodes[0].Min.Vec3(), b.Nodes[0].Max.Vec3()
}

// Intersect returns the nearest triangle hit along orig + t*dir with
// tMin < t < tMax. Triangles are two-sided.
func (b *BVH) Intersect(orig, dir mgl32.Vec3, tMin, tMax float32) (Hit, bool) {
	inv := mgl32.Vec3{safeInv(dir[0]), safeInv(dir[1]), safeInv(dir[2])}

	var stack [MaxDepth * 2]int
	sp := 0
	stack[sp] = 0
	sp++

	best := Hit{T: tMax}
	found := false
	for sp > 0 {
		sp--
		n := b.Nodes[stack[sp]]
		if !slabs(n.Min.Vec3(), n.Max.Vec3(), orig, inv, tMin, best.T) {
			continue
		}
		if n.IsLeaf() {
			first, count := n.Span()
			for _, tri := range b.Prims[first : first+count] {
				t, u, v, ok := b.triangle(tri, orig, dir)
				if ok && t > tMin && t < best.T {
					best = Hit{T: t, Triangle: tri, U: u, V: v}
					found = true
				}
			}
			continue
		}
		l, r := n.Children()
		stack[sp] = r
		stack[sp+1] = l
		sp += 2
	}
	return best, found
}

// Vertices returns the vertex indices of triangle tri.
func (b *BVH) Vertices(tri uint32) (i0, i1, i2 uint32) {
	return b.Indices[tri*3], b.Indices[tri*3+1], b.Indices[tri*3+2]
}

// triangle is the Möller-Trumbore ray/triangle test.
func (b *BVH) triangle(tri uint32, orig, dir mgl32.Vec3) (t, u, v float32, ok bool) {
	i0, i1, i2 := b.Vertices(tri)
	p0 := b.Positions[i0]
	e1 := b.Positions[i1].Sub(p0)
	e2 := b.Positions[i2].Sub(p0)

	pv := dir.Cross(e2)
	det := e1.Dot(pv)
	if det > -1e-9 && det < 1e-9 {
		return 0, 0, 0, false
	}
	invDet := 1 / det
	tv := orig.Sub(p0)
	u = tv.Dot(pv) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	qv := tv.Cross(e1)
	v = dir.Dot(qv) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	return e2.Dot(qv) * invDet, u, v, true
}

func slabs(lo, hi, orig, inv mgl32.Vec3, tMin, tMax float32) bool {
	for a := 0; a < 3; a++ {
		t0 := (lo[a] - orig[a]) * inv[a]
		t1 := (hi[a] - orig[a]) * inv[a]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMax < tMin {
			return false
		}
	}
	return true
}

func safeInv(f float32) float32 {
	if f == 0 {
		return math.MaxFloat32
	}
	return 1 / f
}

func minVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

func maxVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}

// EncodeNodes returns the node array as little-endian float32 data,
// NodeSize bytes per node.
func (b *BVH) EncodeNodes() []byte {
	out := make([]byte, 0, len(b.Nodes)*NodeSize)
	for _, n := range b.Nodes {
		for _, f := range n.Min {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
		for _, f := range n.Max {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

// EncodeTriangles returns the leaf-ordered triangle vertices as vec4
// positions, three per triangle, W holding the source triangle index.
func (b *BVH) EncodeTriangles() []byte {
	out := make([]byte, 0, len(b.Prims)*3*16)
	for _, tri := range b.Prims {
		i0, i1, i2 := b.Vertices(tri)
		for _, idx := range [3]uint32{i0, i1, i2} {
			p := b.Positions[idx]
			for _, f := range p {
				out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
			}
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(tri)))
		}
	}
	return out
}
