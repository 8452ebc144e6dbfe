// Package mesh provides the indexed triangle meshes the renderer paints
// on, together with procedural generators.
//
// Meshes use the interleaved gpucore.Vertex layout. UV coordinates lie in
// [0, 1] with V pointing down the paint surface, and no two triangles of a
// generated mesh share texels, so every surface point maps to its own
// paint texel.
package mesh

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/painter/gpucore"
)

// Mesh errors.
var (
	// ErrEmpty is returned for a mesh without triangles.
	ErrEmpty = errors.New("mesh: no triangles")

	// ErrBadIndex is returned when an index does not name a vertex.
	ErrBadIndex = errors.New("mesh: index out of range")

	// ErrUnknown is returned by ByName for an unknown generator.
	ErrUnknown = errors.New("mesh: unknown generator")
)

// Mesh is indexed triangle geometry.
type Mesh struct {
	Name     string
	Vertices []gpucore.Vertex
	Indices  []uint32
}

// Triangles returns the triangle count.
func (m *Mesh) Triangles() int { return len(m.Indices) / 3 }

// Validate checks that the mesh has whole triangles referencing existing
// vertices.
func (m *Mesh) Validate() error {
	if len(m.Indices) < 3 {
		return fmt.Errorf("%w: %q", ErrEmpty, m.Name)
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh: %q has %d indices, not whole triangles", m.Name, len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return fmt.Errorf("%w: %q index %d is %d of %d vertices", ErrBadIndex, m.Name, i, idx, len(m.Vertices))
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounds of the vertex positions.
func (m *Mesh) Bounds() (lo, hi mgl32.Vec3) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	lo, hi = m.Vertices[0].Position, m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		for k := range 3 {
			lo[k] = min(lo[k], v.Position[k])
			hi[k] = max(hi[k], v.Position[k])
		}
	}
	return lo, hi
}

// VertexBytes returns the vertex buffer contents.
func (m *Mesh) VertexBytes() []byte { return gpucore.EncodeVertices(m.Vertices) }

// IndexBytes returns the index buffer contents.
func (m *Mesh) IndexBytes() []byte { return gpucore.EncodeIndices(m.Indices) }

// Plane returns a square of side size in the z = 0 plane facing +Z.
func Plane(size float32) *Mesh {
	h := size / 2
	n := mgl32.Vec3{0, 0, 1}
	return &Mesh{
		Name: "plane",
		Vertices: []gpucore.Vertex{
			{Position: mgl32.Vec3{-h, -h, 0}, Normal: n, UV: mgl32.Vec2{0, 1}},
			{Position: mgl32.Vec3{h, -h, 0}, Normal: n, UV: mgl32.Vec2{1, 1}},
			{Position: mgl32.Vec3{h, h, 0}, Normal: n, UV: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{-h, h, 0}, Normal: n, UV: mgl32.Vec2{0, 0}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// cubeFaces lists normal, right and up axes of each cube face.
var cubeFaces = [6][3]mgl32.Vec3{
	{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}},
	{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
	{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}},
	{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
	{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
	{{0, 0, -1}, {-1, 0, 0}, {0, 1, 0}},
}

// Cube returns an axis-aligned cube of side size centered at the origin.
// Faces occupy the cells of a 3x2 grid of the UV square.
func Cube(size float32) *Mesh {
	h := size / 2
	m := &Mesh{Name: "cube"}
	for f, axes := range cubeFaces {
		n, r, u := axes[0], axes[1], axes[2]
		u0 := float32(f%3) / 3
		v0 := float32(f/3) / 2
		base := uint32(len(m.Vertices)) //nolint:gosec // G115: 24 vertices
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := n.Mul(h).Add(r.Mul(c[0] * h)).Add(u.Mul(c[1] * h))
			uv := mgl32.Vec2{u0 + (c[0]+1)/2/3, v0 + (1-c[1])/2/2}
			m.Vertices = append(m.Vertices, gpucore.Vertex{Position: p, Normal: n, UV: uv})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// Sphere returns a UV sphere. Rings is the number of latitude bands and
// segments the number of longitude slices.
func Sphere(radius float32, rings, segments int) *Mesh {
	rings, segments = max(rings, 2), max(segments, 3)
	m := &Mesh{Name: "sphere"}
	for i := 0; i <= rings; i++ {
		theta := math.Pi * float64(i) / float64(rings)
		for j := 0; j <= segments; j++ {
			phi := 2 * math.Pi * float64(j) / float64(segments)
			n := mgl32.Vec3{
				float32(math.Sin(theta) * math.Cos(phi)),
				float32(math.Cos(theta)),
				float32(math.Sin(theta) * math.Sin(phi)),
			}
			m.Vertices = append(m.Vertices, gpucore.Vertex{
				Position: n.Mul(radius),
				Normal:   n,
				UV:       mgl32.Vec2{float32(j) / float32(segments), float32(i) / float32(rings)},
			})
		}
	}
	row := uint32(segments + 1) //nolint:gosec // G115: small grids
	for i := range uint32(rings) {
		for j := range uint32(segments) {
			a := i*row + j
			b := a + row
			if i != 0 {
				m.Indices = append(m.Indices, a, a+1, b)
			}
			if i != uint32(rings)-1 {
				m.Indices = append(m.Indices, a+1, b+1, b)
			}
		}
	}
	return m
}

// Triangle is one unindexed triangle with a flat normal.
type Triangle struct {
	P      [3]mgl32.Vec3
	Normal mgl32.Vec3
}

// FromTriangles builds a mesh over unindexed triangles. Every triangle
// gets its own half of a cell in a square UV grid, inset so that nearest
// sampling never crosses into a neighbor.
func FromTriangles(name string, tris []Triangle) *Mesh {
	m := &Mesh{Name: name}
	if len(tris) == 0 {
		return m
	}
	cells := int(math.Ceil(math.Sqrt(float64((len(tris) + 1) / 2))))
	cell := 1 / float32(cells)
	inset := cell / 8
	for i, t := range tris {
		c := i / 2
		x0 := float32(c%cells) * cell
		y0 := float32(c/cells) * cell
		lo, hi := inset, cell-inset
		var uv [3]mgl32.Vec2
		if i%2 == 0 {
			uv = [3]mgl32.Vec2{{x0 + lo, y0 + lo}, {x0 + hi - inset, y0 + lo}, {x0 + lo, y0 + hi - inset}}
		} else {
			uv = [3]mgl32.Vec2{{x0 + hi, y0 + hi}, {x0 + lo + inset, y0 + hi}, {x0 + hi, y0 + lo + inset}}
		}
		base := uint32(len(m.Vertices)) //nolint:gosec // G115: bounded by the BVH limit
		for k := range 3 {
			m.Vertices = append(m.Vertices, gpucore.Vertex{Position: t.P[k], Normal: t.Normal, UV: uv[k]})
		}
		m.Indices = append(m.Indices, base, base+1, base+2)
	}
	return m
}

// generators maps the names accepted by ByName to mesh constructors.
var generators = map[string]func() (*Mesh, error){
	"plane":   func() (*Mesh, error) { return Plane(2), nil },
	"cube":    func() (*Mesh, error) { return Cube(1.5), nil },
	"sphere":  func() (*Mesh, error) { return Sphere(1, 32, 64), nil },
	"capsule": func() (*Mesh, error) { return Capsule(2, 0.5, DefaultCells) },
	"bracket": func() (*Mesh, error) { return Bracket(DefaultCells) },
}

// Names returns the generator names accepted by ByName.
func Names() []string {
	names := make([]string, 0, len(generators))
	for n := range generators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ByName builds the named procedural mesh.
func ByName(name string) (*Mesh, error) {
	gen, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknown, name, Names())
	}
	return gen()
}
