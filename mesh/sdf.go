package mesh

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultCells is the marching cubes resolution along the longest side.
const DefaultCells = 48

// FromSDF tessellates a signed distance field with uniform marching cubes.
func FromSDF(name string, s sdf.SDF3, cells int) (*Mesh, error) {
	if cells < 2 {
		return nil, fmt.Errorf("mesh: %q: %d marching cubes cells", name, cells)
	}
	triangles := render.ToTriangles(s, render.NewMarchingCubesUniform(cells))

	tris := make([]Triangle, 0, len(triangles))
	for _, tri := range triangles {
		var t Triangle
		for j := range 3 {
			v := tri[j]
			t.P[j] = mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
		}
		n := t.P[1].Sub(t.P[0]).Cross(t.P[2].Sub(t.P[0]))
		if n.Len() < 1e-12 {
			continue
		}
		t.Normal = n.Normalize()
		tris = append(tris, t)
	}
	m := FromTriangles(name, tris)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Capsule returns a capsule along Y. Height includes both caps and must be
// at least twice the radius.
func Capsule(height, radius float64, cells int) (*Mesh, error) {
	s, err := sdf.Cylinder3D(height, radius, radius)
	if err != nil {
		return nil, fmt.Errorf("mesh: capsule: %w", err)
	}
	// Cylinder3D runs along Z.
	s = sdf.Transform3D(s, sdf.RotateX(math.Pi / 2))
	return FromSDF("capsule", s, cells)
}

// Bracket returns an L-shaped plate with a boss, a small CAD-like part
// with sharp edges and a curved surface.
func Bracket(cells int) (*Mesh, error) {
	base, err := sdf.Box3D(v3.Vec{X: 2, Y: 0.3, Z: 1}, 0.05)
	if err != nil {
		return nil, fmt.Errorf("mesh: bracket: %w", err)
	}
	wall, err := sdf.Box3D(v3.Vec{X: 0.3, Y: 1.2, Z: 1}, 0.05)
	if err != nil {
		return nil, fmt.Errorf("mesh: bracket: %w", err)
	}
	wall = sdf.Transform3D(wall, sdf.Translate3d(v3.Vec{X: -0.85, Y: 0.45}))
	boss, err := sdf.Cylinder3D(0.5, 0.3, 0.05)
	if err != nil {
		return nil, fmt.Errorf("mesh: bracket: %w", err)
	}
	boss = sdf.Transform3D(boss, sdf.Translate3d(v3.Vec{X: 0.5, Y: 0.3}).Mul(sdf.RotateX(math.Pi / 2)))
	return FromSDF("bracket", sdf.Union3D(base, wall, boss), cells)
}
