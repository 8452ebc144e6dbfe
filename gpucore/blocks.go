package gpucore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Parameter block layouts shared by the engine and every device. All
// blocks are little-endian, matrices column-major, vec3 padded to 16 bytes
// where a shader would pad them.

// Block sizes in bytes.
const (
	MatricesSize  = 5 * 64
	LightingSize  = 32
	BrushSize     = 32
	PickSize      = 2*64 + 16
	SelectionSize = 16
	VertexSize    = 32
	PushLayerSize = 4
)

// Matrices is the camera block of the raster group.
type Matrices struct {
	Model   mgl32.Mat4
	View    mgl32.Mat4
	Proj    mgl32.Mat4
	ViewInv mgl32.Mat4
	ProjInv mgl32.Mat4
}

// Encode returns the block bytes.
func (m *Matrices) Encode() []byte {
	out := make([]byte, 0, MatricesSize)
	for _, mat := range [...]mgl32.Mat4{m.Model, m.View, m.Proj, m.ViewInv, m.ProjInv} {
		out = appendMat4(out, mat)
	}
	return out
}

// DecodeMatrices parses a Matrices block.
func DecodeMatrices(b []byte) (Matrices, error) {
	if len(b) < MatricesSize {
		return Matrices{}, shortBlock("matrices", len(b), MatricesSize)
	}
	return Matrices{
		Model:   mat4At(b, 0),
		View:    mat4At(b, 64),
		Proj:    mat4At(b, 128),
		ViewInv: mat4At(b, 192),
		ProjInv: mat4At(b, 256),
	}, nil
}

// Lighting is the shading block of the raster group.
type Lighting struct {
	ClearColor [4]float32
	LightDir   mgl32.Vec3
	Intensity  float32
}

// Encode returns the block bytes.
func (l *Lighting) Encode() []byte {
	out := make([]byte, 0, LightingSize)
	out = appendF32(out, l.ClearColor[:]...)
	out = appendF32(out, l.LightDir[:]...)
	return appendF32(out, l.Intensity)
}

// DecodeLighting parses a Lighting block.
func DecodeLighting(b []byte) (Lighting, error) {
	if len(b) < LightingSize {
		return Lighting{}, shortBlock("lighting", len(b), LightingSize)
	}
	var l Lighting
	for i := range 4 {
		l.ClearColor[i] = f32At(b, i*4)
	}
	l.LightDir = mgl32.Vec3{f32At(b, 16), f32At(b, 20), f32At(b, 24)}
	l.Intensity = f32At(b, 28)
	return l, nil
}

// BrushMode selects what a brush does.
type BrushMode uint32

// Brush modes. Only BrushPaint is active: it paints and blocks camera
// gestures.
const (
	BrushPaint BrushMode = iota
	BrushIdle
	BrushView
)

// String returns the mode name.
func (m BrushMode) String() string {
	switch m {
	case BrushPaint:
		return "paint"
	case BrushIdle:
		return "idle"
	case BrushView:
		return "view"
	default:
		return fmt.Sprintf("BrushMode(%d)", uint32(m))
	}
}

// Brush is the brush block shared by the paint trace and the post pass.
// X and Y are normalized window coordinates with Y down, Radius is in units
// of the window height.
type Brush struct {
	X, Y   float32
	Radius float32
	Mode   BrushMode
	// Color is straight (not premultiplied) RGBA.
	Color [4]float32
}

// Encode returns the block bytes.
func (b *Brush) Encode() []byte {
	out := make([]byte, 0, BrushSize)
	out = appendF32(out, b.X, b.Y, b.Radius)
	out = binary.LittleEndian.AppendUint32(out, uint32(b.Mode))
	return appendF32(out, b.Color[:]...)
}

// DecodeBrush parses a Brush block.
func DecodeBrush(b []byte) (Brush, error) {
	if len(b) < BrushSize {
		return Brush{}, shortBlock("brush", len(b), BrushSize)
	}
	br := Brush{
		X:      f32At(b, 0),
		Y:      f32At(b, 4),
		Radius: f32At(b, 8),
		Mode:   BrushMode(binary.LittleEndian.Uint32(b[12:])),
	}
	for i := range 4 {
		br.Color[i] = f32At(b, 16+i*4)
	}
	return br, nil
}

// Pick is the parameter block of the select trace.
type Pick struct {
	ViewInv mgl32.Mat4
	ProjInv mgl32.Mat4
	// Cursor is the normalized window position, Y down.
	Cursor mgl32.Vec2
}

// Encode returns the block bytes.
func (p *Pick) Encode() []byte {
	out := make([]byte, 0, PickSize)
	out = appendMat4(out, p.ViewInv)
	out = appendMat4(out, p.ProjInv)
	return appendF32(out, p.Cursor[0], p.Cursor[1], 0, 0)
}

// DecodePick parses a Pick block.
func DecodePick(b []byte) (Pick, error) {
	if len(b) < PickSize {
		return Pick{}, shortBlock("pick", len(b), PickSize)
	}
	return Pick{
		ViewInv: mat4At(b, 0),
		ProjInv: mat4At(b, 64),
		Cursor:  mgl32.Vec2{f32At(b, 128), f32At(b, 132)},
	}, nil
}

// Selection is the result written by the select trace.
type Selection struct {
	Hit      bool
	Position mgl32.Vec3
}

// Encode returns the block bytes.
func (s *Selection) Encode() []byte {
	out := make([]byte, 0, SelectionSize)
	var hit uint32
	if s.Hit {
		hit = 1
	}
	out = binary.LittleEndian.AppendUint32(out, hit)
	return appendF32(out, s.Position[:]...)
}

// DecodeSelection parses a Selection block.
func DecodeSelection(b []byte) (Selection, error) {
	if len(b) < SelectionSize {
		return Selection{}, shortBlock("selection", len(b), SelectionSize)
	}
	return Selection{
		Hit:      binary.LittleEndian.Uint32(b) != 0,
		Position: mgl32.Vec3{f32At(b, 4), f32At(b, 8), f32At(b, 12)},
	}, nil
}

// Vertex is the interleaved vertex layout read by vertex pulling.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

// EncodeVertices returns interleaved vertex bytes, VertexSize per vertex.
func EncodeVertices(vs []Vertex) []byte {
	out := make([]byte, 0, len(vs)*VertexSize)
	for _, v := range vs {
		out = appendF32(out, v.Position[:]...)
		out = appendF32(out, v.Normal[:]...)
		out = appendF32(out, v.UV[:]...)
	}
	return out
}

// VertexAt decodes vertex i of an interleaved vertex buffer.
func VertexAt(b []byte, i uint32) (Vertex, bool) {
	off := int(i) * VertexSize
	if off < 0 || off+VertexSize > len(b) {
		return Vertex{}, false
	}
	return Vertex{
		Position: mgl32.Vec3{f32At(b, off), f32At(b, off+4), f32At(b, off+8)},
		Normal:   mgl32.Vec3{f32At(b, off+12), f32At(b, off+16), f32At(b, off+20)},
		UV:       mgl32.Vec2{f32At(b, off+24), f32At(b, off+28)},
	}, true
}

// EncodeIndices returns little-endian u32 index bytes.
func EncodeIndices(idx []uint32) []byte {
	out := make([]byte, 0, len(idx)*4)
	for _, i := range idx {
		out = binary.LittleEndian.AppendUint32(out, i)
	}
	return out
}

// IndexAt decodes index i of an index buffer.
func IndexAt(b []byte, i uint32) (uint32, bool) {
	off := int(i) * 4
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[off:]), true
}

// EncodeLayerIndex returns the push constant block of a layer draw.
func EncodeLayerIndex(i uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, i)
}

// DecodeLayerIndex parses the push constant block of a layer draw.
func DecodeLayerIndex(b []byte) (uint32, error) {
	if len(b) < PushLayerSize {
		return 0, shortBlock("layer index", len(b), PushLayerSize)
	}
	return binary.LittleEndian.Uint32(b), nil
}

func appendF32(out []byte, fs ...float32) []byte {
	for _, f := range fs {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

func appendMat4(out []byte, m mgl32.Mat4) []byte {
	return appendF32(out, m[:]...)
}

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func mat4At(b []byte, off int) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range m {
		m[i] = f32At(b, off+i*4)
	}
	return m
}

func shortBlock(name string, got, want int) error {
	return fmt.Errorf("gpucore: %s block is %d bytes, want %d", name, got, want)
}
