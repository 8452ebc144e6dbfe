package wgpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// blendShaderWGSL blends src into dst, one invocation per texel. Texels
// are premultiplied RGBA8 packed little endian into u32 words. Mode
// follows gpucore.BlendMode: 0 replaces, 1 composites over, 2 erases.
const blendShaderWGSL = `
struct Params {
    width: u32,
    height: u32,
    mode: u32,
    pad: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> src: array<u32>;
@group(0) @binding(2) var<storage, read_write> dst: array<u32>;

fn unpack_texel(p: u32) -> vec4<f32> {
    let r = f32(p & 255u);
    let g = f32((p >> 8u) & 255u);
    let b = f32((p >> 16u) & 255u);
    let a = f32((p >> 24u) & 255u);
    return vec4<f32>(r, g, b, a) / 255.0;
}

fn pack_texel(c: vec4<f32>) -> u32 {
    let q = clamp(c, vec4<f32>(0.0), vec4<f32>(1.0)) * 255.0 + vec4<f32>(0.5);
    let r = u32(q.x);
    let g = u32(q.y);
    let b = u32(q.z);
    let a = u32(q.w);
    return r | (g << 8u) | (b << 16u) | (a << 24u);
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= params.width || id.y >= params.height) {
        return;
    }
    let i = id.y * params.width + id.x;
    if (params.mode == 0u) {
        dst[i] = src[i];
        return;
    }
    let s = unpack_texel(src[i]);
    let d = unpack_texel(dst[i]);
    let k = 1.0 - s.w;
    if (params.mode == 1u) {
        dst[i] = pack_texel(s + d * k);
    } else {
        dst[i] = pack_texel(d * k);
    }
}
`

// workgroupSize is the side of the blend shader workgroup.
const workgroupSize = 8

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// compileShader compiles WGSL to SPIR-V words.
func compileShader(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile shader: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("wgpu: compile shader: %d bytes is not whole words", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	if len(words) == 0 || words[0] != spirvMagic {
		return nil, fmt.Errorf("wgpu: compile shader: output is not SPIR-V")
	}
	return words, nil
}

// blendParams encodes the shader's uniform block.
func blendParams(width, height, mode uint32) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:], width)
	binary.LittleEndian.PutUint32(b[4:], height)
	binary.LittleEndian.PutUint32(b[8:], mode)
	return b
}

// groups returns the workgroup count covering n texels.
func groups(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize) //nolint:gosec // image sides are bounded
}
