package wgpu

import (
	"encoding/binary"
	"testing"
)

func TestCompileBlendShader(t *testing.T) {
	words, err := compileShader(blendShaderWGSL)
	if err != nil {
		t.Fatalf("compileShader: %v", err)
	}
	if words[0] != spirvMagic {
		t.Errorf("first word = %#x, want SPIR-V magic", words[0])
	}
	if len(words) < 5 {
		t.Errorf("module of %d words is shorter than a SPIR-V header", len(words))
	}
}

func TestCompileShaderRejectsInvalidWGSL(t *testing.T) {
	if _, err := compileShader("fn main( {"); err == nil {
		t.Error("compileShader accepted malformed WGSL")
	}
}

func TestBlendParams(t *testing.T) {
	b := blendParams(640, 480, 2)
	if len(b) != 16 {
		t.Fatalf("params = %d bytes, want 16", len(b))
	}
	for i, want := range []uint32{640, 480, 2, 0} {
		if got := binary.LittleEndian.Uint32(b[i*4:]); got != want {
			t.Errorf("word %d = %d, want %d", i, got, want)
		}
	}
}

func TestGroups(t *testing.T) {
	tests := []struct {
		n    int
		want uint32
	}{
		{1, 1},
		{8, 1},
		{9, 2},
		{4096, 512},
	}
	for _, tt := range tests {
		if got := groups(tt.n); got != tt.want {
			t.Errorf("groups(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
