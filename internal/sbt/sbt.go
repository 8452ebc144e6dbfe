// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sbt builds shader dispatch tables for ray-trace pipelines.
//
// A table holds one record per shader group in the fixed order raygen,
// miss, closest hit. Record k starts at byte k*stride, where stride is the
// handle size rounded up to the device base alignment.
package sbt

import (
	"errors"
	"fmt"

	"github.com/gogpu/painter/gpucore"
)

// Shader group indices. Every ray-trace pipeline of the engine declares
// its groups in this order.
const (
	GroupRayGen = 0
	GroupMiss   = 1
	GroupHit    = 2

	// GroupCount is the number of groups of an engine pipeline.
	GroupCount = 3
)

// ErrBuild is returned when a table cannot be built.
var ErrBuild = errors.New("sbt: build failed")

// Device is the subset of the device a table build needs.
type Device interface {
	RayTracingProperties() gpucore.RayTracingProperties
	ShaderGroupHandles(p gpucore.PipelineID, first, count uint32) ([]byte, error)
	CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error)
	WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error
	DestroyBuffer(id gpucore.BufferID)
}

// Table is a built dispatch table.
type Table struct {
	Buffer     gpucore.BufferID
	Stride     uint64
	HandleSize uint64
	Groups     uint32

	dev Device
}

// AlignUp rounds v up to a multiple of align. An align of zero returns v.
func AlignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

// Stride returns the record stride for the given device properties.
func Stride(props gpucore.RayTracingProperties) uint64 {
	return AlignUp(uint64(props.HandleSize), uint64(props.BaseAlignment))
}

// Build queries groupCount handles of pipeline p and writes them into a
// new host-visible buffer, handle k at byte k*stride.
func Build(dev Device, p gpucore.PipelineID, groupCount uint32) (*Table, error) {
	if groupCount == 0 {
		return nil, fmt.Errorf("%w: no shader groups", ErrBuild)
	}
	props := dev.RayTracingProperties()
	if props.HandleSize == 0 {
		return nil, fmt.Errorf("%w: device reports zero handle size", ErrBuild)
	}
	handleSize := uint64(props.HandleSize)
	stride := Stride(props)

	handles, err := dev.ShaderGroupHandles(p, 0, groupCount)
	if err != nil {
		return nil, fmt.Errorf("%w: handles: %w", ErrBuild, err)
	}
	if uint64(len(handles)) != handleSize*uint64(groupCount) {
		return nil, fmt.Errorf("%w: got %d handle bytes, want %d", ErrBuild, len(handles), handleSize*uint64(groupCount))
	}

	data := make([]byte, stride*uint64(groupCount))
	for k := uint64(0); k < uint64(groupCount); k++ {
		copy(data[k*stride:k*stride+handleSize], handles[k*handleSize:(k+1)*handleSize])
	}

	buf, err := dev.CreateBuffer(&gpucore.BufferDesc{
		Label:    "shader-binding-table",
		Size:     uint64(len(data)),
		Usage:    gpucore.BufferUsageShaderBindingTable,
		Locality: gpucore.LocalityHost,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: buffer: %w", ErrBuild, err)
	}
	if err := dev.WriteBuffer(buf, 0, data); err != nil {
		dev.DestroyBuffer(buf)
		return nil, fmt.Errorf("%w: upload: %w", ErrBuild, err)
	}

	return &Table{
		Buffer:     buf,
		Stride:     stride,
		HandleSize: handleSize,
		Groups:     groupCount,
		dev:        dev,
	}, nil
}

// Regions returns the raygen, miss and hit regions of the table.
func (t *Table) Regions() gpucore.ShaderTables {
	return Regions(t.Buffer, t.Stride, t.HandleSize)
}

// Destroy releases the table buffer. It is safe to call on a nil table.
func (t *Table) Destroy() {
	if t == nil || t.dev == nil {
		return
	}
	t.dev.DestroyBuffer(t.Buffer)
	t.dev = nil
}

// Offset returns the byte offset of record k.
func Offset(k uint32, stride uint64) uint64 {
	return uint64(k) * stride
}

// Regions computes the strided regions for a table in buf. Each region
// starts at Offset(k, stride) and covers exactly one record. A stride
// smaller than handleSize is raised to handleSize.
func Regions(buf gpucore.BufferID, stride, handleSize uint64) gpucore.ShaderTables {
	if stride < handleSize {
		stride = handleSize
	}
	region := func(k uint32) gpucore.StridedRegion {
		return gpucore.StridedRegion{
			Buffer: buf,
			Offset: Offset(k, stride),
			Stride: stride,
			Size:   stride,
		}
	}
	return gpucore.ShaderTables{
		RayGen: region(GroupRayGen),
		Miss:   region(GroupMiss),
		Hit:    region(GroupHit),
	}
}
