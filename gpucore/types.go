package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// ImageID is an opaque handle to a 2D image.
type ImageID uint64

// GroupLayoutID is an opaque handle to a descriptor group layout.
type GroupLayoutID uint64

// GroupID is an opaque handle to a descriptor group.
type GroupID uint64

// PipelineID is an opaque handle to a raster or ray-trace pipeline.
type PipelineID uint64

// AccelID is an opaque handle to a bottom or top level acceleration structure.
type AccelID uint64

// FenceID is an opaque handle to a submission fence.
type FenceID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Locality says where the backing memory of a resource lives.
type Locality uint8

const (
	// LocalityDevice is device-local memory, not host addressable.
	LocalityDevice Locality = iota
	// LocalityHost is host-visible memory the CPU can write and read.
	LocalityHost
)

// String returns the locality name.
func (l Locality) String() string {
	switch l {
	case LocalityDevice:
		return "device"
	case LocalityHost:
		return "host"
	default:
		return fmt.Sprintf("Locality(%d)", l)
	}
}

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageCopySrc
	BufferUsageCopyDst
	// BufferUsageShaderBindingTable marks dispatch table storage.
	BufferUsageShaderBindingTable
	// BufferUsageAccelInput marks geometry read by acceleration structure builds.
	BufferUsageAccelInput
)

// ImageUsage is a bitmask specifying how an image will be used.
type ImageUsage uint32

// Image usage flags.
const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
	ImageUsageCopySrc
	ImageUsageCopyDst
)

// Image formats used by the engine. Color images are premultiplied RGBA8.
const (
	FormatColor = gputypes.TextureFormatRGBA8Unorm
	FormatDepth = gputypes.TextureFormatDepth24PlusStencil8
)

// BytesPerTexel returns the texel size of the formats the engine uses.
// Depth texels are stored as 32-bit floats on every device.
func BytesPerTexel(gputypes.TextureFormat) int {
	return 4
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label    string
	Size     uint64
	Usage    BufferUsage
	Locality Locality
}

// ImageDesc describes a 2D image.
type ImageDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  ImageUsage
}

// SizeBytes returns the memory footprint of the image.
func (d ImageDesc) SizeBytes() uint64 {
	return uint64(d.Width) * uint64(d.Height) * uint64(BytesPerTexel(d.Format))
}

// Extent is a 2D size in texels.
type Extent struct {
	Width  uint32
	Height uint32
}

// BindingKind is the type of resource a layout entry accepts.
type BindingKind uint8

// Binding kinds.
const (
	BindingUniform BindingKind = iota + 1
	BindingStorage
	BindingSampledImage
	BindingStorageImage
	BindingAccel
)

var bindingKindNames = [...]string{
	BindingUniform:      "uniform",
	BindingStorage:      "storage",
	BindingSampledImage: "sampled-image",
	BindingStorageImage: "storage-image",
	BindingAccel:        "accel",
}

// String returns the binding kind name.
func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) && bindingKindNames[k] != "" {
		return bindingKindNames[k]
	}
	return fmt.Sprintf("BindingKind(%d)", k)
}

// IsBuffer reports whether the kind binds a buffer range.
func (k BindingKind) IsBuffer() bool {
	return k == BindingUniform || k == BindingStorage
}

// IsImage reports whether the kind binds an image.
func (k BindingKind) IsImage() bool {
	return k == BindingSampledImage || k == BindingStorageImage
}

// Stage is a bitmask of shader stages that may access a binding.
type Stage uint32

// Shader stages.
const (
	StageVertex Stage = 1 << iota
	StageFragment
	StageRayGen
	StageMiss
	StageClosestHit

	// StageRayTracing covers every ray-trace stage.
	StageRayTracing = StageRayGen | StageMiss | StageClosestHit
	// StageGraphics covers the raster stages.
	StageGraphics = StageVertex | StageFragment
)

// LayoutEntry describes a single binding of a group layout.
type LayoutEntry struct {
	Binding uint32
	Kind    BindingKind
	Stages  Stage

	// Count is the array length. Zero and one both mean a single element.
	Count uint32

	// PartiallyBound allows array elements to stay unbound.
	PartiallyBound bool
}

// Len returns the number of array elements of the entry.
func (e LayoutEntry) Len() uint32 {
	if e.Count == 0 {
		return 1
	}
	return e.Count
}

// GroupLayoutDesc describes the fixed shape of a descriptor group.
type GroupLayoutDesc struct {
	Label   string
	Entries []LayoutEntry
}

// Entry returns the layout entry for a binding index.
func (d *GroupLayoutDesc) Entry(binding uint32) (LayoutEntry, bool) {
	for _, e := range d.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return LayoutEntry{}, false
}

// Binding binds one resource to one element of a layout entry.
type Binding struct {
	Binding uint32
	Element uint32

	Buffer BufferID
	Offset uint64
	// Size of the buffer range; zero binds the rest of the buffer.
	Size uint64

	Image ImageID
	Accel AccelID
}

// RayTracingProperties are the device constants the dispatch table layout
// depends on.
type RayTracingProperties struct {
	// HandleSize is the size in bytes of one opaque shader group handle.
	HandleSize uint32
	// BaseAlignment is the required alignment of every table entry start.
	BaseAlignment uint32
	// MaxRecursion is the maximum trace recursion depth.
	MaxRecursion uint32
}

// Limits are the device resource limits.
type Limits struct {
	MaxImageDimension uint32
	MaxBufferSize     uint64
}

// StridedRegion addresses one sub-table of a dispatch table.
type StridedRegion struct {
	Buffer BufferID
	Offset uint64
	Stride uint64
	Size   uint64
}

// ShaderTables selects the raygen, miss and hit records of a trace.
type ShaderTables struct {
	RayGen StridedRegion
	Miss   StridedRegion
	Hit    StridedRegion
}

// Access is a bitmask of memory access types used by barriers.
type Access uint32

// Access types.
const (
	AccessTransferWrite Access = 1 << iota
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentWrite
	AccessHostRead
)

// SyncStage is a bitmask of pipeline stages used by barriers.
type SyncStage uint32

// Synchronization stages.
const (
	SyncTransfer SyncStage = 1 << iota
	SyncRayTracing
	SyncFragment
	SyncHost
)

// Barrier is a global memory dependency between two sets of stages.
type Barrier struct {
	SrcStage  SyncStage
	DstStage  SyncStage
	SrcAccess Access
	DstAccess Access
}
