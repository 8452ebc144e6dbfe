package backend

import (
	"errors"
	"time"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/recording"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU reference device.
	BackendSoftware = "software"
	// BackendWGPU is the name of the Pure Go GPU device (gogpu/wgpu HAL).
	BackendWGPU = "wgpu"
)

// Common device errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrClosed is returned by a device after Close.
	ErrClosed = errors.New("backend: device closed")

	// ErrInvalidID is returned for unknown or destroyed resource handles.
	ErrInvalidID = errors.New("backend: invalid resource id")

	// ErrOutOfMemory is returned when the device cannot back an allocation.
	ErrOutOfMemory = errors.New("backend: out of device memory")

	// ErrTimeout is returned when a fence does not signal in time.
	ErrTimeout = errors.New("backend: fence wait timed out")

	// ErrUnknownProgram is returned for pipelines naming a program the
	// device does not implement.
	ErrUnknownProgram = errors.New("backend: unknown program")

	// ErrBindingMismatch is returned when a group update does not match the
	// group layout.
	ErrBindingMismatch = errors.New("backend: binding does not match layout")

	// ErrUnboundResource is returned when a pass uses a binding that was
	// never written.
	ErrUnboundResource = errors.New("backend: unbound resource")

	// ErrHazard is returned when a command reads or writes a resource whose
	// earlier write was not made visible by a barrier.
	ErrHazard = errors.New("backend: missing barrier")

	// ErrInvalidShaderGroupHandle is returned when a dispatch table region
	// does not start at a shader group handle.
	ErrInvalidShaderGroupHandle = errors.New("backend: invalid shader group handle")

	// ErrMisalignedTable is returned when a dispatch table region is not
	// aligned to the base alignment.
	ErrMisalignedTable = errors.New("backend: misaligned dispatch table")

	// ErrViewportMismatch is returned when a pipeline is used with
	// attachments of a different size than it was built for.
	ErrViewportMismatch = errors.New("backend: pipeline viewport does not match attachments")
)

// Device is the interface every GPU device implementation provides.
// It abstracts resource creation, acceleration structure builds and the
// execution of recorded command streams, allowing the same frame graph to
// run on the CPU reference device or on a HAL GPU device.
//
// Devices are registered via Register() and selected via Open() or
// Default().
type Device interface {
	// Name returns the backend identifier (e.g., "software", "wgpu").
	Name() string

	// Limits returns the device resource limits.
	Limits() gpucore.Limits

	// RayTracingProperties returns the shader group handle size and the
	// dispatch table base alignment.
	RayTracingProperties() gpucore.RayTracingProperties

	// Buffers

	CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error)
	// WriteBuffer copies data into a host-visible buffer.
	WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error
	// ReadBuffer copies buffer contents into dst. It does not wait for
	// submitted work; callers wait on the relevant fence first.
	ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error
	DestroyBuffer(id gpucore.BufferID)

	// Images

	CreateImage(desc *gpucore.ImageDesc) (gpucore.ImageID, error)
	// WriteImage uploads tightly packed texels covering the whole image.
	WriteImage(id gpucore.ImageID, data []byte) error
	// ReadImage reads back tightly packed texels covering the whole image.
	ReadImage(id gpucore.ImageID, dst []byte) error
	DestroyImage(id gpucore.ImageID)

	// Descriptor groups

	CreateGroupLayout(desc *gpucore.GroupLayoutDesc) (gpucore.GroupLayoutID, error)
	DestroyGroupLayout(id gpucore.GroupLayoutID)
	CreateGroup(layout gpucore.GroupLayoutID) (gpucore.GroupID, error)
	// UpdateGroup rewrites bindings in a single call. Either every binding
	// is applied or none is.
	UpdateGroup(id gpucore.GroupID, bindings []gpucore.Binding) error
	DestroyGroup(id gpucore.GroupID)

	// Pipelines

	CreateRasterPipeline(desc *gpucore.RasterPipelineDesc) (gpucore.PipelineID, error)
	CreateRayTracePipeline(desc *gpucore.RayTracePipelineDesc) (gpucore.PipelineID, error)
	// ShaderGroupHandles returns count opaque handles of HandleSize bytes,
	// tightly packed, starting at group first.
	ShaderGroupHandles(p gpucore.PipelineID, first, count uint32) ([]byte, error)
	DestroyPipeline(id gpucore.PipelineID)

	// Acceleration structures

	BuildBLAS(geom *gpucore.GeometryDesc) (gpucore.AccelID, error)
	BuildTLAS(instances []gpucore.Instance) (gpucore.AccelID, error)
	DestroyAccel(id gpucore.AccelID)

	// Execution

	// Submit queues a recorded stream and returns its fence. Fences are
	// ordered: waiting on a fence also waits on every earlier submission.
	Submit(r *recording.Recording) (gpucore.FenceID, error)
	// Wait blocks until the fence signals or the timeout expires.
	Wait(f gpucore.FenceID, timeout time.Duration) error
	// WaitIdle blocks until all submitted work has retired.
	WaitIdle() error

	// Close releases all device resources.
	// The device should not be used after Close is called.
	Close()
}
