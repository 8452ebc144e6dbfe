// Package gpucore provides the shared GPU vocabulary of the painter engine.
//
// It defines the opaque resource handles ([BufferID], [ImageID],
// [GroupID], [PipelineID], [AccelID], [FenceID]) and the descriptors used
// to create them, so that the frame graph can be written once and executed
// by any device in the backend registry:
//   - backend/soft (CPU reference device, always available)
//   - backend/wgpu (gogpu/wgpu HAL, compute emulation of ray tracing)
//
// # Architecture
//
//	               +-----------------+
//	               |     painter     |
//	               | (frame graph)   |
//	               +--------+--------+
//	                        | recording.Recording
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/soft   |          |  backend/wgpu   |
//	|  (Go kernels)   |          | (hal + WGSL)    |
//	+-----------------+          +--------+--------+
//	                                      |
//	                             +--------v--------+
//	                             |   gogpu/wgpu    |
//	                             +-----------------+
//
// # Resource Management
//
// Devices keep the mapping between IDs and real resources. [InvalidID] is
// never handed out. Descriptor group shapes ([GroupLayoutDesc]) are fixed
// at creation; only the bound resource identities change.
//
// # Ray Tracing
//
// Ray-trace pipelines expose shader group handles of
// [RayTracingProperties.HandleSize] bytes. Dispatch tables place them at
// [RayTracingProperties.BaseAlignment] stride and are described to the
// device through [StridedRegion] values.
package gpucore
