// Package wgpu provides the GPU device built on the Pure Go gogpu/wgpu HAL.
//
// The HAL exposes compute and raster queues but no ray-tracing extension,
// so the device is a hybrid: command streams are validated and played back
// by the software device (hazard tracking, BVH traversal for the paint and
// select programs, mesh rasterization), while the full-screen layer passes
// that dominate a frame (apply-paint and the layer composite, each
// PaintSize x PaintSize texels) run as a WGSL compute shader on the GPU.
//
// # Architecture
//
//	recording.Recording -> soft executor -> kernels
//	                                         |
//	                     apply-paint, layer-stack (same-size blends)
//	                                         |
//	                  compositor: WGSL -> naga SPIR-V -> hal compute pass
//	                                         |
//	                      fence wait -> staging readback -> image texels
//
// Blends smaller than the dispatch threshold, or larger than a storage
// binding, stay on the CPU kernels. A failed dispatch is logged at Warn
// level and the same blend is redone on the CPU.
//
// # Usage
//
// Importing the package registers the device as "wgpu", which
// backend.Default prefers over "software":
//
//	import _ "github.com/gogpu/painter/backend/wgpu"
//
// An application that already owns a GPU device (for example a gogpu
// window) shares it through NewFromProvider. The provider must expose the
// HAL objects via HalDevice() any and HalQueue() any.
//
// # Build tags
//
// Building with -tags nogpu leaves the package without a device; the
// registry then falls back to the software device.
package wgpu
