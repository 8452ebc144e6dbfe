// Package painter is the GPU frame pipeline and ray-traced pick/paint
// engine of an interactive 3D texture painting tool.
//
// # Overview
//
// A user orbits a camera around a mesh and paints onto it. Every stroke is
// a ray-traced splat: rays are launched over the brush footprint on screen
// and each hit writes the brush color into a paint surface addressed by
// the mesh UVs. The paint surface is blended into the active layer, the
// visible layers are composited into a texture, and the mesh is rendered
// with that texture.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/painter"
//	    "github.com/gogpu/painter/mesh"
//	    _ "github.com/gogpu/painter/backend/soft"
//	)
//
//	r, err := painter.New(painter.WithExtent(800, 600))
//	if err != nil { ... }
//	defer r.Close()
//
//	_ = r.LoadMesh(mesh.Sphere(1, 32, 64))
//	_, _ = r.CreateLayer("base")
//	r.SetView(painter.DefaultView(800, 600))
//	r.SetBrush(painter.DefaultBrush())
//	_ = r.Render()
//	_ = r.SaveComposite("paint.png")
//
// # Frame graph
//
// Each frame slot holds a recorded command stream. A stale slot is
// re-recorded with the passes:
//
//  1. clear the paint surface
//  2. barrier: transfer writes before shader access
//  3. paint trace over the brush footprint (active brush only)
//  4. barrier: ray-trace writes before fragment reads (with 3 only)
//  5. apply the paint surface to the active layer (Over or Erase)
//  6. composite the visible layers back to front
//  7. rasterize the mesh textured with the composite
//  8. draw the brush cursor over the frame
//
// A fresh slot resubmits its stream unchanged. Camera and brush position
// live in host-visible parameter blocks, so moving either never requires a
// new recording. Pipeline, binding, layer and mesh changes mark every slot
// stale.
//
// # Devices
//
// Devices come from the backend registry. Import backend/soft for the CPU
// reference device or backend/wgpu for Vulkan through gogpu/wgpu, or pass
// one explicitly with WithDevice.
//
// # Errors
//
// Errors wrapped in *FatalError (see IsFatal) end the session: the
// Renderer then fails every call with ErrSessionLost and must be closed.
// Pick misses and save validation failures are not fatal.
//
// # Thread safety
//
// A Renderer is driven by a single goroutine and is not safe for
// concurrent use.
package painter
