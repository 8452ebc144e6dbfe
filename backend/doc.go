// Package backend provides the pluggable GPU device abstraction.
//
// The painter engine records its frame graph once (package recording) and
// hands it to a [Device]. Devices live in sub-packages and register
// themselves from init(), following the database/sql driver pattern:
//
//	import (
//		_ "github.com/gogpu/painter/backend/soft"
//		_ "github.com/gogpu/painter/backend/wgpu"
//	)
//
// # Device Selection
//
// Use Default() to open the best available device, or Open() to request
// one by name:
//
//	// The GPU device when a Vulkan adapter exists, the CPU device otherwise
//	dev, err := backend.Default()
//
//	// Or request a specific device
//	dev, err := backend.Open("software")
//
// # Available Backends
//
// - "software": CPU reference device with barrier validation (always available)
// - "wgpu": gogpu/wgpu HAL device; layer blends run as compute passes, traces on the CPU
package backend
