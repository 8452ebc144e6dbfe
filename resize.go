package painter

import (
	"github.com/gogpu/painter/gpucore"
)

// Resize rebuilds everything that depends on the presentation size: the
// depth image, the frame targets, the raster, post, paint and select
// pipelines and both dispatch tables. It stops the world: the device goes
// idle first and every frame slot is re-recorded afterwards. A zero or
// unchanged size is a no-op.
func (r *Renderer) Resize(width, height uint32) error {
	if err := r.guard(); err != nil {
		return err
	}
	if width == 0 || height == 0 || (width == r.extent.Width && height == r.extent.Height) {
		return nil
	}
	limit := r.dev.Limits().MaxImageDimension
	if width > limit || height > limit {
		return errExtent(width, height, limit)
	}
	if err := r.idle("resize"); err != nil {
		return err
	}

	r.freeTargets()
	r.extent = gpucore.Extent{Width: width, Height: height}
	if err := r.allocateTargets(); err != nil {
		return r.check(err)
	}
	if err := r.rebuildPasses(func(p *pass) bool { return p.extentBound }); err != nil {
		return r.check(err)
	}
	for _, s := range r.slots {
		s.fence = 0
	}
	r.invalidate()
	slogger().Info("painter: resized", "width", width, "height", height)
	return nil
}
