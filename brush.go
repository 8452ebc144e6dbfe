package painter

import (
	"fmt"

	"github.com/gogpu/painter/recording"
)

// SetView updates the camera. The camera blocks are host visible and read
// at execution time, so recorded frames stay valid.
func (r *Renderer) SetView(v View) error {
	if err := r.guard(); err != nil {
		return err
	}
	r.view = v
	m := v.matrices()
	if err := r.res.matrices.Write(0, m.Encode()); err != nil {
		return r.check(fatal("write matrices", err))
	}
	return nil
}

// View returns the current camera.
func (r *Renderer) View() View { return r.view }

// SetBrush updates the brush block. Frames are re-recorded only when the
// brush turns active or inactive or its trace footprint changes size.
func (r *Renderer) SetBrush(b Brush) error {
	if err := r.guard(); err != nil {
		return err
	}
	old := r.brush
	r.brush = b
	if err := r.res.brush.Write(0, b.Encode()); err != nil {
		return r.check(fatal("write brush", err))
	}
	if brushActive(old) != brushActive(b) ||
		footprint(old.Radius, r.o.paintSize, r.o.brushImageSize) != footprint(b.Radius, r.o.paintSize, r.o.brushImageSize) {
		r.invalidate()
	}
	return nil
}

// Brush returns the current brush block.
func (r *Renderer) Brush() Brush { return r.brush }

// PaintBlendMode returns how strokes combine with the active layer.
func (r *Renderer) PaintBlendMode() BlendMode { return r.paintBlend }

// SetPaintBlendMode switches between painting and erasing. A change waits
// for the device to go idle and rebuilds the apply-paint pipeline. Only
// BlendOver and BlendErase are accepted.
func (r *Renderer) SetPaintBlendMode(m BlendMode) error {
	if err := r.guard(); err != nil {
		return err
	}
	if m != BlendOver && m != BlendErase {
		return fmt.Errorf("%w: %d", ErrBadBlendMode, m)
	}
	if m == r.paintBlend {
		return nil
	}
	if err := r.idle("set blend mode"); err != nil {
		return err
	}
	r.paintBlend = m
	if err := r.buildPass(PassApplyPaint); err != nil {
		return r.check(err)
	}
	r.invalidate()
	slogger().Info("painter: paint blend mode changed", "mode", m)
	return nil
}

// ClearPaint clears the paint surface outside of a frame. Layer content is
// not affected.
func (r *Renderer) ClearPaint() error {
	if err := r.guard(); err != nil {
		return err
	}
	rec := recording.NewRecorder("clear-paint")
	rec.ClearImage(r.res.paint.ID, transparent)
	rec.Barrier(clearToShader)
	return r.submitWait("clear paint", rec)
}

// submitWait submits a one-time stream and waits for it.
func (r *Renderer) submitWait(op string, rec *recording.Recorder) error {
	out, err := rec.Finish()
	if err != nil {
		return r.check(fatal(op, err))
	}
	fence, err := r.dev.Submit(out)
	if err != nil {
		return r.check(fatal(op, err))
	}
	if err := r.dev.Wait(fence, r.o.fenceTimeout); err != nil {
		return r.check(fatal(op, err))
	}
	return nil
}
