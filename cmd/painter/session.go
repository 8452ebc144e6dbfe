package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/painter"
	"github.com/gogpu/painter/controller"
	"github.com/gogpu/painter/mesh"
)

// session is one headless painting session: a renderer driven by a
// controller that replays scripted input.
type session struct {
	cfg  Config
	r    *painter.Renderer
	ctl  *controller.Controller
	log  *slog.Logger
	quit context.CancelFunc

	script  []EventConfig
	tick    int
	changes interface{ Changed() (string, bool) }
}

func newSession(cfg Config, quit context.CancelFunc, changes interface{ Changed() (string, bool) }, log *slog.Logger) (*session, error) {
	r, err := painter.New(cfg.options()...)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		r:       r,
		ctl:     controller.New(cfg.Width, cfg.Height),
		log:     log,
		quit:    quit,
		script:  cfg.Events,
		changes: changes,
	}
	if len(s.script) == 0 {
		s.script = defaultScript(cfg.Width, cfg.Height)
	}
	s.ctl.SetColor(cfg.Brush.Color[0], cfg.Brush.Color[1], cfg.Brush.Color[2])
	s.ctl.SetRadius(cfg.Brush.Radius)
	if cfg.Brush.Erase {
		if err := r.SetPaintBlendMode(painter.BlendErase); err != nil {
			r.Close()
			return nil, err
		}
	}
	if err := s.Reload(); err != nil {
		r.Close()
		return nil, err
	}
	return s, nil
}

// Reload rebuilds the mesh and the layer stack from the configured assets.
func (s *session) Reload() error {
	m, err := mesh.ByName(s.cfg.Mesh)
	if err != nil {
		return err
	}
	if err := s.r.LoadMesh(m); err != nil {
		return err
	}
	for _, l := range s.r.Layers() {
		if err := s.r.DeleteLayer(l.ID); err != nil {
			return err
		}
	}
	if s.cfg.LayerImage != "" {
		if _, err := s.r.LoadLayerImage(s.cfg.LayerImage); err != nil {
			return err
		}
	}
	if _, err := s.r.CreateLayer("paint"); err != nil {
		return err
	}
	s.log.Info("assets loaded", "mesh", m.Name, "triangles", m.Triangles(), "layers", len(s.r.Layers()))
	return nil
}

// Tick delivers the scripted events of this tick, applies the actions they
// request, and renders a frame. A fatal renderer error restarts the
// session.
func (s *session) Tick(ctx context.Context) (painter.Outcome, error) {
	s.tick++
	if name, ok := s.changes.Changed(); ok {
		s.log.Info("asset changed", "file", name)
		return painter.ReloadAssets, nil
	}
	var actions controller.Action
	for len(s.script) > 0 && s.script[0].Tick <= s.tick {
		e, err := s.script[0].event()
		if err != nil {
			return painter.Continue, err
		}
		s.script = s.script[1:]
		actions |= s.ctl.Handle(e)
	}
	out, err := s.apply(actions)
	if err != nil || out != painter.Continue {
		return s.outcome(out, err)
	}
	if err := s.ctl.Update(s.r); err != nil {
		return s.outcome(painter.Continue, err)
	}
	if err := s.r.Render(); err != nil {
		return s.outcome(painter.Continue, err)
	}
	if s.cfg.Ticks > 0 && s.tick >= s.cfg.Ticks {
		s.quit()
	}
	return painter.Continue, ctx.Err()
}

func (s *session) apply(a controller.Action) (painter.Outcome, error) {
	if a.Has(controller.ActionQuit) {
		s.quit()
	}
	if a.Has(controller.ActionClearPaint) {
		if err := s.r.ClearPaint(); err != nil {
			return painter.Continue, err
		}
	}
	if a.Has(controller.ActionToggleErase) {
		mode := painter.BlendErase
		if s.r.PaintBlendMode() == painter.BlendErase {
			mode = painter.BlendOver
		}
		if err := s.r.SetPaintBlendMode(mode); err != nil {
			return painter.Continue, err
		}
	}
	if a.Has(controller.ActionNewLayer) {
		if _, err := s.r.CreateLayer(""); err != nil && !errors.Is(err, painter.ErrTooManyLayers) {
			return painter.Continue, err
		}
	}
	if a.Has(controller.ActionSave) {
		if err := s.save(); err != nil {
			return painter.Continue, err
		}
	}
	if a.Has(controller.ActionReload) {
		return painter.ReloadAssets, nil
	}
	return painter.Continue, nil
}

// outcome turns a fatal renderer error into a restart.
func (s *session) outcome(out painter.Outcome, err error) (painter.Outcome, error) {
	if err != nil && painter.IsFatal(err) {
		s.log.Warn("session lost, restarting", "err", err)
		return painter.RestartSession, nil
	}
	return out, err
}

func (s *session) save() error {
	if s.cfg.Output != "" {
		if err := s.r.SaveComposite(s.cfg.Output); err != nil {
			return fmt.Errorf("save composite: %w", err)
		}
		s.log.Info("composite saved", "file", s.cfg.Output)
	}
	if s.cfg.Sheet != "" {
		if err := s.r.ExportLayers(s.cfg.Sheet); err != nil {
			return fmt.Errorf("export layers: %w", err)
		}
		s.log.Info("layer sheet saved", "file", s.cfg.Sheet)
	}
	return nil
}

// Close saves the composite of a healthy session and releases it.
func (s *session) Close() error {
	var err error
	if s.r.Err() == nil {
		err = s.save()
	}
	s.r.Close()
	return err
}
