package painter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome tells the Driver what to do after a tick.
type Outcome uint8

const (
	// Continue keeps ticking the current session.
	Continue Outcome = iota
	// ReloadAssets asks the session to reload its assets and keep running.
	ReloadAssets
	// RestartSession closes the session and creates a new one.
	RestartSession
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case ReloadAssets:
		return "reload-assets"
	case RestartSession:
		return "restart-session"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}

// Session is one run of the application between restarts.
type Session interface {
	// Tick renders one frame and reports what the driver does next.
	Tick(ctx context.Context) (Outcome, error)
	Reload() error
	Close() error
}

// DefaultInterval is the 60 Hz tick period.
const DefaultInterval = time.Second / 60

// Driver runs sessions in a loop: ticks at Interval, reloads assets and
// restarts sessions as their outcomes request.
type Driver struct {
	// Interval between ticks. Zero selects DefaultInterval.
	Interval time.Duration
	// NewSession creates a session. It is called once at start and once
	// per restart.
	NewSession func(ctx context.Context) (Session, error)
	// MaxRestarts bounds restarts; zero means unlimited.
	MaxRestarts int
}

// ErrTooManyRestarts is returned by Run when MaxRestarts is exceeded.
var ErrTooManyRestarts = errors.New("painter: too many session restarts")

// Run drives sessions until ctx is done or a tick fails. It returns nil
// when ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	restarts := 0
	for {
		s, err := d.NewSession(ctx)
		if err != nil {
			return fmt.Errorf("painter: new session: %w", err)
		}
		out, err := d.runSession(ctx, s, ticker)
		if cerr := s.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("painter: close session: %w", cerr)
		}
		if err != nil || out != RestartSession {
			return err
		}
		restarts++
		if d.MaxRestarts > 0 && restarts > d.MaxRestarts {
			return fmt.Errorf("%w: %d", ErrTooManyRestarts, d.MaxRestarts)
		}
		slogger().Info("painter: session restarting", "restarts", restarts)
	}
}

// runSession ticks s until it asks for a restart, fails or ctx is done.
// It returns Continue when ctx ended the session.
func (d *Driver) runSession(ctx context.Context, s Session, ticker *time.Ticker) (Outcome, error) {
	for {
		select {
		case <-ctx.Done():
			return Continue, nil
		case <-ticker.C:
		}
		out, err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return Continue, nil
			}
			return out, err
		}
		switch out {
		case ReloadAssets:
			slogger().Info("painter: reloading assets")
			if err := s.Reload(); err != nil {
				return out, fmt.Errorf("painter: reload: %w", err)
			}
		case RestartSession:
			return out, nil
		}
	}
}
