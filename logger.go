package painter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/painter/backend"
	"github.com/gogpu/painter/internal/accel"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// devices holds the devices of open renderers so that SetLogger reaches
// them.
var (
	devicesMu sync.Mutex
	devices   = map[backend.Device]int{}
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for painter and all its sub-packages.
// By default, painter produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by painter:
//   - [slog.LevelDebug]: per-frame diagnostics (recordings, submissions)
//   - [slog.LevelInfo]: lifecycle events (device, resize, mesh, layers)
//   - [slog.LevelWarn]: non-fatal issues (backend fallback)
//   - [slog.LevelError]: fatal errors, logged once before they are returned
//
// Example:
//
//	painter.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	accel.SetLogger(l)

	devicesMu.Lock()
	defer devicesMu.Unlock()
	for d := range devices {
		propagateLogger(d, l)
	}
}

// Logger returns the current logger used by painter.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a device if it implements the
// loggerSetter interface.
func propagateLogger(d backend.Device, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

func trackDevice(d backend.Device) {
	devicesMu.Lock()
	defer devicesMu.Unlock()
	devices[d]++
	propagateLogger(d, loggerPtr.Load())
}

func untrackDevice(d backend.Device) {
	devicesMu.Lock()
	defer devicesMu.Unlock()
	if devices[d]--; devices[d] <= 0 {
		delete(devices, d)
	}
}
