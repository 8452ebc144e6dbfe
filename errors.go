package painter

import (
	"errors"
	"fmt"

	"github.com/gogpu/painter/internal/layer"
	"github.com/gogpu/painter/internal/resource"
)

// Renderer errors.
var (
	// ErrSessionLost is returned by every call after a fatal error.
	ErrSessionLost = errors.New("painter: session lost")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("painter: renderer closed")

	// ErrTooManyLayers is returned by CreateLayer when MaxLayers layers exist.
	ErrTooManyLayers = layer.ErrTooManyLayers

	// ErrLayerNotFound is returned for unknown layer ids.
	ErrLayerNotFound = layer.ErrNotFound

	// ErrNoActiveLayer is returned by operations that need a layer when the
	// stack is empty.
	ErrNoActiveLayer = errors.New("painter: no active layer")

	// ErrNameTooShort is returned by SaveComposite for names shorter than
	// five characters.
	ErrNameTooShort = errors.New("painter: file name too short to carry an extension")

	// ErrBadExtension is returned by SaveComposite for extensions other than
	// png and jpg.
	ErrBadExtension = errors.New("painter: unrecognized file extension")

	// ErrNoFrame is returned by ReadFrame before the first Render.
	ErrNoFrame = errors.New("painter: no frame rendered")

	// ErrBadBlendMode is returned by SetPaintBlendMode for modes other
	// than BlendOver and BlendErase.
	ErrBadBlendMode = errors.New("painter: unsupported paint blend mode")
)

// FatalError marks an error after which the session cannot continue.
// Op names the failing operation.
type FatalError = resource.FatalError

// IsFatal reports whether err is or wraps a *FatalError.
func IsFatal(err error) bool {
	return resource.IsFatal(err)
}

func fatal(op string, err error) error {
	return resource.Fatal(op, err)
}

// ErrExtentTooLarge is returned by Resize for sizes beyond the device
// image limit. The renderer keeps its current size.
var ErrExtentTooLarge = errors.New("painter: extent exceeds device limit")

func errExtent(w, h, limit uint32) error {
	return fmt.Errorf("%w: %dx%d, limit %d", ErrExtentTooLarge, w, h, limit)
}
