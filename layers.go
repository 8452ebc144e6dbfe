package painter

import (
	"fmt"
	"image"
	"os"

	xdraw "golang.org/x/image/draw"

	// Layer import formats beyond png and jpeg.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/layer"
)

// LayerID identifies a layer for its whole lifetime.
type LayerID = layer.ID

// LayerInfo describes one layer of the stack.
type LayerInfo struct {
	ID      LayerID
	Name    string
	Visible bool
	Active  bool
	// Position is the place in the stack, 0 being the bottom.
	Position int
}

const layerUsage = gpucore.ImageUsageSampled | gpucore.ImageUsageColorAttachment |
	gpucore.ImageUsageCopySrc | gpucore.ImageUsageCopyDst

// Layers returns the stack bottom to top.
func (r *Renderer) Layers() []LayerInfo {
	active, _ := r.layers.Active()
	ls := r.layers.Layers()
	out := make([]LayerInfo, len(ls))
	for i, l := range ls {
		out[i] = LayerInfo{
			ID:       l.ID,
			Name:     l.Name,
			Visible:  l.Visible,
			Active:   active != nil && active.ID == l.ID,
			Position: i,
		}
	}
	return out
}

// CreateLayer adds an empty, visible layer on top of the stack and makes it
// active. It waits for the device to go idle, rebinds the layer array and
// marks every frame stale. An empty name is replaced by "Layer N".
func (r *Renderer) CreateLayer(name string) (LayerID, error) {
	return r.createLayer(name, nil)
}

func (r *Renderer) createLayer(name string, pix []byte) (LayerID, error) {
	if err := r.guard(); err != nil {
		return 0, err
	}
	if r.layers.Full() {
		return 0, fmt.Errorf("%w: limit is %d", ErrTooManyLayers, r.layers.Max())
	}
	if err := r.idle("create layer"); err != nil {
		return 0, err
	}

	ps := r.o.paintSize
	img, err := r.mem.AllocateImage(fmt.Sprintf("layer-%d", r.layers.Len()), ps, ps, gpucore.FormatColor, layerUsage)
	if err != nil {
		return 0, r.check(fatal("create layer", err))
	}
	if pix == nil {
		pix = make([]byte, img.Desc.SizeBytes())
	}
	if err := r.mem.WriteImage(img, pix); err != nil {
		r.mem.FreeImage(img)
		return 0, r.check(fatal("create layer", err))
	}
	l, err := r.layers.Push(name, img)
	if err != nil {
		r.mem.FreeImage(img)
		return 0, err
	}
	if err := r.rebindLayers(); err != nil {
		return 0, err
	}
	slogger().Info("painter: layer created", "id", l.ID, "name", l.Name, "layers", r.layers.Len())
	return l.ID, nil
}

// DeleteLayer removes a layer and frees its image.
func (r *Renderer) DeleteLayer(id LayerID) error {
	if err := r.guard(); err != nil {
		return err
	}
	if _, ok := r.layers.Get(id); !ok {
		return fmt.Errorf("%w: %d", ErrLayerNotFound, id)
	}
	if err := r.idle("delete layer"); err != nil {
		return err
	}
	l, err := r.layers.Remove(id)
	if err != nil {
		return err
	}
	if err := r.rebindLayers(); err != nil {
		return err
	}
	r.mem.FreeImage(l.Image)
	slogger().Info("painter: layer deleted", "id", id, "layers", r.layers.Len())
	return nil
}

// MoveLayer places a layer at position pos, 0 being the bottom.
func (r *Renderer) MoveLayer(id LayerID, pos int) error {
	if err := r.guard(); err != nil {
		return err
	}
	if _, ok := r.layers.Get(id); !ok {
		return fmt.Errorf("%w: %d", ErrLayerNotFound, id)
	}
	if err := r.idle("move layer"); err != nil {
		return err
	}
	if err := r.layers.Move(id, pos); err != nil {
		return err
	}
	return r.rebindLayers()
}

// SetLayerVisible shows or hides a layer in the composite.
func (r *Renderer) SetLayerVisible(id LayerID, visible bool) error {
	if err := r.guard(); err != nil {
		return err
	}
	if err := r.layers.SetVisible(id, visible); err != nil {
		return err
	}
	r.invalidate()
	return nil
}

// SetActiveLayer selects the layer strokes are applied to.
func (r *Renderer) SetActiveLayer(id LayerID) error {
	if err := r.guard(); err != nil {
		return err
	}
	if err := r.layers.SetActive(id); err != nil {
		return err
	}
	r.invalidate()
	return nil
}

// ClearLayer erases the content of a layer.
func (r *Renderer) ClearLayer(id LayerID) error {
	if err := r.guard(); err != nil {
		return err
	}
	l, ok := r.layers.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrLayerNotFound, id)
	}
	if err := r.idle("clear layer"); err != nil {
		return err
	}
	if err := r.mem.WriteImage(l.Image, make([]byte, l.Image.Desc.SizeBytes())); err != nil {
		return r.check(fatal("clear layer", err))
	}
	return nil
}

// LayerImage reads back the content of a layer as premultiplied RGBA.
func (r *Renderer) LayerImage(id LayerID) (*image.RGBA, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	l, ok := r.layers.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrLayerNotFound, id)
	}
	if err := r.idle("read layer"); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, int(r.o.paintSize), int(r.o.paintSize)))
	if err := r.mem.ReadImage(l.Image, img.Pix); err != nil {
		return nil, r.check(fatal("read layer", err))
	}
	return img, nil
}

// ImportLayer creates a layer holding src, scaled to the paint surface
// size with Catmull-Rom filtering when the sizes differ.
func (r *Renderer) ImportLayer(name string, src image.Image) (LayerID, error) {
	if n, ok := src.(*image.NRGBA); ok {
		src = premultiply(n)
	}
	ps := int(r.o.paintSize)
	dst := image.NewRGBA(image.Rect(0, 0, ps, ps))
	if b := src.Bounds(); b.Dx() == ps && b.Dy() == ps {
		xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	}
	return r.createLayer(name, dst.Pix)
}

// LoadLayerImage decodes an image file (png, jpeg, bmp, tiff or webp) into
// a new layer named after the file.
func (r *Renderer) LoadLayerImage(path string) (LayerID, error) {
	if err := r.guard(); err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	src, format, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("painter: decode %s: %w", path, err)
	}
	slogger().Info("painter: layer image loaded", "path", path, "format", format, "size", src.Bounds().Size())
	return r.ImportLayer(baseName(path), src)
}
