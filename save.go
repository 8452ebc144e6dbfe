package painter

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/painter/internal/resource"
)

// JPEGQuality is the quality of composites saved as jpg.
const JPEGQuality = 95

// ImageFormat is the encoding of a saved image.
type ImageFormat uint8

// Image formats.
const (
	FormatPNG ImageFormat = iota + 1
	FormatJPG
)

// FormatFromName picks the format from the last three characters of a
// file name. Names shorter than five characters cannot hold a base name
// and an extension.
func FormatFromName(name string) (ImageFormat, error) {
	if len(name) < 5 {
		return 0, fmt.Errorf("%w: %q", ErrNameTooShort, name)
	}
	switch name[len(name)-3:] {
	case "png":
		return FormatPNG, nil
	case "jpg":
		return FormatJPG, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadExtension, name)
}

// Encode writes img in format f. A premultiplied *image.RGBA is stored as
// non-premultiplied png with rounded channels, so ImportLayer restores
// the original bytes.
func Encode(w io.Writer, img image.Image, f ImageFormat) error {
	switch f {
	case FormatPNG:
		if rgba, ok := img.(*image.RGBA); ok {
			return png.Encode(w, unpremultiply(rgba))
		}
		return png.Encode(w, img)
	case FormatJPG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	}
	return fmt.Errorf("%w: format %d", ErrBadExtension, f)
}

// CompositeImage reads back the composite of the visible layers as it was
// produced by the last rendered frame.
func (r *Renderer) CompositeImage() (*image.RGBA, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	return r.readImage("read composite", r.res.composite)
}

// SaveComposite writes the composite texture to name, encoded as png or
// jpg according to the last three characters of the name. Validation
// failures leave no file behind.
func (r *Renderer) SaveComposite(name string) error {
	f, err := FormatFromName(name)
	if err != nil {
		return err
	}
	img, err := r.CompositeImage()
	if err != nil {
		return err
	}
	if err := writeImage(name, img, f); err != nil {
		return err
	}
	slogger().Info("painter: composite saved", "name", name)
	return nil
}

// ReadFrame reads back the target of the last submitted frame.
func (r *Renderer) ReadFrame() (*image.RGBA, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	if r.last == nil {
		return nil, ErrNoFrame
	}
	return r.readImage("read frame", r.last.target)
}

// unpremultiply converts src to non-premultiplied color, rounding each
// channel to nearest.
func unpremultiply(src *image.RGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Rect)
	for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
		s := src.Pix[src.PixOffset(src.Rect.Min.X, y):]
		d := dst.Pix[dst.PixOffset(dst.Rect.Min.X, y):]
		for i := 0; i < src.Rect.Dx()*4; i += 4 {
			a := uint32(s[i+3])
			d[i+3] = s[i+3]
			if a == 0 {
				continue
			}
			for c := range 3 {
				d[i+c] = uint8(min((uint32(s[i+c])*255+a/2)/a, 255))
			}
		}
	}
	return dst
}

// premultiply converts src to premultiplied color, rounding each channel
// to nearest. It inverts unpremultiply exactly.
func premultiply(src *image.NRGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
		s := src.Pix[src.PixOffset(src.Rect.Min.X, y):]
		d := dst.Pix[dst.PixOffset(dst.Rect.Min.X, y):]
		for i := 0; i < src.Rect.Dx()*4; i += 4 {
			a := uint32(s[i+3])
			d[i+3] = s[i+3]
			for c := range 3 {
				d[i+c] = uint8((uint32(s[i+c])*a + 127) / 255)
			}
		}
	}
	return dst
}

func (r *Renderer) readImage(op string, src *resource.Image) (*image.RGBA, error) {
	if err := r.idle(op); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, int(src.Desc.Width), int(src.Desc.Height)))
	if err := r.mem.ReadImage(src, img.Pix); err != nil {
		return nil, r.check(fatal(op, err))
	}
	return img, nil
}

// Contact sheet layout.
const (
	sheetThumb   = 256
	sheetPad     = 8
	sheetCaption = 20
	sheetColumns = 4
	sheetFontPt  = 14
)

// ExportLayers writes a png contact sheet with a thumbnail of every layer,
// bottom to top, each captioned with its name. Hidden layers are captioned
// in gray.
func (r *Renderer) ExportLayers(path string) error {
	if err := r.guard(); err != nil {
		return err
	}
	layers := r.Layers()
	if len(layers) == 0 {
		return ErrNoActiveLayer
	}
	thumbs := make([]image.Image, len(layers))
	for i, l := range layers {
		img, err := r.LayerImage(l.ID)
		if err != nil {
			return err
		}
		thumbs[i] = img
	}
	sheet, err := contactSheet(layers, thumbs)
	if err != nil {
		return err
	}
	if err := writeImage(path, sheet, FormatPNG); err != nil {
		return err
	}
	slogger().Info("painter: layers exported", "path", path, "layers", len(layers))
	return nil
}

func contactSheet(layers []LayerInfo, thumbs []image.Image) (*image.RGBA, error) {
	face, err := captionFace()
	if err != nil {
		return nil, err
	}
	defer face.Close()

	cols := min(len(thumbs), sheetColumns)
	rows := (len(thumbs) + cols - 1) / cols
	cell := image.Pt(sheetThumb+sheetPad, sheetThumb+sheetCaption+sheetPad)
	sheet := image.NewRGBA(image.Rect(0, 0, cols*cell.X+sheetPad, rows*cell.Y+sheetPad))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(color.RGBA{32, 32, 36, 255}), image.Point{}, draw.Src)

	checker := checkerboard(sheetThumb)
	for i, img := range thumbs {
		origin := image.Pt(sheetPad+(i%cols)*cell.X, sheetPad+(i/cols)*cell.Y)
		box := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(sheetThumb, sheetThumb))}
		draw.Draw(sheet, box, checker, image.Point{}, draw.Src)
		scaleOver(sheet, box, img)

		ink := color.RGBA{230, 230, 230, 255}
		if !layers[i].Visible {
			ink = color.RGBA{120, 120, 120, 255}
		}
		d := font.Drawer{
			Dst:  sheet,
			Src:  image.NewUniform(ink),
			Face: face,
			Dot:  fixed.P(box.Min.X, box.Max.Y+sheetCaption-5),
		}
		d.DrawString(caption(d, layers[i], sheetThumb))
	}
	return sheet, nil
}

func captionFace() (font.Face, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("painter: caption font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: sheetFontPt, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("painter: caption font: %w", err)
	}
	return face, nil
}

// caption shortens a layer name until it fits width pixels.
func caption(d font.Drawer, l LayerInfo, width int) string {
	s := l.Name
	if l.Active {
		s = "* " + s
	}
	limit := fixed.I(width)
	if d.MeasureString(s) <= limit {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && d.MeasureString(string(r)+"...") > limit {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

func scaleOver(dst *image.RGBA, box image.Rectangle, src image.Image) {
	xdraw.ApproxBiLinear.Scale(dst, box, src, src.Bounds(), xdraw.Over, nil)
}

func checkerboard(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	const sq = 16
	for y := range size {
		for x := range size {
			c := color.RGBA{200, 200, 200, 255}
			if (x/sq+y/sq)%2 == 1 {
				c = color.RGBA{150, 150, 150, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func writeImage(path string, img image.Image, f ImageFormat) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	w := bufio.NewWriter(out)
	if err := Encode(w, img, f); err != nil {
		return err
	}
	return w.Flush()
}

// baseName returns the file name without directory and extension.
func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
