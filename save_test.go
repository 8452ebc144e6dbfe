package painter

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/font"
)

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name    string
		want    ImageFormat
		wantErr error
	}{
		{"a.png", FormatPNG, nil},
		{"out/composite.jpg", FormatJPG, nil},
		{"filepng", FormatPNG, nil},
		{"a.pn", 0, ErrNameTooShort},
		{"png", 0, ErrNameTooShort},
		{"", 0, ErrNameTooShort},
		{"image.PNG", 0, ErrBadExtension},
		{"image.jpeg", 0, ErrBadExtension},
		{"image.gif", 0, ErrBadExtension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromName(tt.name)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FormatFromName(%q) error = %v, want %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FormatFromName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestSaveCompositeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		layers []*image.RGBA
	}{
		{"opaque stack", []*image.RGBA{fill(red, 0, testPaintSize/4), fill(blue, testPaintSize/2, testPaintSize)}},
		{"translucent layer", []*image.RGBA{fill(color.RGBA{100, 20, 0, 128}, 0, testPaintSize)}},
		{"faint layer", []*image.RGBA{fill(color.RGBA{3, 1, 2, 7}, 0, testPaintSize/2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t)
			var ids []LayerID
			for i, img := range tt.layers {
				ids = append(ids, mustImport(t, r, fmt.Sprintf("layer-%d", i), img))
			}
			want := mustComposite(t, r)

			path := filepath.Join(t.TempDir(), "composite.png")
			if err := r.SaveComposite(path); err != nil {
				t.Fatalf("SaveComposite: %v", err)
			}
			for _, id := range ids {
				if err := r.DeleteLayer(id); err != nil {
					t.Fatal(err)
				}
			}
			id, err := r.LoadLayerImage(path)
			if err != nil {
				t.Fatalf("LoadLayerImage: %v", err)
			}
			got, err := r.LayerImage(id)
			if err != nil {
				t.Fatal(err)
			}
			assertSamePix(t, "reloaded layer", got, want)
			assertSamePix(t, "composite of the reloaded layer", mustComposite(t, r), want)
		})
	}
}

func assertSamePix(t *testing.T, what string, got, want *image.RGBA) {
	t.Helper()
	diff := 0
	for i := range want.Pix {
		if got.Pix[i] != want.Pix[i] {
			if diff == 0 {
				t.Errorf("%s: byte %d = %d, want %d", what, i, got.Pix[i], want.Pix[i])
			}
			diff++
		}
	}
	if diff > 0 {
		t.Errorf("%s: %d of %d bytes differ", what, diff, len(want.Pix))
	}
}

func TestPremultiplyInvertsUnpremultiply(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for a := range 256 {
		for c := 0; c <= a; c++ {
			img.SetRGBA(c, a, color.RGBA{uint8(c), uint8(c / 2), uint8(a - c), uint8(a)})
		}
	}
	got := premultiply(unpremultiply(img))
	for a := range 256 {
		for c := 0; c <= a; c++ {
			if got.RGBAAt(c, a) != img.RGBAAt(c, a) {
				t.Fatalf("round trip of %v = %v", img.RGBAAt(c, a), got.RGBAAt(c, a))
			}
		}
	}
	if n := unpremultiply(img).NRGBAAt(10, 0); n != (color.NRGBA{}) {
		t.Errorf("transparent texel unpremultiplied to %v", n)
	}
	if n := unpremultiply(img).NRGBAAt(64, 128); n.R != 128 || n.A != 128 {
		t.Errorf("unpremultiply(64, a=128) = %v, want R 128", n)
	}
}

func TestSaveCompositeJPEG(t *testing.T) {
	r := newTestRenderer(t)
	mustImport(t, r, "red", fill(red, 0, testPaintSize))
	mustRender(t, r, 1)

	path := filepath.Join(t.TempDir(), "composite.jpg")
	if err := r.SaveComposite(path); err != nil {
		t.Fatalf("SaveComposite: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("saved file is not a jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != testPaintSize || b.Dy() != testPaintSize {
		t.Errorf("jpeg size = %v", b)
	}
	if cr, _, _, _ := img.At(10, 10).RGBA(); cr>>8 < 240 {
		t.Errorf("jpeg red channel = %d, want near 255", cr>>8)
	}
}

func TestSaveCompositeRejectsName(t *testing.T) {
	r := newTestRenderer(t)
	mustRender(t, r, 1)
	dir := t.TempDir()
	for _, name := range []string{"composite.gif", "composite.jpeg"} {
		path := filepath.Join(dir, name)
		if err := r.SaveComposite(path); !errors.Is(err, ErrBadExtension) {
			t.Errorf("SaveComposite(%q) = %v, want ErrBadExtension", name, err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("SaveComposite(%q) left a file behind", name)
		}
	}
	if r.Err() != nil {
		t.Errorf("a rejected name ended the session: %v", r.Err())
	}
}

func TestReadFrameBeforeRender(t *testing.T) {
	r := newTestRenderer(t)
	if _, err := r.ReadFrame(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("ReadFrame before Render = %v, want ErrNoFrame", err)
	}
}

func TestExportLayers(t *testing.T) {
	r := newTestRenderer(t)
	path := filepath.Join(t.TempDir(), "sheet.png")
	if err := r.ExportLayers(path); !errors.Is(err, ErrNoActiveLayer) {
		t.Fatalf("ExportLayers without layers = %v, want ErrNoActiveLayer", err)
	}

	mustImport(t, r, "red", fill(red, 0, testPaintSize))
	hidden := mustLayer(t, r)
	if err := r.SetLayerVisible(hidden, false); err != nil {
		t.Fatal(err)
	}
	if err := r.ExportLayers(path); err != nil {
		t.Fatalf("ExportLayers: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sheet, err := png.Decode(f)
	if err != nil {
		t.Fatalf("sheet is not a png: %v", err)
	}
	wantW := 2*(sheetThumb+sheetPad) + sheetPad
	wantH := sheetThumb + sheetCaption + 2*sheetPad
	if b := sheet.Bounds(); b.Dx() != wantW || b.Dy() != wantH {
		t.Errorf("sheet size = %dx%d, want %dx%d", b.Dx(), b.Dy(), wantW, wantH)
	}
	// The first thumbnail is the red layer scaled up.
	if cr, cg, _, _ := sheet.At(sheetPad+sheetThumb/2, sheetPad+sheetThumb/2).RGBA(); cr>>8 != 255 || cg>>8 != 0 {
		t.Errorf("first thumbnail center = (%d, %d, ...), want red", cr>>8, cg>>8)
	}
}

func TestContactSheetRows(t *testing.T) {
	layers := make([]LayerInfo, sheetColumns+1)
	thumbs := make([]image.Image, len(layers))
	for i := range layers {
		layers[i] = LayerInfo{Name: "l", Visible: true}
		thumbs[i] = fill(blue, 0, testPaintSize)
	}
	sheet, err := contactSheet(layers, thumbs)
	if err != nil {
		t.Fatal(err)
	}
	wantH := 2*(sheetThumb+sheetCaption+sheetPad) + sheetPad
	if b := sheet.Bounds(); b.Dx() != sheetColumns*(sheetThumb+sheetPad)+sheetPad || b.Dy() != wantH {
		t.Errorf("sheet bounds = %v", b)
	}
}

func TestCaption(t *testing.T) {
	face, err := captionFace()
	if err != nil {
		t.Fatal(err)
	}
	defer face.Close()
	d := font.Drawer{Face: face}

	if got := caption(d, LayerInfo{Name: "sky"}, sheetThumb); got != "sky" {
		t.Errorf("caption = %q, want %q", got, "sky")
	}
	if got := caption(d, LayerInfo{Name: "sky", Active: true}, sheetThumb); got != "* sky" {
		t.Errorf("active caption = %q, want %q", got, "* sky")
	}
	long := LayerInfo{Name: strings.Repeat("background ", 20)}
	got := caption(d, long, sheetThumb)
	if !strings.HasSuffix(got, "...") || len(got) >= len(long.Name) {
		t.Errorf("long caption = %q, want a shortened name", got)
	}
	if w := d.MeasureString(got).Ceil(); w > sheetThumb {
		t.Errorf("long caption is %d pixels wide, limit %d", w, sheetThumb)
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"stamp.png":          "stamp",
		"/tmp/dir/brush.jpg": "brush",
		"noext":              "noext",
		"a.b.webp":           "a.b",
	}
	for in, want := range tests {
		if got := baseName(in); got != want {
			t.Errorf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}
