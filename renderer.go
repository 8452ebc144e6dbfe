package painter

import (
	"errors"
	"fmt"

	"github.com/gogpu/painter/backend"
	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/accel"
	"github.com/gogpu/painter/internal/layer"
	"github.com/gogpu/painter/internal/resource"
	"github.com/gogpu/painter/mesh"
)

// Renderer owns every device object of a painting session: images,
// parameter blocks, descriptor groups, pipelines, dispatch tables, the
// spatial index and the frame slots.
//
// A Renderer is not safe for concurrent use.
type Renderer struct {
	o          options
	dev        backend.Device
	ownsDevice bool

	mem    *resource.Manager
	index  *accel.Builder
	layers *layer.Stack

	extent gpucore.Extent
	res    resources
	groups groups
	passes [passCount]*pass

	slots            []*frameSlot
	next             int
	framesNeedUpdate int
	frame            uint64
	last             *frameSlot

	mesh       *mesh.Mesh
	meshRes    meshResources
	view       View
	brush      Brush
	paintBlend BlendMode

	lost   error
	closed bool
}

// resources are the session-wide allocations.
type resources struct {
	paint      *resource.Image
	composite  *resource.Image
	emptyLayer *resource.Image
	depth      *resource.Image

	matrices  *resource.Region
	lighting  *resource.Region
	brush     *resource.Region
	pick      *resource.Region
	selection *resource.Region

	emptyVertices *resource.Region
	emptyIndices  *resource.Region
}

type groups struct {
	raster *resource.Group
	trace  *resource.Group
	post   *resource.Group
	sel    *resource.Group
}

type meshResources struct {
	vertices   *resource.Region
	indices    *resource.Region
	indexCount uint32
}

// New creates a Renderer on the default device of the backend registry,
// or on the device given with WithDevice.
func New(opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := &Renderer{
		o:          o,
		extent:     gpucore.Extent{Width: o.width, Height: o.height},
		layers:     layer.NewStack(o.maxLayers),
		brush:      DefaultBrush(),
		view:       DefaultView(o.width, o.height),
		paintBlend: BlendOver,
	}

	switch {
	case o.device != nil:
		r.dev = o.device
	case o.backendName != "":
		d, err := backend.Open(o.backendName)
		if err != nil {
			return nil, err
		}
		r.dev, r.ownsDevice = d, true
	default:
		d, err := backend.Default()
		if err != nil {
			return nil, err
		}
		if d.Name() != backend.BackendWGPU && backend.IsRegistered(backend.BackendWGPU) {
			slogger().Warn("painter: wgpu device unavailable, falling back", "device", d.Name())
		}
		r.dev, r.ownsDevice = d, true
	}
	trackDevice(r.dev)

	if err := r.init(); err != nil {
		r.Close()
		return nil, err
	}
	slogger().Info("painter: renderer created",
		"device", r.dev.Name(),
		"extent", fmt.Sprintf("%dx%d", o.width, o.height),
		"paint_size", o.paintSize,
		"frames", o.frames,
		"max_layers", o.maxLayers)
	return r, nil
}

func (r *Renderer) init() error {
	limits := r.dev.Limits()
	if r.o.paintSize > limits.MaxImageDimension {
		return fatal("init", fmt.Errorf("paint size %d exceeds device limit %d", r.o.paintSize, limits.MaxImageDimension))
	}
	r.mem = resource.NewManager(r.dev, r.o.budgets)
	r.index = accel.NewBuilder(r.dev)

	if err := r.allocate(); err != nil {
		return err
	}
	if err := r.createGroups(); err != nil {
		return err
	}
	if err := r.allocateTargets(); err != nil {
		return err
	}
	r.initPasses()
	if err := r.rebuildPasses(func(*pass) bool { return true }); err != nil {
		return err
	}
	if err := r.writeBlocks(); err != nil {
		return err
	}
	r.invalidate()
	return nil
}

// allocate creates the session-wide images and parameter blocks.
func (r *Renderer) allocate() error {
	ps := r.o.paintSize
	var err error
	img := func(label string, w, h uint32, usage gpucore.ImageUsage) *resource.Image {
		if err != nil {
			return nil
		}
		var im *resource.Image
		im, err = r.mem.AllocateImage(label, w, h, gpucore.FormatColor, usage)
		return im
	}
	buf := func(label string, size uint64, usage gpucore.BufferUsage, loc gpucore.Locality) *resource.Region {
		if err != nil {
			return nil
		}
		var reg *resource.Region
		reg, err = r.mem.Allocate(label, size, usage, loc)
		return reg
	}

	r.res.paint = img("paint-surface", ps, ps, gpucore.ImageUsageSampled|gpucore.ImageUsageStorage|gpucore.ImageUsageCopyDst)
	r.res.composite = img("composite", ps, ps, gpucore.ImageUsageSampled|gpucore.ImageUsageColorAttachment|gpucore.ImageUsageCopySrc)
	r.res.emptyLayer = img("empty-layer", 1, 1, gpucore.ImageUsageSampled)

	host := gpucore.LocalityHost
	r.res.matrices = buf("matrices", gpucore.MatricesSize, gpucore.BufferUsageUniform, host)
	r.res.lighting = buf("lighting", gpucore.LightingSize, gpucore.BufferUsageUniform, host)
	r.res.brush = buf("brush", gpucore.BrushSize, gpucore.BufferUsageUniform, host)
	r.res.pick = buf("pick", gpucore.PickSize, gpucore.BufferUsageUniform, host)
	r.res.selection = buf("selection", gpucore.SelectionSize, gpucore.BufferUsageStorage|gpucore.BufferUsageCopySrc, host)
	r.res.emptyVertices = buf("empty-vertices", gpucore.VertexSize, gpucore.BufferUsageStorage, gpucore.LocalityDevice)
	r.res.emptyIndices = buf("empty-indices", 12, gpucore.BufferUsageStorage, gpucore.LocalityDevice)
	if err != nil {
		return fatal("allocate", err)
	}
	return nil
}

// createGroups creates the four descriptor groups and binds everything
// that lives as long as the session.
func (r *Renderer) createGroups() error {
	var err error
	if r.groups.raster, err = r.mem.CreateGroup("raster", rasterLayout(r.o.maxLayers)); err != nil {
		return err
	}
	if r.groups.trace, err = r.mem.CreateGroup("raytrace", traceLayout()); err != nil {
		return err
	}
	if r.groups.post, err = r.mem.CreateGroup("post", postLayout()); err != nil {
		return err
	}
	if r.groups.sel, err = r.mem.CreateGroup("select", selectLayout()); err != nil {
		return err
	}

	raster := []gpucore.Binding{
		r.res.matrices.Bind(gpucore.RasterMatrices),
		r.res.emptyVertices.Bind(gpucore.RasterVertices),
		r.res.emptyIndices.Bind(gpucore.RasterIndices),
		r.res.paint.Bind(gpucore.RasterPaint, 0),
		r.res.lighting.Bind(gpucore.RasterLighting),
		r.res.composite.Bind(gpucore.RasterComposite, 0),
	}
	raster = append(raster, r.layerBindings()...)
	if err := r.mem.Bind(r.groups.raster, raster); err != nil {
		return err
	}
	if err := r.mem.Bind(r.groups.trace, []gpucore.Binding{r.res.paint.Bind(gpucore.TracePaint, 0)}); err != nil {
		return err
	}
	if err := r.mem.Bind(r.groups.post, []gpucore.Binding{r.res.brush.Bind(gpucore.PostBrush)}); err != nil {
		return err
	}
	return r.mem.Bind(r.groups.sel, []gpucore.Binding{
		r.res.selection.Bind(gpucore.SelectResult),
		r.res.pick.Bind(gpucore.SelectParams),
	})
}

// writeBlocks uploads the lighting, camera and brush blocks.
func (r *Renderer) writeBlocks() error {
	l := DefaultLighting()
	if err := r.res.lighting.Write(0, l.Encode()); err != nil {
		return fatal("write lighting", err)
	}
	m := r.view.matrices()
	if err := r.res.matrices.Write(0, m.Encode()); err != nil {
		return fatal("write matrices", err)
	}
	if err := r.res.brush.Write(0, r.brush.Encode()); err != nil {
		return fatal("write brush", err)
	}
	return nil
}

// guard returns the error every call fails with after Close or a fatal
// error.
func (r *Renderer) guard() error {
	switch {
	case r.closed:
		return ErrClosed
	case r.lost != nil:
		return fmt.Errorf("%w: %w", ErrSessionLost, r.lost)
	}
	return nil
}

// check records a fatal error so the session refuses further work.
func (r *Renderer) check(err error) error {
	if err != nil && IsFatal(err) && r.lost == nil {
		r.lost = err
		slogger().Error("painter: session lost", "err", err)
	}
	return err
}

// Err returns the fatal error that ended the session, or nil.
func (r *Renderer) Err() error { return r.lost }

// Device returns the device the renderer runs on.
func (r *Renderer) Device() backend.Device { return r.dev }

// Extent returns the size of the presented frame.
func (r *Renderer) Extent() gpucore.Extent { return r.extent }

// PaintSize returns the side of the paint surface in texels.
func (r *Renderer) PaintSize() uint32 { return r.o.paintSize }

// Close waits for the device to go idle and releases every object. Close
// is safe to call more than once.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.dev == nil {
		return
	}
	if err := r.dev.WaitIdle(); err != nil && !errors.Is(err, backend.ErrClosed) {
		slogger().Warn("painter: wait idle on close", "err", err)
	}
	for _, p := range r.passes {
		r.destroyPass(p)
	}
	if r.index != nil {
		_ = r.index.Destroy()
	}
	if r.mem != nil {
		r.mem.Close()
	}
	untrackDevice(r.dev)
	if r.ownsDevice {
		r.dev.Close()
	}
	slogger().Info("painter: renderer closed", "frames", r.frame)
}
