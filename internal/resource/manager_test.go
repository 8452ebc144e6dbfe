package resource

import (
	"errors"
	"testing"

	"github.com/gogpu/painter/gpucore"
)

// countingDevice is an in-memory device counting update calls.
type countingDevice struct {
	next    uint64
	buffers map[gpucore.BufferID][]byte
	images  map[gpucore.ImageID][]byte
	groups  map[gpucore.GroupID][]gpucore.Binding
	layouts map[gpucore.GroupLayoutID]bool
	updates int
	failOn  string
}

func newCountingDevice() *countingDevice {
	return &countingDevice{
		buffers: make(map[gpucore.BufferID][]byte),
		images:  make(map[gpucore.ImageID][]byte),
		groups:  make(map[gpucore.GroupID][]gpucore.Binding),
		layouts: make(map[gpucore.GroupLayoutID]bool),
	}
}

var errInjected = errors.New("injected device failure")

func (d *countingDevice) id() uint64 { d.next++; return d.next }

func (d *countingDevice) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if d.failOn == "buffer" {
		return 0, errInjected
	}
	id := gpucore.BufferID(d.id())
	d.buffers[id] = make([]byte, desc.Size)
	return id, nil
}

func (d *countingDevice) WriteBuffer(id gpucore.BufferID, off uint64, data []byte) error {
	copy(d.buffers[id][off:], data)
	return nil
}

func (d *countingDevice) ReadBuffer(id gpucore.BufferID, off uint64, dst []byte) error {
	copy(dst, d.buffers[id][off:])
	return nil
}

func (d *countingDevice) DestroyBuffer(id gpucore.BufferID) { delete(d.buffers, id) }

func (d *countingDevice) CreateImage(desc *gpucore.ImageDesc) (gpucore.ImageID, error) {
	id := gpucore.ImageID(d.id())
	d.images[id] = make([]byte, desc.SizeBytes())
	return id, nil
}

func (d *countingDevice) WriteImage(id gpucore.ImageID, data []byte) error {
	copy(d.images[id], data)
	return nil
}

func (d *countingDevice) ReadImage(id gpucore.ImageID, dst []byte) error {
	copy(dst, d.images[id])
	return nil
}

func (d *countingDevice) DestroyImage(id gpucore.ImageID) { delete(d.images, id) }

func (d *countingDevice) CreateGroupLayout(*gpucore.GroupLayoutDesc) (gpucore.GroupLayoutID, error) {
	id := gpucore.GroupLayoutID(d.id())
	d.layouts[id] = true
	return id, nil
}

func (d *countingDevice) DestroyGroupLayout(id gpucore.GroupLayoutID) { delete(d.layouts, id) }

func (d *countingDevice) CreateGroup(gpucore.GroupLayoutID) (gpucore.GroupID, error) {
	id := gpucore.GroupID(d.id())
	d.groups[id] = nil
	return id, nil
}

func (d *countingDevice) UpdateGroup(id gpucore.GroupID, b []gpucore.Binding) error {
	d.updates++
	if d.failOn == "update" {
		return errInjected
	}
	d.groups[id] = append(d.groups[id], b...)
	return nil
}

func (d *countingDevice) DestroyGroup(id gpucore.GroupID) { delete(d.groups, id) }

func TestAllocateBudgets(t *testing.T) {
	dev := newCountingDevice()
	m := NewManager(dev, Config{DeviceBudget: 1024, HostBudget: 256})
	defer m.Close()

	dr, err := m.Allocate("device", 1000, gpucore.BufferUsageStorage, gpucore.LocalityDevice)
	if err != nil {
		t.Fatalf("Allocate(device) error = %v", err)
	}
	// The host pool is independent of the device pool.
	if _, err := m.Allocate("host", 256, gpucore.BufferUsageUniform, gpucore.LocalityHost); err != nil {
		t.Fatalf("Allocate(host) error = %v", err)
	}
	if _, err := m.Allocate("host2", 1, gpucore.BufferUsageUniform, gpucore.LocalityHost); !errors.Is(err, ErrOutOfDeviceMemory) {
		t.Errorf("Allocate over host budget error = %v, want ErrOutOfDeviceMemory", err)
	}
	if _, err := m.AllocateImage("img", 4, 4, gpucore.FormatColor, gpucore.ImageUsageSampled); !errors.Is(err, ErrOutOfDeviceMemory) {
		t.Errorf("AllocateImage over device budget error = %v, want ErrOutOfDeviceMemory", err)
	}

	m.Free(dr)
	img, err := m.AllocateImage("img", 4, 4, gpucore.FormatColor, gpucore.ImageUsageSampled)
	if err != nil {
		t.Fatalf("AllocateImage after Free error = %v", err)
	}
	if s := m.Stats(gpucore.LocalityDevice); s.UsedBytes != 64 || s.Allocations != 1 {
		t.Errorf("device stats = %+v, want 64 bytes in 1 allocation", s)
	}
	m.FreeImage(img)
	m.FreeImage(img)
	if s := m.Stats(gpucore.LocalityDevice); s.UsedBytes != 0 {
		t.Errorf("device used = %d after FreeImage, want 0", s.UsedBytes)
	}
}

func TestAllocateDeviceFailureReturnsBudget(t *testing.T) {
	dev := newCountingDevice()
	dev.failOn = "buffer"
	m := NewManager(dev, Config{})
	if _, err := m.Allocate("x", 100, gpucore.BufferUsageStorage, gpucore.LocalityDevice); !errors.Is(err, ErrOutOfDeviceMemory) || !errors.Is(err, errInjected) {
		t.Errorf("Allocate() error = %v, want ErrOutOfDeviceMemory wrapping the device error", err)
	}
	if s := m.Stats(gpucore.LocalityDevice); s.UsedBytes != 0 {
		t.Errorf("used = %d after failed allocation", s.UsedBytes)
	}
}

func TestRegionHostAccess(t *testing.T) {
	m := NewManager(newCountingDevice(), Config{})
	host, _ := m.Allocate("host", 16, gpucore.BufferUsageStorage, gpucore.LocalityHost)
	dev, _ := m.Allocate("dev", 16, gpucore.BufferUsageStorage, gpucore.LocalityDevice)

	if err := host.Write(4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := make([]byte, 4)
	if err := host.Read(4, got); err != nil || got[3] != 4 {
		t.Errorf("Read() = %v, %v", got, err)
	}
	if err := host.Write(14, []byte{1, 2, 3}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Write past end error = %v, want ErrOutOfRange", err)
	}
	if err := dev.Write(0, []byte{1}); !errors.Is(err, ErrNotHostVisible) {
		t.Errorf("Write device-local error = %v, want ErrNotHostVisible", err)
	}
}

func rasterLikeLayout() gpucore.GroupLayoutDesc {
	return gpucore.GroupLayoutDesc{Entries: []gpucore.LayoutEntry{
		{Binding: 0, Kind: gpucore.BindingUniform, Stages: gpucore.StageGraphics},
		{Binding: 1, Kind: gpucore.BindingStorage, Stages: gpucore.StageVertex},
		{Binding: 2, Kind: gpucore.BindingSampledImage, Stages: gpucore.StageFragment, Count: 4, PartiallyBound: true},
	}}
}

func TestBindIsAtomic(t *testing.T) {
	dev := newCountingDevice()
	m := NewManager(dev, Config{})
	g, err := m.CreateGroup("raster", rasterLikeLayout())
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	ubo, _ := m.Allocate("ubo", 64, gpucore.BufferUsageUniform, gpucore.LocalityHost)
	ssbo, _ := m.Allocate("ssbo", 64, gpucore.BufferUsageStorage, gpucore.LocalityDevice)
	img, _ := m.AllocateImage("layer", 2, 2, gpucore.FormatColor, gpucore.ImageUsageSampled)

	good := []gpucore.Binding{ubo.Bind(0), ssbo.Bind(1), img.Bind(2, 3)}
	if err := m.Bind(g, good); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if dev.updates != 1 {
		t.Errorf("device updates = %d, want 1", dev.updates)
	}
	if !g.IsBound(2, 3) || g.IsBound(2, 0) {
		t.Error("IsBound does not reflect the written array element")
	}

	tests := []struct {
		name     string
		bindings []gpucore.Binding
	}{
		{"unknown binding", []gpucore.Binding{ubo.Bind(0), ubo.Bind(9)}},
		{"element out of range", []gpucore.Binding{img.Bind(2, 4)}},
		{"wrong kind", []gpucore.Binding{ssbo.Bind(0)}},
		{"image in buffer slot", []gpucore.Binding{ubo.Bind(0), img.Bind(1, 0)}},
		{"duplicate element", []gpucore.Binding{img.Bind(2, 1), img.Bind(2, 1)}},
		{"range past end", []gpucore.Binding{{Binding: 0, Buffer: ubo.ID, Offset: 32, Size: 64}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := dev.updates
			err := m.Bind(g, tt.bindings)
			if !errors.Is(err, ErrShapeMismatch) {
				t.Fatalf("Bind() error = %v, want ErrShapeMismatch", err)
			}
			if !IsFatal(err) {
				t.Errorf("Bind() error %v is not fatal", err)
			}
			if dev.updates != before {
				t.Error("device was updated despite a shape mismatch")
			}
		})
	}
}

func TestBindDeviceFailureIsFatal(t *testing.T) {
	dev := newCountingDevice()
	m := NewManager(dev, Config{})
	g, _ := m.CreateGroup("g", rasterLikeLayout())
	ubo, _ := m.Allocate("ubo", 64, gpucore.BufferUsageUniform, gpucore.LocalityHost)
	dev.failOn = "update"
	err := m.Bind(g, []gpucore.Binding{ubo.Bind(0)})
	if !IsFatal(err) || !errors.Is(err, errInjected) {
		t.Errorf("Bind() error = %v, want fatal wrapping the device error", err)
	}
	if g.IsBound(0, 0) {
		t.Error("failed update marked the binding as bound")
	}
}

func TestCreateGroupRejectsBadLayout(t *testing.T) {
	m := NewManager(newCountingDevice(), Config{})
	tests := []struct {
		name   string
		layout gpucore.GroupLayoutDesc
	}{
		{"duplicate", gpucore.GroupLayoutDesc{Entries: []gpucore.LayoutEntry{
			{Binding: 0, Kind: gpucore.BindingUniform}, {Binding: 0, Kind: gpucore.BindingStorage},
		}}},
		{"no kind", gpucore.GroupLayoutDesc{Entries: []gpucore.LayoutEntry{{Binding: 0}}}},
		{"buffer array", gpucore.GroupLayoutDesc{Entries: []gpucore.LayoutEntry{{Binding: 0, Kind: gpucore.BindingStorage, Count: 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.CreateGroup(tt.name, tt.layout); !errors.Is(err, ErrShapeMismatch) || !IsFatal(err) {
				t.Errorf("CreateGroup() error = %v, want fatal ErrShapeMismatch", err)
			}
		})
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	dev := newCountingDevice()
	m := NewManager(dev, Config{})
	_, _ = m.CreateGroup("g", rasterLikeLayout())
	_, _ = m.Allocate("b", 8, gpucore.BufferUsageStorage, gpucore.LocalityHost)
	_, _ = m.AllocateImage("i", 1, 1, gpucore.FormatColor, gpucore.ImageUsageSampled)
	m.Close()
	if len(dev.buffers)+len(dev.images)+len(dev.groups)+len(dev.layouts) != 0 {
		t.Errorf("Close() left resources: %d buffers, %d images, %d groups, %d layouts",
			len(dev.buffers), len(dev.images), len(dev.groups), len(dev.layouts))
	}
	if _, err := m.Allocate("b", 8, gpucore.BufferUsageStorage, gpucore.LocalityHost); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Allocate after Close error = %v, want ErrManagerClosed", err)
	}
	m.Close()
}

func TestFatalHelpers(t *testing.T) {
	if Fatal("x", nil) != nil {
		t.Error("Fatal(nil) != nil")
	}
	inner := Fatal("inner", errInjected)
	outer := Fatal("outer", inner)
	var fe *FatalError
	if !errors.As(outer, &fe) || fe.Op != "inner" {
		t.Errorf("Fatal re-wrapped an existing FatalError: %v", outer)
	}
	if IsFatal(errInjected) {
		t.Error("IsFatal(plain error) = true")
	}
}
