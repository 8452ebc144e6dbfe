// Package resource owns device allocations and descriptor groups.
//
// The Manager tracks every buffer and image it creates against a per
// locality budget, and every descriptor group against its fixed shape.
// Group updates are validated in full before a single device update call,
// so a failed Bind leaves the group untouched.
package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/painter/gpucore"
)

// Resource errors.
var (
	// ErrOutOfDeviceMemory is returned when an allocation would exceed the
	// budget of its locality or the device cannot back it.
	ErrOutOfDeviceMemory = errors.New("resource: out of device memory")

	// ErrShapeMismatch is returned when bindings do not match a group shape.
	// It is always wrapped in a *FatalError.
	ErrShapeMismatch = errors.New("resource: binding does not match group shape")

	// ErrManagerClosed is returned when operating on a closed manager.
	ErrManagerClosed = errors.New("resource: manager closed")

	// ErrNotHostVisible is returned for host access to device-local memory.
	ErrNotHostVisible = errors.New("resource: region is not host visible")

	// ErrOutOfRange is returned for host access beyond a region.
	ErrOutOfRange = errors.New("resource: access out of range")
)

// Default budgets.
const (
	// DefaultDeviceBudget is the default device-local budget (4 GiB).
	DefaultDeviceBudget uint64 = 4 << 30

	// DefaultHostBudget is the default host-visible budget (256 MiB).
	DefaultHostBudget uint64 = 256 << 20
)

// FatalError marks an error after which the session cannot continue.
type FatalError struct {
	// Op names the failing operation.
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err in a *FatalError unless it already is one.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err is or wraps a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Device is the subset of the device the manager needs.
type Device interface {
	CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error)
	WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error
	ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error
	DestroyBuffer(id gpucore.BufferID)

	CreateImage(desc *gpucore.ImageDesc) (gpucore.ImageID, error)
	WriteImage(id gpucore.ImageID, data []byte) error
	ReadImage(id gpucore.ImageID, dst []byte) error
	DestroyImage(id gpucore.ImageID)

	CreateGroupLayout(desc *gpucore.GroupLayoutDesc) (gpucore.GroupLayoutID, error)
	DestroyGroupLayout(id gpucore.GroupLayoutID)
	CreateGroup(layout gpucore.GroupLayoutID) (gpucore.GroupID, error)
	UpdateGroup(id gpucore.GroupID, bindings []gpucore.Binding) error
	DestroyGroup(id gpucore.GroupID)
}

// Config holds the budgets of a Manager. Zero values select the defaults.
type Config struct {
	DeviceBudget uint64
	HostBudget   uint64
}

// Stats contains usage statistics of one locality.
type Stats struct {
	Locality    gpucore.Locality
	BudgetBytes uint64
	UsedBytes   uint64
	Allocations int
}

// String returns a human-readable string of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("%s[%d/%d MB, %d allocations]",
		s.Locality, s.UsedBytes/(1024*1024), s.BudgetBytes/(1024*1024), s.Allocations)
}

// Manager tracks device allocations and descriptor groups.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu  sync.Mutex
	dev Device

	budget [2]uint64
	used   [2]uint64

	regions map[gpucore.BufferID]*Region
	images  map[gpucore.ImageID]*Image
	groups  map[gpucore.GroupID]*Group

	closed bool
}

// NewManager creates a manager allocating from dev.
func NewManager(dev Device, cfg Config) *Manager {
	if cfg.DeviceBudget == 0 {
		cfg.DeviceBudget = DefaultDeviceBudget
	}
	if cfg.HostBudget == 0 {
		cfg.HostBudget = DefaultHostBudget
	}
	m := &Manager{
		dev:     dev,
		regions: make(map[gpucore.BufferID]*Region),
		images:  make(map[gpucore.ImageID]*Image),
		groups:  make(map[gpucore.GroupID]*Group),
	}
	m.budget[gpucore.LocalityDevice] = cfg.DeviceBudget
	m.budget[gpucore.LocalityHost] = cfg.HostBudget
	return m
}

// Region is a buffer allocation.
type Region struct {
	ID       gpucore.BufferID
	Label    string
	Size     uint64
	Offset   uint64
	Usage    gpucore.BufferUsage
	Locality gpucore.Locality

	m *Manager
}

// Write copies data into a host-visible region.
func (r *Region) Write(offset uint64, data []byte) error {
	if err := r.hostAccess(offset, uint64(len(data))); err != nil {
		return err
	}
	return r.m.dev.WriteBuffer(r.ID, r.Offset+offset, data)
}

// Read copies region contents into dst.
func (r *Region) Read(offset uint64, dst []byte) error {
	if err := r.hostAccess(offset, uint64(len(dst))); err != nil {
		return err
	}
	return r.m.dev.ReadBuffer(r.ID, r.Offset+offset, dst)
}

// Upload copies data into any region through the device queue. Unlike
// Write it also reaches device-local memory.
func (r *Region) Upload(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > r.Size {
		return fmt.Errorf("%w: %s [%d, %d) of %d", ErrOutOfRange, r.Label, offset, offset+uint64(len(data)), r.Size)
	}
	return r.m.dev.WriteBuffer(r.ID, r.Offset+offset, data)
}

func (r *Region) hostAccess(offset, n uint64) error {
	if r.Locality != gpucore.LocalityHost {
		return fmt.Errorf("%w: %s", ErrNotHostVisible, r.Label)
	}
	if offset+n > r.Size {
		return fmt.Errorf("%w: %s [%d, %d) of %d", ErrOutOfRange, r.Label, offset, offset+n, r.Size)
	}
	return nil
}

// Bind returns a binding of the whole region.
func (r *Region) Bind(binding uint32) gpucore.Binding {
	return gpucore.Binding{Binding: binding, Buffer: r.ID, Offset: r.Offset, Size: r.Size}
}

// Image is an image allocation. Images are always device local.
type Image struct {
	ID   gpucore.ImageID
	Desc gpucore.ImageDesc
}

// Bind returns a binding of the image to one array element.
func (img *Image) Bind(binding, element uint32) gpucore.Binding {
	return gpucore.Binding{Binding: binding, Element: element, Image: img.ID}
}

// Allocate creates a buffer region. It fails with ErrOutOfDeviceMemory when
// the budget of the locality would be exceeded.
func (m *Manager) Allocate(label string, size uint64, usage gpucore.BufferUsage, loc gpucore.Locality) (*Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if err := m.reserveLocked(loc, size, label); err != nil {
		return nil, err
	}
	id, err := m.dev.CreateBuffer(&gpucore.BufferDesc{Label: label, Size: size, Usage: usage, Locality: loc})
	if err != nil {
		m.used[loc] -= size
		return nil, fmt.Errorf("%w: %s: %w", ErrOutOfDeviceMemory, label, err)
	}
	r := &Region{ID: id, Label: label, Size: size, Usage: usage, Locality: loc, m: m}
	m.regions[id] = r
	return r, nil
}

// AllocateImage creates a device-local image under the device budget.
func (m *Manager) AllocateImage(label string, w, h uint32, format gputypes.TextureFormat, usage gpucore.ImageUsage) (*Image, error) {
	desc := gpucore.ImageDesc{Label: label, Width: w, Height: h, Format: format, Usage: usage}
	size := desc.SizeBytes()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if err := m.reserveLocked(gpucore.LocalityDevice, size, label); err != nil {
		return nil, err
	}
	id, err := m.dev.CreateImage(&desc)
	if err != nil {
		m.used[gpucore.LocalityDevice] -= size
		return nil, fmt.Errorf("%w: %s: %w", ErrOutOfDeviceMemory, label, err)
	}
	img := &Image{ID: id, Desc: desc}
	m.images[id] = img
	return img, nil
}

func (m *Manager) reserveLocked(loc gpucore.Locality, size uint64, label string) error {
	if m.used[loc]+size > m.budget[loc] {
		return fmt.Errorf("%w: %s needs %d bytes, %s pool has %d of %d available",
			ErrOutOfDeviceMemory, label, size, loc, m.budget[loc]-m.used[loc], m.budget[loc])
	}
	m.used[loc] += size
	return nil
}

// Free releases a region and returns its budget. Nil and unknown regions
// are ignored.
func (m *Manager) Free(r *Region) {
	if r == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regions[r.ID]; !ok {
		return
	}
	delete(m.regions, r.ID)
	m.used[r.Locality] -= r.Size
	m.dev.DestroyBuffer(r.ID)
}

// FreeImage releases an image and returns its budget.
func (m *Manager) FreeImage(img *Image) {
	if img == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[img.ID]; !ok {
		return
	}
	delete(m.images, img.ID)
	m.used[gpucore.LocalityDevice] -= img.Desc.SizeBytes()
	m.dev.DestroyImage(img.ID)
}

// WriteImage uploads whole-image texel data.
func (m *Manager) WriteImage(img *Image, data []byte) error {
	if uint64(len(data)) != img.Desc.SizeBytes() {
		return fmt.Errorf("%w: %s got %d bytes, want %d", ErrOutOfRange, img.Desc.Label, len(data), img.Desc.SizeBytes())
	}
	return m.dev.WriteImage(img.ID, data)
}

// ReadImage reads back whole-image texel data.
func (m *Manager) ReadImage(img *Image, dst []byte) error {
	if uint64(len(dst)) != img.Desc.SizeBytes() {
		return fmt.Errorf("%w: %s got %d bytes, want %d", ErrOutOfRange, img.Desc.Label, len(dst), img.Desc.SizeBytes())
	}
	return m.dev.ReadImage(img.ID, dst)
}

// Stats returns usage statistics of a locality.
func (m *Manager) Stats(loc gpucore.Locality) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.regions {
		if r.Locality == loc {
			n++
		}
	}
	if loc == gpucore.LocalityDevice {
		n += len(m.images)
	}
	return Stats{Locality: loc, BudgetBytes: m.budget[loc], UsedBytes: m.used[loc], Allocations: n}
}

// Close releases every group, image and region. The manager should not be
// used after Close is called.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	for id, g := range m.groups {
		m.dev.DestroyGroup(id)
		m.dev.DestroyGroupLayout(g.layoutID)
	}
	for id := range m.images {
		m.dev.DestroyImage(id)
	}
	for id := range m.regions {
		m.dev.DestroyBuffer(id)
	}
	m.groups, m.images, m.regions = nil, nil, nil
	m.used = [2]uint64{}
	m.closed = true
}
