package resource

import (
	"errors"
	"fmt"

	"github.com/gogpu/painter/gpucore"
)

// Group is a named descriptor group with a fixed shape. Only the identity
// of bound resources can change after creation.
type Group struct {
	ID     gpucore.GroupID
	Name   string
	Layout gpucore.GroupLayoutDesc

	layoutID gpucore.GroupLayoutID
	// bound records which (binding, element) slots were ever written.
	bound map[slot]bool
}

type slot struct {
	binding, element uint32
}

// LayoutID returns the device layout of the group, used when creating
// pipelines.
func (g *Group) LayoutID() gpucore.GroupLayoutID { return g.layoutID }

// IsBound reports whether the array element of a binding has been written.
func (g *Group) IsBound(binding, element uint32) bool {
	return g.bound[slot{binding, element}]
}

// CreateGroup creates a layout of the given shape and one group using it.
// A malformed layout is a programming error and is reported as fatal.
func (m *Manager) CreateGroup(name string, layout gpucore.GroupLayoutDesc) (*Group, error) {
	if err := validateLayout(layout); err != nil {
		return nil, Fatal("create group "+name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if layout.Label == "" {
		layout.Label = name
	}
	lid, err := m.dev.CreateGroupLayout(&layout)
	if err != nil {
		return nil, Fatal("create group "+name, err)
	}
	gid, err := m.dev.CreateGroup(lid)
	if err != nil {
		m.dev.DestroyGroupLayout(lid)
		return nil, Fatal("create group "+name, err)
	}
	g := &Group{ID: gid, Name: name, Layout: layout, layoutID: lid, bound: make(map[slot]bool)}
	m.groups[gid] = g
	return g, nil
}

// DestroyGroup releases a group and its layout.
func (m *Manager) DestroyGroup(g *Group) {
	if g == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[g.ID]; !ok {
		return
	}
	delete(m.groups, g.ID)
	m.dev.DestroyGroup(g.ID)
	m.dev.DestroyGroupLayout(g.layoutID)
}

// Bind validates every binding against the group shape and then applies
// them with one device update. A shape mismatch returns a *FatalError
// wrapping ErrShapeMismatch and nothing is written.
func (m *Manager) Bind(g *Group, bindings []gpucore.Binding) error {
	if err := m.validateBindings(g, bindings); err != nil {
		return Fatal("bind "+g.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if err := m.dev.UpdateGroup(g.ID, bindings); err != nil {
		return Fatal("bind "+g.Name, err)
	}
	for _, b := range bindings {
		g.bound[slot{b.Binding, b.Element}] = true
	}
	return nil
}

func validateLayout(layout gpucore.GroupLayoutDesc) error {
	seen := make(map[uint32]bool, len(layout.Entries))
	for _, e := range layout.Entries {
		if seen[e.Binding] {
			return fmt.Errorf("%w: duplicate binding %d", ErrShapeMismatch, e.Binding)
		}
		seen[e.Binding] = true
		if e.Kind == 0 {
			return fmt.Errorf("%w: binding %d has no kind", ErrShapeMismatch, e.Binding)
		}
		if e.Len() > 1 && !e.Kind.IsImage() {
			return fmt.Errorf("%w: binding %d: arrays are only supported for images", ErrShapeMismatch, e.Binding)
		}
	}
	return nil
}

func (m *Manager) validateBindings(g *Group, bindings []gpucore.Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[slot]bool, len(bindings))
	for i, b := range bindings {
		e, ok := g.Layout.Entry(b.Binding)
		if !ok {
			return fmt.Errorf("%w: [%d] binding %d not in layout", ErrShapeMismatch, i, b.Binding)
		}
		if b.Element >= e.Len() {
			return fmt.Errorf("%w: [%d] binding %d element %d, array length %d", ErrShapeMismatch, i, b.Binding, b.Element, e.Len())
		}
		s := slot{b.Binding, b.Element}
		if seen[s] {
			return fmt.Errorf("%w: [%d] binding %d element %d written twice", ErrShapeMismatch, i, b.Binding, b.Element)
		}
		seen[s] = true

		if err := m.checkKindLocked(e, b); err != nil {
			return fmt.Errorf("%w: [%d] binding %d (%s): %w", ErrShapeMismatch, i, b.Binding, e.Kind, err)
		}
	}
	return nil
}

func (m *Manager) checkKindLocked(e gpucore.LayoutEntry, b gpucore.Binding) error {
	switch {
	case e.Kind.IsBuffer():
		if b.Image != gpucore.InvalidID || b.Accel != gpucore.InvalidID {
			return errors.New("expects a buffer")
		}
		r, ok := m.regions[b.Buffer]
		if !ok {
			return fmt.Errorf("unknown buffer %d", b.Buffer)
		}
		want := gpucore.BufferUsageUniform
		if e.Kind == gpucore.BindingStorage {
			want = gpucore.BufferUsageStorage
		}
		if r.Usage&want == 0 {
			return fmt.Errorf("buffer %s lacks usage", r.Label)
		}
		if b.Offset+b.Size > r.Size {
			return fmt.Errorf("range [%d, %d) exceeds buffer %s of %d bytes", b.Offset, b.Offset+b.Size, r.Label, r.Size)
		}
	case e.Kind.IsImage():
		if b.Buffer != gpucore.InvalidID || b.Accel != gpucore.InvalidID {
			return errors.New("expects an image")
		}
		img, ok := m.images[b.Image]
		if !ok {
			return fmt.Errorf("unknown image %d", b.Image)
		}
		want := gpucore.ImageUsageSampled
		if e.Kind == gpucore.BindingStorageImage {
			want = gpucore.ImageUsageStorage
		}
		if img.Desc.Usage&want == 0 {
			return fmt.Errorf("image %s lacks usage", img.Desc.Label)
		}
	case e.Kind == gpucore.BindingAccel:
		if b.Accel == gpucore.InvalidID || b.Buffer != gpucore.InvalidID || b.Image != gpucore.InvalidID {
			return errors.New("expects an acceleration structure")
		}
	}
	return nil
}
