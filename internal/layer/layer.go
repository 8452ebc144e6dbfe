// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package layer keeps the ordered, bounded stack of paint layers.
//
// Layers are stored bottom to top. The position of a layer in the stack is
// also its element in the layer image array of the raster group and the
// index pushed for its composite draw.
package layer

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"slices"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/resource"
)

// Stack errors.
var (
	// ErrTooManyLayers is returned when the stack is full.
	ErrTooManyLayers = errors.New("layer: too many layers")

	// ErrNotFound is returned for unknown layer ids.
	ErrNotFound = errors.New("layer: not found")

	// ErrPosition is returned for a move outside the stack.
	ErrPosition = errors.New("layer: position out of range")
)

// ID identifies a layer for its whole lifetime.
type ID uint64

// Layer is one compositing unit.
type Layer struct {
	ID      ID
	Name    string
	Visible bool
	Image   *resource.Image
}

// Stack is an ordered set of at most Max layers with one active layer.
// Stack is not safe for concurrent use.
type Stack struct {
	max    int
	layers []*Layer
	active ID
	nextID ID
}

// NewStack creates an empty stack holding at most limit layers.
func NewStack(limit int) *Stack {
	return &Stack{max: limit, nextID: 1}
}

// Max returns the capacity of the stack.
func (s *Stack) Max() int { return s.max }

// Len returns the number of layers.
func (s *Stack) Len() int { return len(s.layers) }

// Full reports whether another layer would exceed the capacity.
func (s *Stack) Full() bool { return len(s.layers) >= s.max }

// Push adds a visible layer on top of the stack and makes it active.
// An empty name is replaced by "Layer N".
func (s *Stack) Push(name string, img *resource.Image) (*Layer, error) {
	if s.Full() {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyLayers, s.max)
	}
	id := s.nextID
	s.nextID++
	if name == "" {
		name = fmt.Sprintf("Layer %d", id)
	}
	l := &Layer{ID: id, Name: name, Visible: true, Image: img}
	s.layers = append(s.layers, l)
	s.active = id
	return l, nil
}

// Remove deletes a layer and returns it so the caller can free its image.
// When the active layer is removed the layer below it (or the new bottom)
// becomes active.
func (s *Stack) Remove(id ID) (*Layer, error) {
	i := s.Index(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	l := s.layers[i]
	s.layers = slices.Delete(s.layers, i, i+1)
	if s.active == id {
		s.active = 0
		if len(s.layers) > 0 {
			s.active = s.layers[max(i-1, 0)].ID
		}
	}
	return l, nil
}

// Move places a layer at position pos, 0 being the bottom.
func (s *Stack) Move(id ID, pos int) error {
	i := s.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if pos < 0 || pos >= len(s.layers) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrPosition, pos, len(s.layers))
	}
	l := s.layers[i]
	s.layers = slices.Delete(s.layers, i, i+1)
	s.layers = slices.Insert(s.layers, pos, l)
	return nil
}

// SetVisible controls layer visibility. Invisible layers keep their content
// but are not composited.
func (s *Stack) SetVisible(id ID, visible bool) error {
	l, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	l.Visible = visible
	return nil
}

// SetActive selects the layer painting is applied to.
func (s *Stack) SetActive(id ID) error {
	if s.Index(id) < 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	s.active = id
	return nil
}

// Active returns the active layer and its position, or nil and -1.
func (s *Stack) Active() (*Layer, int) {
	i := s.Index(s.active)
	if i < 0 {
		return nil, -1
	}
	return s.layers[i], i
}

// Get returns a layer by id.
func (s *Stack) Get(id ID) (*Layer, bool) {
	i := s.Index(id)
	if i < 0 {
		return nil, false
	}
	return s.layers[i], true
}

// Index returns the position of a layer, or -1.
func (s *Stack) Index(id ID) int {
	return slices.IndexFunc(s.layers, func(l *Layer) bool { return l.ID == id })
}

// Layers returns copies of all layers, bottom to top.
func (s *Stack) Layers() []Layer {
	out := make([]Layer, len(s.layers))
	for i, l := range s.layers {
		out[i] = *l
	}
	return out
}

// VisibleIndices returns the positions of visible layers, back to front.
func (s *Stack) VisibleIndices() []uint32 {
	var out []uint32
	for i, l := range s.layers {
		if l.Visible {
			out = append(out, uint32(i)) //nolint:gosec // G115: bounded by max
		}
	}
	return out
}

// Bindings returns one image binding per layer, element = position.
func (s *Stack) Bindings(binding uint32) []gpucore.Binding {
	out := make([]gpucore.Binding, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.Image.Bind(binding, uint32(i)) //nolint:gosec // G115: bounded by max
	}
	return out
}

// Composite blends the visible images back to front onto dst with
// premultiplied source-over. It is the CPU reference of the layer
// composite pass.
func Composite(dst *image.RGBA, layers []*image.RGBA, visible []bool) {
	for i, img := range layers {
		if i < len(visible) && !visible[i] {
			continue
		}
		draw.Draw(dst, dst.Bounds(), img, image.Point{}, draw.Over)
	}
}
