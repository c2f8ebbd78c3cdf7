package layers

import (
	"context"
	"errors"

	"vectormap/internal/render"
	"vectormap/pkg/tiles"
)

// Stack fans frame calls out to its layers, bottom first.
type Stack struct {
	layers []Layer
	dirty  bool
}

func NewStack(layers ...Layer) *Stack {
	return &Stack{layers: layers, dirty: true}
}

func (s *Stack) Add(l Layer) {
	s.layers = append(s.layers, l)
	s.dirty = true
}

func (s *Stack) Layers() []Layer {
	return s.layers
}

func (s *Stack) ViewportChanged(ctx context.Context, vp tiles.Viewport) error {
	var errs []error
	for _, l := range s.layers {
		if err := l.ViewportChanged(ctx, vp); err != nil {
			errs = append(errs, err)
		}
	}
	s.dirty = true
	return errors.Join(errs...)
}

// Update reports whether any layer has something new to draw since the
// previous Render.
func (s *Stack) Update(ctx context.Context) bool {
	changed := s.dirty
	for _, l := range s.layers {
		if l.Update(ctx) {
			changed = true
		}
	}
	s.dirty = changed
	return changed
}

func (s *Stack) Render(b *render.Baker, zoom float64) error {
	for _, l := range s.layers {
		if err := l.Render(b, zoom); err != nil {
			return err
		}
	}
	s.dirty = false
	return nil
}

func (s *Stack) Loading() bool {
	for _, l := range s.layers {
		if l.Loading() {
			return true
		}
	}
	return false
}

// Close closes layers top first.
func (s *Stack) Close() {
	for i := len(s.layers) - 1; i >= 0; i-- {
		s.layers[i].Close()
	}
	s.layers = nil
}
