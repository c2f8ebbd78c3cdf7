// Package layers holds the map's drawable layers. Each layer turns viewport
// changes into loaded GPU resources and stages its drawables into the frame
// baker. Layer methods other than ViewportChanged must be called from the
// goroutine that owns the render device.
package layers

import (
	"context"

	"vectormap/internal/render"
	"vectormap/pkg/tiles"
)

// Layer is one stack entry of the map.
type Layer interface {
	// ViewportChanged reports the new visible area.
	ViewportChanged(ctx context.Context, vp tiles.Viewport) error
	// Update integrates finished background work and reports whether
	// anything changed since the last Render.
	Update(ctx context.Context) bool
	// Render stages the layer's drawables for a frame at zoom.
	Render(b *render.Baker, zoom float64) error
	// Loading reports whether fetches or decodes are outstanding.
	Loading() bool
	// Close releases every GPU resource the layer holds.
	Close()
}

// Z orders layers bottom to top.
const (
	ZRaster     = 0
	ZCollection = 50
	ZLabels     = 100
)
