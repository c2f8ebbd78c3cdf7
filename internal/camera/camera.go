// Package camera tracks the map view in world space and derives the
// viewport the layers fetch for.
package camera

import (
	"math"

	"github.com/paulmach/orb"

	"vectormap/internal/mercator"
	"vectormap/internal/render"
	"vectormap/pkg/tiles"
)

const (
	MinZoom = 0
	MaxZoom = 22

	// TileSize is the on-screen edge of a tile at its own zoom.
	TileSize = 256
)

// Camera represents the map camera/viewport
type Camera struct {
	// Center is the view centre in world space, x wrapped into [-1, 1).
	Center orb.Point
	Zoom   float64

	// Viewport dimensions in pixels
	ViewportWidth  int
	ViewportHeight int

	isDragging bool
	lastDragX  float64
	lastDragY  float64
}

// NewCamera creates a new camera centered on given coordinates
func NewCamera(lat, lng, zoom float64, width, height int) *Camera {
	x, y := mercator.Project(lat, lng)
	c := &Camera{
		Center:         orb.Point{x, y},
		Zoom:           zoom,
		ViewportWidth:  width,
		ViewportHeight: height,
	}
	c.clampPosition()
	return c
}

// SetViewport updates the viewport dimensions
func (c *Camera) SetViewport(width, height int) {
	c.ViewportWidth = width
	c.ViewportHeight = height
}

// LatLng is the geographic centre.
func (c *Camera) LatLng() (lat, lng float64) {
	return mercator.Unproject(c.Center[0], c.Center[1])
}

// WorldPerPixel is the world-space size of one screen pixel.
func (c *Camera) WorldPerPixel() float64 {
	return 2 / (TileSize * math.Exp2(c.Zoom))
}

// Pan moves the map by a pixel delta; positive y drags the map down.
func (c *Camera) Pan(deltaX, deltaY float64) {
	w := c.WorldPerPixel()
	c.Center[0] -= deltaX * w
	c.Center[1] += deltaY * w
	c.clampPosition()
}

// ZoomTo sets a specific zoom level
func (c *Camera) ZoomTo(zoom float64) {
	c.Zoom = min(max(zoom, MinZoom), MaxZoom)
}

// ZoomAtPoint zooms by delta keeping the world point under the screen point
// fixed.
func (c *Camera) ZoomAtPoint(delta, screenX, screenY float64) {
	before := c.ScreenToWorld(screenX, screenY)
	old := c.Zoom
	c.ZoomTo(c.Zoom + delta)
	if c.Zoom == old {
		return
	}
	after := c.ScreenToWorld(screenX, screenY)
	c.Center[0] += before[0] - after[0]
	c.Center[1] += before[1] - after[1]
	c.clampPosition()
}

// ScreenToWorld converts a pixel position (y down) into world space.
func (c *Camera) ScreenToWorld(screenX, screenY float64) orb.Point {
	w := c.WorldPerPixel()
	return orb.Point{
		c.Center[0] + (screenX-float64(c.ViewportWidth)/2)*w,
		c.Center[1] - (screenY-float64(c.ViewportHeight)/2)*w,
	}
}

// WorldToScreen is the inverse of ScreenToWorld.
func (c *Camera) WorldToScreen(p orb.Point) (screenX, screenY float64) {
	w := c.WorldPerPixel()
	screenX = (p[0]-c.Center[0])/w + float64(c.ViewportWidth)/2
	screenY = (c.Center[1]-p[1])/w + float64(c.ViewportHeight)/2
	return screenX, screenY
}

// StartDrag begins a drag operation
func (c *Camera) StartDrag(x, y float64) {
	c.isDragging = true
	c.lastDragX = x
	c.lastDragY = y
}

// Drag continues a drag operation
func (c *Camera) Drag(x, y float64) {
	if !c.isDragging {
		return
	}
	c.Pan(x-c.lastDragX, y-c.lastDragY)
	c.lastDragX = x
	c.lastDragY = y
}

// EndDrag ends a drag operation
func (c *Camera) EndDrag() {
	c.isDragging = false
}

// IsDragging returns whether a drag is in progress
func (c *Camera) IsDragging() bool {
	return c.isDragging
}

// clampPosition wraps x around the antimeridian and keeps y in the world.
func (c *Camera) clampPosition() {
	c.Center[0] = wrap(c.Center[0])
	c.Center[1] = min(max(c.Center[1], -1), 1)
}

// Area is the visible world-space rectangle. Its x range is not wrapped and
// may extend past ±1.
func (c *Camera) Area() orb.Bound {
	w := c.WorldPerPixel()
	hw := float64(c.ViewportWidth) / 2 * w
	hh := float64(c.ViewportHeight) / 2 * w
	return orb.Bound{
		Min: orb.Point{c.Center[0] - hw, c.Center[1] - hh},
		Max: orb.Point{c.Center[0] + hw, c.Center[1] + hh},
	}
}

// Extent is Area in degrees, longitudes unwrapped. The frame planner uses it
// to find the seams the view reaches past.
func (c *Camera) Extent() orb.Bound {
	area := c.Area()
	south, _ := mercator.Unproject(0, max(area.Min[1], -1))
	north, _ := mercator.Unproject(0, min(area.Max[1], 1))
	return orb.Bound{
		Min: orb.Point{area.Min[0] * 180, south},
		Max: orb.Point{area.Max[0] * 180, north},
	}
}

// Viewport is the visible area in degrees. A view that crosses the
// antimeridian has a min longitude greater than its max.
func (c *Camera) Viewport() tiles.Viewport {
	area := c.Area()
	minY := max(area.Min[1], -1)
	maxY := min(area.Max[1], 1)
	south, _ := mercator.Unproject(0, minY)
	north, _ := mercator.Unproject(0, maxY)

	west, east := -180.0, 180.0
	if area.Max[0]-area.Min[0] < 2 {
		x0 := wrap(area.Min[0])
		x1 := x0 + (area.Max[0] - area.Min[0])
		if x1 > 1 {
			x1 -= 2
		}
		west, east = x0*180, x1*180
	}
	return tiles.Viewport{
		Bound: orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}},
		Zoom:  c.Zoom,
	}
}

// View is what the renderer draws a frame with.
func (c *Camera) View() render.View {
	return render.View{
		Center: c.Center,
		Zoom:   c.Zoom,
		Width:  c.ViewportWidth,
		Height: c.ViewportHeight,
	}
}

func wrap(x float64) float64 {
	x = math.Mod(x+1, 2)
	if x < 0 {
		x += 2
	}
	return x - 1
}
