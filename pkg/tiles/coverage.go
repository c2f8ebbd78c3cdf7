package tiles

import (
	"math"

	"github.com/paulmach/orb"

	"vectormap/internal/mercator"
)

// Viewport is the visible geographic rectangle (lng/lat degrees) and the
// fractional camera zoom.
type Viewport struct {
	Bound orb.Bound
	Zoom  float64
}

// ZoomRange bounds the zoom levels a tileset serves. ExtraZoom biases the
// requested level, e.g. 1 requests one level deeper than the camera zoom.
type ZoomRange struct {
	MinZoom   int
	MaxZoom   int
	ExtraZoom float64
}

// TileZoom is the discrete level used for a camera zoom
func (r ZoomRange) TileZoom(zoom float64) int {
	tz := int(math.Floor(zoom + r.ExtraZoom))
	return min(max(tz, 0), r.MaxZoom)
}

// Coverage returns every tile at the tileset's zoom that intersects the
// viewport. Columns wrap around the antimeridian; rows outside the world are
// skipped. Below MinZoom nothing is covered.
func Coverage(vp Viewport, r ZoomRange) []TileID {
	tz := r.TileZoom(vp.Zoom)
	if tz < r.MinZoom {
		return nil
	}
	low, high := mercator.ProjectBound(vp.Bound)
	ws := float64(int(1) << tz)
	n := 1 << tz

	y0 := int(math.Floor(ws * (0.5 - high.Y()/2)))
	y1 := ws * (0.5 - low.Y()/2)
	x0 := int(math.Floor(ws * (low.X()/2 + 0.5)))
	x1 := ws * (high.X()/2 + 0.5)

	var out []TileID
	seen := make(map[TileID]struct{})
	for y := y0; float64(y) < y1; y++ {
		if y < 0 || y >= n {
			continue
		}
		for x := x0; float64(x) < x1; x++ {
			id := TileID{X: ((x % n) + 3*n) % n, Y: y, Zoom: tz}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
