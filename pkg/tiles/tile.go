package tiles

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileID represents a tile address in the XYZ scheme, y = 0 at the north edge
type TileID struct {
	X    int
	Y    int
	Zoom int
}

// String is the canonical map key "z/x/y"
func (t TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

// ParseKey is the inverse of String
func ParseKey(key string) (TileID, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return TileID{}, fmt.Errorf("invalid tile key %q", key)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return TileID{}, fmt.Errorf("invalid tile key %q: %w", key, err)
		}
		v[i] = n
	}
	id := TileID{Zoom: v[0], X: v[1], Y: v[2]}
	if !id.Valid() {
		return TileID{}, fmt.Errorf("tile %s out of range", id)
	}
	return id, nil
}

// Valid reports whether x and y are inside the zoom's grid
func (t TileID) Valid() bool {
	if t.Zoom < 0 || t.Zoom > 30 {
		return false
	}
	n := 1 << t.Zoom
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// URL expands a tile URL template. Both {z}/{x}/{y} and ${id.zoom}/${id.x}/${id.y}
// placeholders are accepted.
func (t TileID) URL(template string) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(t.Zoom),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"${id.zoom}", strconv.Itoa(t.Zoom),
		"${id.x}", strconv.Itoa(t.X),
		"${id.y}", strconv.Itoa(t.Y),
	)
	return r.Replace(template)
}

// Maptile converts to orb's tile type
func (t TileID) Maptile() maptile.Tile {
	return maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Zoom))
}

// FromMaptile converts from orb's tile type
func FromMaptile(t maptile.Tile) TileID {
	return TileID{X: int(t.X), Y: int(t.Y), Zoom: int(t.Z)}
}

// Bound is the tile's extent in lng/lat degrees
func (t TileID) Bound() orb.Bound {
	return t.Maptile().Bound()
}

// WorldBound is the tile's extent in the [-1, 1]² world square, y north
func (t TileID) WorldBound() orb.Bound {
	half := math.Pow(2, float64(t.Zoom-1))
	x0 := float64(t.X)/half - 1
	y1 := 1 - float64(t.Y)/half
	return orb.Bound{
		Min: orb.Point{x0, y1 - 1/half},
		Max: orb.Point{x0 + 1/half, y1},
	}
}

// Parent returns the tile one zoom level up
func (t TileID) Parent() TileID {
	if t.Zoom == 0 {
		return t
	}
	return TileID{X: t.X >> 1, Y: t.Y >> 1, Zoom: t.Zoom - 1}
}

// Intersect reports whether two tiles overlap: the deeper tile is scaled up to
// the shallower zoom (flooring both axes) and compared.
func Intersect(a, b TileID) bool {
	if a.Zoom > b.Zoom {
		a, b = b, a
	}
	shift := uint(b.Zoom - a.Zoom)
	return b.X>>shift == a.X && b.Y>>shift == a.Y
}

// LatLonToTile converts latitude/longitude to tile coordinates at a given zoom level
func LatLonToTile(lat, lon float64, zoom int) TileID {
	n := math.Pow(2, float64(zoom))
	x := int((lon + 180.0) / 360.0 * n)
	latRad := lat * math.Pi / 180.0
	y := int((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n)

	maxTile := int(n) - 1
	x = min(max(x, 0), maxTile)
	y = min(max(y, 0), maxTile)

	return TileID{X: x, Y: y, Zoom: zoom}
}

// TileToLatLon converts tile coordinates to latitude/longitude (top-left corner)
func TileToLatLon(t TileID) (lat, lon float64) {
	n := math.Pow(2, float64(t.Zoom))
	lon = float64(t.X)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(t.Y)/n)))
	lat = latRad * 180.0 / math.Pi
	return lat, lon
}

// TMSRow flips y for MBTiles storage, which counts rows from the south edge
func (t TileID) TMSRow() int {
	return (1 << t.Zoom) - 1 - t.Y
}
