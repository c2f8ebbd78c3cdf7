// Package mercator converts between geographic coordinates and the normalized
// web-mercator world square [-1, 1]², with y pointing north.
package mercator

import (
	"math"

	"github.com/paulmach/orb"
)

// MaxLatitude is the latitude at which the world square ends.
const MaxLatitude = 85.0511287798066

// EarthRadiusMeters is the sphere radius used for distance approximations.
const EarthRadiusMeters = 6371010.0

// Project maps lat/lng degrees into world space.
func Project(lat, lng float64) (x, y float64) {
	lat = clampLat(lat)
	x = lng / 180
	y = math.Log(math.Tan(math.Pi/4+lat*math.Pi/360)) / math.Pi
	return x, y
}

// Unproject maps world space back into lat/lng degrees.
func Unproject(x, y float64) (lat, lng float64) {
	lng = x * 180
	lat = math.Asin(math.Tanh(y*math.Pi)) * 180 / math.Pi
	return lat, lng
}

// ProjectPoint projects an orb point ([lng, lat] degrees).
func ProjectPoint(p orb.Point) orb.Point {
	x, y := Project(p.Lat(), p.Lon())
	return orb.Point{x, y}
}

// ProjectBound projects a degree bound. A bound whose min longitude is greater
// than its max longitude crosses the antimeridian; its high x is moved past 1
// so that low.x <= high.x always holds.
func ProjectBound(b orb.Bound) (low, high orb.Point) {
	low = ProjectPoint(b.Min)
	high = ProjectPoint(b.Max)
	if b.Min.Lon() > b.Max.Lon() {
		high[0] += 2
	}
	return low, high
}

// UnprojectLatRadians is the radians-latitude of world y.
func UnprojectLatRadians(y float64) float64 {
	return math.Asin(math.Tanh(math.Pi * y))
}

// UnprojectLngRadians is the radians-longitude of world x.
func UnprojectLngRadians(x float64) float64 {
	return math.Pi * x
}

func clampLat(lat float64) float64 {
	// keeps tan finite at the poles
	const limit = 89.999999
	if lat > limit {
		return limit
	}
	if lat < -limit {
		return -limit
	}
	return lat
}
