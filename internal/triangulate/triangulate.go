// Package triangulate turns polygon rings in world space into indexed
// triangle meshes.
package triangulate

import (
	"github.com/rclancey/earcut"
	log "github.com/sirupsen/logrus"
)

// Mesh is a set of triangles over shared vertices.
type Mesh struct {
	// Vertices holds x, y pairs.
	Vertices []float64
	Indices  []uint32
}

// VertexCount is len(Vertices)/2.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 2
}

// RingArea is the winding sum Σ (x[i] − x[i−1])·(y[i−1] + y[i]) over a closed
// ring of x, y pairs. Exterior rings of projected vector tiles are positive,
// holes negative.
func RingArea(ring []float64) float64 {
	n := len(ring)
	if n < 6 {
		return 0
	}
	sum := 0.0
	px, py := ring[n-2], ring[n-1]
	for i := 0; i < n; i += 2 {
		x, y := ring[i], ring[i+1]
		sum += (x - px) * (py + y)
		px, py = x, y
	}
	return sum
}

// Polygons groups rings into polygons by winding, ear-clips every polygon
// together with its own holes, and, if maxTriangleLengthMeters is positive,
// subdivides triangles whose edges are longer than that on the ground.
//
// A ring with positive area starts a polygon; a negative ring is a hole of the
// last polygon. Zero-area rings and holes that precede every exterior are
// dropped.
func Polygons(rings [][]float64, maxTriangleLengthMeters float64) Mesh {
	var groups [][][]float64
	for _, r := range rings {
		a := RingArea(r)
		switch {
		case a > 0:
			groups = append(groups, [][]float64{r})
		case a < 0 && len(groups) > 0:
			last := len(groups) - 1
			groups[last] = append(groups[last], r)
		}
	}

	var m Mesh
	for _, g := range groups {
		appendPolygon(&m, g)
	}
	if maxTriangleLengthMeters > 0 {
		Subdivide(&m, maxTriangleLengthMeters)
	}
	return m
}

func appendPolygon(m *Mesh, rings [][]float64) {
	size := 0
	for _, r := range rings {
		size += len(r)
	}
	data := make([]float64, 0, size)
	var holes []int
	for i, r := range rings {
		if i > 0 {
			holes = append(holes, len(data)/2)
		}
		data = append(data, r...)
	}

	tri, err := earcut.Earcut(data, holes, 2)
	if err != nil {
		log.Warnf("triangulate: %v", err)
		return
	}
	base := uint32(m.VertexCount())
	m.Vertices = append(m.Vertices, data...)
	for _, i := range tri {
		m.Indices = append(m.Indices, base+uint32(i))
	}
}
