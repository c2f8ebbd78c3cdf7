package triangulate

import (
	"math"

	"vectormap/internal/mercator"
)

// maxSubdivisionDepth bounds the recursion on degenerate input.
const maxSubdivisionDepth = 32

// Subdivide splits every triangle of m whose edges exceed maxLengthMeters on
// the sphere, inserting edge midpoints. Midpoints are shared between
// neighbouring triangles, so the mesh stays watertight.
func Subdivide(m *Mesh, maxLengthMeters float64) {
	maxRad := maxLengthMeters / mercator.EarthRadiusMeters
	s := subdivider{
		mesh:     m,
		maxSq:    maxRad * maxRad,
		midpoint: make(map[uint64]uint32),
	}
	in := m.Indices
	s.out = make([]uint32, 0, len(in))
	for i := 0; i+2 < len(in); i += 3 {
		s.split(in[i], in[i+1], in[i+2], 0)
	}
	m.Indices = s.out
}

type subdivider struct {
	mesh     *Mesh
	maxSq    float64
	midpoint map[uint64]uint32
	out      []uint32
}

func (s *subdivider) long(a, b uint32) bool {
	v := s.mesh.Vertices
	return approxRadiansBetweenSq(v[2*a], v[2*a+1], v[2*b], v[2*b+1]) > s.maxSq
}

func (s *subdivider) mid(a, b uint32) uint32 {
	key := pairKey(a, b)
	if i, ok := s.midpoint[key]; ok {
		return i
	}
	v := s.mesh.Vertices
	i := uint32(len(v) / 2)
	s.mesh.Vertices = append(v, (v[2*a]+v[2*b])/2, (v[2*a+1]+v[2*b+1])/2)
	s.midpoint[key] = i
	return i
}

func (s *subdivider) split(a, b, c uint32, depth int) {
	e0, e1, e2 := s.long(a, b), s.long(b, c), s.long(c, a)
	if depth >= maxSubdivisionDepth || !(e0 || e1 || e2) {
		s.out = append(s.out, a, b, c)
		return
	}
	d := depth + 1
	switch {
	case e0 && e1 && e2:
		ab, bc, ca := s.mid(a, b), s.mid(b, c), s.mid(c, a)
		s.split(a, ab, ca, d)
		s.split(ab, b, bc, d)
		s.split(bc, c, ca, d)
		s.split(ab, bc, ca, d)
	case e0 && e1:
		ab, bc := s.mid(a, b), s.mid(b, c)
		s.split(a, ab, c, d)
		s.split(ab, bc, c, d)
		s.split(ab, b, bc, d)
	case e0 && e2:
		ab, ca := s.mid(a, b), s.mid(c, a)
		s.split(a, ab, ca, d)
		s.split(ab, b, c, d)
		s.split(ca, c, ab, d)
	case e1 && e2:
		bc, ca := s.mid(b, c), s.mid(c, a)
		s.split(a, b, ca, d)
		s.split(b, bc, ca, d)
		s.split(bc, c, ca, d)
	case e0:
		ab := s.mid(a, b)
		s.split(a, ab, c, d)
		s.split(ab, b, c, d)
	case e1:
		bc := s.mid(b, c)
		s.split(a, b, bc, d)
		s.split(a, bc, c, d)
	default:
		ca := s.mid(c, a)
		s.split(a, b, ca, d)
		s.split(b, c, ca, d)
	}
}

// pairKey is a symmetric key for an unordered index pair.
func pairKey(a, b uint32) uint64 {
	lo, hi := uint64(min(a, b)), uint64(max(a, b))
	return hi*(hi+1)/2 + lo
}

// approxRadiansBetweenSq is the squared equirectangular distance, in radians,
// between two world-space points.
func approxRadiansBetweenSq(x0, y0, x1, y1 float64) float64 {
	lat0, lat1 := mercator.UnprojectLatRadians(y0), mercator.UnprojectLatRadians(y1)
	dLng := mercator.UnprojectLngRadians(x1) - mercator.UnprojectLngRadians(x0)
	x := dLng * math.Cos((lat0+lat1)/2)
	y := lat1 - lat0
	return x*x + y*y
}
