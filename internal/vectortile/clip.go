package vectortile

import "sort"

// clipper accumulates clipped parts, suppressing consecutive duplicates.
type clipper struct {
	out      shape
	lastX    float64
	lastY    float64
	haveLast bool
}

func (c *clipper) startPart() {
	c.out.starts = append(c.out.starts, len(c.out.geometry))
}

// push appends a point unless it repeats the previous one.
func (c *clipper) push(x, y float64) bool {
	if c.haveLast && x == c.lastX && y == c.lastY {
		return false
	}
	c.out.geometry = append(c.out.geometry, x, y)
	c.lastX, c.lastY, c.haveLast = x, y, true
	return true
}

// pushDetached appends a point and forgets it, so the next point is never
// treated as a duplicate of it.
func (c *clipper) pushDetached(x, y float64) {
	if c.haveLast && x == c.lastX && y == c.lastY {
		return
	}
	c.out.geometry = append(c.out.geometry, x, y)
	c.haveLast = false
}

func inside(x, y, extent float64) bool {
	return x >= 0 && x < extent && y >= 0 && y < extent
}

// cropLine clips every part to the tile square [0, extent)². A part leaving
// and re-entering the tile is split into several parts. With loop set the
// closing segment back to the part's first point is clipped too.
func cropLine(s shape, extent float64, loop bool) shape {
	c := &clipper{}
	for p := range s.starts {
		g := s.part(p)
		outside := true
		c.haveLast = false

		// step handles the segment (lx, ly) -> (px, py); first is true when
		// there is no previous point.
		step := func(lx, ly, px, py float64, first bool) {
			if inside(px, py, extent) {
				if outside {
					c.startPart()
					if !first {
						if ix, iy, ok := intersectFiniteTile(lx, ly, px, py, extent); ok {
							c.push(ix, iy)
						}
					}
				}
				c.push(px, py)
				outside = false
				return
			}
			if !first {
				if outside {
					started := false
					for _, q := range intersectInfiniteTile(lx, ly, px, py, extent) {
						if q[0] < 0 || q[0] > extent || q[1] < 0 || q[1] > extent {
							continue
						}
						if c.haveLast && q[0] == c.lastX && q[1] == c.lastY {
							continue
						}
						if !started {
							c.startPart()
							started = true
						}
						c.push(q[0], q[1])
					}
				} else if ix, iy, ok := intersectFiniteTile(lx, ly, px, py, extent); ok {
					c.pushDetached(ix, iy)
				}
			}
			outside = true
		}

		for i := 0; i+1 < len(g); i += 2 {
			if i == 0 {
				step(0, 0, g[0], g[1], true)
				continue
			}
			step(g[i-2], g[i-1], g[i], g[i+1], false)
		}

		if loop && len(g) >= 2 {
			lx, ly := g[len(g)-2], g[len(g)-1]
			px, py := g[0], g[1]
			if inside(px, py, extent) {
				if outside {
					c.startPart()
					if ix, iy, ok := intersectFiniteTile(lx, ly, px, py, extent); ok {
						c.push(ix, iy)
					}
				}
				c.push(px, py)
			} else {
				step(lx, ly, px, py, false)
			}
		}
	}
	return dropEmptyParts(c.out)
}

// cropPolygon clips every ring to the tile square. Where a ring runs outside
// the tile its crossings with the tile's edge lines are clamped onto the
// tile boundary, so a ring that surrounds the tile clips to the tile's
// corners. Rings with fewer than three points after clipping are dropped.
func cropPolygon(s shape, extent float64) shape {
	c := &clipper{}
	for p := range s.starts {
		g := s.part(p)
		if len(g) < 2 {
			continue
		}
		start := len(c.out.geometry)
		c.startPart()
		c.haveLast = false
		outside := true

		step := func(lx, ly, px, py float64, first bool) {
			if inside(px, py, extent) {
				if !first && outside {
					if ix, iy, ok := intersectFiniteTile(lx, ly, px, py, extent); ok {
						c.push(ix, iy)
					}
				}
				c.push(px, py)
				outside = false
				return
			}
			if !first {
				if outside {
					for _, q := range intersectInfiniteTile(lx, ly, px, py, extent) {
						c.push(clamp(q[0], 0, extent), clamp(q[1], 0, extent))
					}
				} else if ix, iy, ok := intersectFiniteTile(lx, ly, px, py, extent); ok {
					c.push(ix, iy)
				}
			}
			outside = true
		}

		for i := 0; i+1 < len(g); i += 2 {
			if i == 0 {
				step(0, 0, g[0], g[1], true)
				continue
			}
			step(g[i-2], g[i-1], g[i], g[i+1], false)
		}

		// closing segment; the first point itself is already in the ring
		lx, ly := g[len(g)-2], g[len(g)-1]
		px, py := g[0], g[1]
		if inside(px, py, extent) {
			if outside {
				if ix, iy, ok := intersectFiniteTile(lx, ly, px, py, extent); ok {
					c.push(ix, iy)
				}
			}
		} else {
			step(lx, ly, px, py, false)
		}

		if len(c.out.geometry)-start < 6 {
			c.out.geometry = c.out.geometry[:start]
			c.out.starts = c.out.starts[:len(c.out.starts)-1]
		}
	}
	return c.out
}

// dropEmptyParts removes parts that received no points.
func dropEmptyParts(s shape) shape {
	out := shape{geometry: s.geometry}
	for i, st := range s.starts {
		end := len(s.geometry)
		if i+1 < len(s.starts) {
			end = s.starts[i+1]
		}
		if end > st {
			out.starts = append(out.starts, st)
		}
	}
	return out
}

// intersectFiniteTile returns the first crossing of segment (x1, y1)-(x2, y2)
// with the tile's left, top, right or bottom edge, checked in that order.
func intersectFiniteTile(x1, y1, x2, y2, extent float64) (float64, float64, bool) {
	edges := [4][4]float64{
		{0, 0, 0, extent},
		{0, extent, extent, extent},
		{extent, extent, extent, 0},
		{extent, 0, 0, 0},
	}
	for _, e := range edges {
		if _, x, y, ok := intersectSegments(x1, y1, x2, y2, e[0], e[1], e[2], e[3]); ok {
			return x, y, true
		}
	}
	return 0, 0, false
}

// intersectInfiniteTile returns the crossings of the segment with the four
// tile edge lines, ordered along the segment.
func intersectInfiniteTile(x1, y1, x2, y2, extent float64) [][2]float64 {
	huge := 1024 * extent
	lines := [4][4]float64{
		{-huge, 0, huge, 0},
		{extent, -huge, extent, huge},
		{huge, extent, -huge, extent},
		{0, huge, 0, -huge},
	}
	type hit struct{ t, x, y float64 }
	var hits []hit
	for _, l := range lines {
		if t, x, y, ok := intersectSegments(x1, y1, x2, y2, l[0], l[1], l[2], l[3]); ok {
			hits = append(hits, hit{t, x, y})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].t < hits[j].t })
	out := make([][2]float64, len(hits))
	for i, h := range hits {
		out[i] = [2]float64{h.x, h.y}
	}
	return out
}

// intersectSegments intersects (x1, y1)-(x2, y2) with (x3, y3)-(x4, y4) and
// returns the parameter t along the first segment and the crossing point.
func intersectSegments(x1, y1, x2, y2, x3, y3, x4, y4 float64) (t, x, y float64, ok bool) {
	d := (x1-x2)*(y3-y4) - (y1-y2)*(x3-x4)
	if d == 0 {
		return 0, 0, 0, false
	}
	t = ((x1-x3)*(y3-y4) - (y1-y3)*(x3-x4)) / d
	u := -((x1-x2)*(y1-y3) - (y1-y2)*(x1-x3)) / d
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	return t, x1 + t*(x2-x1), y1 + t*(y2-y1), true
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
