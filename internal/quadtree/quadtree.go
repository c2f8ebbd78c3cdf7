// Package quadtree is a region quadtree over axis-aligned rectangles.
//
// Nodes live in a single arena slice and reference their four children by
// index, so the tree holds no pointers between nodes. A value is stored at
// the deepest node whose centre lines do not cut its rectangle.
package quadtree

import (
	"github.com/paulmach/orb"
)

const (
	// DefaultSplitThreshold is the value count at which a leaf splits, and
	// below which a subtree collapses back into its root.
	DefaultSplitThreshold = 100

	// MinHalfRadius stops splitting below this node size.
	MinHalfRadius = 1.0 / (1 << 15)
)

const noChildren = -1

type entry[V any] struct {
	bound orb.Bound
	value V
}

type node[V any] struct {
	center     orb.Point
	halfRadius float64
	values     []entry[V]
	// children is the arena index of the first of four consecutive children.
	children int
	// count is the number of values in the subtree rooted here.
	count int
}

// Tree indexes values of type V by rectangle.
type Tree[V any] struct {
	nodes     []node[V]
	free      []int
	threshold int
}

// Option configures a Tree.
type Option func(*options)

type options struct {
	threshold int
}

// WithSplitThreshold overrides DefaultSplitThreshold.
func WithSplitThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threshold = n
		}
	}
}

// New returns an empty tree covering the square centred on center.
func New[V any](center orb.Point, halfRadius float64, opts ...Option) *Tree[V] {
	o := options{threshold: DefaultSplitThreshold}
	for _, fn := range opts {
		fn(&o)
	}
	t := &Tree[V]{threshold: o.threshold}
	t.nodes = append(t.nodes, node[V]{center: center, halfRadius: halfRadius, children: noChildren})
	return t
}

// Len is the number of stored values.
func (t *Tree[V]) Len() int {
	return t.nodes[0].count
}

// Insert adds value under bound.
func (t *Tree[V]) Insert(bound orb.Bound, value V) {
	t.insert(0, entry[V]{bound: bound, value: value})
}

func (t *Tree[V]) insert(i int, e entry[V]) {
	for {
		n := &t.nodes[i]
		n.count++
		if n.children == noChildren {
			n.values = append(n.values, e)
			if len(n.values) >= t.threshold && n.halfRadius > MinHalfRadius {
				t.split(i)
			}
			return
		}
		if straddles(n.center, e.bound) {
			n.values = append(n.values, e)
			return
		}
		i = n.children + quadrant(n.center, e.bound)
	}
}

func (t *Tree[V]) split(i int) {
	first := t.allocChildren()
	n := &t.nodes[i]
	center, h := n.center, n.halfRadius/2
	for q := 0; q < 4; q++ {
		c := center
		if q&2 != 0 {
			c[0] -= h
		} else {
			c[0] += h
		}
		if q&1 != 0 {
			c[1] -= h
		} else {
			c[1] += h
		}
		t.nodes[first+q] = node[V]{center: c, halfRadius: h, children: noChildren}
	}

	n = &t.nodes[i]
	n.children = first
	old := n.values
	n.values = nil
	for _, e := range old {
		n = &t.nodes[i]
		if straddles(n.center, e.bound) {
			n.values = append(n.values, e)
			continue
		}
		t.insert(first+quadrant(n.center, e.bound), e)
	}
}

func (t *Tree[V]) allocChildren() int {
	if k := len(t.free); k > 0 {
		first := t.free[k-1]
		t.free = t.free[:k-1]
		return first
	}
	first := len(t.nodes)
	var zero node[V]
	t.nodes = append(t.nodes, zero, zero, zero, zero)
	return first
}

// Delete removes the first value stored under a rectangle equal to bound.
func (t *Tree[V]) Delete(bound orb.Bound) (V, bool) {
	return t.delete(0, bound, func(V) bool { return true })
}

// DeleteFunc removes the first value under a rectangle equal to bound for
// which match returns true.
func (t *Tree[V]) DeleteFunc(bound orb.Bound, match func(V) bool) (V, bool) {
	return t.delete(0, bound, match)
}

func (t *Tree[V]) delete(i int, bound orb.Bound, match func(V) bool) (V, bool) {
	var zero V
	n := &t.nodes[i]
	if n.children == noChildren || straddles(n.center, bound) {
		for k, e := range n.values {
			if e.bound == bound && match(e.value) {
				n.values = append(n.values[:k], n.values[k+1:]...)
				n.count--
				if n.children != noChildren && n.count < t.threshold {
					t.collapse(i)
				}
				return e.value, true
			}
		}
		if n.children == noChildren {
			return zero, false
		}
	}
	if straddles(n.center, bound) {
		return zero, false
	}

	v, ok := t.delete(n.children+quadrant(n.center, bound), bound, match)
	if !ok {
		return zero, false
	}
	n = &t.nodes[i]
	n.count--
	if n.count < t.threshold {
		t.collapse(i)
	}
	return v, true
}

// collapse pulls every descendant value into node i and frees its children.
func (t *Tree[V]) collapse(i int) {
	first := t.nodes[i].children
	if first == noChildren {
		return
	}
	var values []entry[V]
	for q := 0; q < 4; q++ {
		values = t.drain(first+q, values)
	}
	n := &t.nodes[i]
	n.values = append(n.values, values...)
	n.children = noChildren
	t.free = append(t.free, first)
}

func (t *Tree[V]) drain(i int, out []entry[V]) []entry[V] {
	n := &t.nodes[i]
	out = append(out, n.values...)
	first := n.children
	n.values = nil
	n.count = 0
	n.children = noChildren
	if first != noChildren {
		for q := 0; q < 4; q++ {
			out = t.drain(first+q, out)
		}
		t.free = append(t.free, first)
	}
	return out
}

// QueryRect appends every value whose rectangle overlaps bound (edges
// inclusive).
func (t *Tree[V]) QueryRect(bound orb.Bound, out []V) []V {
	return t.query(0, bound, func(b orb.Bound) bool { return intersectRects(bound, b) }, out)
}

// QueryCircle appends every value whose rectangle is within radius of p.
func (t *Tree[V]) QueryCircle(p orb.Point, radius float64, out []V) []V {
	box := orb.Bound{
		Min: orb.Point{p[0] - radius, p[1] - radius},
		Max: orb.Point{p[0] + radius, p[1] + radius},
	}
	return t.query(0, box, func(b orb.Bound) bool { return intersectCircleRect(p, radius, b) }, out)
}

func (t *Tree[V]) query(i int, box orb.Bound, hit func(orb.Bound) bool, out []V) []V {
	n := &t.nodes[i]
	for _, e := range n.values {
		if hit(e.bound) {
			out = append(out, e.value)
		}
	}
	if n.children == noChildren {
		return out
	}
	first, c := n.children, n.center
	pos := [2][2]bool{
		{box.Max[0] > c[0], box.Min[0] <= c[0]},
		{box.Max[1] > c[1], box.Min[1] <= c[1]},
	}
	for q := 0; q < 4; q++ {
		if pos[0][q>>1] && pos[1][q&1] {
			out = t.query(first+q, box, hit, out)
		}
	}
	return out
}

// straddles reports whether a rectangle crosses either centre line.
func straddles(c orb.Point, b orb.Bound) bool {
	return (b.Min[0] <= c[0] && c[0] <= b.Max[0]) || (b.Min[1] <= c[1] && c[1] <= b.Max[1])
}

// quadrant is (xi << 1) + yi where xi, yi are 1 on the negative side.
func quadrant(c orb.Point, b orb.Bound) int {
	q := 0
	if b.Min[0] <= c[0] {
		q |= 2
	}
	if b.Min[1] <= c[1] {
		q |= 1
	}
	return q
}

func intersectRects(a, b orb.Bound) bool {
	return a.Min[0] <= b.Max[0] && b.Min[0] <= a.Max[0] &&
		a.Min[1] <= b.Max[1] && b.Min[1] <= a.Max[1]
}

func intersectCircleRect(p orb.Point, r float64, b orb.Bound) bool {
	x := min(max(p[0], b.Min[0]), b.Max[0])
	y := min(max(p[1], b.Min[1]), b.Max[1])
	dx, dy := p[0]-x, p[1]-y
	return dx*dx+dy*dy <= r*r
}
