package quadtree

import "github.com/paulmach/orb"

// World is a Tree over the world square [-1, 1]² whose y (latitude) axis
// wraps: circle and rect queries that cross y = ±1 are repeated shifted by ∓2.
type World[V any] struct {
	wrapped[V]
}

func NewWorld[V any](opts ...Option) *World[V] {
	return &World[V]{wrapped[V]{Tree: New[V](orb.Point{0, 0}, 1, opts...), axis: 1}}
}

// WorldX is World wrapping the x axis instead, at the antimeridian. Screen
// space label collision uses it.
type WorldX[V any] struct {
	wrapped[V]
}

func NewWorldX[V any](opts ...Option) *WorldX[V] {
	return &WorldX[V]{wrapped[V]{Tree: New[V](orb.Point{0, 0}, 1, opts...), axis: 0}}
}

// wrapped re-issues queries that leave [-1, 1] on axis.
type wrapped[V any] struct {
	*Tree[V]
	axis int
}

func (w wrapped[V]) QueryCircle(p orb.Point, radius float64, out []V) []V {
	out = w.Tree.QueryCircle(p, radius, out)
	if p[w.axis]-radius < -1 {
		q := p
		q[w.axis] += 2
		out = w.Tree.QueryCircle(q, radius, out)
	}
	if p[w.axis]+radius > 1 {
		q := p
		q[w.axis] -= 2
		out = w.Tree.QueryCircle(q, radius, out)
	}
	return out
}

func (w wrapped[V]) QueryRect(b orb.Bound, out []V) []V {
	out = w.Tree.QueryRect(b, out)
	if b.Min[w.axis] < -1 {
		out = w.Tree.QueryRect(w.shift(b, 2), out)
	}
	if b.Max[w.axis] > 1 {
		out = w.Tree.QueryRect(w.shift(b, -2), out)
	}
	return out
}

func (w wrapped[V]) shift(b orb.Bound, d float64) orb.Bound {
	b.Min[w.axis] += d
	b.Max[w.axis] += d
	return b
}
