package layers

import (
	"math"
	"slices"

	"github.com/paulmach/orb"

	"vectormap/internal/quadtree"
	"vectormap/internal/vectortile"
)

// labelPadding is added around a label's text box, in pixels.
const labelPadding = 2

// tilePixels is the on-screen edge of a tile at its own zoom.
const tilePixels = 256

// indexedLabel is a label plus its collision state.
type indexedLabel struct {
	vectortile.Label
	// bound is the label's extent at its MinZoom, the largest it gets.
	bound orb.Bound
	// radius is the padded half-extent in pixels.
	radius [2]float64
	// collidedMinZoom is the first zoom at which the label is shown.
	collidedMinZoom float64
}

func (l *indexedLabel) visible(zoom float64) bool {
	return l.collidedMinZoom <= zoom && zoom < float64(l.MaxZoom)
}

// labelIndex resolves overlaps between labels of every loaded tile. A label
// yields to an overlapping neighbour with higher z, or equal z and lexically
// smaller text, until the zoom at which the two separate.
type labelIndex struct {
	tree    *quadtree.WorldX[*indexedLabel]
	measure func(graphemes []string, scale float64) (w, h float64)
}

func newLabelIndex(measure func([]string, float64) (float64, float64)) *labelIndex {
	return &labelIndex{tree: quadtree.NewWorldX[*indexedLabel](), measure: measure}
}

func (x *labelIndex) Len() int {
	return x.tree.Len()
}

// insert indexes label and resolves it against its neighbours.
func (x *labelIndex) insert(label vectortile.Label) *indexedLabel {
	w, h := x.measure(label.Graphemes, label.Scale)
	rw, rh := w/2+labelPadding, h/2+labelPadding
	world := worldPerPixel(float64(label.MinZoom))
	l := &indexedLabel{
		Label:           label,
		radius:          [2]float64{rw, rh},
		collidedMinZoom: float64(label.MinZoom),
		bound: orb.Bound{
			Min: orb.Point{label.Center[0] - rw*world, label.Center[1] - rh*world},
			Max: orb.Point{label.Center[0] + rw*world, label.Center[1] + rh*world},
		},
	}
	x.resolve(l)
	x.tree.Insert(l.bound, l)
	return l
}

// remove drops labels and re-resolves the neighbours they were hiding.
func (x *labelIndex) remove(labels []*indexedLabel) {
	affected := make(map[*indexedLabel]struct{})
	var near []*indexedLabel
	for _, l := range labels {
		x.tree.DeleteFunc(l.bound, func(v *indexedLabel) bool { return v == l })

		near = x.tree.QueryRect(l.bound, near[:0])
		for _, other := range near {
			if l.collidedMinZoom >= other.collidedMinZoom {
				continue
			}
			affected[other] = struct{}{}
		}
	}
	for _, l := range labels {
		delete(affected, l)
	}

	// neighbours are reset and resolved in a fixed order so that the outcome
	// does not depend on map iteration
	order := make([]*indexedLabel, 0, len(affected))
	for l := range affected {
		order = append(order, l)
	}
	slices.SortFunc(order, func(a, b *indexedLabel) int {
		if a.Z != b.Z {
			return b.Z - a.Z
		}
		return slices.Compare(a.Graphemes, b.Graphemes)
	})
	for _, l := range order {
		l.collidedMinZoom = float64(l.MinZoom)
	}
	for _, l := range order {
		x.resolve(l)
	}
}

// resolve raises l's collidedMinZoom past every neighbour that outranks it,
// and raises the neighbours it outranks.
func (x *labelIndex) resolve(l *indexedLabel) {
	var near []*indexedLabel
	near = x.tree.QueryRect(l.bound, near)

	ours := float64(l.MinZoom)
	for _, other := range near {
		if other == l {
			continue
		}
		if float64(l.MaxZoom) <= other.collidedMinZoom || l.MinZoom >= other.MaxZoom {
			continue
		}
		if slices.Equal(l.Graphemes, other.Graphemes) {
			continue
		}

		dx := math.Abs(l.Center[0] - other.Center[0])
		dy := math.Abs(l.Center[1] - other.Center[1])
		at := math.Max(ours, other.collidedMinZoom)
		world := worldPerPixel(at)
		if dx >= (l.radius[0]+other.radius[0])*world || dy >= (l.radius[1]+other.radius[1])*world {
			continue
		}

		// the pair separates once either axis clears
		apart := math.Min(
			separationZoom(l.radius[0]+other.radius[0], dx),
			separationZoom(l.radius[1]+other.radius[1], dy))

		if outranks(l, other) {
			other.collidedMinZoom = math.Max(apart, other.collidedMinZoom)
		} else {
			ours = math.Max(ours, apart)
		}
	}
	l.collidedMinZoom = ours
}

func outranks(a, b *indexedLabel) bool {
	if a.Z != b.Z {
		return a.Z > b.Z
	}
	return slices.Compare(a.Graphemes, b.Graphemes) < 0
}

// worldPerPixel is the world-space size of one pixel at zoom; the world
// square is two units across.
func worldPerPixel(zoom float64) float64 {
	return 2 / (tilePixels * math.Exp2(zoom))
}

// separationZoom is the zoom above which two boxes whose pixel radii sum to
// r no longer overlap along an axis where their centres are d apart.
func separationZoom(r, d float64) float64 {
	if d == 0 {
		return math.Inf(1)
	}
	return math.Log2(2 * r / (tilePixels * d))
}
