package quadtree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/paulmach/orb"
)

func randomBound(rng *rand.Rand, size float64) orb.Bound {
	x := rng.Float64()*2 - 1
	y := rng.Float64()*2 - 1
	w := rng.Float64() * size
	h := rng.Float64() * size
	return orb.Bound{Min: orb.Point{x, y}, Max: orb.Point{x + w, y + h}}
}

func sorted(v []int) []int {
	out := append([]int(nil), v...)
	sort.Ints(out)
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueryRectMatchesBruteForce(t *testing.T) {
	for _, threshold := range []int{2, 5, 16, DefaultSplitThreshold} {
		rng := rand.New(rand.NewSource(int64(threshold)))
		tree := New[int](orb.Point{0, 0}, 1, WithSplitThreshold(threshold))
		var bounds []orb.Bound
		for i := 0; i < 600; i++ {
			b := randomBound(rng, 0.05)
			bounds = append(bounds, b)
			tree.Insert(b, i)
		}
		if tree.Len() != len(bounds) {
			t.Fatalf("threshold %d: Len = %d", threshold, tree.Len())
		}
		for q := 0; q < 100; q++ {
			query := randomBound(rng, 0.3)
			var want []int
			for i, b := range bounds {
				if intersectRects(query, b) {
					want = append(want, i)
				}
			}
			got := sorted(tree.QueryRect(query, nil))
			if !equalInts(got, want) {
				t.Fatalf("threshold %d: query %v got %v, want %v", threshold, query, got, want)
			}
		}
	}
}

func TestQueryCircleMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tree := New[int](orb.Point{0, 0}, 1, WithSplitThreshold(8))
	var bounds []orb.Bound
	for i := 0; i < 400; i++ {
		b := randomBound(rng, 0.02)
		bounds = append(bounds, b)
		tree.Insert(b, i)
	}
	for q := 0; q < 100; q++ {
		p := orb.Point{rng.Float64()*2 - 1, rng.Float64()*2 - 1}
		r := rng.Float64() * 0.2
		var want []int
		for i, b := range bounds {
			if intersectCircleRect(p, r, b) {
				want = append(want, i)
			}
		}
		got := sorted(tree.QueryCircle(p, r, nil))
		if !equalInts(got, want) {
			t.Fatalf("circle %v r=%v: got %v, want %v", p, r, got, want)
		}
	}
}

func TestTinyCircleQuery(t *testing.T) {
	tree := NewWorld[string]()
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		tree.Insert(randomBound(rng, 0.001), "noise")
	}
	b := orb.Bound{
		Min: orb.Point{-0.6761881748, 0.2957411207},
		Max: orb.Point{-0.6759362, 0.2958760},
	}
	tree.Insert(b, "label")
	got := tree.QueryCircle(orb.Point{-0.6761819853825033, 0.2957417081612863}, 1.76943513605359e-7, nil)
	found := false
	for _, v := range got {
		if v == "label" {
			found = true
		}
	}
	if !found {
		t.Errorf("label not found, got %v", got)
	}
}

func TestDeleteCollapses(t *testing.T) {
	const threshold = 4
	tree := New[int](orb.Point{0, 0}, 1, WithSplitThreshold(threshold))
	rng := rand.New(rand.NewSource(5))
	var bounds []orb.Bound
	for i := 0; i < 50; i++ {
		b := randomBound(rng, 0.01)
		bounds = append(bounds, b)
		tree.Insert(b, i)
	}
	if len(tree.Snapshot().Children) == 0 {
		t.Fatalf("expected a split tree")
	}
	for i, b := range bounds {
		v, ok := tree.Delete(b)
		if !ok || v != i {
			t.Fatalf("Delete(%d) = %v, %v", i, v, ok)
		}
		if tree.Len() != len(bounds)-i-1 {
			t.Fatalf("Len after %d deletes = %d", i+1, tree.Len())
		}
	}
	snap := tree.Snapshot()
	if len(snap.Children) != 0 || len(snap.Bounds) != 0 {
		t.Errorf("tree not collapsed: %+v", snap)
	}
	if _, ok := tree.Delete(bounds[0]); ok {
		t.Errorf("deleting twice should fail")
	}
}

func TestDeleteFuncPicksValue(t *testing.T) {
	tree := New[string](orb.Point{0, 0}, 1)
	b := orb.Bound{Min: orb.Point{0.1, 0.1}, Max: orb.Point{0.2, 0.2}}
	tree.Insert(b, "first")
	tree.Insert(b, "second")

	v, ok := tree.DeleteFunc(b, func(s string) bool { return s == "second" })
	if !ok || v != "second" {
		t.Fatalf("DeleteFunc = %q, %v", v, ok)
	}
	if got := tree.QueryRect(b, nil); len(got) != 1 || got[0] != "first" {
		t.Errorf("left %v", got)
	}
	if _, ok := tree.DeleteFunc(b, func(s string) bool { return s == "second" }); ok {
		t.Error("deleted a value that is gone")
	}
}

func TestArenaReuse(t *testing.T) {
	tree := New[int](orb.Point{0, 0}, 1, WithSplitThreshold(2))
	rng := rand.New(rand.NewSource(9))
	for round := 0; round < 3; round++ {
		var bounds []orb.Bound
		for i := 0; i < 30; i++ {
			b := randomBound(rng, 0.01)
			bounds = append(bounds, b)
			tree.Insert(b, i)
		}
		for _, b := range bounds {
			if _, ok := tree.Delete(b); !ok {
				t.Fatalf("round %d: delete failed", round)
			}
		}
		if tree.Len() != 0 {
			t.Fatalf("round %d: Len = %d", round, tree.Len())
		}
		// every child block is back on the free list
		if 4*len(tree.free) != len(tree.nodes)-1 {
			t.Fatalf("round %d: %d free blocks for %d nodes", round, len(tree.free), len(tree.nodes))
		}
	}
}

func TestWorldWrapsY(t *testing.T) {
	w := NewWorld[int]()
	w.Insert(orb.Bound{Min: orb.Point{0, -0.999}, Max: orb.Point{0.001, -0.998}}, 1)
	if got := w.QueryCircle(orb.Point{0, 0.9995}, 0.01, nil); len(got) != 1 {
		t.Errorf("circle across the y seam = %v", got)
	}
	if got := w.QueryRect(orb.Bound{Min: orb.Point{-0.1, 0.99}, Max: orb.Point{0.1, 1.005}}, nil); len(got) != 1 {
		t.Errorf("rect across the y seam = %v", got)
	}
	// the x seam does not wrap
	w.Insert(orb.Bound{Min: orb.Point{-0.999, 0}, Max: orb.Point{-0.998, 0.001}}, 2)
	if got := w.QueryCircle(orb.Point{0.9995, 0}, 0.01, nil); len(got) != 0 {
		t.Errorf("circle across x wrapped to %v", got)
	}
}

func TestWorldXWrapsX(t *testing.T) {
	w := NewWorldX[int]()
	w.Insert(orb.Bound{Min: orb.Point{-0.999, 0}, Max: orb.Point{-0.998, 0.001}}, 1)
	if got := w.QueryCircle(orb.Point{0.9995, 0}, 0.01, nil); len(got) != 1 {
		t.Errorf("circle across antimeridian = %v", got)
	}
	if got := w.QueryRect(orb.Bound{Min: orb.Point{0.99, -0.1}, Max: orb.Point{1.005, 0.1}}, nil); len(got) != 1 {
		t.Errorf("rect across antimeridian = %v", got)
	}
	if got := w.QueryRect(orb.Bound{Min: orb.Point{0.5, -0.1}, Max: orb.Point{0.6, 0.1}}, nil); len(got) != 0 {
		t.Errorf("unexpected hit %v", got)
	}
	w.Insert(orb.Bound{Min: orb.Point{0, -0.999}, Max: orb.Point{0.001, -0.998}}, 2)
	if got := w.QueryCircle(orb.Point{0, 0.9995}, 0.01, nil); len(got) != 0 {
		t.Errorf("circle across y wrapped to %v", got)
	}
}
