package quadtree

import "github.com/paulmach/orb"

// Snapshot is a pointer-free copy of a node and its subtree.
type Snapshot struct {
	Center     orb.Point   `json:"center"`
	HalfRadius float64     `json:"halfRadius"`
	Count      int         `json:"count"`
	Bounds     []orb.Bound `json:"bounds,omitempty"`
	Children   []Snapshot  `json:"children,omitempty"`
}

// Snapshot copies the tree's structure, e.g. for debugging or tests.
func (t *Tree[V]) Snapshot() Snapshot {
	return t.snapshot(0)
}

func (t *Tree[V]) snapshot(i int) Snapshot {
	n := &t.nodes[i]
	s := Snapshot{Center: n.center, HalfRadius: n.halfRadius, Count: n.count}
	for _, e := range n.values {
		s.Bounds = append(s.Bounds, e.bound)
	}
	if n.children != noChildren {
		s.Children = make([]Snapshot, 4)
		for q := 0; q < 4; q++ {
			s.Children[q] = t.snapshot(n.children + q)
		}
	}
	return s
}
