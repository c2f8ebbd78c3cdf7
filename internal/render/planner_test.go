package render

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestCenters(t *testing.T) {
	center := orb.Point{0.25, 0.1}
	tests := []struct {
		name string
		area orb.Bound
		want []float64
	}{
		{"inside", orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}, []float64{0.25}},
		{"west seam", orb.Bound{Min: orb.Point{-200, -10}, Max: orb.Point{10, 10}}, []float64{0.25, 2.25}},
		{"east seam", orb.Bound{Min: orb.Point{170, -10}, Max: orb.Point{190, 10}}, []float64{0.25, -1.75}},
		{"both", orb.Bound{Min: orb.Point{-400, -10}, Max: orb.Point{400, 10}}, []float64{0.25, 2.25, -1.75}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Centers(tt.area, center)
			if len(got) != len(tt.want) {
				t.Fatalf("centres = %d, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if x := got[i].X.Float64(); x != w {
					t.Errorf("centre %d x = %v, want %v", i, x, w)
				}
			}
		})
	}
}

func TestRenderOneDrawPerRunAndCenter(t *testing.T) {
	dev := newFakeDevice()
	p, err := NewPlanner(dev, 1<<16, 1<<12)
	if err != nil {
		t.Fatal(err)
	}
	b := p.Baker()
	tex := NewTexture(16, 16, nil)
	for i := 0; i < 3; i++ {
		if err := b.AddLines(lineBytes(t, 2), false, 2); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.AddTriangles(1, []float64{0, 0, 1, 0, 0, 1}, []uint32{0, 1, 2}, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.AddGlyphs([]GlyphInstance{{Scale: 1}, {Scale: 1}}, tex, 3); err != nil {
		t.Fatal(err)
	}

	area := orb.Bound{Min: orb.Point{-190, -10}, Max: orb.Point{0, 10}}
	if err := p.Render(area, View{Width: 800, Height: 600}); err != nil {
		t.Fatal(err)
	}

	// triangle, line and glyph runs, each drawn around two centres
	if len(dev.batches) != 6 {
		t.Fatalf("draws = %d, want 6", len(dev.batches))
	}
	order := []*Program{Triangle, Triangle, Line, Line, Glyph, Glyph}
	for i, want := range order {
		if dev.batches[i].Program != want {
			t.Errorf("draw %d program = %s, want %s", i, dev.batches[i].Program.Name, want.Name)
		}
	}
	lines := dev.batches[2].Drawables
	if len(lines) != 1 || lines[0].InstanceCount != 6 {
		t.Errorf("line run = %+v", lines)
	}
	if b.GeometryLen() != 0 || len(b.Drawables()) != 0 {
		t.Error("baker not cleared after render")
	}
}

func TestRenderSkipsRejectedBatches(t *testing.T) {
	dev := newFakeDevice()
	dev.reject = Line
	p, err := NewPlanner(dev, 1<<16, 1<<12)
	if err != nil {
		t.Fatal(err)
	}
	b := p.Baker()
	if err := b.AddTriangles(1, []float64{0, 0, 1, 0, 0, 1}, []uint32{0, 1, 2}, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.AddLines(lineBytes(t, 2), false, 2); err != nil {
		t.Fatal(err)
	}
	if err := b.AddGlyphs([]GlyphInstance{{Scale: 1}}, NewTexture(16, 16, nil), 3); err != nil {
		t.Fatal(err)
	}

	area := orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}
	if err := p.Render(area, View{Width: 800, Height: 600}); err == nil {
		t.Error("rejected batch not reported")
	}
	if len(dev.batches) != 2 || dev.batches[0].Program != Triangle || dev.batches[1].Program != Glyph {
		t.Errorf("drawn = %d batches, want triangle then glyph", len(dev.batches))
	}
	if len(b.Drawables()) != 0 {
		t.Error("baker not cleared after render")
	}
}

func TestMergeContiguous(t *testing.T) {
	buf := NewBuffer(GeometryBuffer, 100, nil)
	other := NewBuffer(GeometryBuffer, 100, nil)
	plain := &Program{Name: "plain", Stride: 8}
	run := []Drawable{
		{Program: plain, Geometry: buf, GeometryOffset: 0, GeometryLength: 24, VertexCount: 3},
		{Program: plain, Geometry: buf, GeometryOffset: 24, GeometryLength: 24, VertexCount: 3},
		{Program: plain, Geometry: buf, GeometryOffset: 56, GeometryLength: 8, VertexCount: 1},
		{Program: plain, Geometry: other, GeometryOffset: 64, GeometryLength: 8, VertexCount: 1},
		{Program: plain, Geometry: other, GeometryOffset: 72, GeometryLength: 8, VertexCount: 1, Z: 1},
	}
	got := mergeContiguous(run)
	if len(got) != 4 {
		t.Fatalf("merged = %+v", got)
	}
	if got[0].VertexCount != 6 || got[0].GeometryLength != 48 {
		t.Errorf("first = %+v", got[0])
	}
}

func TestPlannerRelease(t *testing.T) {
	dev := newFakeDevice()
	p, err := NewPlanner(dev, 64, 64)
	if err != nil {
		t.Fatal(err)
	}
	p.Release()
	if len(dev.released) != 2 {
		t.Errorf("released %d buffers", len(dev.released))
	}
}
