package vectortile

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"vectormap/internal/render"
	"vectormap/internal/style"
	"vectormap/internal/triangulate"
	"vectormap/pkg/tiles"
)

var root = tiles.TileID{X: 0, Y: 0, Zoom: 0}

func mvtFeature(g orb.Geometry, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(g)
	if props != nil {
		f.Properties = props
	}
	return f
}

func encode(t *testing.T, layers ...*mvt.Layer) []byte {
	t.Helper()
	data, err := mvt.Marshal(mvt.Layers(layers))
	if err != nil {
		t.Fatalf("mvt.Marshal: %v", err)
	}
	return data
}

func mvtLayer(name string, features ...*geojson.Feature) *mvt.Layer {
	return &mvt.Layer{Name: name, Version: 2, Extent: 4096, Features: features}
}

func alwaysSheet() *style.Sheet {
	always := []style.Filter{{Match: style.MatchAlways}}
	return &style.Sheet{Layers: []style.LayerStyle{{
		LayerName: "all",
		MinZoom:   0,
		MaxZoom:   24,
		Lines:     []style.LineRule{{Filters: always, Fill: style.RGBA(1, 2, 3, 255), Stroke: style.RGBA(4, 5, 6, 255), Radius: 2, Z: 3}},
		Polygons:  []style.PolygonRule{{Filters: always, Fill: style.RGBA(9, 9, 9, 255), Z: 1}},
		Points:    []style.PointRule{{Filters: always, TextFill: style.RGBA(0, 0, 0, 255), TextScale: 1, Z: 7}},
		LineTexts: []style.LineTextRule{{Filters: always, Preferred: "name:latin", Fallback: "name", Scale: 1, Z: 6}},
	}}}
}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	// positive area in tile (y-down) coordinates
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

// polygonArea sums triangle areas of one element group in world space.
func polygonArea(t *testing.T, tile *Tile, g ElementGroup) float64 {
	t.Helper()
	le := binary.LittleEndian
	vert := func(i uint32) (float64, float64) {
		off := g.GeometryOffset + 4 + int(i)*8
		if off+8 > g.GeometryOffset+g.GeometryByteLength {
			t.Fatalf("index %d outside group", i)
		}
		x := math.Float32frombits(le.Uint32(tile.Geometry[off:]))
		y := math.Float32frombits(le.Uint32(tile.Geometry[off+4:]))
		return float64(x), float64(y)
	}
	sum := 0.0
	for k := 0; k < g.IndexCount; k += 3 {
		var p [3][2]float64
		for j := 0; j < 3; j++ {
			i := le.Uint32(tile.Index[g.IndexOffset+4*(k+j):])
			p[j][0], p[j][1] = vert(i)
		}
		sum += math.Abs((p[1][0]-p[0][0])*(p[2][1]-p[0][1])-(p[2][0]-p[0][0])*(p[1][1]-p[0][1])) / 2
	}
	return sum
}

func TestDecodeSingleAlwaysRule(t *testing.T) {
	polys := []orb.Polygon{
		square(100, 100, 1000, 1000),
		square(2000, 2000, 3000, 2500),
		{
			{{100, 2000}, {1500, 2000}, {1500, 3500}, {100, 3500}, {100, 2000}},
			{{500, 2500}, {500, 3000}, {1000, 3000}, {1000, 2500}, {500, 2500}},
		},
	}
	var fs []*geojson.Feature
	for _, p := range polys {
		fs = append(fs, mvtFeature(p, geojson.Properties{"class": "x"}))
	}
	data := encode(t, mvtLayer("all", fs...))

	tile, err := NewDecoder(alwaysSheet(), Options{}).Decode(root, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tile.Polygons) != 1 {
		t.Fatalf("polygon groups = %d, want 1", len(tile.Polygons))
	}

	// index count equals the sum of per-feature ear-cut index counts
	inc := 2.0 / 4096
	want := 0
	for _, p := range polys {
		var rings [][]float64
		for _, r := range p {
			var flat []float64
			for _, pt := range r[:len(r)-1] {
				flat = append(flat, -1+pt[0]*inc, 1-pt[1]*inc)
			}
			rings = append(rings, flat)
		}
		want += len(triangulate.Polygons(rings, 0).Indices)
	}
	g := tile.Polygons[0]
	if g.IndexCount != want {
		t.Errorf("index count = %d, want %d", g.IndexCount, want)
	}
	if g.Z != 1 {
		t.Errorf("z = %d", g.Z)
	}
	if fill := binary.LittleEndian.Uint32(tile.Geometry[g.GeometryOffset:]); fill != uint32(style.RGBA(9, 9, 9, 255)) {
		t.Errorf("fill = %#x", fill)
	}

	area := polygonArea(t, tile, g)
	wantArea := (900*900 + 1000*500 + 1400*1500 - 500*500) * inc * inc
	if math.Abs(area-wantArea) > 1e-5 {
		t.Errorf("area = %v, want %v", area, wantArea)
	}
}

func TestDecodeLines(t *testing.T) {
	data := encode(t, mvtLayer("all",
		mvtFeature(orb.LineString{{100, 100}, {200, 100}, {200, 300}}, geojson.Properties{"name": "Main"}),
		mvtFeature(orb.LineString{{100, 500}, {5000, 500}}, nil),
		mvtFeature(orb.LineString{{5000, 5000}, {6000, 6000}}, nil),
	))
	tile, err := NewDecoder(alwaysSheet(), Options{}).Decode(root, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tile.Lines) != 1 {
		t.Fatalf("line groups = %d", len(tile.Lines))
	}
	g := tile.Lines[0]
	if g.InstanceCount != 3 || g.VertexCount != render.LineVertexCount || g.Z != 3 {
		t.Fatalf("group = %+v", g)
	}
	if g.GeometryByteLength != 3*render.LineVertexStride {
		t.Errorf("byte length = %d", g.GeometryByteLength)
	}
	inst := render.ReadLineInstances(tile.Geometry[g.GeometryOffset : g.GeometryOffset+g.GeometryByteLength])
	inc := float32(2.0 / 4096)
	near := func(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-6 }

	if !near(inst[0].X, -1+100*inc) || !near(inst[0].Y, 1-100*inc) || !near(inst[0].NextX, -1+200*inc) {
		t.Errorf("first instance = %+v", inst[0])
	}
	if !near(inst[1].DistanceAlong, 100*inc) {
		t.Errorf("distance along = %v", inst[1].DistanceAlong)
	}
	if inst[0].Fill != uint32(style.RGBA(1, 2, 3, 255)) || inst[0].Stroke != uint32(style.RGBA(4, 5, 6, 255)) || inst[0].Radius != 2 {
		t.Errorf("style = %+v", inst[0])
	}
	// the crossing line is cut at the right edge
	if !near(inst[2].NextX, 1) || !near(inst[2].NextY, 1-500*inc) {
		t.Errorf("clipped instance = %+v", inst[2])
	}

	if len(tile.Labels) != 1 {
		t.Fatalf("labels = %d", len(tile.Labels))
	}
	l := tile.Labels[0]
	if l.Text() != "Main" || l.Z != 6 || l.MaxZoom != 24 {
		t.Errorf("label = %+v", l)
	}
	// anchored on the second vertex, rotated along the first segment
	if !near(float32(l.Center[0]), -1+200*inc) || l.Angle != 0 {
		t.Errorf("label placement = %v angle %v", l.Center, l.Angle)
	}
}

func TestDecodePointLabels(t *testing.T) {
	data := encode(t, mvtLayer("all",
		mvtFeature(orb.Point{2048, 2048}, geojson.Properties{"name": "Zürich", "name:en": "Zurich"}),
		mvtFeature(orb.Point{1024, 1024}, geojson.Properties{"name": "Bern"}),
		mvtFeature(orb.Point{10, 10}, geojson.Properties{"class": "nameless"}),
		mvtFeature(orb.Point{9000, 10}, geojson.Properties{"name": "Outside"}),
	))
	tile, err := NewDecoder(alwaysSheet(), Options{Language: "en"}).Decode(root, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tile.Labels) != 2 {
		t.Fatalf("labels = %+v", tile.Labels)
	}
	if tile.Labels[0].Text() != "Zurich" || tile.Labels[1].Text() != "Bern" {
		t.Errorf("texts = %q, %q", tile.Labels[0].Text(), tile.Labels[1].Text())
	}
	if c := tile.Labels[0].Center; c[0] != 0 || c[1] != 0 {
		t.Errorf("centre = %v", c)
	}
}

func TestDecodeDonutCoversTile(t *testing.T) {
	data := encode(t, mvtLayer("all",
		mvtFeature(square(-1000, -1000, 5000, 5000), nil),
	))
	tile, err := NewDecoder(alwaysSheet(), Options{}).Decode(root, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tile.Polygons) != 1 {
		t.Fatalf("polygon groups = %d", len(tile.Polygons))
	}
	// zoom 0 covers the whole 2 x 2 world square
	if area := polygonArea(t, tile, tile.Polygons[0]); math.Abs(area-4) > 1e-6 {
		t.Errorf("area = %v, want 4", area)
	}
}

func TestDecodePolygonOutlines(t *testing.T) {
	sheet := &style.Sheet{Layers: []style.LayerStyle{{
		LayerName: "building",
		MaxZoom:   24,
		Polygons: []style.PolygonRule{{
			Filters:      []style.Filter{{Match: style.MatchStringEquals, Key: "kind", String: "house"}},
			Stroke:       style.RGBA(200, 0, 0, 255),
			StrokeRadius: 1,
			Z:            2,
		}},
	}}}
	data := encode(t, mvtLayer("building",
		mvtFeature(square(100, 100, 200, 200), geojson.Properties{"kind": "house"}),
		mvtFeature(square(300, 300, 400, 400), geojson.Properties{"kind": "shed"}),
	))
	tile, err := NewDecoder(sheet, Options{}).Decode(tiles.TileID{X: 3, Y: 5, Zoom: 4}, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tile.Polygons) != 0 {
		t.Errorf("unfilled rule produced %d polygon groups", len(tile.Polygons))
	}
	if len(tile.Lines) != 1 || tile.Lines[0].InstanceCount != 4 {
		t.Fatalf("outline groups = %+v", tile.Lines)
	}
	inst := render.ReadLineInstances(tile.Geometry)
	if inst[0].Fill != uint32(style.RGBA(200, 0, 0, 255)) || inst[0].Fill != inst[0].Stroke {
		t.Errorf("outline colours = %+v", inst[0])
	}
	// the closing instance returns to the ring's first point
	if inst[3].NextX != inst[0].X || inst[3].NextY != inst[0].Y {
		t.Errorf("ring not closed: %+v -> %+v", inst[3], inst[0])
	}
}

func TestDecodeUnstyledLayerSkipped(t *testing.T) {
	data := encode(t, mvtLayer("elsewhere", mvtFeature(orb.LineString{{1, 1}, {2, 2}}, nil)))
	tile, err := NewDecoder(alwaysSheet(), Options{}).Decode(root, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !tile.Empty() {
		t.Errorf("expected an empty tile, got %+v", tile)
	}
}

func TestDecodeGzipped(t *testing.T) {
	raw := encode(t, mvtLayer("all", mvtFeature(orb.LineString{{1, 1}, {2, 2}}, nil)))
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()
	tile, err := NewDecoder(alwaysSheet(), Options{}).Decode(root, buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tile.Lines) != 1 {
		t.Errorf("line groups = %d", len(tile.Lines))
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		// layer field claims 16 bytes, only 2 follow
		"truncated layer": {0x1a, 0x10, 0x0a, 0x01},
		// geometry with command 3
		"unknown command": mvtWithGeometry([]byte{0x0b, 0x02, 0x02}),
		// ClosePath with count 2
		"bad close path": mvtWithGeometry([]byte{0x09, 0x02, 0x02, 0x17}),
		// polygon type, no geometry field
		"missing geometry": mvtWithFeature([]byte{0x18, 0x03}),
		// MoveTo and LineTo, no type field
		"missing type": mvtWithFeature([]byte{0x22, 0x06, 0x09, 0x04, 0x04, 0x0a, 0x04, 0x04}),
	}
	d := NewDecoder(alwaysSheet(), Options{})
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := d.Decode(root, data); !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

// mvtWithGeometry builds a tile with one "all" layer holding one line feature
// whose packed geometry is geom.
func mvtWithGeometry(geom []byte) []byte {
	feat := []byte{0x18, 0x02, 0x22, byte(len(geom))}
	return mvtWithFeature(append(feat, geom...))
}

// mvtWithFeature builds a tile with one "all" layer holding the encoded
// feature message feat.
func mvtWithFeature(feat []byte) []byte {
	lay := []byte{0x0a, 0x03, 'a', 'l', 'l', 0x12, byte(len(feat))}
	lay = append(lay, feat...)
	tile := []byte{0x1a, byte(len(lay))}
	return append(tile, lay...)
}

func TestWrap(t *testing.T) {
	got := wrap(graphemes("Rue de la Paix et des Lilas"))
	text := ""
	for _, g := range got {
		text += g
	}
	if text != "Rue de la\nPaix et des\nLilas" {
		t.Errorf("wrap = %q", text)
	}
	if g := graphemes("éa"); len(g) != 2 {
		t.Errorf("graphemes = %q", g)
	}
}
