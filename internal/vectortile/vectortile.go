// Package vectortile decodes Mapbox vector tiles into styled, projected and
// triangulated geometry ready for GPU upload.
package vectortile

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"

	"vectormap/internal/render"
	"vectormap/internal/style"
	"vectormap/internal/triangulate"
	"vectormap/pkg/tiles"
)

// ErrMalformed wraps every payload parse failure.
var ErrMalformed = errors.New("malformed vector tile")

// Options tunes decoding.
type Options struct {
	// Language selects name:<lang> for point labels, falling back to name.
	Language string
	// MaxTriangleLengthMeters subdivides long polygon triangles; zero
	// disables subdivision.
	MaxTriangleLengthMeters float64
}

// DefaultOptions are used for zero Options fields.
func DefaultOptions() Options {
	return Options{Language: "en", MaxTriangleLengthMeters: 200_000}
}

// Decoder turns tile payloads into Tiles using a style sheet. It holds no
// mutable state and is safe for concurrent use.
type Decoder struct {
	sheet *style.Sheet
	opts  Options
}

// NewDecoder creates a decoder for the given sheet.
func NewDecoder(sheet *style.Sheet, opts Options) *Decoder {
	if opts.Language == "" {
		opts.Language = DefaultOptions().Language
	}
	return &Decoder{sheet: sheet, opts: opts}
}

// ordered keeps rule groups in first-seen order.
type ordered[R any, T any] struct {
	index map[*R]int
	rules []*R
	items [][]T
}

func (o *ordered[R, T]) add(rule *R, item T) {
	if o.index == nil {
		o.index = make(map[*R]int)
	}
	i, ok := o.index[rule]
	if !ok {
		i = len(o.rules)
		o.index[rule] = i
		o.rules = append(o.rules, rule)
		o.items = append(o.items, nil)
	}
	o.items[i] = append(o.items[i], item)
}

type styledLabel struct {
	f     *feature
	l     *layer
	style *style.LayerStyle
}

// Decode parses, clips, styles, projects and triangulates one tile. Parse
// failures are returned wrapped in ErrMalformed.
func (d *Decoder) Decode(id tiles.TileID, data []byte) (*Tile, error) {
	if isGzipped(data) {
		inflated, err := gunzip(data)
		if err != nil {
			return nil, fmt.Errorf("%w: tile %s: %w", ErrMalformed, id, err)
		}
		data = inflated
	}
	layers, err := parseTile(data)
	if err != nil {
		return nil, fmt.Errorf("%w: tile %s: %w", ErrMalformed, id, err)
	}

	var (
		lineGroups     ordered[style.LineRule, *feature]
		lineTextGroups ordered[style.LineTextRule, styledLabel]
		pointGroups    ordered[style.PointRule, styledLabel]
		polygonGroups  ordered[style.PolygonRule, *feature]
		boundGroups    ordered[style.PolygonRule, *feature]
	)
	for _, l := range layers {
		ls := d.sheet.Layer(l.name, id.Zoom)
		if ls == nil {
			continue
		}
		projectLayer(id, l)

		for _, f := range l.lines {
			if i := style.Find(ls.LineTexts, l.tagsOf(f)); i >= 0 {
				lineTextGroups.add(&ls.LineTexts[i], styledLabel{f: f, l: l, style: ls})
			}
		}
		for _, f := range l.lines {
			if i := style.Find(ls.Lines, l.tagsOf(f)); i >= 0 {
				lineGroups.add(&ls.Lines[i], f)
			}
		}
		for _, f := range l.points {
			if i := style.Find(ls.Points, l.tagsOf(f)); i >= 0 {
				pointGroups.add(&ls.Points[i], styledLabel{f: f, l: l, style: ls})
			}
		}
		for _, f := range l.polygons {
			if i := style.Find(ls.Polygons, l.tagsOf(f)); i >= 0 && ls.Polygons[i].Fill.IsSet() {
				polygonGroups.add(&ls.Polygons[i], f)
			}
		}
		for _, f := range l.polygonBounds {
			if i := style.Find(ls.Polygons, l.tagsOf(f)); i >= 0 && ls.Polygons[i].Outlined() {
				boundGroups.add(&ls.Polygons[i], f)
			}
		}
	}

	t := &Tile{ID: id}

	for g, rule := range lineGroups.rules {
		start := len(t.Geometry)
		instances := 0
		for _, f := range lineGroups.items[g] {
			for p := range f.starts {
				var n int
				t.Geometry, n = render.PushLine(t.Geometry, uint32(rule.Fill), uint32(rule.Stroke), rule.Radius, rule.Stipple, f.part(p))
				instances += n
			}
		}
		t.Lines = append(t.Lines, InstanceGroup{
			GeometryByteLength: len(t.Geometry) - start,
			GeometryOffset:     start,
			InstanceCount:      instances,
			VertexCount:        render.LineVertexCount,
			Z:                  rule.Z,
		})
	}

	for g, rule := range lineTextGroups.rules {
		for _, item := range lineTextGroups.items[g] {
			var preferred, fallback string
			tags := item.l.tagsOf(item.f)
			for i := 0; i < tags.Len(); i++ {
				k, v := tags.Tag(i)
				switch k {
				case rule.Fallback:
					fallback = v.Text()
				case rule.Preferred:
					preferred = v.Text()
				}
			}
			text := preferred
			if text == "" {
				text = fallback
			}
			if text == "" {
				continue
			}
			x, y, angle, ok := lineLabelPlacement(item.f.geometry)
			if !ok {
				continue
			}
			t.Labels = append(t.Labels, Label{
				Angle:     angle,
				Center:    orb.Point{x, y},
				Graphemes: wrap(graphemes(text)),
				Fill:      rule.Fill,
				Stroke:    rule.Stroke,
				Scale:     rule.Scale,
				Z:         rule.Z,
				MinZoom:   item.style.MinZoom,
				MaxZoom:   item.style.MaxZoom,
			})
		}
	}

	localized := "name:" + d.opts.Language
	for g, rule := range pointGroups.rules {
		for _, item := range pointGroups.items[g] {
			var preferred, fallback string
			tags := item.l.tagsOf(item.f)
			for i := 0; i < tags.Len(); i++ {
				k, v := tags.Tag(i)
				switch k {
				case "name":
					fallback = v.Text()
				case localized:
					preferred = v.Text()
				}
			}
			text := preferred
			if text == "" {
				text = fallback
			}
			if text == "" || len(item.f.geometry) < 2 {
				continue
			}
			t.Labels = append(t.Labels, Label{
				Center:    orb.Point{item.f.geometry[0], item.f.geometry[1]},
				Graphemes: wrap(graphemes(text)),
				Fill:      rule.TextFill,
				Stroke:    rule.TextStroke,
				Scale:     rule.TextScale,
				Z:         rule.Z,
				MinZoom:   item.style.MinZoom,
				MaxZoom:   item.style.MaxZoom,
			})
		}
	}

	for g, rule := range boundGroups.rules {
		start := len(t.Geometry)
		instances := 0
		for _, f := range boundGroups.items[g] {
			for p := range f.starts {
				var n int
				t.Geometry, n = render.PushLine(t.Geometry, uint32(rule.Stroke), uint32(rule.Stroke), rule.StrokeRadius, rule.StrokeStipple, f.part(p))
				instances += n
			}
		}
		t.Lines = append(t.Lines, InstanceGroup{
			GeometryByteLength: len(t.Geometry) - start,
			GeometryOffset:     start,
			InstanceCount:      instances,
			VertexCount:        render.LineVertexCount,
			Z:                  rule.Z,
		})
	}

	le := binary.LittleEndian
	for g, rule := range polygonGroups.rules {
		start := len(t.Geometry)
		indexStart := len(t.Index)
		t.Geometry = le.AppendUint32(t.Geometry, uint32(rule.Fill))
		for _, f := range polygonGroups.items[g] {
			rings := make([][]float64, len(f.starts))
			for p := range f.starts {
				rings[p] = f.part(p)
			}
			mesh := triangulate.Polygons(rings, d.opts.MaxTriangleLengthMeters)
			base := uint32((len(t.Geometry) - start - 4) / 8)
			for _, v := range mesh.Vertices {
				t.Geometry = le.AppendUint32(t.Geometry, math.Float32bits(float32(v)))
			}
			for _, i := range mesh.Indices {
				t.Index = le.AppendUint32(t.Index, base+i)
			}
		}
		t.Polygons = append(t.Polygons, ElementGroup{
			GeometryByteLength: len(t.Geometry) - start,
			GeometryOffset:     start,
			IndexCount:         (len(t.Index) - indexStart) / 4,
			IndexOffset:        indexStart,
			Z:                  rule.Z,
		})
	}

	return t, nil
}

// projectLayer clips every feature to the tile in tile-local space, drops
// features left empty, and maps the rest into world space.
func projectLayer(id tiles.TileID, l *layer) {
	extent := float64(l.extent)
	half := math.Pow(2, float64(id.Zoom-1))
	tx := float64(id.X)/half - 1
	ty := 1 - float64(id.Y)/half
	inc := 1 / half / extent

	crop := func(fs []*feature, fn func(shape) shape) []*feature {
		out := fs[:0]
		for _, f := range fs {
			f.shape = fn(f.shape)
			if f.empty() {
				continue
			}
			g := f.geometry
			for i := 0; i+1 < len(g); i += 2 {
				g[i] = tx + g[i]*inc
				g[i+1] = ty - g[i+1]*inc
			}
			out = append(out, f)
		}
		return out
	}
	line := func(s shape) shape { return cropLine(s, extent, false) }
	loop := func(s shape) shape { return cropLine(s, extent, true) }
	fill := func(s shape) shape { return cropPolygon(s, extent) }

	l.lines = crop(l.lines, line)
	l.points = crop(l.points, line)
	l.polygonBounds = crop(l.polygonBounds, loop)
	l.polygons = crop(l.polygons, fill)
}

func isGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
