package layers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"vectormap/internal/mercator"
	"vectormap/internal/render"
	"vectormap/internal/scheduler"
	"vectormap/internal/vectortile"
	"vectormap/internal/worker"
	"vectormap/pkg/tiles"
)

type vectorTile struct {
	id        tiles.TileID
	geometry  *render.Buffer
	index     *render.Buffer
	drawables []render.Drawable
	labels    []*indexedLabel
}

// VectorOptions configures a VectorLayer.
type VectorOptions struct {
	Name      string
	Zoom      tiles.ZoomRange
	Scheduler *scheduler.Scheduler
	Decoder   *vectortile.Decoder
	Pool      *worker.Pool[*vectortile.Tile]
	Device    render.Device
	// Glyphs is shared by every layer that draws text.
	Glyphs *render.GlyphCache
	// LineCaps draws round caps on every line.
	LineCaps bool
}

// VectorLayer draws decoded vector tiles and their labels.
type VectorLayer struct {
	*tileset[*vectortile.Tile]

	opts   VectorOptions
	tiles  map[tiles.TileID]*vectorTile
	labels *labelIndex
}

// NewVectorLayer starts the layer's scheduler; Close stops it.
func NewVectorLayer(ctx context.Context, opts VectorOptions) (*VectorLayer, error) {
	l := &VectorLayer{
		opts:  opts,
		tiles: make(map[tiles.TileID]*vectorTile),
	}
	l.labels = newLabelIndex(l.measure)
	l.tileset = newTileset(opts.Name, opts.Scheduler, opts.Pool, tileHooks[*vectortile.Tile]{
		decode: func(_ context.Context, id tiles.TileID, data []byte) (*vectortile.Tile, error) {
			return opts.Decoder.Decode(id, data)
		},
		integrate: l.integrate,
		unload:    l.unload,
	})
	if err := l.start(ctx, opts.Zoom); err != nil {
		return nil, fmt.Errorf("layer %s: %w", opts.Name, err)
	}
	return l, nil
}

func (l *VectorLayer) ViewportChanged(ctx context.Context, vp tiles.Viewport) error {
	return l.viewportChanged(ctx, vp)
}

func (l *VectorLayer) Update(ctx context.Context) bool {
	return l.update(ctx)
}

func (l *VectorLayer) Loading() bool {
	return l.isLoading()
}

// splitLines cuts wrapped graphemes at each "\n".
func splitLines(graphemes []string) [][]string {
	var lines [][]string
	start := 0
	for i, g := range graphemes {
		if g == "\n" {
			lines = append(lines, graphemes[start:i])
			start = i + 1
		}
	}
	return append(lines, graphemes[start:])
}

// measure is the scaled pixel size of wrapped label text.
func (l *VectorLayer) measure(graphemes []string, scale float64) (w, h float64) {
	lines := splitLines(graphemes)
	for _, line := range lines {
		var width float64
		for _, g := range line {
			width += float64(l.opts.Glyphs.Advance(g))
		}
		w = max(w, width)
	}
	h = float64(len(lines)) * float64(l.opts.Glyphs.LineHeight())
	return w * scale, h * scale
}

func (l *VectorLayer) integrate(id tiles.TileID, t *vectortile.Tile) error {
	vt := &vectorTile{id: id}
	if old, ok := l.tiles[id]; ok {
		l.release(old)
	}
	l.tiles[id] = vt
	if t.Empty() {
		return nil
	}

	device := l.opts.Device
	if len(t.Geometry) > 0 {
		b, err := device.CreateBuffer(render.GeometryBuffer, len(t.Geometry))
		if err != nil {
			return err
		}
		vt.geometry = b
		if err := device.WriteBuffer(b, 0, t.Geometry); err != nil {
			return err
		}
	}
	if len(t.Index) > 0 {
		b, err := device.CreateBuffer(render.IndexBuffer, len(t.Index))
		if err != nil {
			return err
		}
		vt.index = b
		if err := device.WriteBuffer(b, 0, t.Index); err != nil {
			return err
		}
	}

	for _, g := range t.Lines {
		d := render.Drawable{
			Program:        render.Line,
			Geometry:       vt.geometry,
			GeometryOffset: g.GeometryOffset,
			GeometryLength: g.GeometryByteLength,
			InstanceCount:  g.InstanceCount,
			VertexCount:    g.VertexCount,
			Z:              g.Z,
		}
		vt.drawables = append(vt.drawables, d)
		if l.opts.LineCaps {
			d.Program = render.LineCap
			d.VertexCount = render.LineCapVertexCount
			vt.drawables = append(vt.drawables, d)
		}
	}
	for _, g := range t.Polygons {
		vt.drawables = append(vt.drawables, render.Drawable{
			Program:        render.Triangle,
			Geometry:       vt.geometry,
			GeometryOffset: g.GeometryOffset,
			GeometryLength: g.GeometryByteLength,
			Index:          vt.index,
			IndexOffset:    g.IndexOffset,
			IndexCount:     g.IndexCount,
			Z:              g.Z,
		})
	}
	for _, label := range t.Labels {
		vt.labels = append(vt.labels, l.labels.insert(label))
	}
	return nil
}

func (l *VectorLayer) unload(id tiles.TileID) {
	if vt, ok := l.tiles[id]; ok {
		delete(l.tiles, id)
		l.release(vt)
	}
}

func (l *VectorLayer) release(vt *vectorTile) {
	l.labels.remove(vt.labels)
	if vt.geometry != nil {
		l.opts.Device.DeleteBuffer(vt.geometry)
	}
	if vt.index != nil {
		l.opts.Device.DeleteBuffer(vt.index)
	}
}

// sorted lists loaded tiles deepest first.
func (l *VectorLayer) sorted() []*vectorTile {
	out := make([]*vectorTile, 0, len(l.tiles))
	for _, vt := range l.tiles {
		out = append(out, vt)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].id, out[j].id
		if a.Zoom != b.Zoom {
			return a.Zoom > b.Zoom
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return out
}

type glyphRun struct {
	tex *render.Texture
	z   int
}

func (l *VectorLayer) Render(b *render.Baker, zoom float64) error {
	runs := make(map[glyphRun][]render.GlyphInstance)
	var order []glyphRun
	for _, vt := range l.sorted() {
		b.AddDrawables(vt.drawables...)
		for _, label := range vt.labels {
			if !label.visible(zoom) {
				continue
			}
			err := l.layout(label, func(tex *render.Texture, g render.GlyphInstance) {
				key := glyphRun{tex: tex, z: label.Z}
				if _, ok := runs[key]; !ok {
					order = append(order, key)
				}
				runs[key] = append(runs[key], g)
			})
			if err != nil {
				return err
			}
		}
	}
	for _, key := range order {
		if err := b.AddGlyphs(runs[key], key.tex, key.z); err != nil {
			return err
		}
	}
	return nil
}

// layout emits one glyph per grapheme, each wrapped line centred on the
// label's anchor.
func (l *VectorLayer) layout(label *indexedLabel, emit func(*render.Texture, render.GlyphInstance)) error {
	glyphs := l.opts.Glyphs
	lines := splitLines(label.Graphemes)
	height := glyphs.LineHeight()
	center := mercator.SplitPoint(label.Center[0], label.Center[1])
	top := float32(len(lines)-1) * height / 2

	for i, gs := range lines {
		var width float32
		for _, g := range gs {
			width += glyphs.Advance(g)
		}
		x := -width / 2
		y := top - float32(i)*height
		for _, g := range gs {
			adv := glyphs.Advance(g)
			if strings.TrimSpace(g) == "" {
				x += adv
				continue
			}
			tex, err := glyphs.Glyph(g)
			if err != nil {
				return fmt.Errorf("glyph %q: %w", g, err)
			}
			emit(tex, render.GlyphInstance{
				Center: center,
				Offset: [2]float32{x + adv/2, y},
				Size:   [2]float32{render.GlyphTextureSize, render.GlyphTextureSize},
				UV:     [4]float32{0, 0, 1, 1},
				Fill:   uint32(label.Fill),
				Stroke: uint32(label.Stroke),
				Angle:  float32(label.Angle),
				Scale:  float32(label.Scale),
			})
			x += adv
		}
	}
	return nil
}

// Close unloads every tile and stops the scheduler.
func (l *VectorLayer) Close() {
	l.close()
	for id := range l.tiles {
		l.unload(id)
	}
}
