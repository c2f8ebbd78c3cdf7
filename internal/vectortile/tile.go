package vectortile

import (
	"github.com/paulmach/orb"

	"vectormap/internal/style"
	"vectormap/pkg/tiles"
)

// InstanceGroup is a run of instanced line data within Tile.Geometry.
type InstanceGroup struct {
	GeometryByteLength int
	GeometryOffset     int
	InstanceCount      int
	VertexCount        int
	Z                  int
}

// ElementGroup is a filled polygon batch: a packed fill colour followed by
// float32 vertices in Tile.Geometry, and uint32 indices in Tile.Index that
// count vertices from just after the colour.
type ElementGroup struct {
	GeometryByteLength int
	GeometryOffset     int
	IndexCount         int
	// IndexOffset is in bytes.
	IndexOffset int
	Z           int
}

// Label is a text placement in world space.
type Label struct {
	Angle     float64
	Center    orb.Point
	Graphemes []string
	Fill      style.Color
	Stroke    style.Color
	Scale     float64
	Z         int
	MinZoom   int
	MaxZoom   int
}

// Text joins the label's graphemes.
func (l *Label) Text() string {
	n := 0
	for _, g := range l.Graphemes {
		n += len(g)
	}
	b := make([]byte, 0, n)
	for _, g := range l.Graphemes {
		b = append(b, g...)
	}
	return string(b)
}

// Tile is the decoded, styled and projected content of one vector tile.
// Geometry and Index are little-endian and ready for upload.
type Tile struct {
	ID       tiles.TileID
	Geometry []byte
	Index    []byte
	Lines    []InstanceGroup
	Polygons []ElementGroup
	Labels   []Label
}

// Empty reports whether the tile produced nothing to draw.
func (t *Tile) Empty() bool {
	return len(t.Lines) == 0 && len(t.Polygons) == 0 && len(t.Labels) == 0
}
