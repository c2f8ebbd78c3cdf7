package collection

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"

	"vectormap/internal/mercator"
	"vectormap/internal/style"
	"vectormap/internal/triangulate"
)

// GeometryDecoder turns a record's serialized polygon into geometry with
// coordinates in degrees.
type GeometryDecoder interface {
	Decode(data []byte) (orb.Geometry, error)
}

// WKB decodes well-known binary.
type WKB struct{}

func (WKB) Decode(data []byte) (orb.Geometry, error) {
	return wkb.Unmarshal(data)
}

// Polygon is one record's fill batch: a packed fill colour followed by
// float32 vertices in Loaded.Geometry, and uint32 indices in Loaded.Index that
// count vertices from just after the colour.
type Polygon struct {
	ID                 ID
	Properties         geojson.Properties
	GeometryByteLength int
	GeometryOffset     int
	IndexCount         int
	// IndexOffset is in bytes.
	IndexOffset int
	Z           int
}

// Loaded is a collection ready for upload.
type Loaded struct {
	Geometry []byte
	Index    []byte
	Polygons []Polygon
}

// DefaultRules colour land ownership the way the trails overlay does, with a
// red fallback.
func DefaultRules(z int) []style.PolygonRule {
	owner := func(v string, fill style.Color) style.PolygonRule {
		return style.PolygonRule{
			Filters: []style.Filter{{Match: style.MatchStringEquals, Key: "owner", String: v}},
			Fill:    fill,
			Z:       z,
		}
	}
	return []style.PolygonRule{
		owner("BLM/BR", 0xFFFF0088),
		owner("NPS", 0x00FF0088),
		owner("USFS", 0x0000FF88),
		{Filters: []style.Filter{{Match: style.MatchAlways}}, Fill: 0xFF000088, Z: z},
	}
}

// Loader styles and triangulates records.
type Loader struct {
	Decoder GeometryDecoder
	Rules   []style.PolygonRule
	// MaxTriangleLengthMeters subdivides long triangles; zero disables it.
	MaxTriangleLengthMeters float64
}

// NewLoader returns a WKB loader over rules.
func NewLoader(rules []style.PolygonRule) *Loader {
	return &Loader{Decoder: WKB{}, Rules: rules}
}

// Load parses data and packs every styled record. Records whose geometry
// cannot be decoded are logged and skipped.
func (l *Loader) Load(data []byte) (*Loaded, error) {
	records, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return l.Pack(records), nil
}

// Pack triangulates records into one geometry and index buffer.
func (l *Loader) Pack(records []Record) *Loaded {
	out := &Loaded{}
	le := binary.LittleEndian
	for _, r := range records {
		i := style.Find(l.Rules, tags(r.Properties))
		if i < 0 || !l.Rules[i].Fill.IsSet() {
			continue
		}
		rule := &l.Rules[i]

		g, err := l.Decoder.Decode(r.Polygon)
		if err != nil {
			log.WithField("record", r.ID).Warnf("skipping undecodable polygon: %v", err)
			continue
		}
		mesh := triangulate.Polygons(rings(g), l.MaxTriangleLengthMeters)
		if len(mesh.Indices) == 0 {
			continue
		}

		start := len(out.Geometry)
		indexStart := len(out.Index)
		out.Geometry = le.AppendUint32(out.Geometry, uint32(rule.Fill))
		for _, v := range mesh.Vertices {
			out.Geometry = le.AppendUint32(out.Geometry, math.Float32bits(float32(v)))
		}
		for _, idx := range mesh.Indices {
			out.Index = le.AppendUint32(out.Index, idx)
		}
		out.Polygons = append(out.Polygons, Polygon{
			ID:                 r.ID,
			Properties:         r.Properties,
			GeometryByteLength: len(out.Geometry) - start,
			GeometryOffset:     start,
			IndexCount:         len(mesh.Indices),
			IndexOffset:        indexStart,
			Z:                  rule.Z,
		})
	}
	return out
}

// rings projects g into world space with exteriors wound positive and holes
// negative, in the order triangulate.Polygons groups them.
func rings(g orb.Geometry) [][]float64 {
	var out [][]float64
	var add func(orb.Geometry)
	add = func(g orb.Geometry) {
		switch g := g.(type) {
		case orb.Polygon:
			for i, r := range g {
				p := project(r)
				if len(p) < 6 {
					continue
				}
				a := triangulate.RingArea(p)
				if (i == 0) != (a > 0) {
					reverse(p)
				}
				out = append(out, p)
			}
		case orb.MultiPolygon:
			for _, p := range g {
				add(p)
			}
		case orb.Collection:
			for _, c := range g {
				add(c)
			}
		default:
			log.Debugf("ignoring %s in polygon collection", g.GeoJSONType())
		}
	}
	add(g)
	return out
}

// project drops the closing point; rings are implicitly closed.
func project(r orb.Ring) []float64 {
	n := len(r)
	if n > 1 && r[0].Equal(r[n-1]) {
		n--
	}
	out := make([]float64, 0, 2*n)
	for _, p := range r[:n] {
		x, y := mercator.Project(p.Lat(), p.Lon())
		out = append(out, x, y)
	}
	return out
}

func reverse(ring []float64) {
	for i, j := 0, len(ring)-2; i < j; i, j = i+2, j-2 {
		ring[i], ring[j] = ring[j], ring[i]
		ring[i+1], ring[j+1] = ring[j+1], ring[i+1]
	}
}

// tags converts geojson properties into style tags in key order. Nested
// values are formatted as text.
func tags(p geojson.Properties) style.Properties {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(style.Properties, 0, len(keys))
	for _, k := range keys {
		var v style.Value
		switch x := p[k].(type) {
		case string:
			v = style.String(x)
		case float64:
			v = style.Number(x)
		case bool:
			v = style.Bool(x)
		case nil:
			v = style.String("")
		default:
			v = style.String(fmt.Sprint(x))
		}
		out = append(out, style.Property{Key: k, Value: v})
	}
	return out
}
