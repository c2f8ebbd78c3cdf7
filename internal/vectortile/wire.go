package vectortile

import (
	"errors"
	"fmt"

	"github.com/paulmach/protoscan"

	"vectormap/internal/style"
)

// Geometry types of the vector tile format.
const (
	geomPoint   = 1
	geomLine    = 2
	geomPolygon = 3
)

// Geometry commands.
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

const defaultExtent = 4096

// shape is a multi-part geometry: parts[i] starts at float index starts[i].
type shape struct {
	geometry []float64
	starts   []int
}

func (s *shape) empty() bool {
	return len(s.geometry) == 0 || len(s.starts) == 0
}

// part returns the i-th part's x, y pairs.
func (s *shape) part(i int) []float64 {
	end := len(s.geometry)
	if i+1 < len(s.starts) {
		end = s.starts[i+1]
	}
	return s.geometry[s.starts[i]:end]
}

type feature struct {
	tags []uint32
	shape
}

type layer struct {
	name    string
	version uint32
	extent  int
	keys    []string
	values  []style.Value

	lines         []*feature
	points        []*feature
	polygons      []*feature
	polygonBounds []*feature
}

// featureTags exposes a feature's tag indices as style.Tags.
type featureTags struct {
	l    *layer
	tags []uint32
}

func (t featureTags) Len() int {
	return len(t.tags) / 2
}

func (t featureTags) Tag(i int) (string, style.Value) {
	k, v := int(t.tags[2*i]), int(t.tags[2*i+1])
	if k >= len(t.l.keys) || v >= len(t.l.values) {
		return "", style.Value{}
	}
	return t.l.keys[k], t.l.values[v]
}

func (l *layer) tagsOf(f *feature) featureTags {
	return featureTags{l: l, tags: f.tags}
}

// parseTile reads every layer of a tile message.
func parseTile(data []byte) ([]*layer, error) {
	var (
		layers []*layer
		m      *protoscan.Message
		err    error
	)
	msg := protoscan.New(data)
	for msg.Next() {
		switch msg.FieldNumber() {
		case 3:
			m, err = msg.Message(m)
			if err != nil {
				return nil, err
			}
			l, err := parseLayer(m)
			if err != nil {
				return nil, err
			}
			layers = append(layers, l)
		default:
			msg.Skip()
		}
	}
	if err := msg.Err(); err != nil {
		return nil, err
	}
	return layers, nil
}

func parseLayer(msg *protoscan.Message) (*layer, error) {
	l := &layer{version: 1, extent: defaultExtent}
	var (
		features [][]byte
		valMsg   *protoscan.Message
		err      error
	)
	for msg.Next() {
		switch msg.FieldNumber() {
		case 1:
			if l.name, err = msg.String(); err != nil {
				return nil, err
			}
		case 2:
			data, err := msg.MessageData()
			if err != nil {
				return nil, err
			}
			features = append(features, data)
		case 3:
			k, err := msg.String()
			if err != nil {
				return nil, err
			}
			l.keys = append(l.keys, k)
		case 4:
			if valMsg, err = msg.Message(valMsg); err != nil {
				return nil, err
			}
			v, err := parseValue(valMsg)
			if err != nil {
				return nil, err
			}
			l.values = append(l.values, v)
		case 5:
			e, err := msg.Uint32()
			if err != nil {
				return nil, err
			}
			if e == 0 {
				return nil, fmt.Errorf("layer %q has zero extent", l.name)
			}
			l.extent = int(e)
		case 15:
			if l.version, err = msg.Uint32(); err != nil {
				return nil, err
			}
		default:
			msg.Skip()
		}
	}
	if err := msg.Err(); err != nil {
		return nil, err
	}

	for _, data := range features {
		msg.Reset(data)
		if err := parseFeature(msg, l); err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.name, err)
		}
	}
	return l, nil
}

func parseFeature(msg *protoscan.Message, l *layer) error {
	var (
		f        = &feature{}
		kind     int32
		hasKind  bool
		geometry *protoscan.Iterator
		err      error
	)
	for msg.Next() {
		switch msg.FieldNumber() {
		case 2:
			tags, err := msg.Iterator(nil)
			if err != nil {
				return err
			}
			for tags.HasNext() {
				v, err := tags.Uint32()
				if err != nil {
					return err
				}
				f.tags = append(f.tags, v)
			}
			if len(f.tags)%2 != 0 {
				return fmt.Errorf("odd tag count %d", len(f.tags))
			}
		case 3:
			if kind, err = msg.Int32(); err != nil {
				return err
			}
			hasKind = true
		case 4:
			if geometry, err = msg.Iterator(nil); err != nil {
				return err
			}
		default:
			msg.Skip()
		}
	}
	if err := msg.Err(); err != nil {
		return err
	}
	if !hasKind {
		return errors.New("feature without type")
	}
	if geometry == nil {
		return errors.New("feature without geometry")
	}
	if f.shape, err = decodeGeometry(geometry); err != nil {
		return err
	}

	switch kind {
	case geomPoint:
		l.points = append(l.points, f)
	case geomLine:
		l.lines = append(l.lines, f)
	case geomPolygon:
		l.polygons = append(l.polygons, f)
		bounds := &feature{tags: f.tags, shape: f.shape}
		l.polygonBounds = append(l.polygonBounds, bounds)
	}
	return nil
}

// parseValue reads a value message. When several fields are present a bool
// wins over a number, and a number over a string.
func parseValue(msg *protoscan.Message) (style.Value, error) {
	var (
		str                     string
		num                     float64
		b                       bool
		hasStr, hasNum, hasBool bool
	)
	for msg.Next() {
		var err error
		switch msg.FieldNumber() {
		case 1:
			str, err = msg.String()
			hasStr = true
		case 2:
			var v float32
			v, err = msg.Float()
			num, hasNum = float64(v), true
		case 3:
			num, err = msg.Double()
			hasNum = true
		case 4:
			var v int64
			v, err = msg.Int64()
			num, hasNum = float64(v), true
		case 5:
			var v uint64
			v, err = msg.Uint64()
			num, hasNum = float64(v), true
		case 6:
			var v int64
			v, err = msg.Sint64()
			num, hasNum = float64(v), true
		case 7:
			b, err = msg.Bool()
			hasBool = true
		default:
			msg.Skip()
		}
		if err != nil {
			return style.Value{}, err
		}
	}
	if err := msg.Err(); err != nil {
		return style.Value{}, err
	}
	switch {
	case hasBool:
		return style.Bool(b), nil
	case hasNum:
		return style.Number(num), nil
	case hasStr:
		return style.String(str), nil
	}
	return style.Number(0), nil
}

// decodeGeometry runs the command stream into tile-local points.
func decodeGeometry(iter *protoscan.Iterator) (shape, error) {
	var (
		s      shape
		cx, cy int64
	)
	next := func() (int64, int64, error) {
		dx, err := iter.Uint32()
		if err != nil {
			return 0, 0, err
		}
		dy, err := iter.Uint32()
		if err != nil {
			return 0, 0, err
		}
		cx += deZigZag(dx)
		cy += deZigZag(dy)
		return cx, cy, nil
	}

	for iter.HasNext() {
		header, err := iter.Uint32()
		if err != nil {
			return s, err
		}
		command, count := header&0x7, int(header>>3)
		switch command {
		case cmdMoveTo:
			for j := 0; j < count; j++ {
				x, y, err := next()
				if err != nil {
					return s, err
				}
				s.starts = append(s.starts, len(s.geometry))
				s.geometry = append(s.geometry, float64(x), float64(y))
			}
		case cmdLineTo:
			if len(s.starts) == 0 {
				return s, fmt.Errorf("LineTo before MoveTo")
			}
			for j := 0; j < count; j++ {
				x, y, err := next()
				if err != nil {
					return s, err
				}
				s.geometry = append(s.geometry, float64(x), float64(y))
			}
		case cmdClosePath:
			if count != 1 {
				return s, fmt.Errorf("ClosePath with count %d", count)
			}
		default:
			return s, fmt.Errorf("unknown geometry command %d", command)
		}
	}
	return s, nil
}

func deZigZag(u uint32) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
