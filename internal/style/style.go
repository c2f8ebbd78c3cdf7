// Package style describes how vector-tile features are drawn: per source
// layer and zoom range, ordered rule lists whose first matching rule wins.
package style

// LineRule styles line features.
type LineRule struct {
	Filters []Filter
	Fill    Color
	Stroke  Color
	Radius  float64
	Stipple bool
	Z       int
}

// LineTextRule labels line features with the value of Preferred, or Fallback
// when the feature lacks it.
type LineTextRule struct {
	Filters   []Filter
	Preferred string
	Fallback  string
	Fill      Color
	Stroke    Color
	Scale     float64
	Z         int
}

// PointRule labels point features.
type PointRule struct {
	Filters    []Filter
	TextFill   Color
	TextStroke Color
	TextScale  float64
	Z          int
}

// PolygonRule fills polygons with Fill and outlines them with Stroke when
// StrokeRadius is positive.
type PolygonRule struct {
	Filters       []Filter
	Fill          Color
	Stroke        Color
	StrokeRadius  float64
	StrokeStipple bool
	Z             int
}

// Outlined reports whether polygons get an outline.
func (r *PolygonRule) Outlined() bool {
	return r.Stroke.IsSet() && r.StrokeRadius > 0
}

func (r *LineRule) filters() []Filter     { return r.Filters }
func (r *LineTextRule) filters() []Filter { return r.Filters }
func (r *PointRule) filters() []Filter    { return r.Filters }
func (r *PolygonRule) filters() []Filter  { return r.Filters }

// Rule is implemented by pointers to the rule types.
type Rule interface {
	filters() []Filter
}

// Find returns the index of the first rule whose filters all match, or -1.
func Find[R any, PR interface {
	*R
	Rule
}](rules []R, tags Tags) int {
	for i := range rules {
		if Matches(PR(&rules[i]).filters(), tags) {
			return i
		}
	}
	return -1
}

// LayerStyle applies to one source layer within [MinZoom, MaxZoom).
type LayerStyle struct {
	LayerName string
	MinZoom   int
	MaxZoom   int
	Lines     []LineRule
	LineTexts []LineTextRule
	Points    []PointRule
	Polygons  []PolygonRule
}

// Sheet is an ordered list of layer styles.
type Sheet struct {
	Layers []LayerStyle
}

// Layer returns the first style for the source layer at zoom, or nil.
func (s *Sheet) Layer(name string, zoom int) *LayerStyle {
	for i := range s.Layers {
		l := &s.Layers[i]
		if l.LayerName == name && l.MinZoom <= zoom && zoom < l.MaxZoom {
			return l
		}
	}
	return nil
}
