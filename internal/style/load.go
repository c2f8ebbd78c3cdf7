package style

import (
	"bytes"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

//go:embed default.yaml
var defaultSheet []byte

type rawFilter struct {
	Match string `mapstructure:"match"`
	Key   string `mapstructure:"key"`
	Value any    `mapstructure:"value"`
}

type rawLine struct {
	Filters []rawFilter `mapstructure:"filters"`
	Fill    string      `mapstructure:"fill"`
	Stroke  string      `mapstructure:"stroke"`
	Radius  float64     `mapstructure:"radius"`
	Stipple bool        `mapstructure:"stipple"`
	Z       int         `mapstructure:"z"`
}

type rawLineText struct {
	Filters   []rawFilter `mapstructure:"filters"`
	Preferred string      `mapstructure:"preferred"`
	Fallback  string      `mapstructure:"fallback"`
	Fill      string      `mapstructure:"fill"`
	Stroke    string      `mapstructure:"stroke"`
	Scale     float64     `mapstructure:"scale"`
	Z         int         `mapstructure:"z"`
}

type rawPoint struct {
	Filters    []rawFilter `mapstructure:"filters"`
	TextFill   string      `mapstructure:"textFill"`
	TextStroke string      `mapstructure:"textStroke"`
	TextScale  float64     `mapstructure:"textScale"`
	Z          int         `mapstructure:"z"`
}

type rawPolygon struct {
	Filters       []rawFilter `mapstructure:"filters"`
	Fill          string      `mapstructure:"fill"`
	Stroke        string      `mapstructure:"stroke"`
	StrokeRadius  float64     `mapstructure:"strokeRadius"`
	StrokeStipple bool        `mapstructure:"strokeStipple"`
	Z             int         `mapstructure:"z"`
}

type rawLayer struct {
	LayerName string        `mapstructure:"layerName"`
	MinZoom   int           `mapstructure:"minZoom"`
	MaxZoom   int           `mapstructure:"maxZoom"`
	Lines     []rawLine     `mapstructure:"lines"`
	LineTexts []rawLineText `mapstructure:"lineTexts"`
	Points    []rawPoint    `mapstructure:"points"`
	Polygons  []rawPolygon  `mapstructure:"polygons"`
}

type rawSheet struct {
	Layers []rawLayer `mapstructure:"layers"`
}

// Default returns the built-in sheet for OpenMapTiles-schema tiles.
func Default() *Sheet {
	s, err := Parse(defaultSheet, "yaml")
	if err != nil {
		panic(fmt.Sprintf("style: embedded default sheet: %v", err))
	}
	return s
}

// LoadFile reads a sheet from a YAML, JSON or TOML file.
func LoadFile(path string) (*Sheet, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read style %s: %w", path, err)
	}
	s, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("style %s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// Parse reads a sheet from memory; format is a viper config type such as
// "yaml" or "json".
func Parse(data []byte, format string) (*Sheet, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse style: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Sheet, error) {
	var raw rawSheet
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode style: %w", err)
	}
	return raw.compile()
}

func (raw *rawSheet) compile() (*Sheet, error) {
	s := &Sheet{Layers: make([]LayerStyle, 0, len(raw.Layers))}
	for i := range raw.Layers {
		l, err := raw.Layers[i].compile()
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, raw.Layers[i].LayerName, err)
		}
		s.Layers = append(s.Layers, l)
	}
	return s, nil
}

func (raw *rawLayer) compile() (LayerStyle, error) {
	l := LayerStyle{LayerName: raw.LayerName, MinZoom: raw.MinZoom, MaxZoom: raw.MaxZoom}
	if l.MaxZoom == 0 {
		l.MaxZoom = 31
	}
	c := &colors{}
	for _, r := range raw.Lines {
		filters, err := compileFilters(r.Filters)
		if err != nil {
			return l, err
		}
		l.Lines = append(l.Lines, LineRule{
			Filters: filters,
			Fill:    c.parse(r.Fill),
			Stroke:  c.parse(r.Stroke),
			Radius:  r.Radius,
			Stipple: r.Stipple,
			Z:       r.Z,
		})
	}
	for _, r := range raw.LineTexts {
		filters, err := compileFilters(r.Filters)
		if err != nil {
			return l, err
		}
		l.LineTexts = append(l.LineTexts, LineTextRule{
			Filters:   filters,
			Preferred: r.Preferred,
			Fallback:  r.Fallback,
			Fill:      c.parse(r.Fill),
			Stroke:    c.parse(r.Stroke),
			Scale:     orOne(r.Scale),
			Z:         r.Z,
		})
	}
	for _, r := range raw.Points {
		filters, err := compileFilters(r.Filters)
		if err != nil {
			return l, err
		}
		l.Points = append(l.Points, PointRule{
			Filters:    filters,
			TextFill:   c.parse(r.TextFill),
			TextStroke: c.parse(r.TextStroke),
			TextScale:  orOne(r.TextScale),
			Z:          r.Z,
		})
	}
	for _, r := range raw.Polygons {
		filters, err := compileFilters(r.Filters)
		if err != nil {
			return l, err
		}
		l.Polygons = append(l.Polygons, PolygonRule{
			Filters:       filters,
			Fill:          c.parse(r.Fill),
			Stroke:        c.parse(r.Stroke),
			StrokeRadius:  r.StrokeRadius,
			StrokeStipple: r.StrokeStipple,
			Z:             r.Z,
		})
	}
	return l, c.err
}

// colors parses colour strings, keeping the first error.
type colors struct {
	err error
}

func (c *colors) parse(s string) Color {
	if s == "" {
		return 0
	}
	v, err := ParseColor(s)
	if err != nil && c.err == nil {
		c.err = err
	}
	return v
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

func compileFilters(raw []rawFilter) ([]Filter, error) {
	out := make([]Filter, 0, len(raw))
	for _, r := range raw {
		m, err := ParseMatch(strings.ToLower(r.Match))
		if err != nil {
			return nil, err
		}
		f := Filter{Match: m, Key: r.Key}
		switch m {
		case MatchAlways:
		case MatchGreaterThan, MatchLessThan, MatchNumberEquals:
			f.Number, err = cast.ToFloat64E(r.Value)
		case MatchStringEquals:
			f.String, err = cast.ToStringE(r.Value)
		case MatchStringIn:
			f.Strings, err = cast.ToStringSliceE(r.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("filter %s on %q: %w", r.Match, r.Key, err)
		}
		if m != MatchAlways && f.Key == "" {
			return nil, fmt.Errorf("filter %s needs a key", r.Match)
		}
		out = append(out, f)
	}
	return out, nil
}
