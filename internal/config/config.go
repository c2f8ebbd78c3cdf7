// Package config loads viewer settings from a file, the environment and
// built-in defaults.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. VECTORMAP_FETCH_MAXINFLIGHT.
const EnvPrefix = "VECTORMAP"

// Config holds application configuration
type Config struct {
	Window      Window       `mapstructure:"window"`
	Camera      Camera       `mapstructure:"camera"`
	Fetch       Fetch        `mapstructure:"fetch"`
	Render      Render       `mapstructure:"render"`
	Decode      Decode       `mapstructure:"decode"`
	Tilesets    []Tileset    `mapstructure:"tilesets"`
	Collections []Collection `mapstructure:"collections"`
	Log         Log          `mapstructure:"log"`
}

type Window struct {
	Title  string `mapstructure:"title"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

// Camera is the initial view.
type Camera struct {
	Lat  float64 `mapstructure:"lat"`
	Lng  float64 `mapstructure:"lng"`
	Zoom float64 `mapstructure:"zoom"`
}

// Fetch tunes tile downloading.
type Fetch struct {
	// MaxInFlight caps concurrent requests across all tilesets.
	MaxInFlight int           `mapstructure:"maxInFlight"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"userAgent"`
	// CullDelay debounces unloading after the viewport settles.
	CullDelay time.Duration `mapstructure:"cullDelay"`
	// CacheDir keeps downloaded tiles on disk when set.
	CacheDir string `mapstructure:"cacheDir"`
}

// Render sizes the per-frame staging buffers.
type Render struct {
	MaxGeometryBytes int `mapstructure:"maxGeometryBytes"`
	MaxIndexBytes    int `mapstructure:"maxIndexBytes"`
}

// Decode tunes the vector tile workers.
type Decode struct {
	Workers                 int     `mapstructure:"workers"`
	Language                string  `mapstructure:"language"`
	MaxTriangleLengthMeters float64 `mapstructure:"maxTriangleLengthMeters"`
}

// Tileset kinds.
const (
	Vector = "vector"
	Raster = "raster"
)

// Tileset is one tile layer. Tiles come from URL, a {z}/{x}/{y} template, or
// from an MBTiles archive when MBTiles is set.
type Tileset struct {
	Name      string  `mapstructure:"name"`
	Type      string  `mapstructure:"type"`
	URL       string  `mapstructure:"url"`
	MBTiles   string  `mapstructure:"mbtiles"`
	MinZoom   int     `mapstructure:"minZoom"`
	MaxZoom   int     `mapstructure:"maxZoom"`
	ExtraZoom float64 `mapstructure:"extraZoom"`
	// Style is a style sheet path; empty uses the built-in sheet.
	Style string `mapstructure:"style"`
}

// Collection is a polygon collection file drawn above the tilesets.
type Collection struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
	Z    int    `mapstructure:"z"`
}

type Log struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

var (
	instance *Config
	mu       sync.RWMutex
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Window: Window{Title: "vectormap", Width: 1280, Height: 800},
		Camera: Camera{Lat: 46.8, Lng: 8.2, Zoom: 3},
		Fetch: Fetch{
			MaxInFlight: 8,
			Timeout:     30 * time.Second,
			UserAgent:   "vectormap/1.0",
			CullDelay:   100 * time.Millisecond,
		},
		Render: Render{MaxGeometryBytes: 96 << 20, MaxIndexBytes: 16 << 20},
		Decode: Decode{Workers: 6, Language: "en", MaxTriangleLengthMeters: 200_000},
		Tilesets: []Tileset{
			{
				Name:    "osm",
				Type:    Raster,
				URL:     "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
				MaxZoom: 19,
			},
		},
		Log: Log{Level: "info"},
	}
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("window.title", c.Window.Title)
	v.SetDefault("window.width", c.Window.Width)
	v.SetDefault("window.height", c.Window.Height)
	v.SetDefault("camera.lat", c.Camera.Lat)
	v.SetDefault("camera.lng", c.Camera.Lng)
	v.SetDefault("camera.zoom", c.Camera.Zoom)
	v.SetDefault("fetch.maxInFlight", c.Fetch.MaxInFlight)
	v.SetDefault("fetch.timeout", c.Fetch.Timeout)
	v.SetDefault("fetch.userAgent", c.Fetch.UserAgent)
	v.SetDefault("fetch.cullDelay", c.Fetch.CullDelay)
	v.SetDefault("fetch.cacheDir", c.Fetch.CacheDir)
	v.SetDefault("render.maxGeometryBytes", c.Render.MaxGeometryBytes)
	v.SetDefault("render.maxIndexBytes", c.Render.MaxIndexBytes)
	v.SetDefault("decode.workers", c.Decode.Workers)
	v.SetDefault("decode.language", c.Decode.Language)
	v.SetDefault("decode.maxTriangleLengthMeters", c.Decode.MaxTriangleLengthMeters)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.dir", c.Log.Dir)
}

// Read builds a configuration from path (any viper format, picked by
// extension), VECTORMAP_* environment variables and defaults. An empty path
// skips the file. Tilesets fall back to the defaults only when the file names
// none.
func Read(path string) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()
	setDefaults(v, def)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if !v.IsSet("tilesets") {
		c.Tilesets = def.Tilesets
	}
	for i := range c.Tilesets {
		if c.Tilesets[i].Type == "" {
			c.Tilesets[i].Type = Vector
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects settings the viewer cannot run with.
func (c *Config) Validate() error {
	if c.Fetch.MaxInFlight < 1 {
		return fmt.Errorf("fetch.maxInFlight must be positive, got %d", c.Fetch.MaxInFlight)
	}
	if c.Decode.Workers < 1 {
		return fmt.Errorf("decode.workers must be positive, got %d", c.Decode.Workers)
	}
	seen := make(map[string]bool)
	for i, ts := range c.Tilesets {
		if ts.Name == "" {
			return fmt.Errorf("tilesets[%d]: missing name", i)
		}
		if seen[ts.Name] {
			return fmt.Errorf("tilesets[%d]: duplicate name %q", i, ts.Name)
		}
		seen[ts.Name] = true
		if ts.Type != Vector && ts.Type != Raster {
			return fmt.Errorf("tileset %s: type must be %q or %q, got %q", ts.Name, Vector, Raster, ts.Type)
		}
		if (ts.URL == "") == (ts.MBTiles == "") {
			return fmt.Errorf("tileset %s: set exactly one of url and mbtiles", ts.Name)
		}
		if ts.MinZoom < 0 || ts.MaxZoom < ts.MinZoom {
			return fmt.Errorf("tileset %s: bad zoom range [%d, %d]", ts.Name, ts.MinZoom, ts.MaxZoom)
		}
	}
	for i, col := range c.Collections {
		if col.Path == "" {
			return fmt.Errorf("collections[%d]: missing path", i)
		}
	}
	return nil
}

// Load reads path and makes it the process-wide configuration.
func Load(path string) error {
	c, err := Read(path)
	if err != nil {
		return err
	}
	mu.Lock()
	instance = c
	mu.Unlock()
	return nil
}

// Get returns the global configuration instance, the defaults if Load has not
// succeeded.
func Get() *Config {
	mu.RLock()
	c := instance
	mu.RUnlock()
	if c != nil {
		return c
	}

	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = DefaultConfig()
	}
	return instance
}

// Save writes the current configuration to path in the format implied by its
// extension.
func Save(path string) error {
	c := Get()
	v := viper.New()
	v.Set("window", map[string]any{"title": c.Window.Title, "width": c.Window.Width, "height": c.Window.Height})
	v.Set("camera", map[string]any{"lat": c.Camera.Lat, "lng": c.Camera.Lng, "zoom": c.Camera.Zoom})
	v.Set("fetch", map[string]any{
		"maxInFlight": c.Fetch.MaxInFlight,
		"timeout":     c.Fetch.Timeout.String(),
		"userAgent":   c.Fetch.UserAgent,
		"cullDelay":   c.Fetch.CullDelay.String(),
		"cacheDir":    c.Fetch.CacheDir,
	})
	v.Set("render", map[string]any{"maxGeometryBytes": c.Render.MaxGeometryBytes, "maxIndexBytes": c.Render.MaxIndexBytes})
	v.Set("decode", map[string]any{
		"workers":                 c.Decode.Workers,
		"language":                c.Decode.Language,
		"maxTriangleLengthMeters": c.Decode.MaxTriangleLengthMeters,
	})
	tilesets := make([]map[string]any, 0, len(c.Tilesets))
	for _, ts := range c.Tilesets {
		tilesets = append(tilesets, map[string]any{
			"name":      ts.Name,
			"type":      ts.Type,
			"url":       ts.URL,
			"mbtiles":   ts.MBTiles,
			"minZoom":   ts.MinZoom,
			"maxZoom":   ts.MaxZoom,
			"extraZoom": ts.ExtraZoom,
			"style":     ts.Style,
		})
	}
	v.Set("tilesets", tilesets)
	collections := make([]map[string]any, 0, len(c.Collections))
	for _, col := range c.Collections {
		collections = append(collections, map[string]any{"name": col.Name, "path": col.Path, "z": col.Z})
	}
	v.Set("collections", collections)
	v.Set("log", map[string]any{"level": c.Log.Level, "dir": c.Log.Dir})

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// SetCamera records the current view so Save persists it.
func SetCamera(lat, lng, zoom float64) {
	c := Get()
	mu.Lock()
	defer mu.Unlock()
	c.Camera = Camera{Lat: lat, Lng: lng, Zoom: zoom}
}
