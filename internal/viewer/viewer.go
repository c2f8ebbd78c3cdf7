// Package viewer assembles the map from configuration: tile sources,
// schedulers, decode pools, layers and the frame planner. It draws through
// any render.Device and knows nothing about windows.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"vectormap/internal/collection"
	"vectormap/internal/config"
	"vectormap/internal/layers"
	"vectormap/internal/render"
	"vectormap/internal/scheduler"
	"vectormap/internal/style"
	"vectormap/internal/tilesource"
	"vectormap/internal/vectortile"
	"vectormap/internal/worker"
	"vectormap/pkg/tiles"
)

// Viewer owns every layer of one map and the per-frame GPU state.
type Viewer struct {
	planner *render.Planner
	glyphs  *render.GlyphCache
	stack   *layers.Stack

	vectorPool     *worker.Pool[*vectortile.Tile]
	rasterPool     *worker.Pool[*image.RGBA]
	collectionPool *worker.Pool[*collection.Loaded]
	closers        []io.Closer

	viewport    tiles.Viewport
	hasViewport bool
}

// OpenSource opens the tile source a tileset names. The closer is nil for
// sources that hold no resources.
func OpenSource(ts config.Tileset, fetch config.Fetch) (tilesource.Source, io.Closer, error) {
	if ts.MBTiles != "" {
		m, err := tilesource.OpenMBTiles(ts.MBTiles)
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil
	}
	ext := "pbf"
	if ts.Type == config.Raster {
		ext = "png"
	}
	var cacheDir string
	if fetch.CacheDir != "" {
		cacheDir = filepath.Join(fetch.CacheDir, ts.Name)
	}
	src, err := tilesource.NewHTTP(tilesource.HTTPOptions{
		URL:       ts.URL,
		UserAgent: fetch.UserAgent,
		Timeout:   fetch.Timeout,
		CacheDir:  cacheDir,
		Extension: ext,
	})
	if err != nil {
		return nil, nil, err
	}
	return src, nil, nil
}

// New builds every tileset and collection of cfg, bottom layer first:
// tilesets in order, then collections.
func New(ctx context.Context, cfg *config.Config, device render.Device) (*Viewer, error) {
	planner, err := render.NewPlanner(device, cfg.Render.MaxGeometryBytes, cfg.Render.MaxIndexBytes)
	if err != nil {
		return nil, fmt.Errorf("frame buffers: %w", err)
	}
	v := &Viewer{
		planner:        planner,
		glyphs:         render.NewGlyphCache(device),
		stack:          layers.NewStack(),
		vectorPool:     worker.NewPool[*vectortile.Tile](cfg.Decode.Workers),
		rasterPool:     worker.NewPool[*image.RGBA](cfg.Decode.Workers),
		collectionPool: worker.NewPool[*collection.Loaded](1),
	}
	if err := v.build(ctx, cfg, device); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

func (v *Viewer) build(ctx context.Context, cfg *config.Config, device render.Device) error {
	throttler := scheduler.NewThrottler(cfg.Fetch.MaxInFlight)
	decodeOpts := vectortile.Options{
		Language:                cfg.Decode.Language,
		MaxTriangleLengthMeters: cfg.Decode.MaxTriangleLengthMeters,
	}

	for i, ts := range cfg.Tilesets {
		src, closer, err := OpenSource(ts, cfg.Fetch)
		if err != nil {
			return fmt.Errorf("tileset %s: %w", ts.Name, err)
		}
		if closer != nil {
			v.closers = append(v.closers, closer)
		}
		sched := scheduler.New(scheduler.Options{Source: src, Throttler: throttler, CullDelay: cfg.Fetch.CullDelay})
		zoom := tiles.ZoomRange{MinZoom: ts.MinZoom, MaxZoom: ts.MaxZoom, ExtraZoom: ts.ExtraZoom}

		var layer layers.Layer
		switch ts.Type {
		case config.Raster:
			layer, err = layers.NewRasterLayer(ctx, layers.RasterOptions{
				Name:      ts.Name,
				Zoom:      zoom,
				Scheduler: sched,
				Pool:      v.rasterPool,
				Device:    device,
				Z:         layers.ZRaster + i,
			})
		default:
			sheet := style.Default()
			if ts.Style != "" {
				if sheet, err = style.LoadFile(ts.Style); err != nil {
					return fmt.Errorf("tileset %s: %w", ts.Name, err)
				}
			}
			layer, err = layers.NewVectorLayer(ctx, layers.VectorOptions{
				Name:      ts.Name,
				Zoom:      zoom,
				Scheduler: sched,
				Decoder:   vectortile.NewDecoder(sheet, decodeOpts),
				Pool:      v.vectorPool,
				Device:    device,
				Glyphs:    v.glyphs,
				LineCaps:  true,
			})
		}
		if err != nil {
			return err
		}
		v.stack.Add(layer)
		log.WithFields(log.Fields{"tileset": ts.Name, "type": ts.Type}).Debug("layer added")
	}

	for _, c := range cfg.Collections {
		z := c.Z
		if z == 0 {
			z = layers.ZCollection
		}
		loader := collection.NewLoader(collection.DefaultRules(z))
		loader.MaxTriangleLengthMeters = cfg.Decode.MaxTriangleLengthMeters
		name := c.Name
		if name == "" {
			name = filepath.Base(c.Path)
		}
		layer, err := layers.NewCollectionLayer(ctx, layers.CollectionOptions{
			Name:   name,
			Path:   c.Path,
			Loader: loader,
			Pool:   v.collectionPool,
			Device: device,
		})
		if err != nil {
			return err
		}
		v.stack.Add(layer)
	}
	return nil
}

// Layers lists the layers bottom first.
func (v *Viewer) Layers() []layers.Layer {
	return v.stack.Layers()
}

// SetViewport forwards a changed viewport to every layer.
func (v *Viewer) SetViewport(ctx context.Context, vp tiles.Viewport) error {
	if v.hasViewport && vp == v.viewport {
		return nil
	}
	v.viewport, v.hasViewport = vp, true
	return v.stack.ViewportChanged(ctx, vp)
}

// Update integrates finished work and reports whether a redraw is due.
func (v *Viewer) Update(ctx context.Context) bool {
	return v.stack.Update(ctx)
}

func (v *Viewer) Loading() bool {
	return v.stack.Loading()
}

// Frame stages every layer and draws the frame over area.
func (v *Viewer) Frame(area orb.Bound, view render.View) error {
	v.glyphs.Mark()
	err := v.stack.Render(v.planner.Baker(), view.Zoom)
	if evicted := v.glyphs.Sweep(); evicted > 0 {
		log.WithField("glyphs", evicted).Trace("glyphs evicted")
	}
	switch {
	case errors.Is(err, render.ErrOutOfSpace):
		// draw what fit
		log.Warnf("frame incomplete: %v", err)
	case err != nil:
		v.planner.Baker().Clear()
		return err
	}
	return v.planner.Render(area, view)
}

// Close stops every layer and frees their GPU resources.
func (v *Viewer) Close() {
	v.stack.Close()
	v.vectorPool.Close()
	v.rasterPool.Close()
	v.collectionPool.Close()
	v.glyphs.Dispose()
	v.planner.Release()
	for _, c := range v.closers {
		if err := c.Close(); err != nil {
			log.Warnf("close tile source: %v", err)
		}
	}
	v.closers = nil
}
