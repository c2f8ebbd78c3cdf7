package layers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"sort"

	_ "golang.org/x/image/webp"

	"vectormap/internal/render"
	"vectormap/internal/scheduler"
	"vectormap/internal/texturepool"
	"vectormap/internal/worker"
	"vectormap/pkg/tiles"
)

// DecodeRaster decodes a PNG, JPEG or WebP tile into RGBA.
func DecodeRaster(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode raster tile: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}

type rasterTile struct {
	id   tiles.TileID
	tex  *render.Texture
	pool *texturepool.Pool[*render.Texture]
}

// RasterOptions configures a RasterLayer.
type RasterOptions struct {
	Name      string
	Zoom      tiles.ZoomRange
	Scheduler *scheduler.Scheduler
	Pool      *worker.Pool[*image.RGBA]
	Device    render.Device
	Z         int
}

// RasterLayer draws bitmap tiles, one pooled texture per tile.
type RasterLayer struct {
	*tileset[*image.RGBA]

	opts     RasterOptions
	tiles    map[tiles.TileID]*rasterTile
	textures map[image.Point]*texturepool.Pool[*render.Texture]
}

// NewRasterLayer starts the layer's scheduler; Close stops it.
func NewRasterLayer(ctx context.Context, opts RasterOptions) (*RasterLayer, error) {
	l := &RasterLayer{
		opts:     opts,
		tiles:    make(map[tiles.TileID]*rasterTile),
		textures: make(map[image.Point]*texturepool.Pool[*render.Texture]),
	}
	l.tileset = newTileset(opts.Name, opts.Scheduler, opts.Pool, tileHooks[*image.RGBA]{
		decode: func(_ context.Context, _ tiles.TileID, data []byte) (*image.RGBA, error) {
			return DecodeRaster(data)
		},
		integrate: l.integrate,
		unload:    l.unload,
	})
	if err := l.start(ctx, opts.Zoom); err != nil {
		return nil, fmt.Errorf("layer %s: %w", opts.Name, err)
	}
	return l, nil
}

func (l *RasterLayer) ViewportChanged(ctx context.Context, vp tiles.Viewport) error {
	return l.viewportChanged(ctx, vp)
}

func (l *RasterLayer) Update(ctx context.Context) bool {
	return l.update(ctx)
}

func (l *RasterLayer) Loading() bool {
	return l.isLoading()
}

// pool returns the texture pool for one tile size; tilesets mix 256 and 512
// pixel tiles.
func (l *RasterLayer) pool(size image.Point) *texturepool.Pool[*render.Texture] {
	p, ok := l.textures[size]
	if !ok {
		p = render.NewTexturePool(l.opts.Device, size.X, size.Y)
		l.textures[size] = p
	}
	return p
}

func (l *RasterLayer) integrate(id tiles.TileID, img *image.RGBA) error {
	l.unload(id)
	pool := l.pool(img.Rect.Size())
	tex, err := pool.Acquire()
	if err != nil {
		return err
	}
	if err := l.opts.Device.WriteTexture(tex, img); err != nil {
		pool.Release(tex)
		return err
	}
	l.tiles[id] = &rasterTile{id: id, tex: tex, pool: pool}
	return nil
}

func (l *RasterLayer) unload(id tiles.TileID) {
	if rt, ok := l.tiles[id]; ok {
		delete(l.tiles, id)
		rt.pool.Release(rt.tex)
	}
}

// Render draws shallow tiles first so that deeper ones cover them.
func (l *RasterLayer) Render(b *render.Baker, _ float64) error {
	out := make([]*rasterTile, 0, len(l.tiles))
	for _, rt := range l.tiles {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].id, out[j].id
		if a.Zoom != b.Zoom {
			return a.Zoom < b.Zoom
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	for _, rt := range out {
		if err := b.AddRaster(rt.id.WorldBound(), rt.tex, l.opts.Z); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every texture and stops the scheduler.
func (l *RasterLayer) Close() {
	l.close()
	for id := range l.tiles {
		l.unload(id)
	}
	for _, p := range l.textures {
		p.Dispose()
	}
}
