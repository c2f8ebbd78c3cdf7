package render

import (
	"image"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"vectormap/internal/texturepool"
)

// GlyphTextureSize is the edge length of a rasterized glyph texture.
const GlyphTextureSize = 16

// GlyphCache rasterizes graphemes into pooled textures and keeps them while
// they are drawn.
type GlyphCache struct {
	device Device
	face   font.Face
	pool   *texturepool.Pool[*Texture]
	cache  *GenerationCache[string, *Texture]
}

// NewGlyphCache creates a cache drawing with the fixed 7x13 bitmap face.
func NewGlyphCache(device Device) *GlyphCache {
	pool := NewTexturePool(device, GlyphTextureSize, GlyphTextureSize)
	return &GlyphCache{
		device: device,
		face:   basicfont.Face7x13,
		pool:   pool,
		cache:  NewGenerationCache[string, *Texture](pool),
	}
}

// Advance is the horizontal pixel advance of g.
func (c *GlyphCache) Advance(g string) float32 {
	return float32(font.MeasureString(c.face, g).Round())
}

// LineHeight is the pixel distance between wrapped lines.
func (c *GlyphCache) LineHeight() float32 {
	return float32(c.face.Metrics().Height.Round())
}

// Glyph returns the texture for g, rasterizing it on first use.
func (c *GlyphCache) Glyph(g string) (*Texture, error) {
	if t, ok := c.cache.Get(g); ok {
		return t, nil
	}
	t, err := c.pool.Acquire()
	if err != nil {
		return nil, err
	}
	if err := c.device.WriteTexture(t, c.rasterize(g)); err != nil {
		c.pool.Release(t)
		return nil, err
	}
	c.cache.Put(g, t)
	return t, nil
}

func (c *GlyphCache) rasterize(g string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, GlyphTextureSize, GlyphTextureSize))
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)

	m := c.face.Metrics()
	width := font.MeasureString(c.face, g)
	x := (fixed.I(GlyphTextureSize) - width) / 2
	y := (fixed.I(GlyphTextureSize)-m.Height)/2 + m.Ascent
	d := &font.Drawer{Dst: img, Src: image.White, Face: c.face, Dot: fixed.Point26_6{X: x, Y: y}}
	d.DrawString(g)
	return img
}

// Mark starts a frame.
func (c *GlyphCache) Mark() {
	c.cache.Mark()
}

// Sweep returns glyphs not drawn since Mark to the pool.
func (c *GlyphCache) Sweep() int {
	return c.cache.Sweep()
}

func (c *GlyphCache) Stats() (cached, created, idle int) {
	created, idle = c.pool.Stats()
	return c.cache.Len(), created, idle
}

// Dispose frees every texture the cache created.
func (c *GlyphCache) Dispose() {
	c.cache.Dispose()
	c.pool.Dispose()
}
