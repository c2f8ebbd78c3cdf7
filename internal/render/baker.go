package render

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"vectormap/internal/mercator"
)

// ErrOutOfSpace is returned when a staged write would overflow the frame
// buffers. Nothing is written in that case.
var ErrOutOfSpace = errors.New("render: frame buffer out of space")

// Default frame buffer capacities.
const (
	DefaultMaxGeometryBytes = 96 << 20
	DefaultMaxIndexBytes    = 16 << 20
)

// Baker stages one frame of geometry and index bytes plus the drawables
// that reference them. It is owned by a single goroutine.
type Baker struct {
	geometry  []byte
	index     []byte
	drawables []Drawable

	indexChecksum uint32
	indexLength   int
	indexUploaded bool
}

// NewBaker allocates a baker with fixed buffer capacities.
func NewBaker(maxGeometry, maxIndex int) *Baker {
	return &Baker{
		geometry: make([]byte, 0, maxGeometry),
		index:    make([]byte, 0, maxIndex),
	}
}

// Clear drops the staged frame. The buffers are reused.
func (b *Baker) Clear() {
	b.geometry = b.geometry[:0]
	b.index = b.index[:0]
	b.drawables = b.drawables[:0]
}

func (b *Baker) Drawables() []Drawable {
	return b.drawables
}

// GeometryLen is the number of staged geometry bytes.
func (b *Baker) GeometryLen() int {
	return len(b.geometry)
}

func (b *Baker) IndexLen() int {
	return len(b.index)
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}

func (b *Baker) reserve(geometry, index int) error {
	if free := cap(b.geometry) - len(b.geometry); geometry > free {
		return fmt.Errorf("%w: %d geometry bytes requested, %d free", ErrOutOfSpace, geometry, free)
	}
	if free := cap(b.index) - len(b.index); index > free {
		return fmt.Errorf("%w: %d index bytes requested, %d free", ErrOutOfSpace, index, free)
	}
	return nil
}

// addUniform writes a uniform block starting and ending on an aligned
// offset and returns the block's offset.
func (b *Baker) addUniform(block []byte) (int, error) {
	start := alignUp(len(b.geometry), UniformAlignment)
	end := alignUp(start+len(block), UniformAlignment)
	if err := b.reserve(end-len(b.geometry), 0); err != nil {
		return 0, err
	}
	old := len(b.geometry)
	b.geometry = b.geometry[:end]
	clear(b.geometry[old:end])
	copy(b.geometry[start:], block)
	return start, nil
}

// BillboardOptions places a screen-aligned quad.
type BillboardOptions struct {
	// Center is the anchor in world space.
	Center orb.Point
	// Offset and Size are in pixels.
	Offset [2]float32
	Size   [2]float32
	Tint   uint32
	Z      int
}

// AddBillboard stages a quad showing the whole of tex.
func (b *Baker) AddBillboard(opts BillboardOptions, tex *Texture) error {
	return b.AddAtlasedBillboard(opts, tex, image.Rect(0, 0, tex.Width, tex.Height))
}

// AddAtlasedBillboard stages a quad showing region of the atlas texture.
func (b *Baker) AddAtlasedBillboard(opts BillboardOptions, atlas *Texture, region image.Rectangle) error {
	w, h := float32(atlas.Width), float32(atlas.Height)
	uv := [4]float32{
		float32(region.Min.X) / w, float32(region.Min.Y) / h,
		float32(region.Max.X) / w, float32(region.Max.Y) / h,
	}
	block := make([]byte, 0, BillboardBlockSize)
	block = appendSplit(block, mercator.SplitPoint(opts.Center[0], opts.Center[1]))
	block = appendFloats(block, opts.Offset[0], opts.Offset[1], opts.Size[0], opts.Size[1])
	block = appendFloats(block, uv[:]...)
	block = binary.LittleEndian.AppendUint32(block, opts.Tint)
	block = append(block, make([]byte, BillboardBlockSize-len(block))...)

	off, err := b.addUniform(block)
	if err != nil {
		return err
	}
	b.drawables = append(b.drawables, Drawable{
		Program:        Billboard,
		GeometryOffset: off,
		GeometryLength: BillboardBlockSize,
		VertexCount:    4,
		Texture:        atlas,
		Z:              opts.Z,
	})
	return nil
}

// AddRaster stages tex stretched over the world-space bound.
func (b *Baker) AddRaster(bound orb.Bound, tex *Texture, z int) error {
	block := make([]byte, 0, RasterBlockSize)
	block = appendSplit(block, mercator.SplitPoint(bound.Min[0], bound.Min[1]))
	block = appendSplit(block, mercator.SplitPoint(bound.Max[0], bound.Max[1]))
	block = append(block, make([]byte, RasterBlockSize-len(block))...)

	off, err := b.addUniform(block)
	if err != nil {
		return err
	}
	b.drawables = append(b.drawables, Drawable{
		Program:        Raster,
		GeometryOffset: off,
		GeometryLength: RasterBlockSize,
		VertexCount:    4,
		Texture:        tex,
		Z:              z,
	})
	return nil
}

// AddLines stages instanced line data written by PushLine. With caps set a
// LineCap drawable sharing the same bytes is staged as well.
func (b *Baker) AddLines(data []byte, caps bool, z int) error {
	n := len(data) / LineVertexStride
	if n == 0 {
		return nil
	}
	data = data[:n*LineVertexStride]
	if err := b.reserve(len(data), 0); err != nil {
		return err
	}
	off := len(b.geometry)
	b.geometry = append(b.geometry, data...)
	b.drawables = append(b.drawables, Drawable{
		Program:        Line,
		GeometryOffset: off,
		GeometryLength: len(data),
		InstanceCount:  n,
		VertexCount:    LineVertexCount,
		Z:              z,
	})
	if caps {
		b.drawables = append(b.drawables, Drawable{
			Program:        LineCap,
			GeometryOffset: off,
			GeometryLength: len(data),
			InstanceCount:  n,
			VertexCount:    LineCapVertexCount,
			Z:              z,
		})
	}
	return nil
}

// AddTriangles stages an indexed polygon batch: fill, then vertices as
// float32 x, y pairs. Indices count vertices from the first pair.
func (b *Baker) AddTriangles(fill uint32, vertices []float64, indices []uint32, z int) error {
	if len(indices) == 0 {
		return nil
	}
	geometry := 4 + 4*len(vertices)
	if err := b.reserve(geometry, 4*len(indices)); err != nil {
		return err
	}
	le := binary.LittleEndian
	off := len(b.geometry)
	b.geometry = le.AppendUint32(b.geometry, fill)
	for _, v := range vertices {
		b.geometry = le.AppendUint32(b.geometry, math.Float32bits(float32(v)))
	}
	indexOff := len(b.index)
	for _, i := range indices {
		b.index = le.AppendUint32(b.index, i)
	}
	b.drawables = append(b.drawables, Drawable{
		Program:        Triangle,
		GeometryOffset: off,
		GeometryLength: geometry,
		IndexOffset:    indexOff,
		IndexCount:     len(indices),
		Z:              z,
	})
	return nil
}

// GlyphInstance is one textured glyph quad.
type GlyphInstance struct {
	Center mercator.SplitVec2
	// Offset and Size are in pixels before Scale.
	Offset [2]float32
	Size   [2]float32
	UV     [4]float32
	Fill   uint32
	Stroke uint32
	Angle  float32
	Scale  float32
}

// AddGlyphs stages glyph instances that all sample tex.
func (b *Baker) AddGlyphs(glyphs []GlyphInstance, tex *Texture, z int) error {
	if len(glyphs) == 0 {
		return nil
	}
	if err := b.reserve(len(glyphs)*GlyphStride, 0); err != nil {
		return err
	}
	le := binary.LittleEndian
	off := len(b.geometry)
	for _, g := range glyphs {
		b.geometry = appendSplit(b.geometry, g.Center)
		b.geometry = appendFloats(b.geometry, g.Offset[0], g.Offset[1], g.Size[0], g.Size[1])
		b.geometry = appendFloats(b.geometry, g.UV[:]...)
		b.geometry = le.AppendUint32(b.geometry, g.Fill)
		b.geometry = le.AppendUint32(b.geometry, g.Stroke)
		b.geometry = appendFloats(b.geometry, g.Angle, g.Scale)
	}
	b.drawables = append(b.drawables, Drawable{
		Program:        Glyph,
		GeometryOffset: off,
		GeometryLength: len(glyphs) * GlyphStride,
		InstanceCount:  len(glyphs),
		VertexCount:    4,
		Texture:        tex,
		Z:              z,
	})
	return nil
}

// AddPrebaked appends everything staged in other, rebasing its offsets.
// The copy starts on a uniform boundary so that uniform blocks stay aligned.
func (b *Baker) AddPrebaked(other *Baker) error {
	start := alignUp(len(b.geometry), UniformAlignment)
	if err := b.reserve(start-len(b.geometry)+len(other.geometry), len(other.index)); err != nil {
		return err
	}
	pad := start - len(b.geometry)
	b.geometry = append(b.geometry, make([]byte, pad)...)
	b.geometry = append(b.geometry, other.geometry...)
	indexStart := len(b.index)
	b.index = append(b.index, other.index...)

	for _, d := range other.drawables {
		if d.Geometry == nil {
			d.GeometryOffset += start
		}
		if d.Index == nil && d.indexed() {
			d.IndexOffset += indexStart
		}
		b.drawables = append(b.drawables, d)
	}
	return nil
}

// AddDrawables stages drawables whose geometry already lives in their own
// GPU buffers.
func (b *Baker) AddDrawables(ds ...Drawable) {
	b.drawables = append(b.drawables, ds...)
}

// Uploaded reports which frame buffers Upload wrote.
type Uploaded struct {
	Geometry bool
	Index    bool
}

// Upload binds staged drawables to the frame buffers, sorts and merges the
// drawables, and writes the staged bytes. The index buffer is only written
// when its contents changed since the last upload.
func (b *Baker) Upload(device Device, geometry, index *Buffer) (Uploaded, error) {
	var up Uploaded
	for i := range b.drawables {
		d := &b.drawables[i]
		if d.Geometry == nil {
			d.Geometry = geometry
		}
		if d.Index == nil && d.indexed() {
			d.Index = index
		}
	}
	sortDrawables(b.drawables)
	b.drawables = mergeInstanced(b.drawables)

	if len(b.geometry) > 0 {
		if err := device.WriteBuffer(geometry, 0, b.geometry); err != nil {
			return up, fmt.Errorf("upload geometry: %w", err)
		}
		up.Geometry = true
	}
	if len(b.index) > 0 {
		sum := checksum(b.index)
		if !b.indexUploaded || sum != b.indexChecksum || len(b.index) != b.indexLength {
			if err := device.WriteBuffer(index, 0, b.index); err != nil {
				return up, fmt.Errorf("upload index: %w", err)
			}
			b.indexChecksum, b.indexLength, b.indexUploaded = sum, len(b.index), true
			up.Index = true
		}
	}
	return up, nil
}

func sortDrawables(ds []Drawable) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := &ds[i], &ds[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Program.ID != b.Program.ID {
			return a.Program.ID < b.Program.ID
		}
		if ba, bb := bufferID(a.Geometry), bufferID(b.Geometry); ba != bb {
			return ba < bb
		}
		return a.GeometryOffset < b.GeometryOffset
	})
}

// mergeInstanced joins neighbouring instanced drawables of one program,
// texture and buffer whose byte ranges touch.
func mergeInstanced(ds []Drawable) []Drawable {
	if len(ds) == 0 {
		return ds
	}
	out := ds[:1]
	for _, d := range ds[1:] {
		last := &out[len(out)-1]
		if last.instanced() && d.instanced() &&
			last.Program == d.Program &&
			last.Texture == d.Texture &&
			last.Geometry == d.Geometry &&
			last.VertexCount == d.VertexCount &&
			last.GeometryOffset+last.GeometryLength == d.GeometryOffset {
			last.GeometryLength += d.GeometryLength
			last.InstanceCount += d.InstanceCount
			continue
		}
		out = append(out, d)
	}
	return out
}

// checksum hashes little-endian uint32 words with multiplier 31.
func checksum(data []byte) uint32 {
	var h uint32
	for i := 0; i+4 <= len(data); i += 4 {
		h = h*31 + binary.LittleEndian.Uint32(data[i:])
	}
	return h
}

func appendFloats(buf []byte, vs ...float32) []byte {
	for _, v := range vs {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func appendSplit(buf []byte, v mercator.SplitVec2) []byte {
	a := v.Array()
	return appendFloats(buf, a[:]...)
}
