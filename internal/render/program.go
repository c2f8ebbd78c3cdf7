package render

import "sync/atomic"

// Program describes one GPU pipeline and how its drawables read geometry.
type Program struct {
	ID   int
	Name string
	// Stride is the byte size of one vertex, instance or uniform block.
	Stride int
	// Instanced programs draw VertexCount vertices per instance.
	Instanced bool
	// Indexed programs read uint32 indices from an index buffer.
	Indexed bool
	// Uniform programs bind their geometry bytes as a uniform block, which
	// must start on a UniformAlignment boundary.
	Uniform bool
}

var lastProgram atomic.Int32

func newProgram(p Program) *Program {
	p.ID = int(lastProgram.Add(1))
	return &p
}

// UniformAlignment is the minimum offset alignment of a bound uniform block.
const UniformAlignment = 256

// Byte sizes of the per-program records.
const (
	BillboardBlockSize = 64
	RasterBlockSize    = 64
	GlyphStride        = 64
	TriangleVertexSize = 8
)

// LineCapVertexCount is the vertex count of the cap quad drawn per instance.
const LineCapVertexCount = 4

var (
	Billboard = newProgram(Program{Name: "billboard", Stride: BillboardBlockSize, Uniform: true})
	Line      = newProgram(Program{Name: "line", Stride: LineVertexStride, Instanced: true})
	LineCap   = newProgram(Program{Name: "line-cap", Stride: LineVertexStride, Instanced: true})
	Triangle  = newProgram(Program{Name: "triangle", Stride: TriangleVertexSize, Indexed: true})
	Glyph     = newProgram(Program{Name: "glyph", Stride: GlyphStride, Instanced: true})
	Raster    = newProgram(Program{Name: "raster", Stride: RasterBlockSize, Uniform: true})
)

// Programs lists every program in ID order.
func Programs() []*Program {
	return []*Program{Billboard, Line, LineCap, Triangle, Glyph, Raster}
}

// Drawable is one GPU draw unit.
type Drawable struct {
	Program *Program
	// Geometry is nil for drawables staged in a Baker until Upload.
	Geometry       *Buffer
	GeometryOffset int
	GeometryLength int
	// Index is nil for drawables staged in a Baker until Upload.
	Index *Buffer
	// IndexOffset is in bytes.
	IndexOffset   int
	IndexCount    int
	InstanceCount int
	VertexCount   int
	Texture       *Texture
	Z             int
}

func (d *Drawable) instanced() bool {
	return d.InstanceCount > 0
}

func (d *Drawable) indexed() bool {
	return d.IndexCount > 0
}

func textureID(t *Texture) uint32 {
	if t == nil {
		return 0
	}
	return t.ID
}

func bufferID(b *Buffer) uint32 {
	if b == nil {
		return 0
	}
	return b.ID
}
