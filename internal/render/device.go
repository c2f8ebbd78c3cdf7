// Package render batches per-frame geometry into as few GPU draw calls as
// possible. Layers stage drawables into a Baker; the Planner uploads the
// staged bytes once and hands same-program runs to a Device.
package render

import (
	"image"
	"sync/atomic"

	"github.com/paulmach/orb"

	"vectormap/internal/mercator"
	"vectormap/internal/texturepool"
)

// BufferKind selects the GPU usage of a buffer.
type BufferKind int

const (
	GeometryBuffer BufferKind = iota
	IndexBuffer
)

func (k BufferKind) String() string {
	if k == IndexBuffer {
		return "index"
	}
	return "geometry"
}

var lastID atomic.Uint32

// Buffer is a GPU buffer. ID orders drawables that share a program; Handle
// belongs to the Device that created it.
type Buffer struct {
	ID     uint32
	Kind   BufferKind
	Size   int
	Handle any
}

// NewBuffer wraps a backend handle, assigning it a process-unique ID.
func NewBuffer(kind BufferKind, size int, handle any) *Buffer {
	return &Buffer{ID: lastID.Add(1), Kind: kind, Size: size, Handle: handle}
}

// Texture is a GPU texture owned by a Device.
type Texture struct {
	ID     uint32
	Width  int
	Height int
	Handle any
}

func NewTexture(width, height int, handle any) *Texture {
	return &Texture{ID: lastID.Add(1), Width: width, Height: height, Handle: handle}
}

// View is the camera state a frame is drawn with.
type View struct {
	// Center is the camera centre in world space.
	Center orb.Point
	Zoom   float64
	Width  int
	Height int
}

// Batch is one same-program run drawn around one camera centre.
type Batch struct {
	Program   *Program
	Center    mercator.SplitVec2
	View      View
	Drawables []Drawable
}

// Device is the GPU backend.
type Device interface {
	CreateBuffer(kind BufferKind, size int) (*Buffer, error)
	WriteBuffer(b *Buffer, offset int, data []byte) error
	DeleteBuffer(b *Buffer)
	CreateTexture(width, height int) (*Texture, error)
	WriteTexture(t *Texture, img *image.RGBA) error
	DeleteTexture(t *Texture)
	Draw(b Batch) error
}

// textureAllocator adapts a Device to texturepool.Allocator.
type textureAllocator struct {
	device Device
	width  int
	height int
}

func (a textureAllocator) CreateTexture() (*Texture, error) {
	return a.device.CreateTexture(a.width, a.height)
}

func (a textureAllocator) DeleteTexture(t *Texture) {
	a.device.DeleteTexture(t)
}

// NewTexturePool pools width×height textures created on device.
func NewTexturePool(device Device, width, height int) *texturepool.Pool[*Texture] {
	return texturepool.New[*Texture](textureAllocator{device: device, width: width, height: height})
}
