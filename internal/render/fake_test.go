package render

import (
	"errors"
	"image"
	"sync"
)

type bufferWrite struct {
	buffer *Buffer
	offset int
	data   []byte
}

// fakeDevice records every call.
type fakeDevice struct {
	mu       sync.Mutex
	writes   []bufferWrite
	images   map[uint32]*image.RGBA
	created  int
	deleted  int
	batches  []Batch
	released []*Buffer
	// reject fails every batch of this program.
	reject *Program
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{images: make(map[uint32]*image.RGBA)}
}

func (d *fakeDevice) CreateBuffer(kind BufferKind, size int) (*Buffer, error) {
	return NewBuffer(kind, size, nil), nil
}

func (d *fakeDevice) WriteBuffer(b *Buffer, offset int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = append(d.writes, bufferWrite{b, offset, append([]byte(nil), data...)})
	return nil
}

func (d *fakeDevice) DeleteBuffer(b *Buffer) {
	d.released = append(d.released, b)
}

func (d *fakeDevice) CreateTexture(width, height int) (*Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created++
	return NewTexture(width, height, nil), nil
}

func (d *fakeDevice) WriteTexture(t *Texture, img *image.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images[t.ID] = img
	return nil
}

func (d *fakeDevice) DeleteTexture(t *Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted++
}

func (d *fakeDevice) Draw(b Batch) error {
	if b.Program == d.reject {
		return errors.New("device rejected batch")
	}
	b.Drawables = append([]Drawable(nil), b.Drawables...)
	d.batches = append(d.batches, b)
	return nil
}
