package renderer

import (
	"encoding/binary"
	"math"

	"vectormap/internal/mercator"
	"vectormap/internal/render"
)

// cameraSize is the byte size of the Camera uniform in shaders.go.
const cameraSize = 48

// cameraSlots is the number of batches one camera buffer serves; each batch
// gets its own dynamically offset camera block. Frames with more batches
// spill into further buffers.
const cameraSlots = 128

// cameraSlot locates the n-th batch of a frame: which camera buffer, and the
// dynamic offset inside it.
func cameraSlot(n int) (buffer int, offset uint32) {
	return n / cameraSlots, uint32(n%cameraSlots) * render.UniformAlignment
}

// cameraUniform packs the camera for one batch: the split centre, clip units
// per world unit, clip units per pixel and the zoom.
func cameraUniform(view render.View, center mercator.SplitVec2) []byte {
	w, h := float64(max(view.Width, 1)), float64(max(view.Height, 1))
	pixelsPerWorld := 128 * math.Exp2(view.Zoom)

	buf := make([]byte, 0, cameraSize)
	a := center.Array()
	for _, v := range a {
		buf = appendFloat(buf, v)
	}
	buf = appendFloat(buf, float32(pixelsPerWorld*2/w))
	buf = appendFloat(buf, float32(pixelsPerWorld*2/h))
	buf = appendFloat(buf, float32(2/w))
	buf = appendFloat(buf, float32(2/h))
	buf = appendFloat(buf, float32(view.Zoom))
	return append(buf, make([]byte, cameraSize-len(buf))...)
}

func appendFloat(buf []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
}

// pad4 extends data to a multiple of four bytes, the copy granularity of
// queue writes.
func pad4(data []byte) []byte {
	if rem := len(data) % 4; rem != 0 {
		out := make([]byte, len(data)+4-rem)
		copy(out, data)
		return out
	}
	return data
}

func align(n, a uint64) uint64 {
	return (n + a - 1) / a * a
}
