package render

import (
	"encoding/binary"
	"math"
)

// LineVertexStride is the byte size of one line instance: previous and next
// point (4 float32), fill and stroke (2 uint32), distance along the line and
// radius (2 float32), stipple flag (uint32).
const LineVertexStride = 36

// LineVertexCount is the triangle-strip vertex count of one line instance.
const LineVertexCount = 4

// LineInstance is the decoded form of one line segment.
type LineInstance struct {
	X, Y          float32
	NextX, NextY  float32
	Fill, Stroke  uint32
	DistanceAlong float32
	Radius        float32
	Stipple       bool
}

// PushLine appends one instance per segment of points (x, y pairs) to buf and
// returns the grown buffer and the number of instances written.
func PushLine(buf []byte, fill, stroke uint32, radius float64, stipple bool, points []float64) ([]byte, int) {
	count := 0
	distance := float32(0)
	var stippled uint32
	if stipple {
		stippled = 1
	}
	le := binary.LittleEndian
	for i := 0; i+3 < len(points); i += 2 {
		x, y := float32(points[i]), float32(points[i+1])
		xp, yp := float32(points[i+2]), float32(points[i+3])

		buf = le.AppendUint32(buf, math.Float32bits(x))
		buf = le.AppendUint32(buf, math.Float32bits(y))
		buf = le.AppendUint32(buf, math.Float32bits(xp))
		buf = le.AppendUint32(buf, math.Float32bits(yp))
		buf = le.AppendUint32(buf, fill)
		buf = le.AppendUint32(buf, stroke)
		buf = le.AppendUint32(buf, math.Float32bits(distance))
		buf = le.AppendUint32(buf, math.Float32bits(float32(radius)))
		buf = le.AppendUint32(buf, stippled)

		dx, dy := xp-x, yp-y
		distance += float32(math.Sqrt(float64(dx*dx + dy*dy)))
		count++
	}
	return buf, count
}

// ReadLineInstances decodes a byte range written by PushLine.
func ReadLineInstances(data []byte) []LineInstance {
	le := binary.LittleEndian
	f := func(off int) float32 { return math.Float32frombits(le.Uint32(data[off:])) }
	out := make([]LineInstance, 0, len(data)/LineVertexStride)
	for off := 0; off+LineVertexStride <= len(data); off += LineVertexStride {
		out = append(out, LineInstance{
			X:             f(off),
			Y:             f(off + 4),
			NextX:         f(off + 8),
			NextY:         f(off + 12),
			Fill:          le.Uint32(data[off+16:]),
			Stroke:        le.Uint32(data[off+20:]),
			DistanceAlong: f(off + 24),
			Radius:        f(off + 28),
			Stipple:       le.Uint32(data[off+32:]) != 0,
		})
	}
	return out
}
