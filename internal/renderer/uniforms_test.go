package renderer

import (
	"encoding/binary"
	"math"
	"testing"

	"vectormap/internal/mercator"
	"vectormap/internal/render"
)

func TestCameraUniform(t *testing.T) {
	center := mercator.SplitPoint(0.1234567891, -0.5)
	data := cameraUniform(render.View{Zoom: 1, Width: 512, Height: 256}, center)
	if len(data) != cameraSize {
		t.Fatalf("len = %d, want %d", len(data), cameraSize)
	}
	f := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	a := center.Array()
	for i := range a {
		if f(i) != a[i] {
			t.Errorf("centre[%d] = %v, want %v", i, f(i), a[i])
		}
	}

	// 256 world pixels per unit at zoom 1 cover the 512 px width once
	tests := []struct {
		i    int
		want float32
	}{
		{4, 1},
		{5, 2},
		{6, 2.0 / 512},
		{7, 2.0 / 256},
		{8, 1},
	}
	for _, tt := range tests {
		if got := f(tt.i); math.Abs(float64(got-tt.want)) > 1e-7 {
			t.Errorf("word %d = %v, want %v", tt.i, got, tt.want)
		}
	}
}

func TestPad4(t *testing.T) {
	for n, want := range map[int]int{0: 0, 1: 4, 4: 4, 6: 8} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i + 1)
		}
		got := pad4(data)
		if len(got) != want {
			t.Errorf("pad4(%d bytes) = %d bytes, want %d", n, len(got), want)
		}
		for i := range data {
			if got[i] != data[i] {
				t.Errorf("byte %d changed", i)
			}
		}
	}
	if align(1, 256) != 256 || align(256, 256) != 256 || align(257, 256) != 512 {
		t.Error("align")
	}
}

func TestCameraSlotSpills(t *testing.T) {
	tests := []struct {
		n      int
		buffer int
		offset uint32
	}{
		{0, 0, 0},
		{1, 0, render.UniformAlignment},
		{cameraSlots - 1, 0, (cameraSlots - 1) * render.UniformAlignment},
		{cameraSlots, 1, 0},
		{2*cameraSlots + 3, 2, 3 * render.UniformAlignment},
	}
	for _, tt := range tests {
		buffer, offset := cameraSlot(tt.n)
		if buffer != tt.buffer || offset != tt.offset {
			t.Errorf("cameraSlot(%d) = %d, %d, want %d, %d", tt.n, buffer, offset, tt.buffer, tt.offset)
		}
	}
}
