package mercator

// Split carries a float64 as a float32 high part plus a float32 remainder so
// that GPU programs can reconstruct world positions without losing precision
// at deep zoom.
type Split struct {
	Hi float32
	Lo float32
}

// SplitFloat splits x.
func SplitFloat(x float64) Split {
	hi := float32(x)
	return Split{Hi: hi, Lo: float32(x - float64(hi))}
}

// Float64 recombines the two halves.
func (s Split) Float64() float64 {
	return float64(s.Hi) + float64(s.Lo)
}

func (s Split) Add(o Split) Split {
	return SplitFloat(s.Float64() + o.Float64())
}

func (s Split) Sub(o Split) Split {
	return SplitFloat(s.Float64() - o.Float64())
}

// SplitVec2 is a split 2D point.
type SplitVec2 struct {
	X Split
	Y Split
}

func SplitPoint(x, y float64) SplitVec2 {
	return SplitVec2{X: SplitFloat(x), Y: SplitFloat(y)}
}

func (v SplitVec2) Add(o SplitVec2) SplitVec2 {
	return SplitVec2{X: v.X.Add(o.X), Y: v.Y.Add(o.Y)}
}

func (v SplitVec2) Sub(o SplitVec2) SplitVec2 {
	return SplitVec2{X: v.X.Sub(o.X), Y: v.Y.Sub(o.Y)}
}

// Array is the uniform layout: x hi, x lo, y hi, y lo.
func (v SplitVec2) Array() [4]float32 {
	return [4]float32{v.X.Hi, v.X.Lo, v.Y.Hi, v.Y.Lo}
}
