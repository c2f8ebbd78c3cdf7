package vectortile

import (
	"math"

	"github.com/rivo/uniseg"
)

// wrapAfter is the grapheme count after which a space becomes a line break.
const wrapAfter = 8

func graphemes(s string) []string {
	var out []string
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

// wrap replaces a space with a newline once more than wrapAfter graphemes
// have passed since the previous break.
func wrap(text []string) []string {
	out := make([]string, 0, len(text))
	last := 0
	for i, g := range text {
		if i-last > wrapAfter && g == " " {
			out = append(out, "\n")
			last = i
			continue
		}
		out = append(out, g)
	}
	return out
}

// lineLabelPlacement anchors a label a quarter of the way into a line's
// points, rotated along the segment that ends there and kept upright.
func lineLabelPlacement(g []float64) (x, y, angle float64, ok bool) {
	i := len(g) / 4
	if i < 1 || 2*i+1 >= len(g) {
		return 0, 0, 0, false
	}
	x, y = g[2*i], g[2*i+1]
	angle = math.Atan2(y-g[2*i-1], x-g[2*i-2])
	if angle < -math.Pi/2 {
		angle += math.Pi
	} else if angle > math.Pi/2 {
		angle -= math.Pi
	}
	return x, y, angle, true
}
