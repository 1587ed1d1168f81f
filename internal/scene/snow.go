package scene

import (
	"math"
	"math/rand"
)

// Snow scatters count particles inside a cone of the given radius and height
// centred on the origin. Heights are uniform; each particle's radius is
// drawn within the cone's cross-section at that height, area weighted.
func Snow(p SnowParams, radius, height float64) []float32 {
	rng := rand.New(rand.NewSource(p.Seed))
	out := make([]float32, 0, p.Count*3)
	for i := 0; i < p.Count; i++ {
		h := rng.Float64() * height
		maxR := radius * (1 - h/height)
		r := maxR * math.Sqrt(rng.Float64())
		a := rng.Float64() * 2 * math.Pi
		out = append(out,
			float32(r*math.Cos(a)),
			float32(h-height/2),
			float32(r*math.Sin(a)),
		)
	}
	return out
}
