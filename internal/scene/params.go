package scene

import (
	"math"

	"xmastree/internal/ornament"
	"xmastree/internal/spiral"
)

// Params fixes the dimensions and look of the tree.
type Params struct {
	TreeHeight   float64
	TreeRadius   float64
	ConeSegments int
	TreeColor    string

	Turns float64
	Steps int

	OrnamentSize      float64
	OrnamentAlphaTest float64

	StarPoints      int
	StarOuterRadius float64
	StarInnerRadius float64
	StarDepth       float64
	StarOffset      float64
	StarRotation    float64
	StarColor       string

	Snow SnowParams
}

// SnowParams controls the decorative particle cloud.
type SnowParams struct {
	Count int
	Seed  int64
	Size  float64
	Color string
}

func DefaultParams() Params {
	return Params{
		TreeHeight:   6,
		TreeRadius:   2,
		ConeSegments: 32,
		TreeColor:    "#008000",

		Turns: 4,
		Steps: 1000,

		OrnamentSize:      0.8,
		OrnamentAlphaTest: 0.5,

		StarPoints:      5,
		StarOuterRadius: 0.6,
		StarInnerRadius: 0.3,
		StarDepth:       0.1,
		StarOffset:      0.6,
		StarRotation:    math.Pi / 2,
		StarColor:       "#ffff00",

		Snow: SnowParams{
			Count: 400,
			Seed:  1225,
			Size:  0.05,
			Color: "#ffffff",
		},
	}
}

func (p Params) Spiral() spiral.Config {
	return spiral.Config{
		TreeHeight: p.TreeHeight,
		TreeRadius: p.TreeRadius,
		Turns:      p.Turns,
		Steps:      p.Steps,
	}
}

// OrnamentLift is the height added to every ornament so that its quad
// hangs clear of the spiral line: two tile heights in UV units.
func (p Params) OrnamentLift() float64 {
	return 2.0 / ornament.Grid
}
