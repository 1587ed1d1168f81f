package ornament

import "xmastree/internal/spiral"

// Slot is the derived placement of one ornament.
type Slot struct {
	Index    int           `json:"index"`
	Fraction float64       `json:"fraction"`
	Position spiral.Point3 `json:"position"`
	Tile     Tile          `json:"tile"`
}

// Fraction returns the arc-length fraction at which ornament i hangs.
func Fraction(i int) float64 {
	return float64(i) / Count
}

// Slots places every ornament along the spiral in ascending index order.
// Positions are in the spiral's own frame, with the base ring at height 0.
func Slots(t *spiral.Table) []Slot {
	slots := make([]Slot, Count)
	for i := range slots {
		f := Fraction(i)
		slots[i] = Slot{
			Index:    i,
			Fraction: f,
			Position: t.Place(f),
			Tile:     Tiles[i],
		}
	}
	return slots
}
