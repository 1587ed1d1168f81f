package ornament

// Count is the number of ornaments hung on the tree.
const Count = 25

// Grid is the number of sub-tiles along each axis of the source image.
const Grid = 5

// Tile addresses one cell of the Grid×Grid partition of a texture. The
// origin is the bottom-left cell, matching UV space.
type Tile struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Tiles maps ornament index to the texture cell shown on it. The order is a
// hand-picked visual arrangement that unwraps one image around the spiral;
// it has no geometric derivation.
var Tiles = [Count]Tile{
	{3, 3}, {3, 4}, {3, 0}, {3, 1}, {3, 2},
	{4, 3}, {4, 4}, {4, 0}, {4, 1}, {4, 2},
	{0, 3}, {0, 4}, {0, 0}, {0, 1}, {0, 2},
	{1, 3}, {1, 4}, {1, 0}, {1, 1}, {1, 2},
	{2, 3}, {2, 4}, {2, 0}, {2, 1}, {2, 2},
}

// UV returns the texture offset and repeat that crop a material to tile.
func UV(tile Tile) (offset, repeat [2]float64) {
	const size = 1.0 / Grid
	return [2]float64{float64(tile.X) * size, float64(tile.Y) * size}, [2]float64{size, size}
}
