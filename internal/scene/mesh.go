package scene

import "github.com/chewxy/math32"

// Mesh is a triangle (or point) buffer in the layout a GPU renderer uploads
// directly: flat xyz positions, optional uv pairs and triangle indices.
type Mesh struct {
	Kind      string    `json:"kind"`
	Positions []float32 `json:"positions"`
	UVs       []float32 `json:"uvs,omitempty"`
	Indices   []uint32  `json:"indices,omitempty"`
}

const (
	MeshCone    = "cone"
	MeshExtrude = "extrude"
	MeshPlane   = "plane"
	MeshPoints  = "points"
)

func (m *Mesh) VertexCount() int { return len(m.Positions) / 3 }

func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

func (m *Mesh) vertex(x, y, z float32) uint32 {
	m.Positions = append(m.Positions, x, y, z)
	return uint32(m.VertexCount() - 1)
}

func (m *Mesh) triangle(a, b, c uint32) {
	m.Indices = append(m.Indices, a, b, c)
}

// Cone builds a cone centred on the origin: the base ring lies at -height/2
// and the apex at +height/2. Faces wind counter-clockwise seen from outside.
func Cone(radius, height float32, segments int) Mesh {
	m := Mesh{Kind: MeshCone}
	half := height / 2
	apex := m.vertex(0, half, 0)
	ring := make([]uint32, segments)
	for i := range ring {
		a := float32(i) * 2 * math32.Pi / float32(segments)
		ring[i] = m.vertex(radius*math32.Sin(a), -half, radius*math32.Cos(a))
	}
	center := m.vertex(0, -half, 0)
	for i := range ring {
		next := ring[(i+1)%segments]
		m.triangle(apex, ring[i], next)
		m.triangle(center, next, ring[i])
	}
	return m
}

// StarOutline returns the 2·points corners of a star polygon, alternating
// between the outer and inner radius and starting on the +X axis.
func StarOutline(points int, outer, inner float32) [][2]float32 {
	corners := make([][2]float32, points*2)
	for i := range corners {
		a := float32(i) * 2 * math32.Pi / float32(points*2)
		r := outer
		if i%2 == 1 {
			r = inner
		}
		corners[i] = [2]float32{math32.Cos(a) * r, math32.Sin(a) * r}
	}
	return corners
}

// Extrude sweeps a polygon that is star-shaped about the origin along +Z by
// depth, capping both ends with a fan around the origin.
func Extrude(outline [][2]float32, depth float32) Mesh {
	m := Mesh{Kind: MeshExtrude}
	n := len(outline)
	front := make([]uint32, n)
	back := make([]uint32, n)
	frontCenter := m.vertex(0, 0, 0)
	for i, p := range outline {
		front[i] = m.vertex(p[0], p[1], 0)
	}
	backCenter := m.vertex(0, 0, depth)
	for i, p := range outline {
		back[i] = m.vertex(p[0], p[1], depth)
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		m.triangle(frontCenter, front[j], front[i])
		m.triangle(backCenter, back[i], back[j])
		m.triangle(front[i], front[j], back[j])
		m.triangle(front[i], back[j], back[i])
	}
	return m
}

// Quad is a width×height plane facing +Z with uvs spanning the unit square.
func Quad(width, height float32) Mesh {
	w, h := width/2, height/2
	return Mesh{
		Kind:      MeshPlane,
		Positions: []float32{-w, h, 0, w, h, 0, -w, -h, 0, w, -h, 0},
		UVs:       []float32{0, 1, 1, 1, 0, 0, 1, 0},
		Indices:   []uint32{0, 2, 1, 2, 3, 1},
	}
}

// Points wraps a flat xyz buffer as a point cloud.
func Points(positions []float32) Mesh {
	return Mesh{Kind: MeshPoints, Positions: positions}
}
