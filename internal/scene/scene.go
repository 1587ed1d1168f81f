package scene

import (
	"xmastree/internal/ornament"
	"xmastree/internal/spiral"
)

type NodeKind string

const (
	KindTree     NodeKind = "tree"
	KindStar     NodeKind = "star"
	KindSnow     NodeKind = "snow"
	KindOrnament NodeKind = "ornament"
)

// TextureBinding selects the region of a texture a material samples.
type TextureBinding struct {
	TextureID string        `json:"textureId"`
	Offset    [2]float64    `json:"offset"`
	Repeat    [2]float64    `json:"repeat"`
	Tile      ornament.Tile `json:"tile"`
}

type Material struct {
	Color       string          `json:"color"`
	DoubleSided bool            `json:"doubleSided,omitempty"`
	Transparent bool            `json:"transparent,omitempty"`
	AlphaTest   float64         `json:"alphaTest,omitempty"`
	PointSize   float64         `json:"pointSize,omitempty"`
	Texture     *TextureBinding `json:"texture,omitempty"`
}

// Transform places a node. Rotation holds XYZ Euler angles in radians.
type Transform struct {
	Position spiral.Point3 `json:"position"`
	Rotation [3]float64    `json:"rotation"`
}

// Node is one renderable object of the scene.
type Node struct {
	Name      string    `json:"name"`
	Kind      NodeKind  `json:"kind"`
	Mesh      Mesh      `json:"mesh"`
	Material  Material  `json:"material"`
	Transform Transform `json:"transform"`
}

// Graph is the flat list of nodes the composer maintains.
type Graph struct {
	nodes []*Node
}

func (g *Graph) Add(n *Node) { g.nodes = append(g.nodes, n) }

func (g *Graph) Clear() { g.nodes = g.nodes[:0] }

func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) Find(name string) (*Node, bool) {
	for _, n := range g.nodes {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Scene is an immutable copy of the composer state handed to renderers.
type Scene struct {
	Revision  string          `json:"revision"`
	TextureID string          `json:"textureId,omitempty"`
	Nodes     []Node          `json:"nodes"`
	Slots     []ornament.Slot `json:"slots"`
}
