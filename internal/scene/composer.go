package scene

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"xmastree/internal/ornament"
	"xmastree/internal/spiral"
	"xmastree/internal/texture"
)

// Composer owns the scene graph and its ornaments. It is safe for concurrent
// use; readers receive deep copies through Snapshot.
type Composer struct {
	params Params
	table  *spiral.Table
	logger *slog.Logger

	mu        sync.RWMutex
	graph     Graph
	ornaments []*Node
	slots     []ornament.Slot
	texture   *texture.Texture
	revision  string

	subsMu  sync.Mutex
	subs    map[int]chan Scene
	nextSub int
}

func NewComposer(params Params, logger *slog.Logger) (*Composer, error) {
	table, err := spiral.Lookup(params.Spiral())
	if err != nil {
		return nil, fmt.Errorf("spiral: %w", err)
	}
	if params.ConeSegments < 3 {
		return nil, fmt.Errorf("cone needs at least 3 segments, got %d", params.ConeSegments)
	}
	if params.StarPoints < 2 {
		return nil, fmt.Errorf("star needs at least 2 points, got %d", params.StarPoints)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		params: params,
		table:  table,
		logger: logger.With("component", "composer"),
		subs:   make(map[int]chan Scene),
	}, nil
}

func (c *Composer) Params() Params { return c.params }

// RebuildTree discards every node and adds the cone, star, snow and
// ornaments again. An active texture is re-bound to the new ornaments.
func (c *Composer) RebuildTree() {
	c.mu.Lock()
	c.rebuildLocked()
	if c.texture != nil {
		c.bindLocked(c.texture)
	}
	c.revision = uuid.NewString()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("tree rebuilt", "nodes", len(snap.Nodes), "revision", snap.Revision)
	c.publish(snap)
}

func (c *Composer) rebuildLocked() {
	p := c.params
	c.graph.Clear()

	c.graph.Add(&Node{
		Name:     "tree",
		Kind:     KindTree,
		Mesh:     Cone(float32(p.TreeRadius), float32(p.TreeHeight), p.ConeSegments),
		Material: Material{Color: p.TreeColor},
	})

	outline := StarOutline(p.StarPoints, float32(p.StarOuterRadius), float32(p.StarInnerRadius))
	c.graph.Add(&Node{
		Name:     "star",
		Kind:     KindStar,
		Mesh:     Extrude(outline, float32(p.StarDepth)),
		Material: Material{Color: p.StarColor},
		Transform: Transform{
			Position: spiral.Point3{Y: p.TreeHeight/2 + p.StarOffset},
			Rotation: [3]float64{0, 0, p.StarRotation},
		},
	})

	if p.Snow.Count > 0 {
		c.graph.Add(&Node{
			Name:     "snow",
			Kind:     KindSnow,
			Mesh:     Points(Snow(p.Snow, p.TreeRadius, p.TreeHeight)),
			Material: Material{Color: p.Snow.Color, PointSize: p.Snow.Size},
		})
	}

	c.slots = ornament.Slots(c.table)
	c.ornaments = c.ornaments[:0]
	size := float32(p.OrnamentSize)
	for _, slot := range c.slots {
		pos := slot.Position
		pos.Y += p.OrnamentLift() - p.TreeHeight/2
		n := &Node{
			Name: fmt.Sprintf("ornament-%02d", slot.Index),
			Kind: KindOrnament,
			Mesh: Quad(size, size),
			Material: Material{
				Color:       "#ffffff",
				DoubleSided: true,
				Transparent: true,
				AlphaTest:   p.OrnamentAlphaTest,
			},
			Transform: Transform{
				Position: pos,
				Rotation: ornament.LookOutward(pos).Euler,
			},
		}
		c.graph.Add(n)
		c.ornaments = append(c.ornaments, n)
	}
}

// ApplyTexture binds tex to every ornament, each sampling its own tile. The
// tree is built first if it has never been built.
func (c *Composer) ApplyTexture(tex *texture.Texture) {
	if tex == nil {
		return
	}
	c.mu.Lock()
	if c.graph.Len() == 0 {
		c.rebuildLocked()
	}
	c.texture = tex
	c.bindLocked(tex)
	c.revision = uuid.NewString()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("texture applied", "texture", tex.ID, "source", tex.Source, "revision", snap.Revision)
	c.publish(snap)
}

func (c *Composer) bindLocked(tex *texture.Texture) {
	for i, n := range c.ornaments {
		tile := c.slots[i].Tile
		offset, repeat := ornament.UV(tile)
		n.Material.Texture = &TextureBinding{
			TextureID: tex.ID,
			Offset:    offset,
			Repeat:    repeat,
			Tile:      tile,
		}
	}
}

// Texture returns the texture currently bound to the ornaments, if any.
func (c *Composer) Texture() *texture.Texture {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.texture
}

// Slots returns the ornament placements of the last rebuild.
func (c *Composer) Slots() []ornament.Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ornament.Slot(nil), c.slots...)
}

// Revision identifies the current scene state. It changes on every rebuild
// and texture change.
func (c *Composer) Revision() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

func (c *Composer) Snapshot() Scene {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Composer) snapshotLocked() Scene {
	s := Scene{
		Revision: c.revision,
		Nodes:    make([]Node, 0, len(c.graph.nodes)),
		Slots:    append([]ornament.Slot(nil), c.slots...),
	}
	if c.texture != nil {
		s.TextureID = c.texture.ID
	}
	for _, n := range c.graph.nodes {
		var dup Node
		if err := copyNode(&dup, n); err != nil {
			// A partial copy would publish an empty mesh under a real name.
			c.logger.Error("scene node dropped from snapshot", "node", n.Name, "err", err)
			continue
		}
		s.Nodes = append(s.Nodes, dup)
	}
	return s
}

var copyNode = func(dst, src *Node) error {
	return copier.CopyWithOption(dst, src, copier.Option{DeepCopy: true})
}

// Subscribe registers for scene updates. Slow subscribers only see the most
// recent scene. cancel must be called to release the subscription.
func (c *Composer) Subscribe() (<-chan Scene, func()) {
	ch := make(chan Scene, 1)
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			close(ch)
			c.subsMu.Unlock()
		})
	}
}

func (c *Composer) publish(s Scene) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Drop the stale scene and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
