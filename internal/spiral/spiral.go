package spiral

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Config describes a spiral wrapped around a cone from its base ring
// (radius TreeRadius) to its apex (radius 0) over Turns full revolutions.
// Steps is the number of trapezoids used to integrate the arc length.
type Config struct {
	TreeHeight float64 `json:"treeHeight"`
	TreeRadius float64 `json:"treeRadius"`
	Turns      float64 `json:"turns"`
	Steps      int     `json:"steps"`
}

// Point3 is a position with Y as the vertical axis.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (c Config) Validate() error {
	if !(c.TreeHeight > 0) {
		return fmt.Errorf("spiral: tree height must be positive, got %v", c.TreeHeight)
	}
	if !(c.TreeRadius >= 0) {
		return fmt.Errorf("spiral: tree radius cannot be negative, got %v", c.TreeRadius)
	}
	if !(c.Turns > 0) {
		return fmt.Errorf("spiral: turns must be positive, got %v", c.Turns)
	}
	if c.Steps < 1 {
		return fmt.Errorf("spiral: steps must be at least 1, got %d", c.Steps)
	}
	return nil
}

// Table holds the arc-length integral of one spiral. It is immutable once
// built and may be shared between goroutines.
type Table struct {
	cfg    Config
	dTheta float64
	drdt   float64
	dzdt   float64
	// speed[i] is ds/dθ at θ = i·dTheta, for i in [0, Steps].
	speed []float64
	// cumulative[i] is the arc length up to the start of segment i.
	cumulative []float64
}

func NewTable(cfg Config) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sweep := 2 * math.Pi * cfg.Turns
	t := &Table{
		cfg:        cfg,
		dTheta:     sweep / float64(cfg.Steps),
		drdt:       -cfg.TreeHeight / sweep * cfg.TreeRadius / cfg.TreeHeight,
		dzdt:       cfg.TreeHeight / sweep,
		speed:      make([]float64, cfg.Steps+1),
		cumulative: make([]float64, cfg.Steps+1),
	}
	for i := range t.speed {
		t.speed[i] = t.Speed(float64(i) * t.dTheta)
	}
	var total float64
	for i := 0; i < cfg.Steps; i++ {
		total += t.segment(i)
		t.cumulative[i+1] = total
	}
	return t, nil
}

// MustTable is like NewTable but panics on an invalid Config.
func MustTable(cfg Config) *Table {
	t, err := NewTable(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Config() Config { return t.cfg }

// Length is the total arc length of the spiral.
func (t *Table) Length() float64 { return t.cumulative[t.cfg.Steps] }

func (t *Table) segment(i int) float64 {
	return (t.speed[i] + t.speed[i+1]) / 2 * t.dTheta
}

func (t *Table) height(theta float64) float64 {
	return t.dzdt * theta
}

func (t *Table) radius(theta float64) float64 {
	return t.cfg.TreeRadius * (1 - t.height(theta)/t.cfg.TreeHeight)
}

// Speed returns ds/dθ at theta.
func (t *Table) Speed(theta float64) float64 {
	r := t.radius(theta)
	sin, cos := math.Sincos(theta)
	dx := t.drdt*cos - r*sin
	dy := t.drdt*sin + r*cos
	return math.Sqrt(dx*dx + dy*dy + t.dzdt*t.dzdt)
}

// Position evaluates the spiral at theta. The vertical component is the
// unshifted height in [0, TreeHeight].
func (t *Table) Position(theta float64) Point3 {
	r := t.radius(theta)
	sin, cos := math.Sincos(theta)
	return Point3{X: r * cos, Y: t.height(theta), Z: r * sin}
}

// Apex is the point returned for fractions at or beyond the end of the spiral.
func (t *Table) Apex() Point3 {
	return Point3{X: 0, Y: t.cfg.TreeHeight / 2, Z: 0}
}

// Locate returns the angle at which the given fraction of the total arc
// length is reached. ok is false when the fraction lies at or past the end
// of the spiral.
//
// Within the located segment the remaining distance is converted to an
// angle using the speed at the segment start only, so positions carry a
// small first-order error that shrinks with Steps.
func (t *Table) Locate(fraction float64) (theta float64, ok bool) {
	if fraction >= 1 {
		return 0, false
	}
	if fraction < 0 {
		fraction = 0
	}
	target := t.Length() * fraction
	steps := t.cfg.Steps
	i := sort.Search(steps, func(i int) bool {
		return t.cumulative[i+1] >= target
	})
	if i == steps {
		return 0, false
	}
	start := float64(i) * t.dTheta
	return start + (target-t.cumulative[i])/t.speed[i], true
}

// Place returns the point at the given fraction of the total arc length.
// Fractions of 1 or more yield the apex exactly.
func (t *Table) Place(fraction float64) Point3 {
	theta, ok := t.Locate(fraction)
	if !ok {
		return t.Apex()
	}
	return t.Position(theta)
}

const maxCachedTables = 64

var (
	tablesMu sync.Mutex
	tables   = make(map[Config]*Table)
)

// Lookup returns the shared table for cfg, building it on first use.
func Lookup(cfg Config) (*Table, error) {
	tablesMu.Lock()
	t, ok := tables[cfg]
	tablesMu.Unlock()
	if ok {
		return t, nil
	}
	t, err := NewTable(cfg)
	if err != nil {
		return nil, err
	}
	tablesMu.Lock()
	defer tablesMu.Unlock()
	if existing, ok := tables[cfg]; ok {
		return existing, nil
	}
	if len(tables) >= maxCachedTables {
		clear(tables)
	}
	tables[cfg] = t
	return t, nil
}

// Place returns the point at the given fraction of the arc length of the
// spiral described by cfg. It panics if cfg is invalid.
func Place(cfg Config, fraction float64) Point3 {
	t, err := Lookup(cfg)
	if err != nil {
		panic(err)
	}
	return t.Place(fraction)
}
