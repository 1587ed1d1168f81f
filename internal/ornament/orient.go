package ornament

import (
	"math"

	"github.com/ungerik/go3d/float64/vec3"

	"xmastree/internal/spiral"
)

// Orientation is a rotation given both as an orthonormal basis and as
// intrinsic XYZ Euler angles in radians. Forward is the facing normal of the
// ornament quad.
type Orientation struct {
	Right   spiral.Point3 `json:"right"`
	Up      spiral.Point3 `json:"up"`
	Forward spiral.Point3 `json:"forward"`
	Euler   [3]float64    `json:"euler"`
}

// Identity is the orientation of an unrotated node.
var Identity = Orientation{
	Right:   spiral.Point3{X: 1},
	Up:      spiral.Point3{Y: 1},
	Forward: spiral.Point3{Z: 1},
}

// OutwardTarget is the point an ornament at p faces: its horizontal
// components doubled and its height unchanged.
func OutwardTarget(p spiral.Point3) spiral.Point3 {
	return spiral.Point3{X: p.X * 2, Y: p.Y, Z: p.Z * 2}
}

// LookOutward orients a node at p so that its facing normal points away from
// the tree axis. Nodes on the axis keep the identity orientation.
func LookOutward(p spiral.Point3) Orientation {
	return LookAt(p, OutwardTarget(p))
}

// LookAt returns the orientation whose Forward axis points from eye toward
// target with world Y as the up hint.
func LookAt(eye, target spiral.Point3) Orientation {
	from := toVec(eye)
	to := toVec(target)
	forward := vec3.Sub(&to, &from)
	if forward.Length() < 1e-12 {
		return Identity
	}
	forward.Normalize()

	up := vec3.UnitY
	right := vec3.Cross(&up, &forward)
	if right.Length() < 1e-12 {
		// Looking straight up or down: nudge the up hint off the Y axis.
		alt := vec3.UnitZ
		right = vec3.Cross(&alt, &forward)
	}
	right.Normalize()
	trueUp := vec3.Cross(&forward, &right)

	return Orientation{
		Right:   fromVec(right),
		Up:      fromVec(trueUp),
		Forward: fromVec(forward),
		Euler:   eulerXYZ(right, trueUp, forward),
	}
}

// eulerXYZ decomposes the rotation matrix with columns right, up, forward.
func eulerXYZ(right, up, forward vec3.T) [3]float64 {
	m11, m12, m13 := right[0], up[0], forward[0]
	m22, m23 := up[1], forward[1]
	m32, m33 := up[2], forward[2]

	y := math.Asin(math.Max(-1, math.Min(1, m13)))
	if math.Abs(m13) < 0.9999999 {
		return [3]float64{math.Atan2(-m23, m33), y, math.Atan2(-m12, m11)}
	}
	return [3]float64{math.Atan2(m32, m22), y, 0}
}

func toVec(p spiral.Point3) vec3.T {
	return vec3.T{p.X, p.Y, p.Z}
}

func fromVec(v vec3.T) spiral.Point3 {
	return spiral.Point3{X: v[0], Y: v[1], Z: v[2]}
}
