// Package vecmath provides the 3D position and orientation primitives the
// spatial pipeline needs: a world-space vector (built on golang/geo's r3
// package) and a unit-quaternion pose with a derived local basis.
package vecmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Vector3 is a point or direction in world space. It is a thin alias over
// r3.Vector so the spatial pipeline gets Add/Sub/Dot/Cross/Norm for free.
type Vector3 = r3.Vector

// NewVector3 constructs a Vector3 from components.
func NewVector3(x, y, z float64) Vector3 {
	return Vector3{X: x, Y: y, Z: z}
}

// Zero is the origin / zero vector.
var Zero = Vector3{}

// Scale returns v scaled by s. r3.Vector has no Scale method of its own.
func Scale(v Vector3, s float64) Vector3 {
	return Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Quaternion is a unit quaternion representing an orientation.
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuaternion is the no-rotation orientation.
var IdentityQuaternion = Quaternion{W: 1}

// NewQuaternion constructs a quaternion from components. Callers that need a
// unit quaternion should call Normalized.
func NewQuaternion(w, x, y, z float64) Quaternion {
	return Quaternion{W: w, X: x, Y: y, Z: z}
}

// Normalized returns q scaled to unit length. The identity quaternion is
// returned for a (degenerate) zero-length input.
func (q Quaternion) Normalized() Quaternion {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n < 1e-12 {
		return IdentityQuaternion
	}
	return Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Rotate applies q's rotation to v (q assumed unit; call Normalized first if
// unsure). Uses the standard q*v*q^-1 expansion optimised to avoid building
// the conjugate quaternion explicitly.
func (q Quaternion) Rotate(v Vector3) Vector3 {
	qv := Vector3{X: q.X, Y: q.Y, Z: q.Z}
	uv := qv.Cross(v)
	uuv := qv.Cross(uv)
	uv = Scale(uv, 2*q.W)
	uuv = Scale(uuv, 2)
	return v.Add(uv).Add(uuv)
}

// World-space reference axes. The engine uses a right-handed coordinate
// system with +Y up and listener "forward" along -Z at identity orientation,
// matching the convention spec.md's listener-relative direction computation
// (§4.3 step 4c) assumes.
var (
	refForward = Vector3{X: 0, Y: 0, Z: -1}
	refUp      = Vector3{X: 0, Y: 1, Z: 0}
	refRight   = Vector3{X: 1, Y: 0, Z: 0}
)

// Basis is the forward/up/right triad derived from an orientation.
type Basis struct {
	Forward Vector3
	Up      Vector3
	Right   Vector3
}

// DeriveBasis computes the local forward/up/right basis for the given
// orientation by rotating the reference axes.
func DeriveBasis(orientation Quaternion) Basis {
	q := orientation.Normalized()
	return Basis{
		Forward: q.Rotate(refForward),
		Up:      q.Rotate(refUp),
		Right:   q.Rotate(refRight),
	}
}

// Pose is a combined position and orientation.
type Pose struct {
	Position    Vector3
	Orientation Quaternion
}

// IdentityPose is the pose at the world origin facing -Z.
var IdentityPose = Pose{Orientation: IdentityQuaternion}

// LocalDirection expresses the direction from listener to the given world
// position in the listener's local (right, up, forward) frame, as a unit
// vector. Returns the zero vector when source and listener coincide (spec.md
// B3: the caller must treat this degenerate case specially, never crash).
func LocalDirection(listener Pose, worldPos Vector3) Vector3 {
	delta := worldPos.Sub(listener.Position)
	n := delta.Norm()
	if n < 1e-9 {
		return Vector3{}
	}
	delta = Scale(delta, 1/n)

	basis := DeriveBasis(listener.Orientation)
	return Vector3{
		X: delta.Dot(basis.Right),
		Y: delta.Dot(basis.Up),
		Z: delta.Dot(basis.Forward),
	}
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Vector3) float64 {
	return a.Sub(b).Norm()
}
