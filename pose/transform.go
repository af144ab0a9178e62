package pose

import "github.com/go-gl/mathgl/mgl32"

// RigidTransform is a position plus rotation, no scale. Bone-local and
// bone-absolute transforms are both represented this way.
type RigidTransform struct {
	Pos mgl32.Vec3
	Rot mgl32.Quat
}

// IdentityTransform returns the identity rigid transform.
func IdentityTransform() RigidTransform {
	return RigidTransform{Rot: mgl32.QuatIdent()}
}

// Mul composes t with child: the result maps child-local space through t.
func (t RigidTransform) Mul(child RigidTransform) RigidTransform {
	return RigidTransform{
		Pos: t.Pos.Add(t.Rot.Rotate(child.Pos)),
		Rot: t.Rot.Mul(child.Rot),
	}
}

// Inverted returns the inverse transform.
func (t RigidTransform) Inverted() RigidTransform {
	inv := t.Rot.Conjugate()
	return RigidTransform{
		Pos: inv.Rotate(t.Pos).Mul(-1),
		Rot: inv,
	}
}
