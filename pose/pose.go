package pose

import "github.com/go-gl/mathgl/mgl32"

// Pose holds one skeleton instance's per-bone transforms, indexed
// identically to the model's bone array. A pose is either relative
// (bone-local) or absolute (model space); ComputeAbsolute converts
// in place.
type Pose struct {
	Positions []mgl32.Vec3
	Rotations []mgl32.Quat
}

// NewPose allocates a pose for boneCount bones, initialized to identity.
func NewPose(boneCount int) *Pose {
	p := &Pose{
		Positions: make([]mgl32.Vec3, boneCount),
		Rotations: make([]mgl32.Quat, boneCount),
	}
	for i := range p.Rotations {
		p.Rotations[i] = mgl32.QuatIdent()
	}
	return p
}

// Bone returns bone i's transform.
func (p *Pose) Bone(i int) RigidTransform {
	return RigidTransform{Pos: p.Positions[i], Rot: p.Rotations[i]}
}

// SetBone stores t as bone i's transform.
func (p *Pose) SetBone(i int, t RigidTransform) {
	p.Positions[i] = t.Pos
	p.Rotations[i] = t.Rot
}

// AbsoluteBone resolves bone i's absolute transform from a relative pose
// by walking the parent chain.
func (p *Pose) AbsoluteBone(m *Model, i int) RigidTransform {
	t := p.Bone(i)
	parent := m.Bone(i).ParentIndex
	if parent < 0 {
		return t
	}
	return p.AbsoluteBone(m, parent).Mul(t)
}

// ComputeAbsolute converts the pose from bone-local to model space in a
// single forward pass. Requires the model's parents-before-children bone
// order.
func (p *Pose) ComputeAbsolute(m *Model) {
	for i := 0; i < m.BoneCount(); i++ {
		parent := m.Bone(i).ParentIndex
		if parent < 0 {
			continue
		}
		abs := p.Bone(parent).Mul(p.Bone(i))
		p.SetBone(i, abs)
	}
}

// Clone returns a deep copy of the pose.
func (p *Pose) Clone() *Pose {
	return &Pose{
		Positions: append([]mgl32.Vec3(nil), p.Positions...),
		Rotations: append([]mgl32.Quat(nil), p.Rotations...),
	}
}
