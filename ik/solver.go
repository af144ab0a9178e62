// Package ik implements an N-bone inverse-kinematics reaching solver.
// The solve is an alternating forward/backward length-preserving
// relaxation over joint positions, not a Jacobian method: each iteration
// pins the tip to the target and reprojects joints backward along the
// rigid segment lengths, then re-anchors the root and reprojects forward.
// Rotations are recovered afterwards from how each joint-to-child edge
// direction changed.
package ik

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/atrika/animrt/common"
	"github.com/atrika/animrt/pose"
)

// MaxChainBones bounds the solvable chain length.
const MaxChainBones = 8

// Chain names the bone sequence to solve over, root first. Bones must
// form a parent chain on the skeleton the chain is solved against.
type Chain struct {
	Bones         []string
	MaxIterations int
}

// Solve adjusts p (a relative pose for model m) so the chain reaches
// toward target, blending the corrected transforms in by weight. Weight 0
// leaves the pose untouched. A bone name that does not resolve on m
// aborts the solve silently, leaving the pose unchanged.
func Solve(chain Chain, target mgl32.Vec3, weight float32, p *pose.Pose, m *pose.Model) {
	count := len(chain.Bones)
	if weight <= 0 || count < 2 || count > MaxChainBones {
		return
	}
	weight = common.Clamp(weight, 0, 1)

	var indices [MaxChainBones]int
	for i, name := range chain.Bones {
		idx, ok := m.BoneIndex(name)
		if !ok {
			return
		}
		indices[i] = idx
	}

	// Convert the chain from bone space to model space, recording the
	// pre-solve joint positions and the rigid segment lengths.
	rootsParent := pose.IdentityTransform()
	if parent := m.Bone(indices[0]).ParentIndex; parent >= 0 {
		rootsParent = p.AbsoluteBone(m, parent)
	}

	var transforms [MaxChainBones]pose.RigidTransform
	var oldPos [MaxChainBones]mgl32.Vec3
	var segLen [MaxChainBones - 1]float32
	lenSum := float32(0)
	parentTr := rootsParent
	for i := 0; i < count; i++ {
		transforms[i] = parentTr.Mul(p.Bone(indices[i]))
		oldPos[i] = transforms[i].Pos
		if i > 0 {
			segLen[i-1] = transforms[i].Pos.Sub(transforms[i-1].Pos).Len()
			lenSum += segLen[i-1]
		}
		parentTr = transforms[i]
	}

	// Clamp an unreachable target onto the max-reach sphere.
	goal := target
	toTarget := goal.Sub(transforms[0].Pos)
	if lenSum*lenSum < toTarget.LenSqr() {
		goal = transforms[0].Pos.Add(toTarget.Normalize().Mul(lenSum))
	}

	iterations := chain.MaxIterations
	if iterations < 1 {
		iterations = 1
	}
	for iter := 0; iter < iterations; iter++ {
		transforms[count-1].Pos = goal

		for i := count - 1; i > 1; i-- {
			dir := transforms[i-1].Pos.Sub(transforms[i].Pos).Normalize()
			transforms[i-1].Pos = transforms[i].Pos.Add(dir.Mul(segLen[i-1]))
		}
		for i := 1; i < count; i++ {
			dir := transforms[i].Pos.Sub(transforms[i-1].Pos).Normalize()
			transforms[i].Pos = transforms[i-1].Pos.Add(dir.Mul(segLen[i-1]))
		}
	}

	// Recover each joint's rotation from the change in direction to its
	// child, shortest arc, composed onto the original rotation.
	for i := count - 2; i >= 0; i-- {
		oldDir := oldPos[i+1].Sub(oldPos[i])
		newDir := transforms[i+1].Pos.Sub(transforms[i].Pos)
		rel := mgl32.QuatBetweenVectors(oldDir, newDir)
		transforms[i].Rot = rel.Mul(transforms[i].Rot)
	}

	// Back to bone space, deepest joints first so parents are still in
	// model space when their children convert through them.
	var out [MaxChainBones]pose.RigidTransform
	for i := count - 1; i > 0; i-- {
		transforms[i] = transforms[i-1].Inverted().Mul(transforms[i])
		out[i].Pos = transforms[i].Pos
	}
	for i := count - 2; i > 0; i-- {
		out[i].Rot = transforms[i].Rot
	}
	out[count-1].Rot = p.Rotations[indices[count-1]]
	if m.Bone(indices[0]).ParentIndex >= 0 {
		out[0].Rot = rootsParent.Rot.Conjugate().Mul(transforms[0].Rot)
	} else {
		out[0].Rot = transforms[0].Rot
	}
	// IK only reorients the chain root; its local position stays put.
	out[0].Pos = p.Positions[indices[0]]

	for i := 0; i < count; i++ {
		idx := indices[i]
		p.Positions[idx] = p.Positions[idx].Add(out[i].Pos.Sub(p.Positions[idx]).Mul(weight))
		p.Rotations[idx] = mgl32.QuatNlerp(p.Rotations[idx], out[i].Rot, weight)
	}
}
