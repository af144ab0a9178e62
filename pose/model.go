package pose

import "fmt"

// Bone is one joint of an immutable skeleton. ParentIndex is -1 for roots.
// Bind is the bone's local transform in the skeleton's rest pose.
type Bone struct {
	Name        string
	ParentIndex int
	Bind        RigidTransform
}

// Model is an immutable skeleton: the bone array plus a name lookup.
// Bones are ordered parents-before-children so a single forward pass can
// turn local transforms into absolute ones.
type Model struct {
	bones  []Bone
	byName map[string]int
}

// NewModel builds a model from bones. Bones must be topologically ordered:
// every parent index refers to an earlier bone.
func NewModel(bones []Bone) (*Model, error) {
	byName := make(map[string]int, len(bones))
	for i, b := range bones {
		if b.ParentIndex >= i {
			return nil, fmt.Errorf("pose: bone %q (%d) has parent %d out of order", b.Name, i, b.ParentIndex)
		}
		if _, dup := byName[b.Name]; dup {
			return nil, fmt.Errorf("pose: duplicate bone name %q", b.Name)
		}
		byName[b.Name] = i
	}
	return &Model{bones: append([]Bone(nil), bones...), byName: byName}, nil
}

// BoneCount returns the number of bones.
func (m *Model) BoneCount() int {
	return len(m.bones)
}

// Bone returns the bone at index i.
func (m *Model) Bone(i int) Bone {
	return m.bones[i]
}

// BoneIndex resolves a bone name to its index.
func (m *Model) BoneIndex(name string) (int, bool) {
	i, ok := m.byName[name]
	return i, ok
}

// RelativePose fills p with the model's bind pose in bone-local space.
func (m *Model) RelativePose(p *Pose) {
	for i, b := range m.bones {
		p.Positions[i] = b.Bind.Pos
		p.Rotations[i] = b.Bind.Rot
	}
}
