// Package anim defines the playable animation assets: keyframed bone
// clips and scalar property curves. Both are authored as YAML and loaded
// through the asset registry.
package anim

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/atrika/animrt/pose"
)

// PosKey is one position keyframe.
type PosKey struct {
	Time  float32
	Value mgl32.Vec3
}

// RotKey is one rotation keyframe.
type RotKey struct {
	Time  float32
	Value mgl32.Quat
}

// Track keyframes one bone, addressed by name so a clip can be shared
// across compatible skeletons.
type Track struct {
	Bone    string
	PosKeys []PosKey
	RotKeys []RotKey
}

// ClipEvent is one entry of a clip's event track. Type is hashed into the
// event stream's record tag when the playhead crosses Time.
type ClipEvent struct {
	Time  float32
	Type  string
	Value float32
}

// Clip is one animation: bone tracks over a fixed length in seconds,
// plus an optional event track. The first track drives root motion when
// RootMotion is set.
type Clip struct {
	Name       string
	Length     float32
	RootMotion bool
	Tracks     []Track
	Events     []ClipEvent
}

type clipSpec struct {
	Name       string  `yaml:"name"`
	Length     float32 `yaml:"length"`
	RootMotion bool    `yaml:"root_motion"`
	Tracks     []struct {
		Bone      string `yaml:"bone"`
		Positions []struct {
			T float32    `yaml:"t"`
			V [3]float32 `yaml:"v"`
		} `yaml:"positions"`
		Rotations []struct {
			T float32    `yaml:"t"`
			V [4]float32 `yaml:"v"` // x y z w
		} `yaml:"rotations"`
	} `yaml:"tracks"`
	Events []struct {
		Time  float32 `yaml:"time"`
		Type  string  `yaml:"type"`
		Value float32 `yaml:"value"`
	} `yaml:"events"`
}

// ParseClip decodes a .ani asset.
func ParseClip(data []byte) (*Clip, error) {
	var spec clipSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("anim: unmarshal clip: %w", err)
	}
	if spec.Length <= 0 {
		return nil, fmt.Errorf("anim: clip %q has non-positive length", spec.Name)
	}
	clip := &Clip{Name: spec.Name, Length: spec.Length, RootMotion: spec.RootMotion}
	for _, ts := range spec.Tracks {
		track := Track{Bone: ts.Bone}
		for _, k := range ts.Positions {
			track.PosKeys = append(track.PosKeys, PosKey{Time: k.T, Value: mgl32.Vec3(k.V)})
		}
		for _, k := range ts.Rotations {
			q := mgl32.Quat{W: k.V[3], V: mgl32.Vec3{k.V[0], k.V[1], k.V[2]}}
			track.RotKeys = append(track.RotKeys, RotKey{Time: k.T, Value: q.Normalize()})
		}
		if !sort.SliceIsSorted(track.PosKeys, func(i, j int) bool { return track.PosKeys[i].Time < track.PosKeys[j].Time }) {
			return nil, fmt.Errorf("anim: clip %q bone %q position keys out of order", spec.Name, ts.Bone)
		}
		if !sort.SliceIsSorted(track.RotKeys, func(i, j int) bool { return track.RotKeys[i].Time < track.RotKeys[j].Time }) {
			return nil, fmt.Errorf("anim: clip %q bone %q rotation keys out of order", spec.Name, ts.Bone)
		}
		clip.Tracks = append(clip.Tracks, track)
	}
	for _, es := range spec.Events {
		clip.Events = append(clip.Events, ClipEvent{Time: es.Time, Type: es.Type, Value: es.Value})
	}
	return clip, nil
}

// samplePos interpolates the track's position at time t, falling back to
// fallback when the track has no position keys.
func (tr *Track) samplePos(t float32, fallback mgl32.Vec3) mgl32.Vec3 {
	n := len(tr.PosKeys)
	if n == 0 {
		return fallback
	}
	if t <= tr.PosKeys[0].Time {
		return tr.PosKeys[0].Value
	}
	for i := 1; i < n; i++ {
		if t <= tr.PosKeys[i].Time {
			a, b := tr.PosKeys[i-1], tr.PosKeys[i]
			f := (t - a.Time) / (b.Time - a.Time)
			return a.Value.Add(b.Value.Sub(a.Value).Mul(f))
		}
	}
	return tr.PosKeys[n-1].Value
}

func (tr *Track) sampleRot(t float32, fallback mgl32.Quat) mgl32.Quat {
	n := len(tr.RotKeys)
	if n == 0 {
		return fallback
	}
	if t <= tr.RotKeys[0].Time {
		return tr.RotKeys[0].Value
	}
	for i := 1; i < n; i++ {
		if t <= tr.RotKeys[i].Time {
			a, b := tr.RotKeys[i-1], tr.RotKeys[i]
			f := (t - a.Time) / (b.Time - a.Time)
			return mgl32.QuatNlerp(a.Value, b.Value, f)
		}
	}
	return tr.RotKeys[n-1].Value
}

// SampleInto overlays the clip's pose at time t onto p, which must hold
// the model's relative (bind) pose for any bone the clip does not key.
// weight 1 replaces the bone transforms; smaller weights blend toward the
// sampled values. Bones that do not resolve on the model are skipped.
func (c *Clip) SampleInto(t float32, p *pose.Pose, m *pose.Model, weight float32) {
	for i := range c.Tracks {
		tr := &c.Tracks[i]
		idx, ok := m.BoneIndex(tr.Bone)
		if !ok {
			continue
		}
		pos := tr.samplePos(t, p.Positions[idx])
		rot := tr.sampleRot(t, p.Rotations[idx])
		if weight >= 1 {
			p.Positions[idx] = pos
			p.Rotations[idx] = rot
		} else {
			p.Positions[idx] = p.Positions[idx].Add(pos.Sub(p.Positions[idx]).Mul(weight))
			p.Rotations[idx] = mgl32.QuatNlerp(p.Rotations[idx], rot, weight)
		}
	}
}

// rootTransform samples the first track at t.
func (c *Clip) rootTransform(t float32) pose.RigidTransform {
	out := pose.IdentityTransform()
	if len(c.Tracks) == 0 {
		return out
	}
	tr := &c.Tracks[0]
	out.Pos = tr.samplePos(t, mgl32.Vec3{})
	out.Rot = tr.sampleRot(t, mgl32.QuatIdent())
	return out
}

// RootMotionDelta returns the root bone's rigid delta from t0 to t1,
// expressed in the root's own space at t0. When playback wrapped past the
// clip end (t1 < t0), the delta is composed across the wrap point.
func (c *Clip) RootMotionDelta(t0, t1 float32) pose.RigidTransform {
	if !c.RootMotion || len(c.Tracks) == 0 {
		return pose.IdentityTransform()
	}
	if t1 >= t0 {
		return c.rootTransform(t0).Inverted().Mul(c.rootTransform(t1))
	}
	tail := c.rootTransform(t0).Inverted().Mul(c.rootTransform(c.Length))
	head := c.rootTransform(0).Inverted().Mul(c.rootTransform(t1))
	return tail.Mul(head)
}

// EventsInRange returns events whose time lies in (t0, t1], handling the
// wrap when t1 < t0.
func (c *Clip) EventsInRange(t0, t1 float32) []ClipEvent {
	var out []ClipEvent
	in := func(et float32) bool {
		if t1 >= t0 {
			return et > t0 && et <= t1
		}
		return et > t0 || et <= t1
	}
	for _, e := range c.Events {
		if in(e.Time) {
			out = append(out, e)
		}
	}
	return out
}

// WrapTime folds t into [0, Length).
func (c *Clip) WrapTime(t float32) float32 {
	if c.Length <= 0 {
		return 0
	}
	w := float32(math.Mod(float64(t), float64(c.Length)))
	if w < 0 {
		w += c.Length
	}
	return w
}
