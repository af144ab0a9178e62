package anim

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Curve animates one scalar property of a scene object, keyed on integer
// frame indices. Frames are strictly increasing.
type Curve struct {
	Component string
	Property  string
	Frames    []int
	Values    []float32
}

// PropertyAnimation is a set of curves sampled at a shared frame rate.
// The first curve's last frame is the implicit loop length for all of
// them.
type PropertyAnimation struct {
	FPS    float32
	Curves []Curve
}

type propertySpec struct {
	FPS    float32 `yaml:"fps"`
	Curves []struct {
		Component string `yaml:"component"`
		Property  string `yaml:"property"`
		Keys      []struct {
			Frame int     `yaml:"frame"`
			Value float32 `yaml:"value"`
		} `yaml:"keys"`
	} `yaml:"curves"`
}

// ParsePropertyAnimation decodes a .anp asset.
func ParsePropertyAnimation(data []byte) (*PropertyAnimation, error) {
	var spec propertySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("anim: unmarshal property animation: %w", err)
	}
	if spec.FPS <= 0 {
		spec.FPS = 30
	}
	pa := &PropertyAnimation{FPS: spec.FPS}
	for _, cs := range spec.Curves {
		curve := Curve{Component: cs.Component, Property: cs.Property}
		for i, k := range cs.Keys {
			if i > 0 && k.Frame <= curve.Frames[i-1] {
				return nil, fmt.Errorf("anim: curve %s.%s frames not strictly increasing", cs.Component, cs.Property)
			}
			curve.Frames = append(curve.Frames, k.Frame)
			curve.Values = append(curve.Values, k.Value)
		}
		pa.Curves = append(pa.Curves, curve)
	}
	return pa, nil
}

// LoopFrame folds frame onto the first curve's last keyframe frame.
func (pa *PropertyAnimation) LoopFrame(frame int) int {
	if len(pa.Curves) == 0 || len(pa.Curves[0].Frames) == 0 {
		return 0
	}
	last := pa.Curves[0].Frames[len(pa.Curves[0].Frames)-1]
	if last <= 0 {
		return 0
	}
	return frame % last
}

// Sample interpolates the curve at frame. The second return is false when
// the curve has fewer than two keys or frame lies past its last key; in
// both cases nothing should be applied.
func (c *Curve) Sample(frame int) (float32, bool) {
	if len(c.Frames) < 2 {
		return 0, false
	}
	for i := 1; i < len(c.Frames); i++ {
		if frame <= c.Frames[i] {
			t := float32(frame-c.Frames[i-1]) / float32(c.Frames[i]-c.Frames[i-1])
			return c.Values[i]*t + c.Values[i-1]*(1-t), true
		}
	}
	return 0, false
}
