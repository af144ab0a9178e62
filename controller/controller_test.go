package controller

import (
	"testing"
)

const locomotionYAML = `
name: locomotion
root_motion: true
inputs:
  - {name: speed, type: float}
  - {name: armed, type: bool}
  - {name: combo, type: int}
ik:
  - {bones: [hip, knee, foot], iterations: 8}
sets:
  - name: default
    clips: {idle: clips/idle.ani, walk: clips/walk.ani}
  - name: armed
    clips: {walk: clips/walk_armed.ani}
nodes:
  - {name: idle, type: animation, slot: idle, loop: true}
  - {name: walk, type: animation, slot: walk, loop: true}
edges:
  - from: idle
    to: walk
    when: 'speed > 0.1'
    blend: 0.2
    emit:
      - {type: set_input, input: armed, value: 1}
      - {type: footstep_mode, value: 2}
  - {from: walk, to: idle, when: 'speed <= 0.1'}
entry: idle
`

func TestParseController(t *testing.T) {
	c, err := ParseController([]byte(locomotionYAML))
	if err != nil {
		t.Fatalf("ParseController: %v", err)
	}
	if !c.UseRootMotion {
		t.Error("root_motion not parsed")
	}
	if got := c.InputIndex("speed"); got != 0 {
		t.Errorf("InputIndex(speed) = %d, want 0", got)
	}
	if got := c.InputIndex("missing"); got != -1 {
		t.Errorf("InputIndex(missing) = %d, want -1", got)
	}
	if c.Inputs[1].Type != InputBool || c.Inputs[2].Type != InputInt {
		t.Errorf("input types = %v, %v", c.Inputs[1].Type, c.Inputs[2].Type)
	}
	if len(c.IK) != 1 || c.IK[0].MaxIterations != 8 {
		t.Fatalf("IK chains = %+v", c.IK)
	}
	root := c.Nodes[c.Root]
	if root.Kind != NodeStateMachine || len(root.ChildNodes) != 2 {
		t.Fatalf("root node = %+v", root)
	}
	if c.Nodes[root.Entry].Name != "idle" {
		t.Errorf("entry = %q, want idle", c.Nodes[root.Entry].Name)
	}
	if len(c.Edges) != 2 {
		t.Fatalf("edges = %d, want 2", len(c.Edges))
	}
	if c.Edges[0].Emit[0].InputIndex != 1 {
		t.Errorf("set_input emit resolved to index %d, want 1", c.Edges[0].Emit[0].InputIndex)
	}
}

func TestActiveClipsOverlaysSet(t *testing.T) {
	c, err := ParseController([]byte(locomotionYAML))
	if err != nil {
		t.Fatalf("ParseController: %v", err)
	}
	base := c.ActiveClips(0)
	if base["walk"] != "clips/walk.ani" || base["idle"] != "clips/idle.ani" {
		t.Errorf("base set = %v", base)
	}
	armed := c.ActiveClips(c.SetIndex("armed"))
	if armed["walk"] != "clips/walk_armed.ani" {
		t.Errorf("armed walk = %q", armed["walk"])
	}
	if armed["idle"] != "clips/idle.ani" {
		t.Errorf("armed set dropped the base idle binding: %v", armed)
	}
	if got := c.ActiveClips(99)["walk"]; got != "clips/walk.ani" {
		t.Errorf("out-of-range set = %q, want base walk", got)
	}
}

func TestParseControllerRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown input type", `
inputs: [{name: x, type: vec3}]
nodes: [{name: a, slot: s}]
`},
		{"animation node without slot", `
nodes: [{name: a, type: animation}]
`},
		{"edge to unknown node", `
nodes: [{name: a, slot: s}]
edges: [{from: a, to: ghost}]
`},
		{"bad condition expression", `
nodes: [{name: a, slot: s}, {name: b, slot: s}]
edges: [{from: a, to: b, when: 'speed >'}]
`},
		{"emit unknown input", `
nodes: [{name: a, slot: s}, {name: b, slot: s}]
edges: [{from: a, to: b, emit: [{type: set_input, input: nope}]}]
`},
		{"blend on non-float input", `
inputs: [{name: armed, type: bool}]
nodes:
  - name: b
    type: blend1d
    input: armed
    children: [{value: 0, slot: x}, {value: 1, slot: y}]
`},
		{"blend children out of order", `
inputs: [{name: dir, type: float}]
nodes:
  - name: b
    type: blend1d
    input: dir
    children: [{value: 1, slot: x}, {value: 0, slot: y}]
`},
		{"too many ik chains", `
ik:
  - {bones: [a, b]}
  - {bones: [a, b]}
  - {bones: [a, b]}
  - {bones: [a, b]}
  - {bones: [a, b]}
nodes: [{name: a, slot: s}]
`},
		{"empty state machine", `
nodes: []
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseController([]byte(tc.yaml)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestCompileConditionEval(t *testing.T) {
	inputs := []Input{
		{Name: "speed", Type: InputFloat},
		{Name: "armed", Type: InputBool},
		{Name: "combo", Type: InputInt},
	}
	cases := []struct {
		expr   string
		values []Value
		time   float32
		want   bool
	}{
		{"speed > 0.5", []Value{{Float: 1}, {}, {}}, 0, true},
		{"speed > 0.5", []Value{{Float: 0.2}, {}, {}}, 0, false},
		{"armed && combo >= 3", []Value{{}, {Bool: true}, {Int: 3}}, 0, true},
		{"armed && combo >= 3", []Value{{}, {Bool: true}, {Int: 2}}, 0, false},
		{"state_time > 1.0", nil, 1.5, true},
		{"state_time > 1.0", nil, 0.5, false},
	}
	for _, tc := range cases {
		cond, err := CompileCondition(tc.expr, inputs)
		if err != nil {
			t.Fatalf("compile %q: %v", tc.expr, err)
		}
		values := tc.values
		if values == nil {
			values = make([]Value, len(inputs))
		}
		if got := EvalCondition(cond.Clone(), inputs, values, tc.time); got != tc.want {
			t.Errorf("%q with %v = %v, want %v", tc.expr, values, got, tc.want)
		}
	}
}
