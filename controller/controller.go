// Package controller implements compiled animation state-machine assets
// and their per-entity runtime execution. A controller declares typed
// inputs, named animation sets (slot to clip bindings), up to four IK
// chains, and a node graph evaluated every frame: animation nodes play a
// clip, blend nodes mix sibling clips by an input value, state-machine
// nodes pick one child and crossfade between them along edges whose
// conditions are expressions over the declared inputs.
package controller

import (
	"fmt"
	"hash/crc32"

	"gopkg.in/yaml.v3"

	"github.com/atrika/animrt/ik"
)

// MaxIKChains is the number of independent IK slots per controller.
const MaxIKChains = 4

// SetInputEventType tags deferred input writes in the event stream.
var SetInputEventType = crc32.ChecksumIEEE([]byte("set_input"))

// EventTypeTag hashes a named event type into its stream record tag.
func EventTypeTag(name string) uint32 {
	return crc32.ChecksumIEEE([]byte(name))
}

// InputType is the declared type of one controller input.
type InputType int

const (
	InputFloat InputType = iota
	InputInt
	InputBool
)

func (t InputType) String() string {
	switch t {
	case InputFloat:
		return "float"
	case InputInt:
		return "int"
	case InputBool:
		return "bool"
	}
	return "unknown"
}

// Input is one declared input slot.
type Input struct {
	Name string
	Type InputType
}

// Set is one named animation set: slot name to clip asset path. Sets past
// the first overlay the first set's bindings.
type Set struct {
	Name  string
	Clips map[string]string
}

// NodeKind discriminates the closed set of node variants. Evaluation
// dispatches on it in one place instead of through per-kind vtables.
type NodeKind int

const (
	NodeAnimation NodeKind = iota
	NodeBlend1D
	NodeStateMachine
)

// BlendChild is one sample point of a 1D blend node.
type BlendChild struct {
	Value float32
	Slot  string
}

// Node is one vertex of the flattened controller graph. Which fields are
// meaningful depends on Kind.
type Node struct {
	Kind NodeKind
	Name string

	// NodeAnimation
	Slot string
	Loop bool

	// NodeBlend1D
	InputIndex int
	Children   []BlendChild

	// NodeStateMachine
	ChildNodes []int // global node indices
	EdgeIdx    []int // global edge indices
	Entry      int   // global node index
}

// EmitSpec is an event a transition appends to the frame's event stream.
// A "set_input" emit resolves Input against the declaration at load time;
// any other type is forwarded with its hashed tag and float payload.
type EmitSpec struct {
	Type       string
	InputIndex int
	Value      float32
}

// Edge is one transition of a state-machine node. Cond is a compiled
// expression over the declared inputs plus `state_time`; a nil condition
// always fires.
type Edge struct {
	From, To int // global node indices
	Blend    float32
	Cond     *Condition
	Emit     []EmitSpec
}

// Controller is one compiled state-machine asset. Immutable after load;
// all mutable execution state lives in RuntimeContext.
type Controller struct {
	Name          string
	UseRootMotion bool
	Inputs        []Input
	Sets          []Set
	IK            []ik.Chain
	Nodes         []Node
	Edges         []Edge
	Root          int // root state-machine node
}

// InputIndex resolves an input name to its slot index, -1 when unknown.
func (c *Controller) InputIndex(name string) int {
	for i, in := range c.Inputs {
		if in.Name == name {
			return i
		}
	}
	return -1
}

// SetIndex resolves a set name to its index, -1 when unknown.
func (c *Controller) SetIndex(name string) int {
	for i, s := range c.Sets {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// ActiveClips returns the slot to path table for set index. The first set
// is the base; the selected set overlays it. Out-of-range indices fall
// back to the base set.
func (c *Controller) ActiveClips(set int) map[string]string {
	out := make(map[string]string)
	if len(c.Sets) == 0 {
		return out
	}
	for slot, path := range c.Sets[0].Clips {
		out[slot] = path
	}
	if set > 0 && set < len(c.Sets) {
		for slot, path := range c.Sets[set].Clips {
			out[slot] = path
		}
	}
	return out
}

type nodeSpec struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Slot     string  `yaml:"slot"`
	Loop     bool    `yaml:"loop"`
	Input    string  `yaml:"input"`
	Children []struct {
		Value float32 `yaml:"value"`
		Slot  string  `yaml:"slot"`
	} `yaml:"children"`
	Nodes []nodeSpec `yaml:"nodes"`
	Edges []edgeSpec `yaml:"edges"`
	Entry string     `yaml:"entry"`
}

type edgeSpec struct {
	From  string  `yaml:"from"`
	To    string  `yaml:"to"`
	When  string  `yaml:"when"`
	Blend float32 `yaml:"blend"`
	Emit  []struct {
		Type  string  `yaml:"type"`
		Input string  `yaml:"input"`
		Value float32 `yaml:"value"`
	} `yaml:"emit"`
}

type controllerSpec struct {
	Name       string `yaml:"name"`
	RootMotion bool   `yaml:"root_motion"`
	Inputs     []struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	} `yaml:"inputs"`
	IK []struct {
		Bones      []string `yaml:"bones"`
		Iterations int      `yaml:"iterations"`
	} `yaml:"ik"`
	Sets []struct {
		Name  string            `yaml:"name"`
		Clips map[string]string `yaml:"clips"`
	} `yaml:"sets"`
	Nodes []nodeSpec `yaml:"nodes"`
	Edges []edgeSpec `yaml:"edges"`
	Entry string     `yaml:"entry"`
}

// ParseController decodes and compiles a .act asset, including its edge
// condition expressions. A controller that fails to compile never becomes
// ready, so a live runtime context can assume a valid graph.
func ParseController(data []byte) (*Controller, error) {
	var spec controllerSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("controller: unmarshal: %w", err)
	}

	c := &Controller{Name: spec.Name, UseRootMotion: spec.RootMotion}
	for _, in := range spec.Inputs {
		var t InputType
		switch in.Type {
		case "float", "":
			t = InputFloat
		case "int":
			t = InputInt
		case "bool":
			t = InputBool
		default:
			return nil, fmt.Errorf("controller: input %q has unknown type %q", in.Name, in.Type)
		}
		c.Inputs = append(c.Inputs, Input{Name: in.Name, Type: t})
	}

	if len(spec.IK) > MaxIKChains {
		return nil, fmt.Errorf("controller: %d IK chains exceed the %d slot limit", len(spec.IK), MaxIKChains)
	}
	for _, chain := range spec.IK {
		if len(chain.Bones) < 2 || len(chain.Bones) > ik.MaxChainBones {
			return nil, fmt.Errorf("controller: IK chain needs 2..%d bones, got %d", ik.MaxChainBones, len(chain.Bones))
		}
		iters := chain.Iterations
		if iters <= 0 {
			iters = 10
		}
		c.IK = append(c.IK, ik.Chain{Bones: chain.Bones, MaxIterations: iters})
	}

	for _, s := range spec.Sets {
		c.Sets = append(c.Sets, Set{Name: s.Name, Clips: s.Clips})
	}
	if len(c.Sets) == 0 {
		c.Sets = []Set{{Name: "default", Clips: map[string]string{}}}
	}

	root := nodeSpec{
		Name:  "root",
		Type:  "statemachine",
		Nodes: spec.Nodes,
		Edges: spec.Edges,
		Entry: spec.Entry,
	}
	rootIdx, err := c.compileNode(root)
	if err != nil {
		return nil, err
	}
	c.Root = rootIdx
	return c, nil
}

// compileNode flattens one node (and, for state machines, its subtree)
// into the controller's global node/edge arrays.
func (c *Controller) compileNode(spec nodeSpec) (int, error) {
	idx := len(c.Nodes)
	c.Nodes = append(c.Nodes, Node{Name: spec.Name})
	node := &c.Nodes[idx]

	switch spec.Type {
	case "animation", "":
		node.Kind = NodeAnimation
		node.Slot = spec.Slot
		node.Loop = spec.Loop
		if node.Slot == "" {
			return 0, fmt.Errorf("controller: animation node %q has no slot", spec.Name)
		}

	case "blend1d":
		node.Kind = NodeBlend1D
		node.InputIndex = c.InputIndex(spec.Input)
		if node.InputIndex < 0 {
			return 0, fmt.Errorf("controller: blend node %q drives unknown input %q", spec.Name, spec.Input)
		}
		if c.Inputs[node.InputIndex].Type != InputFloat {
			return 0, fmt.Errorf("controller: blend node %q needs a float input, %q is %s",
				spec.Name, spec.Input, c.Inputs[node.InputIndex].Type)
		}
		if len(spec.Children) < 2 {
			return 0, fmt.Errorf("controller: blend node %q needs at least 2 children", spec.Name)
		}
		for i, ch := range spec.Children {
			if i > 0 && ch.Value <= spec.Children[i-1].Value {
				return 0, fmt.Errorf("controller: blend node %q children out of order", spec.Name)
			}
			node.Children = append(node.Children, BlendChild{Value: ch.Value, Slot: ch.Slot})
		}

	case "statemachine":
		node.Kind = NodeStateMachine
		if len(spec.Nodes) == 0 {
			return 0, fmt.Errorf("controller: state machine %q has no nodes", spec.Name)
		}
		local := make(map[string]int, len(spec.Nodes))
		for _, child := range spec.Nodes {
			childIdx, err := c.compileNode(child)
			if err != nil {
				return 0, err
			}
			// node pointer may be stale after recursive appends
			node = &c.Nodes[idx]
			if _, dup := local[child.Name]; dup {
				return 0, fmt.Errorf("controller: state machine %q has duplicate node %q", spec.Name, child.Name)
			}
			local[child.Name] = childIdx
			node.ChildNodes = append(node.ChildNodes, childIdx)
		}
		node.Entry = node.ChildNodes[0]
		if spec.Entry != "" {
			e, ok := local[spec.Entry]
			if !ok {
				return 0, fmt.Errorf("controller: state machine %q entry %q not found", spec.Name, spec.Entry)
			}
			node.Entry = e
		}
		for _, es := range spec.Edges {
			from, ok := local[es.From]
			if !ok {
				return 0, fmt.Errorf("controller: edge from unknown node %q", es.From)
			}
			to, ok := local[es.To]
			if !ok {
				return 0, fmt.Errorf("controller: edge to unknown node %q", es.To)
			}
			edge := Edge{From: from, To: to, Blend: es.Blend}
			if es.When != "" {
				cond, err := CompileCondition(es.When, c.Inputs)
				if err != nil {
					return 0, fmt.Errorf("controller: edge %s->%s: %w", es.From, es.To, err)
				}
				edge.Cond = cond
			}
			for _, em := range es.Emit {
				emit := EmitSpec{Type: em.Type, InputIndex: -1, Value: em.Value}
				if em.Type == "set_input" {
					emit.InputIndex = c.InputIndex(em.Input)
					if emit.InputIndex < 0 {
						return 0, fmt.Errorf("controller: edge %s->%s emits unknown input %q", es.From, es.To, em.Input)
					}
				}
				edge.Emit = append(edge.Emit, emit)
			}
			c.Edges = append(c.Edges, edge)
			node.EdgeIdx = append(node.EdgeIdx, len(c.Edges)-1)
		}

	default:
		return 0, fmt.Errorf("controller: node %q has unknown type %q", spec.Name, spec.Type)
	}
	return idx, nil
}
