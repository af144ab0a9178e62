package controller

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/d5/tengo/v2"

	"github.com/atrika/animrt/anim"
	"github.com/atrika/animrt/asset"
	"github.com/atrika/animrt/ecs"
	"github.com/atrika/animrt/pose"
	"github.com/atrika/animrt/stream"
)

// Value is one input slot's current value. Only the field matching the
// declared type is meaningful.
type Value struct {
	Float float32
	Int   int32
	Bool  bool
}

// ClipLoader resolves clip asset paths into refcounted handles. The
// scene implements it over its asset registry.
type ClipLoader interface {
	LoadClip(path string) *asset.Handle
	ReleaseClip(h *asset.Handle)
}

// nodeState is the mutable per-context state of one graph node. time is
// the local playback clock of animation and blend nodes; the remaining
// fields track the active child and crossfade of state-machine nodes.
type nodeState struct {
	time         float32
	current      int
	fadeFrom     int
	fadeElapsed  float32
	fadeDuration float32
	fading       bool
}

// RuntimeContext executes one controller for one entity. It owns clip
// handles for the active animation set, the input values, and the
// per-node playback state. Contexts are created when the controller
// asset becomes ready and destroyed when it is swapped or unloaded.
type RuntimeContext struct {
	ctrl   *Controller
	loader ClipLoader

	set   int
	slots map[string]*asset.Handle

	inputs []Value
	states []nodeState
	conds  []*tengo.Compiled

	rootMotion pose.RigidTransform
}

// NewRuntimeContext builds execution state for ctrl, loading the clips
// of the given animation set. An out-of-range set index clamps to the
// base set.
func NewRuntimeContext(ctrl *Controller, set int, loader ClipLoader) *RuntimeContext {
	if set < 0 || set >= len(ctrl.Sets) {
		set = 0
	}
	ctx := &RuntimeContext{
		ctrl:       ctrl,
		loader:     loader,
		set:        set,
		slots:      make(map[string]*asset.Handle),
		inputs:     make([]Value, len(ctrl.Inputs)),
		states:     make([]nodeState, len(ctrl.Nodes)),
		conds:      make([]*tengo.Compiled, len(ctrl.Edges)),
		rootMotion: pose.IdentityTransform(),
	}
	for slot, path := range ctrl.ActiveClips(set) {
		ctx.slots[slot] = loader.LoadClip(path)
	}
	for i, e := range ctrl.Edges {
		if e.Cond != nil {
			ctx.conds[i] = e.Cond.Clone()
		}
	}
	ctx.resetNode(ctrl.Root)
	return ctx
}

// Destroy releases all clip handles held by the context.
func (c *RuntimeContext) Destroy() {
	for _, h := range c.slots {
		c.loader.ReleaseClip(h)
	}
	c.slots = nil
}

// Controller returns the asset this context executes.
func (c *RuntimeContext) Controller() *Controller { return c.ctrl }

// ActiveSet returns the currently applied animation set index.
func (c *RuntimeContext) ActiveSet() int { return c.set }

// ApplySet overlays the named set's clip bindings on the running
// context. Unknown names are a no-op; playback state is preserved so a
// set swap mid-walk does not snap the pose.
func (c *RuntimeContext) ApplySet(name string) bool {
	idx := c.ctrl.SetIndex(name)
	if idx < 0 {
		return false
	}
	next := c.ctrl.ActiveClips(idx)
	for slot, h := range c.slots {
		if _, keep := next[slot]; !keep {
			c.loader.ReleaseClip(h)
			delete(c.slots, slot)
		}
	}
	for slot, path := range next {
		if old, ok := c.slots[slot]; ok {
			if old.Path() == path {
				continue
			}
			c.loader.ReleaseClip(old)
		}
		c.slots[slot] = c.loader.LoadClip(path)
	}
	c.set = idx
	return true
}

// SetFloat writes a float input. Out-of-range indices and declared-type
// mismatches are rejected.
func (c *RuntimeContext) SetFloat(i int, v float32) error {
	if err := c.checkInput(i, InputFloat); err != nil {
		return err
	}
	c.inputs[i].Float = v
	return nil
}

// SetInt writes an int input.
func (c *RuntimeContext) SetInt(i int, v int32) error {
	if err := c.checkInput(i, InputInt); err != nil {
		return err
	}
	c.inputs[i].Int = v
	return nil
}

// SetBool writes a bool input.
func (c *RuntimeContext) SetBool(i int, v bool) error {
	if err := c.checkInput(i, InputBool); err != nil {
		return err
	}
	c.inputs[i].Bool = v
	return nil
}

// Float reads a float input, 0 when the slot does not hold a float.
func (c *RuntimeContext) Float(i int) float32 {
	if c.checkInput(i, InputFloat) != nil {
		return 0
	}
	return c.inputs[i].Float
}

// Int reads an int input.
func (c *RuntimeContext) Int(i int) int32 {
	if c.checkInput(i, InputInt) != nil {
		return 0
	}
	return c.inputs[i].Int
}

// Bool reads a bool input.
func (c *RuntimeContext) Bool(i int) bool {
	if c.checkInput(i, InputBool) != nil {
		return false
	}
	return c.inputs[i].Bool
}

// SetRaw writes an input from its 4-byte stream encoding, interpreting
// the bits by the declared type. Used when draining deferred set_input
// events.
func (c *RuntimeContext) SetRaw(i int, raw uint32) error {
	if i < 0 || i >= len(c.inputs) {
		return fmt.Errorf("controller: input index %d out of range", i)
	}
	switch c.ctrl.Inputs[i].Type {
	case InputFloat:
		c.inputs[i].Float = math.Float32frombits(raw)
	case InputInt:
		c.inputs[i].Int = int32(raw)
	case InputBool:
		c.inputs[i].Bool = raw != 0
	}
	return nil
}

func (c *RuntimeContext) checkInput(i int, want InputType) error {
	if i < 0 || i >= len(c.inputs) {
		return fmt.Errorf("controller: input index %d out of range", i)
	}
	if got := c.ctrl.Inputs[i].Type; got != want {
		return fmt.Errorf("controller: input %q is %s, not %s", c.ctrl.Inputs[i].Name, got, want)
	}
	return nil
}

// CurrentNode returns the name of the root state machine's active node.
func (c *RuntimeContext) CurrentNode() string {
	return c.ctrl.Nodes[c.states[c.ctrl.Root].current].Name
}

// RootMotion returns the root displacement computed by the last Update.
func (c *RuntimeContext) RootMotion() pose.RigidTransform { return c.rootMotion }

// Update advances the graph by dt. Transitions whose conditions hold
// fire at most once per state machine per frame; their emits and any
// clip event tracks crossed this frame are appended to out. Safe to call
// from a worker as long as out is the frame's shared stream buffer.
func (c *RuntimeContext) Update(dt float32, entity ecs.Entity, out *stream.Buffer) {
	if c.ctrl.UseRootMotion {
		c.rootMotion = c.advance(c.ctrl.Root, dt, entity, out)
	} else {
		c.advance(c.ctrl.Root, dt, entity, out)
		c.rootMotion = pose.IdentityTransform()
	}
}

// SampleInto overlays the graph's current pose contribution onto p.
func (c *RuntimeContext) SampleInto(p *pose.Pose, m *pose.Model) {
	c.sample(c.ctrl.Root, p, m, 1)
}

func (c *RuntimeContext) clipFor(slot string) *anim.Clip {
	h, ok := c.slots[slot]
	if !ok || !h.IsReady() {
		return nil
	}
	clip, _ := h.Content().(*anim.Clip)
	return clip
}

// resetNode rewinds a node subtree to its initial state. Entering a
// state machine always lands on its entry node.
func (c *RuntimeContext) resetNode(idx int) {
	st := &c.states[idx]
	st.time = 0
	st.fading = false
	node := &c.ctrl.Nodes[idx]
	if node.Kind == NodeStateMachine {
		st.current = node.Entry
		c.resetNode(node.Entry)
	}
}

func (c *RuntimeContext) advance(idx int, dt float32, entity ecs.Entity, out *stream.Buffer) pose.RigidTransform {
	node := &c.ctrl.Nodes[idx]
	st := &c.states[idx]

	switch node.Kind {
	case NodeAnimation:
		clip := c.clipFor(node.Slot)
		if clip == nil {
			return pose.IdentityTransform()
		}
		t0 := st.time
		t1 := t0 + dt
		if node.Loop {
			st.time = clip.WrapTime(t1)
		} else {
			if t1 > clip.Length {
				t1 = clip.Length
			}
			st.time = t1
		}
		if out != nil {
			for _, ev := range clip.EventsInRange(t0, st.time) {
				var payload [4]byte
				binary.LittleEndian.PutUint32(payload[:], math.Float32bits(ev.Value))
				out.Append(EventTypeTag(ev.Type), entity, payload[:])
			}
		}
		if c.ctrl.UseRootMotion && clip.RootMotion {
			return clip.RootMotionDelta(t0, st.time)
		}
		return pose.IdentityTransform()

	case NodeBlend1D:
		st.time += dt
		lo, _, _ := c.blendBracket(node)
		if clip := c.clipFor(node.Children[lo].Slot); clip != nil {
			wrapped := clip.WrapTime(st.time)
			delta := pose.IdentityTransform()
			if c.ctrl.UseRootMotion && clip.RootMotion {
				t0 := clip.WrapTime(st.time - dt)
				delta = clip.RootMotionDelta(t0, wrapped)
			}
			st.time = wrapped
			return delta
		}
		return pose.IdentityTransform()

	case NodeStateMachine:
		delta := c.advance(st.current, dt, entity, out)
		if st.fading {
			st.fadeElapsed += dt
			if st.fadeElapsed >= st.fadeDuration {
				st.fading = false
			} else if st.fadeFrom != st.current {
				c.advance(st.fadeFrom, dt, entity, out)
			}
		}
		for _, ei := range node.EdgeIdx {
			e := &c.ctrl.Edges[ei]
			if e.From != st.current {
				continue
			}
			if e.Cond != nil && !EvalCondition(c.conds[ei], c.ctrl.Inputs, c.inputs, c.states[st.current].time) {
				continue
			}
			c.emitEdge(e, entity, out)
			st.fadeFrom = st.current
			st.fadeElapsed = 0
			st.fadeDuration = e.Blend
			st.fading = e.Blend > 0 && e.To != st.current
			st.current = e.To
			c.resetNode(e.To)
			break
		}
		return delta
	}
	return pose.IdentityTransform()
}

func (c *RuntimeContext) sample(idx int, p *pose.Pose, m *pose.Model, weight float32) {
	if weight <= 0 {
		return
	}
	node := &c.ctrl.Nodes[idx]
	st := &c.states[idx]

	switch node.Kind {
	case NodeAnimation:
		if clip := c.clipFor(node.Slot); clip != nil {
			clip.SampleInto(st.time, p, m, weight)
		}

	case NodeBlend1D:
		lo, hi, t := c.blendBracket(node)
		if clip := c.clipFor(node.Children[lo].Slot); clip != nil {
			clip.SampleInto(clip.WrapTime(st.time), p, m, weight)
		}
		if hi != lo && t > 0 {
			if clip := c.clipFor(node.Children[hi].Slot); clip != nil {
				clip.SampleInto(clip.WrapTime(st.time), p, m, weight*t)
			}
		}

	case NodeStateMachine:
		if st.fading && st.fadeFrom != st.current {
			progress := st.fadeElapsed / st.fadeDuration
			c.sample(st.fadeFrom, p, m, weight)
			c.sample(st.current, p, m, weight*progress)
		} else {
			c.sample(st.current, p, m, weight)
		}
	}
}

// blendBracket locates the pair of children surrounding the driving
// input's value and the interpolation factor between them. Values
// outside the declared range clamp to the edge children.
func (c *RuntimeContext) blendBracket(node *Node) (lo, hi int, t float32) {
	v := c.inputs[node.InputIndex].Float
	last := len(node.Children) - 1
	if v <= node.Children[0].Value {
		return 0, 0, 0
	}
	if v >= node.Children[last].Value {
		return last, last, 0
	}
	for i := 1; i <= last; i++ {
		if v <= node.Children[i].Value {
			span := node.Children[i].Value - node.Children[i-1].Value
			return i - 1, i, (v - node.Children[i-1].Value) / span
		}
	}
	return last, last, 0
}

func (c *RuntimeContext) emitEdge(e *Edge, entity ecs.Entity, out *stream.Buffer) {
	if out == nil {
		return
	}
	for _, em := range e.Emit {
		if em.Type == "set_input" {
			var raw uint32
			switch c.ctrl.Inputs[em.InputIndex].Type {
			case InputFloat:
				raw = math.Float32bits(em.Value)
			case InputInt:
				raw = uint32(int32(em.Value))
			case InputBool:
				if em.Value != 0 {
					raw = 1
				}
			}
			var payload [8]byte
			binary.LittleEndian.PutUint32(payload[0:], uint32(em.InputIndex))
			binary.LittleEndian.PutUint32(payload[4:], raw)
			out.Append(SetInputEventType, entity, payload[:])
			continue
		}
		var payload [4]byte
		binary.LittleEndian.PutUint32(payload[:], math.Float32bits(em.Value))
		out.Append(EventTypeTag(em.Type), entity, payload[:])
	}
}
