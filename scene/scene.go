// Package scene ties the animation runtime together: it owns the
// per-entity animation components, drives them every frame through a
// shared worker pool, and applies the deferred event stream the update
// produced. The surrounding engine plugs in through the World interface.
package scene

import (
	"encoding/binary"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/atrika/animrt/anim"
	"github.com/atrika/animrt/asset"
	"github.com/atrika/animrt/controller"
	"github.com/atrika/animrt/ecs"
	"github.com/atrika/animrt/ik"
	"github.com/atrika/animrt/pose"
	"github.com/atrika/animrt/stream"
)

// World is the scene's view of the surrounding engine. During the
// parallel update phases the scene calls these methods concurrently for
// distinct entities, never concurrently for the same entity; LockPose
// guards the pose itself against readers on other threads and returns
// nil when the entity has no skinned model.
type World interface {
	Model(e ecs.Entity) *pose.Model
	LockPose(e ecs.Entity) *pose.Pose
	UnlockPose(e ecs.Entity)
	Transform(e ecs.Entity) pose.RigidTransform
	SetTransform(e ecs.Entity, t pose.RigidTransform)
	SetProperty(e ecs.Entity, component, property string, v float32)
}

// Animable plays one looping clip on one entity, no state machine.
type Animable struct {
	Clip *asset.Handle
	Time float32
}

// PropertyFlags holds the property animator's behavior bits.
type PropertyFlags uint32

const (
	PropertyLooped PropertyFlags = 1 << iota
	PropertyDisabled
)

// PropertyAnimator drives scalar object properties from a curve asset.
type PropertyAnimator struct {
	Anim  *asset.Handle
	Flags PropertyFlags
	Time  float32
}

// IKSlot is one inverse-kinematics goal on an animator. Target is in
// world space; Weight 0 disables the slot.
type IKSlot struct {
	Weight float32
	Target mgl32.Vec3
}

// Animator runs a state-machine controller on one entity. Ctx exists
// only while the controller asset is ready.
type Animator struct {
	Source     *asset.Handle
	DefaultSet int
	Ctx        *controller.RuntimeContext
	IK         [controller.MaxIKChains]IKSlot
}

// AnimationScene owns the animation components of one world and updates
// them once per frame.
type AnimationScene struct {
	world   World
	assets  *asset.Registry
	pool    worker.DynamicWorkerPool
	workers int
	running bool

	animables  *ecs.SparseSet[Animable]
	properties *ecs.SparseSet[PropertyAnimator]
	animators  *ecs.SparseSet[Animator]

	events  stream.Buffer
	handler func(stream.Record)
}

// NewAnimationScene wires a scene to its world and asset registry,
// registering the animation asset loaders.
func NewAnimationScene(world World, assets *asset.Registry) *AnimationScene {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	s := &AnimationScene{
		world:      world,
		assets:     assets,
		pool:       worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
		workers:    workers,
		animables:  ecs.NewSparseSet[Animable](),
		properties: ecs.NewSparseSet[PropertyAnimator](),
		animators:  ecs.NewSparseSet[Animator](),
	}
	assets.RegisterLoader(".ani", func(data []byte) (any, error) { return anim.ParseClip(data) })
	assets.RegisterLoader(".anp", func(data []byte) (any, error) { return anim.ParsePropertyAnimation(data) })
	assets.RegisterLoader(".act", func(data []byte) (any, error) { return controller.ParseController(data) })
	assets.Subscribe(s.onAssetStatus)
	return s
}

// StartGame begins per-frame updates. Animator playback state is rewound
// so a stopped and restarted game replays from each graph's entry node.
func (s *AnimationScene) StartGame() {
	if s.running {
		return
	}
	s.running = true
	for i := 0; i < s.animators.Len(); i++ {
		a := s.animators.At(i)
		if a.Ctx != nil {
			a.Ctx.Destroy()
			a.Ctx = nil
		}
		s.createContext(a)
	}
}

// StopGame halts updates. Components stay bound to their assets.
func (s *AnimationScene) StopGame() {
	s.running = false
}

// Running reports whether Update currently advances anything.
func (s *AnimationScene) Running() bool { return s.running }

// SetEventHandler installs the consumer for event records the scene does
// not handle itself. Called single-threaded during the drain phase.
func (s *AnimationScene) SetEventHandler(fn func(stream.Record)) {
	s.handler = fn
}

// Clear destroys every component and releases their asset references.
func (s *AnimationScene) Clear() {
	for i := 0; i < s.animables.Len(); i++ {
		s.assets.Release(s.animables.At(i).Clip)
	}
	s.animables.Clear()
	for i := 0; i < s.properties.Len(); i++ {
		s.assets.Release(s.properties.At(i).Anim)
	}
	s.properties.Clear()
	for i := 0; i < s.animators.Len(); i++ {
		a := s.animators.At(i)
		if a.Ctx != nil {
			a.Ctx.Destroy()
		}
		s.assets.Release(a.Source)
	}
	s.animators.Clear()
}

// onAssetStatus keeps animator runtime contexts in sync with their
// controller asset: ready creates them, anything else tears them down.
// Fires on the frame thread via Registry.ProcessEvents, never during the
// parallel phases.
func (s *AnimationScene) onAssetStatus(path string, old, next asset.Status) {
	for i := 0; i < s.animators.Len(); i++ {
		a := s.animators.At(i)
		if a.Source == nil || a.Source.Path() != path {
			continue
		}
		if next == asset.StatusReady {
			if a.Ctx == nil {
				s.createContext(a)
			}
		} else if a.Ctx != nil {
			a.Ctx.Destroy()
			a.Ctx = nil
		}
	}
}

func (s *AnimationScene) createContext(a *Animator) {
	if a.Source == nil || !a.Source.IsReady() {
		return
	}
	ctrl, ok := a.Source.Content().(*controller.Controller)
	if !ok {
		return
	}
	a.Ctx = controller.NewRuntimeContext(ctrl, a.DefaultSet, s)
}

// LoadClip implements controller.ClipLoader.
func (s *AnimationScene) LoadClip(path string) *asset.Handle { return s.assets.Load(path) }

// ReleaseClip implements controller.ClipLoader.
func (s *AnimationScene) ReleaseClip(h *asset.Handle) { s.assets.Release(h) }

// Update advances every animation component by dt seconds. Animables and
// animators run on the worker pool; property animators and the event
// drain run on the calling goroutine. The event stream is valid only for
// the duration of the frame.
func (s *AnimationScene) Update(dt float32) {
	if !s.running || dt <= 0 {
		return
	}
	s.events.Reset()

	var wg sync.WaitGroup
	for i := 0; i < s.animables.Len(); i++ {
		i := i
		wg.Add(1)
		s.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				s.updateAnimable(s.animables.EntityAt(i), s.animables.At(i), dt)
				return nil, nil
			},
		})
	}
	wg.Wait()

	for i := 0; i < s.properties.Len(); i++ {
		s.updateProperty(s.properties.EntityAt(i), s.properties.At(i), dt)
	}

	count := s.animators.Len()
	if count > 0 {
		tasks := s.workers
		if count < tasks {
			tasks = count
		}
		var cursor atomic.Int64
		var awg sync.WaitGroup
		for w := 0; w < tasks; w++ {
			awg.Add(1)
			s.pool.SubmitTask(worker.Task{
				ID: w,
				Do: func() (any, error) {
					defer awg.Done()
					for {
						i := int(cursor.Add(1)) - 1
						if i >= count {
							return nil, nil
						}
						s.updateAnimator(s.animators.EntityAt(i), s.animators.At(i), dt)
					}
				},
			})
		}
		awg.Wait()
	}

	s.drainEvents()
}

func (s *AnimationScene) updateAnimable(e ecs.Entity, a *Animable, dt float32) {
	if a.Clip == nil || !a.Clip.IsReady() {
		return
	}
	clip, ok := a.Clip.Content().(*anim.Clip)
	if !ok {
		return
	}
	m := s.world.Model(e)
	if m == nil {
		return
	}
	p := s.world.LockPose(e)
	if p == nil {
		return
	}
	defer s.world.UnlockPose(e)
	m.RelativePose(p)
	clip.SampleInto(a.Time, p, m, 1)
	p.ComputeAbsolute(m)
	a.Time = clip.WrapTime(a.Time + dt)
}

func (s *AnimationScene) updateProperty(e ecs.Entity, pa *PropertyAnimator, dt float32) {
	if pa.Flags&PropertyDisabled != 0 {
		return
	}
	if pa.Anim == nil || !pa.Anim.IsReady() {
		return
	}
	prop, ok := pa.Anim.Content().(*anim.PropertyAnimation)
	if !ok {
		return
	}
	pa.Time += dt
	frame := prop.LoopFrame(int(pa.Time*prop.FPS + 0.5))
	s.applyPropertyFrame(e, prop, frame)
}

func (s *AnimationScene) applyPropertyFrame(e ecs.Entity, prop *anim.PropertyAnimation, frame int) {
	for i := range prop.Curves {
		c := &prop.Curves[i]
		if v, ok := c.Sample(frame); ok {
			s.world.SetProperty(e, c.Component, c.Property, v)
		}
	}
}

func (s *AnimationScene) updateAnimator(e ecs.Entity, a *Animator, dt float32) {
	if a.Ctx == nil {
		return
	}
	m := s.world.Model(e)
	if m == nil {
		return
	}
	p := s.world.LockPose(e)
	if p == nil {
		return
	}
	defer s.world.UnlockPose(e)

	a.Ctx.Update(dt, e, &s.events)

	if a.Ctx.Controller().UseRootMotion {
		delta := a.Ctx.RootMotion()
		t := s.world.Transform(e)
		t.Pos = t.Pos.Add(t.Rot.Rotate(delta.Pos))
		t.Rot = t.Rot.Mul(delta.Rot).Normalize()
		s.world.SetTransform(e, t)
	}

	m.RelativePose(p)
	a.Ctx.SampleInto(p, m)

	// slots are filled front to back; the first zero weight ends the scan
	chains := a.Ctx.Controller().IK
	for i := range chains {
		slot := &a.IK[i]
		if slot.Weight <= 0 {
			break
		}
		inv := s.world.Transform(e).Inverted()
		local := inv.Rot.Rotate(slot.Target).Add(inv.Pos)
		ik.Solve(chains[i], local, slot.Weight, p, m)
	}
	p.ComputeAbsolute(m)
}

// drainEvents applies the frame's deferred records in append order.
// set_input writes land on the emitting entity's animator; everything
// else goes to the installed handler.
func (s *AnimationScene) drainEvents() {
	err := s.events.Drain(func(r stream.Record) {
		if r.Type != controller.SetInputEventType {
			if s.handler != nil {
				s.handler(r)
			}
			return
		}
		if len(r.Payload) != 8 {
			log.Printf("animation: set_input event with %d byte payload dropped", len(r.Payload))
			return
		}
		a := s.animators.Get(r.Entity)
		if a == nil || a.Ctx == nil {
			return
		}
		idx := binary.LittleEndian.Uint32(r.Payload[0:])
		raw := binary.LittleEndian.Uint32(r.Payload[4:])
		if err := a.Ctx.SetRaw(int(idx), raw); err != nil {
			log.Printf("animation: set_input: %v", err)
		}
	})
	if err != nil {
		log.Printf("animation: event stream drain: %v", err)
	}
}
