package scene

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/atrika/animrt/anim"
	"github.com/atrika/animrt/asset"
	"github.com/atrika/animrt/controller"
	"github.com/atrika/animrt/ecs"
	"github.com/atrika/animrt/pose"
)

// fakeWorld is the minimal engine side of the scene: a pose and
// transform per entity, and a property sink. Mutexes make it safe for
// the parallel update phases.
type fakeWorld struct {
	mu         sync.Mutex
	model      *pose.Model
	poses      map[ecs.Entity]*pose.Pose
	transforms map[ecs.Entity]pose.RigidTransform
	props      map[string]float32
}

func newFakeWorld(t *testing.T) *fakeWorld {
	t.Helper()
	m, err := pose.NewModel([]pose.Bone{
		{Name: "root", ParentIndex: -1, Bind: pose.IdentityTransform()},
		{Name: "spine", ParentIndex: 0, Bind: pose.IdentityTransform()},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fakeWorld{
		model:      m,
		poses:      make(map[ecs.Entity]*pose.Pose),
		transforms: make(map[ecs.Entity]pose.RigidTransform),
		props:      make(map[string]float32),
	}
}

func (w *fakeWorld) addEntity(e ecs.Entity) {
	p := pose.NewPose(w.model.BoneCount())
	w.model.RelativePose(p)
	w.poses[e] = p
	w.transforms[e] = pose.IdentityTransform()
}

func (w *fakeWorld) Model(e ecs.Entity) *pose.Model {
	if _, ok := w.poses[e]; !ok {
		return nil
	}
	return w.model
}

func (w *fakeWorld) LockPose(e ecs.Entity) *pose.Pose { return w.poses[e] }
func (w *fakeWorld) UnlockPose(e ecs.Entity)          {}

func (w *fakeWorld) Transform(e ecs.Entity) pose.RigidTransform {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transforms[e]
}

func (w *fakeWorld) SetTransform(e ecs.Entity, t pose.RigidTransform) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transforms[e] = t
}

func (w *fakeWorld) SetProperty(e ecs.Entity, component, property string, v float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.props[fmt.Sprintf("%d/%s.%s", e, component, property)] = v
}

func (w *fakeWorld) prop(e ecs.Entity, component, property string) (float32, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.props[fmt.Sprintf("%d/%s.%s", e, component, property)]
	return v, ok
}

func walkClip() *anim.Clip {
	return &anim.Clip{
		Name:       "walk",
		Length:     2,
		RootMotion: true,
		Tracks: []anim.Track{
			{
				Bone: "root",
				PosKeys: []anim.PosKey{
					{Time: 0, Value: mgl32.Vec3{}},
					{Time: 2, Value: mgl32.Vec3{0, 0, 4}},
				},
			},
			{
				Bone:    "spine",
				PosKeys: []anim.PosKey{{Time: 0, Value: mgl32.Vec3{0, 1, 0}}, {Time: 2, Value: mgl32.Vec3{0, 1, 0}}},
			},
		},
	}
}

func newScene(t *testing.T) (*AnimationScene, *fakeWorld, *asset.Registry) {
	t.Helper()
	w := newFakeWorld(t)
	reg := asset.NewRegistry(t.TempDir())
	s := NewAnimationScene(w, reg)
	return s, w, reg
}

func TestAnimableWrapsClipTime(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("clips/walk.ani", walkClip())
	w.addEntity(1)

	s.CreateAnimable(1)
	s.SetAnimation(1, "clips/walk.ani")
	s.SetAnimableTime(1, 1.5)
	s.StartGame()
	s.Update(1.0)

	if got := s.AnimableTime(1); !mgl32.FloatEqualThreshold(got, 0.5, 1e-5) {
		t.Errorf("time = %v, want 0.5", got)
	}
	if got := s.AnimationLength(1); got != 2 {
		t.Errorf("AnimationLength = %v, want 2", got)
	}
	// the pose is sampled at the pre-advance time of 1.5, so the root
	// sits 3 units along z and the spine rides on it
	idx, _ := w.model.BoneIndex("spine")
	if got := w.poses[1].Positions[idx]; !got.ApproxEqualThreshold(mgl32.Vec3{0, 1, 3}, 1e-5) {
		t.Errorf("spine = %v", got)
	}
}

func TestAnimableHoldsTimeWithoutModel(t *testing.T) {
	s, _, reg := newScene(t)
	reg.Inject("clips/walk.ani", walkClip())

	// no addEntity: the world has no model or pose for this entity
	s.CreateAnimable(1)
	s.SetAnimation(1, "clips/walk.ani")
	s.StartGame()
	s.Update(1.0)

	if got := s.AnimableTime(1); got != 0 {
		t.Errorf("time = %v while the model is missing, want 0", got)
	}
}

func TestUpdateIsNoopWhileStopped(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("clips/walk.ani", walkClip())
	w.addEntity(1)

	s.CreateAnimable(1)
	s.SetAnimation(1, "clips/walk.ani")
	s.Update(1.0)
	if got := s.AnimableTime(1); got != 0 {
		t.Errorf("time advanced while stopped: %v", got)
	}
}

func TestPropertyAnimatorAppliesAndRewinds(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("fade.anp", &anim.PropertyAnimation{
		FPS: 30,
		Curves: []anim.Curve{{
			Component: "renderer",
			Property:  "alpha",
			Frames:    []int{0, 30},
			Values:    []float32{0, 1},
		}},
	})
	w.addEntity(2)

	s.CreatePropertyAnimator(2)
	s.SetPropertyAnimation(2, "fade.anp")
	s.StartGame()
	s.Update(0.5)

	v, ok := w.prop(2, "renderer", "alpha")
	if !ok || !mgl32.FloatEqualThreshold(v, 0.5, 0.05) {
		t.Fatalf("alpha = %v (ok=%v), want about 0.5", v, ok)
	}

	// disabling rewinds and settles the property at frame 0 immediately
	s.EnablePropertyAnimator(2, false)
	v, _ = w.prop(2, "renderer", "alpha")
	if v != 0 {
		t.Errorf("alpha = %v right after disable, want 0", v)
	}
	s.Update(0.5)
	v, _ = w.prop(2, "renderer", "alpha")
	if v != 0 {
		t.Errorf("alpha = %v, disabled animator still applying", v)
	}

	s.EnablePropertyAnimator(2, true)
	s.Update(1.0 / 60.0)
	v, _ = w.prop(2, "renderer", "alpha")
	if v > 0.05 {
		t.Errorf("alpha = %v after re-enable, want near 0", v)
	}
}

func TestPropertyAnimatorWrapsPastLastFrame(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("pulse.anp", &anim.PropertyAnimation{
		FPS: 10,
		Curves: []anim.Curve{{
			Component: "renderer",
			Property:  "alpha",
			Frames:    []int{0, 10},
			Values:    []float32{0, 1},
		}},
	})
	w.addEntity(2)

	s.CreatePropertyAnimator(2)
	s.SetPropertyAnimation(2, "pulse.anp")
	s.properties.Get(2).Flags &^= PropertyLooped
	s.StartGame()

	// 1.6s is past the 1s curve; the frame folds back to 6
	s.Update(1.6)
	v, ok := w.prop(2, "renderer", "alpha")
	if !ok || !mgl32.FloatEqualThreshold(v, 0.6, 1e-5) {
		t.Fatalf("alpha = %v (ok=%v), want 0.6", v, ok)
	}

	// time itself keeps running
	if got := s.properties.Get(2).Time; !mgl32.FloatEqualThreshold(got, 1.6, 1e-5) {
		t.Errorf("time = %v, want 1.6", got)
	}
}

const sceneControllerYAML = `
name: locomotion
inputs:
  - {name: speed, type: float}
  - {name: armed, type: bool}
sets:
  - name: default
    clips: {idle: clips/idle.ani, walk: clips/walk.ani}
nodes:
  - {name: idle, type: animation, slot: idle, loop: true}
  - {name: walk, type: animation, slot: walk, loop: true}
edges:
  - from: idle
    to: walk
    when: 'speed > 0.1'
    emit: [{type: set_input, input: armed, value: 1}]
entry: idle
`

func injectController(t *testing.T, reg *asset.Registry, path, yaml string) {
	t.Helper()
	ctrl, err := controller.ParseController([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	reg.Inject(path, ctrl)
}

func TestSetInputEventAppliesAfterUpdate(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("clips/idle.ani", &anim.Clip{Name: "idle", Length: 1})
	reg.Inject("clips/walk.ani", walkClip())
	injectController(t, reg, "loco.act", sceneControllerYAML)
	w.addEntity(3)

	s.CreateAnimator(3)
	s.SetAnimatorSource(3, "loco.act")
	s.StartGame()

	armed := s.InputIndex(3, "armed")
	if armed < 0 {
		t.Fatal("armed input not resolved")
	}
	if s.AnimatorBoolInput(3, armed) {
		t.Fatal("armed should start false")
	}

	s.SetAnimatorFloatInput(3, s.InputIndex(3, "speed"), 1.0)
	s.Update(0.1)
	if !s.AnimatorBoolInput(3, armed) {
		t.Error("set_input event not applied during the drain phase")
	}
}

func TestRootMotionMovesEntityTransform(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("clips/walk.ani", walkClip())
	injectController(t, reg, "walk.act", `
root_motion: true
sets: [{name: default, clips: {walk: clips/walk.ani}}]
nodes: [{name: walk, type: animation, slot: walk, loop: true}]
`)
	w.addEntity(4)

	s.CreateAnimator(4)
	s.SetAnimatorSource(4, "walk.act")
	s.StartGame()
	s.Update(0.5)

	got := w.Transform(4).Pos
	if !got.ApproxEqualThreshold(mgl32.Vec3{0, 0, 1}, 1e-4) {
		t.Errorf("entity moved to %v, want (0, 0, 1)", got)
	}
	if rm := s.RootMotion(4).Pos; !rm.ApproxEqualThreshold(mgl32.Vec3{0, 0, 1}, 1e-4) {
		t.Errorf("RootMotion = %v", rm)
	}

	// a rotated entity moves along its own heading
	w.SetTransform(4, pose.RigidTransform{
		Pos: mgl32.Vec3{},
		Rot: mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}),
	})
	s.Update(0.5)
	got = w.Transform(4).Pos
	if !got.ApproxEqualThreshold(mgl32.Vec3{1, 0, 0}, 1e-4) {
		t.Errorf("rotated entity moved to %v, want (1, 0, 0)", got)
	}
}

func TestRebindLeavesSingleContext(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("clips/idle.ani", &anim.Clip{Name: "idle", Length: 1})
	reg.Inject("clips/walk.ani", walkClip())
	injectController(t, reg, "a.act", sceneControllerYAML)
	injectController(t, reg, "b.act", `
sets: [{name: default, clips: {walk: clips/walk.ani}}]
nodes: [{name: walk, type: animation, slot: walk, loop: true}]
`)
	w.addEntity(5)

	s.CreateAnimator(5)
	s.SetAnimatorSource(5, "a.act")
	s.StartGame()
	first := s.animators.Get(5).Ctx
	if first == nil {
		t.Fatal("context not created for ready controller")
	}

	s.SetAnimatorSource(5, "b.act")
	a := s.animators.Get(5)
	if a.Ctx == nil || a.Ctx == first {
		t.Fatal("rebind should create a fresh context")
	}
	if got := s.AnimatorSource(5); got != "b.act" {
		t.Errorf("AnimatorSource = %q", got)
	}
}

func TestControllerStatusDrivesContextLifecycle(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("clips/idle.ani", &anim.Clip{Name: "idle", Length: 1})
	reg.Inject("clips/walk.ani", walkClip())
	w.addEntity(6)

	s.CreateAnimator(6)
	s.SetAnimatorSource(6, "loco.act") // not injected yet: load fails
	s.StartGame()
	if s.animators.Get(6).Ctx != nil {
		t.Fatal("context created for unready controller")
	}

	injectController(t, reg, "loco.act", sceneControllerYAML)
	if s.animators.Get(6).Ctx == nil {
		t.Fatal("ready status should create the context")
	}

	reg.Invalidate("loco.act")
	if s.animators.Get(6).Ctx != nil {
		t.Error("invalidation should tear down the context")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("clips/walk.ani", walkClip())
	reg.Inject("fade.anp", &anim.PropertyAnimation{FPS: 30})
	injectController(t, reg, "walk.act", `
sets: [{name: default, clips: {walk: clips/walk.ani}}]
nodes: [{name: walk, type: animation, slot: walk, loop: true}]
`)
	w.addEntity(1)
	w.addEntity(2)
	w.addEntity(3)

	s.CreateAnimable(1)
	s.SetAnimation(1, "clips/walk.ani")
	s.CreatePropertyAnimator(2)
	s.SetPropertyAnimation(2, "fade.anp")
	s.EnablePropertyAnimator(2, false)
	s.CreateAnimator(3)
	s.SetAnimatorSource(3, "walk.act")
	s.SetAnimatorDefaultSet(3, 0)

	var buf bytes.Buffer
	if err := s.Serialize(&buf); err != nil {
		t.Fatal(err)
	}

	s2, _, reg2 := newScene(t)
	reg2.Inject("clips/walk.ani", walkClip())
	reg2.Inject("fade.anp", &anim.PropertyAnimation{FPS: 30})
	injectController(t, reg2, "walk.act", `
sets: [{name: default, clips: {walk: clips/walk.ani}}]
nodes: [{name: walk, type: animation, slot: walk, loop: true}]
`)
	remap := ecs.EntityMap{1: 11, 2: 12, 3: 13}
	if err := s2.Deserialize(&buf, remap); err != nil {
		t.Fatal(err)
	}

	if got := s2.Animation(11); got != "clips/walk.ani" {
		t.Errorf("animation = %q", got)
	}
	if got := s2.AnimableTime(11); got != 0 {
		t.Errorf("time = %v, playback restarts on load", got)
	}
	if s2.PropertyAnimatorEnabled(12) {
		t.Error("disabled flag lost in round trip")
	}
	if got := s2.PropertyAnimation(12); got != "fade.anp" {
		t.Errorf("property animation = %q", got)
	}
	if got := s2.AnimatorSource(13); got != "walk.act" {
		t.Errorf("animator source = %q", got)
	}
}

func TestClearReleasesComponents(t *testing.T) {
	s, w, reg := newScene(t)
	reg.Inject("clips/walk.ani", walkClip())
	w.addEntity(1)
	s.CreateAnimable(1)
	s.SetAnimation(1, "clips/walk.ani")
	s.CreateAnimator(2)

	s.Clear()
	if s.Animation(1) != "" || s.AnimatorSource(2) != "" {
		t.Error("components survive Clear")
	}
	if s.animables.Len() != 0 || s.animators.Len() != 0 {
		t.Error("component storage not empty after Clear")
	}
}
