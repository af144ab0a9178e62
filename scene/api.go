package scene

import (
	"log"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/atrika/animrt/anim"
	"github.com/atrika/animrt/common"
	"github.com/atrika/animrt/controller"
	"github.com/atrika/animrt/ecs"
	"github.com/atrika/animrt/pose"
)

// CreateAnimable adds a clip-player component to e. Creating over an
// existing component rebinds it.
func (s *AnimationScene) CreateAnimable(e ecs.Entity) {
	if s.animables.Has(e) {
		return
	}
	s.animables.Set(e, Animable{})
}

// DestroyAnimable removes e's clip player and releases its clip.
func (s *AnimationScene) DestroyAnimable(e ecs.Entity) {
	if a := s.animables.Get(e); a != nil {
		s.assets.Release(a.Clip)
	}
	s.animables.Remove(e)
}

// SetAnimation binds e's clip player to the clip asset at path, rewinding
// playback. An empty path unbinds.
func (s *AnimationScene) SetAnimation(e ecs.Entity, path string) {
	a := s.animables.Get(e)
	if a == nil {
		return
	}
	s.assets.Release(a.Clip)
	a.Clip = nil
	a.Time = 0
	if path != "" {
		a.Clip = s.assets.Load(path)
	}
}

// Animation returns the clip path bound to e's clip player.
func (s *AnimationScene) Animation(e ecs.Entity) string {
	if a := s.animables.Get(e); a != nil && a.Clip != nil {
		return a.Clip.Path()
	}
	return ""
}

// AnimationLength returns the bound clip's length in seconds, 0 while
// the clip is not ready.
func (s *AnimationScene) AnimationLength(e ecs.Entity) float32 {
	a := s.animables.Get(e)
	if a == nil || a.Clip == nil || !a.Clip.IsReady() {
		return 0
	}
	if clip, ok := a.Clip.Content().(*anim.Clip); ok {
		return clip.Length
	}
	return 0
}

// AnimableTime returns e's clip playback position.
func (s *AnimationScene) AnimableTime(e ecs.Entity) float32 {
	if a := s.animables.Get(e); a != nil {
		return a.Time
	}
	return 0
}

// SetAnimableTime seeks e's clip player.
func (s *AnimationScene) SetAnimableTime(e ecs.Entity, t float32) {
	if a := s.animables.Get(e); a != nil {
		a.Time = t
	}
}

// CreatePropertyAnimator adds a curve-player component to e. It starts
// looped and enabled.
func (s *AnimationScene) CreatePropertyAnimator(e ecs.Entity) {
	if s.properties.Has(e) {
		return
	}
	s.properties.Set(e, PropertyAnimator{Flags: PropertyLooped})
}

// DestroyPropertyAnimator removes e's curve player.
func (s *AnimationScene) DestroyPropertyAnimator(e ecs.Entity) {
	if pa := s.properties.Get(e); pa != nil {
		s.assets.Release(pa.Anim)
	}
	s.properties.Remove(e)
}

// SetPropertyAnimation binds e's curve player to the asset at path.
func (s *AnimationScene) SetPropertyAnimation(e ecs.Entity, path string) {
	pa := s.properties.Get(e)
	if pa == nil {
		return
	}
	s.assets.Release(pa.Anim)
	pa.Anim = nil
	pa.Time = 0
	if path != "" {
		pa.Anim = s.assets.Load(path)
	}
}

// PropertyAnimation returns the curve asset path bound to e.
func (s *AnimationScene) PropertyAnimation(e ecs.Entity) string {
	if pa := s.properties.Get(e); pa != nil && pa.Anim != nil {
		return pa.Anim.Path()
	}
	return ""
}

// EnablePropertyAnimator toggles e's curve player. Toggling either way
// rewinds to the first frame; disabling additionally applies the frame 0
// values once so the driven properties settle at the curve's start.
func (s *AnimationScene) EnablePropertyAnimator(e ecs.Entity, enabled bool) {
	pa := s.properties.Get(e)
	if pa == nil {
		return
	}
	pa.Time = 0
	if enabled {
		pa.Flags &^= PropertyDisabled
		return
	}
	pa.Flags |= PropertyDisabled
	if pa.Anim != nil && pa.Anim.IsReady() {
		if prop, ok := pa.Anim.Content().(*anim.PropertyAnimation); ok {
			s.applyPropertyFrame(e, prop, 0)
		}
	}
}

// PropertyAnimatorEnabled reports whether e's curve player is active.
func (s *AnimationScene) PropertyAnimatorEnabled(e ecs.Entity) bool {
	pa := s.properties.Get(e)
	return pa != nil && pa.Flags&PropertyDisabled == 0
}

// CreateAnimator adds a state-machine component to e.
func (s *AnimationScene) CreateAnimator(e ecs.Entity) {
	if s.animators.Has(e) {
		return
	}
	s.animators.Set(e, Animator{})
}

// DestroyAnimator removes e's state machine, tearing down its runtime
// context and releasing the controller asset.
func (s *AnimationScene) DestroyAnimator(e ecs.Entity) {
	if a := s.animators.Get(e); a != nil {
		if a.Ctx != nil {
			a.Ctx.Destroy()
		}
		s.assets.Release(a.Source)
	}
	s.animators.Remove(e)
}

// SetAnimatorSource rebinds e's animator to the controller asset at
// path. The old context is destroyed before the old handle is released,
// so a rebind never leaves two live contexts on one entity.
func (s *AnimationScene) SetAnimatorSource(e ecs.Entity, path string) {
	a := s.animators.Get(e)
	if a == nil {
		return
	}
	if a.Ctx != nil {
		a.Ctx.Destroy()
		a.Ctx = nil
	}
	s.assets.Release(a.Source)
	a.Source = nil
	if path != "" {
		a.Source = s.assets.Load(path)
		s.createContext(a)
	}
}

// AnimatorSource returns the controller asset path bound to e.
func (s *AnimationScene) AnimatorSource(e ecs.Entity) string {
	if a := s.animators.Get(e); a != nil && a.Source != nil {
		return a.Source.Path()
	}
	return ""
}

// InputIndex resolves an input name on e's controller, -1 when the
// controller is not ready or the name is unknown.
func (s *AnimationScene) InputIndex(e ecs.Entity, name string) int {
	a := s.animators.Get(e)
	if a == nil || a.Ctx == nil {
		return -1
	}
	return a.Ctx.Controller().InputIndex(name)
}

// SetAnimatorFloatInput writes a float input on e's animator. Bad
// indices and type mismatches are logged and dropped.
func (s *AnimationScene) SetAnimatorFloatInput(e ecs.Entity, input int, v float32) {
	if a := s.animators.Get(e); a != nil && a.Ctx != nil {
		if err := a.Ctx.SetFloat(input, v); err != nil {
			log.Printf("animation: entity %d: %v", e, err)
		}
	}
}

// SetAnimatorIntInput writes an int input on e's animator.
func (s *AnimationScene) SetAnimatorIntInput(e ecs.Entity, input int, v int32) {
	if a := s.animators.Get(e); a != nil && a.Ctx != nil {
		if err := a.Ctx.SetInt(input, v); err != nil {
			log.Printf("animation: entity %d: %v", e, err)
		}
	}
}

// SetAnimatorBoolInput writes a bool input on e's animator.
func (s *AnimationScene) SetAnimatorBoolInput(e ecs.Entity, input int, v bool) {
	if a := s.animators.Get(e); a != nil && a.Ctx != nil {
		if err := a.Ctx.SetBool(input, v); err != nil {
			log.Printf("animation: entity %d: %v", e, err)
		}
	}
}

// AnimatorFloatInput reads back a float input.
func (s *AnimationScene) AnimatorFloatInput(e ecs.Entity, input int) float32 {
	if a := s.animators.Get(e); a != nil && a.Ctx != nil {
		return a.Ctx.Float(input)
	}
	return 0
}

// AnimatorBoolInput reads back a bool input.
func (s *AnimationScene) AnimatorBoolInput(e ecs.Entity, input int) bool {
	if a := s.animators.Get(e); a != nil && a.Ctx != nil {
		return a.Ctx.Bool(input)
	}
	return false
}

// AnimatorIntInput reads back an int input.
func (s *AnimationScene) AnimatorIntInput(e ecs.Entity, input int) int32 {
	if a := s.animators.Get(e); a != nil && a.Ctx != nil {
		return a.Ctx.Int(input)
	}
	return 0
}

// SetAnimatorIK drives one IK slot of e's animator with a world-space
// target. Slots outside the controller's chain count are ignored.
func (s *AnimationScene) SetAnimatorIK(e ecs.Entity, slot int, weight float32, target mgl32.Vec3) {
	a := s.animators.Get(e)
	if a == nil || slot < 0 || slot >= controller.MaxIKChains {
		return
	}
	a.IK[slot] = IKSlot{Weight: common.Clamp(weight, 0, 1), Target: target}
}

// SetAnimatorDefaultSet selects the animation set new runtime contexts
// start with. A live context is switched immediately.
func (s *AnimationScene) SetAnimatorDefaultSet(e ecs.Entity, set int) {
	a := s.animators.Get(e)
	if a == nil {
		return
	}
	a.DefaultSet = set
	if a.Ctx != nil && set >= 0 && set < len(a.Ctx.Controller().Sets) {
		a.Ctx.ApplySet(a.Ctx.Controller().Sets[set].Name)
	}
}

// AnimatorDefaultSet returns the configured starting set index.
func (s *AnimationScene) AnimatorDefaultSet(e ecs.Entity) int {
	if a := s.animators.Get(e); a != nil {
		return a.DefaultSet
	}
	return 0
}

// ApplyAnimatorSet overlays the named animation set on e's running
// animator. Unknown names and missing contexts are no-ops.
func (s *AnimationScene) ApplyAnimatorSet(e ecs.Entity, name string) {
	a := s.animators.Get(e)
	if a == nil || a.Ctx == nil {
		return
	}
	if !a.Ctx.ApplySet(name) {
		log.Printf("animation: entity %d: unknown animation set %q", e, name)
	}
}

// RootMotion returns the root displacement e's animator produced during
// the last Update, in the entity's local space.
func (s *AnimationScene) RootMotion(e ecs.Entity) pose.RigidTransform {
	if a := s.animators.Get(e); a != nil && a.Ctx != nil {
		return a.Ctx.RootMotion()
	}
	return pose.IdentityTransform()
}
