// animsim runs an animation controller headless: it loads a skeleton and
// a controller from an asset directory, steps the scene at a fixed rate,
// and prints the entity's motion and emitted events. Useful for checking
// graph transitions and root motion without an engine attached.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/atrika/animrt/asset"
	"github.com/atrika/animrt/ecs"
	"github.com/atrika/animrt/pose"
	"github.com/atrika/animrt/scene"
	"github.com/atrika/animrt/stream"
)

const simEntity ecs.Entity = 1

// simWorld is a single-entity world around one skeleton.
type simWorld struct {
	model     *pose.Model
	pose      *pose.Pose
	transform pose.RigidTransform
}

func newSimWorld(m *pose.Model) *simWorld {
	p := pose.NewPose(m.BoneCount())
	m.RelativePose(p)
	return &simWorld{model: m, pose: p, transform: pose.IdentityTransform()}
}

func (w *simWorld) Model(e ecs.Entity) *pose.Model {
	if e != simEntity {
		return nil
	}
	return w.model
}

func (w *simWorld) LockPose(e ecs.Entity) *pose.Pose {
	if e != simEntity {
		return nil
	}
	return w.pose
}

func (w *simWorld) UnlockPose(ecs.Entity) {}

func (w *simWorld) Transform(ecs.Entity) pose.RigidTransform { return w.transform }

func (w *simWorld) SetTransform(_ ecs.Entity, t pose.RigidTransform) { w.transform = t }

func (w *simWorld) SetProperty(e ecs.Entity, component, property string, v float32) {
	fmt.Printf("  property %s.%s = %g\n", component, property, v)
}

type skeletonSpec struct {
	Bones []struct {
		Name   string     `yaml:"name"`
		Parent string     `yaml:"parent"`
		Pos    [3]float32 `yaml:"pos"`
	} `yaml:"bones"`
}

func loadSkeleton(path string) (*pose.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec skeletonSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	index := make(map[string]int, len(spec.Bones))
	bones := make([]pose.Bone, 0, len(spec.Bones))
	for i, b := range spec.Bones {
		parent := -1
		if b.Parent != "" {
			p, ok := index[b.Parent]
			if !ok {
				return nil, fmt.Errorf("bone %q: parent %q not declared before it", b.Name, b.Parent)
			}
			parent = p
		}
		index[b.Name] = i
		bones = append(bones, pose.Bone{
			Name:        b.Name,
			ParentIndex: parent,
			Bind: pose.RigidTransform{
				Pos: mgl32.Vec3{b.Pos[0], b.Pos[1], b.Pos[2]},
				Rot: mgl32.QuatIdent(),
			},
		})
	}
	return pose.NewModel(bones)
}

// applyInputs parses "name=value" pairs and writes them through the
// controller's declared types.
func applyInputs(s *scene.AnimationScene, spec string) error {
	if spec == "" {
		return nil
	}
	for _, pair := range strings.Split(spec, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("input %q: want name=value", pair)
		}
		idx := s.InputIndex(simEntity, name)
		if idx < 0 {
			return fmt.Errorf("input %q: not declared by the controller", name)
		}
		if b, err := strconv.ParseBool(value); err == nil && (value == "true" || value == "false") {
			s.SetAnimatorBoolInput(simEntity, idx, b)
			continue
		}
		if i, err := strconv.ParseInt(value, 10, 32); err == nil && !strings.Contains(value, ".") {
			s.SetAnimatorIntInput(simEntity, idx, int32(i))
			continue
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("input %q: %w", pair, err)
		}
		s.SetAnimatorFloatInput(simEntity, idx, float32(f))
	}
	return nil
}

func main() {
	assetsDir := flag.String("assets", "assets", "Asset root directory")
	skeleton := flag.String("skeleton", "skeleton.yaml", "Skeleton file, relative to the asset root")
	ctrlPath := flag.String("controller", "", "Controller asset path, relative to the asset root")
	clipPath := flag.String("clip", "", "Play a single clip instead of a controller")
	inputs := flag.String("inputs", "", "Comma separated name=value input writes")
	frames := flag.Int("frames", 120, "Number of frames to simulate")
	rate := flag.Float64("rate", 60, "Simulation rate in frames per second")
	watch := flag.Bool("watch", false, "Hot reload assets while running")
	flag.Parse()

	if *ctrlPath == "" && *clipPath == "" {
		log.Fatal("one of -controller or -clip is required")
	}

	model, err := loadSkeleton(fmt.Sprintf("%s/%s", *assetsDir, *skeleton))
	if err != nil {
		log.Fatalf("skeleton: %v", err)
	}
	world := newSimWorld(model)
	registry := asset.NewRegistry(*assetsDir)
	s := scene.NewAnimationScene(world, registry)
	s.SetEventHandler(func(r stream.Record) {
		fmt.Printf("  event %#08x value bytes %v\n", r.Type, r.Payload)
	})

	if *watch {
		if err := registry.Watch(); err != nil {
			log.Fatalf("watch: %v", err)
		}
		defer registry.Close()
	}

	if *ctrlPath != "" {
		s.CreateAnimator(simEntity)
		s.SetAnimatorSource(simEntity, *ctrlPath)
	} else {
		s.CreateAnimable(simEntity)
		s.SetAnimation(simEntity, *clipPath)
	}

	s.StartGame()
	if err := applyInputs(s, *inputs); err != nil {
		log.Fatalf("inputs: %v", err)
	}

	dt := float32(1.0 / *rate)
	for frame := 0; frame < *frames; frame++ {
		registry.ProcessEvents()
		s.Update(dt)
		t := world.transform
		fmt.Printf("frame %4d  pos (%.3f %.3f %.3f)\n", frame, t.Pos.X(), t.Pos.Y(), t.Pos.Z())
	}
}
