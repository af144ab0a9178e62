package scene

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/atrika/animrt/ecs"
)

const sceneVersion uint32 = 1

type sceneWriter struct {
	w   io.Writer
	err error
}

func (sw *sceneWriter) u32(v uint32) {
	if sw.err != nil {
		return
	}
	sw.err = binary.Write(sw.w, binary.LittleEndian, v)
}

func (sw *sceneWriter) str(s string) {
	sw.u32(uint32(len(s)))
	if sw.err != nil {
		return
	}
	_, sw.err = io.WriteString(sw.w, s)
}

type sceneReader struct {
	r   io.Reader
	err error
}

func (sr *sceneReader) u32() uint32 {
	if sr.err != nil {
		return 0
	}
	var v uint32
	sr.err = binary.Read(sr.r, binary.LittleEndian, &v)
	return v
}

func (sr *sceneReader) str() string {
	n := sr.u32()
	if sr.err != nil {
		return ""
	}
	buf := make([]byte, n)
	_, sr.err = io.ReadFull(sr.r, buf)
	return string(buf)
}

// Serialize writes the scene's components so Deserialize can rebuild
// them: three counted sections for clip players, curve players, and
// animators. Playback state is not persisted; everything restarts from
// its first frame on load.
func (s *AnimationScene) Serialize(w io.Writer) error {
	sw := &sceneWriter{w: w}
	sw.u32(sceneVersion)

	sw.u32(uint32(s.animables.Len()))
	for i := 0; i < s.animables.Len(); i++ {
		a := s.animables.At(i)
		sw.u32(uint32(s.animables.EntityAt(i)))
		path := ""
		if a.Clip != nil {
			path = a.Clip.Path()
		}
		sw.str(path)
	}

	sw.u32(uint32(s.properties.Len()))
	for i := 0; i < s.properties.Len(); i++ {
		pa := s.properties.At(i)
		sw.u32(uint32(s.properties.EntityAt(i)))
		path := ""
		if pa.Anim != nil {
			path = pa.Anim.Path()
		}
		sw.str(path)
		sw.u32(uint32(pa.Flags))
	}

	sw.u32(uint32(s.animators.Len()))
	for i := 0; i < s.animators.Len(); i++ {
		a := s.animators.At(i)
		sw.u32(uint32(a.DefaultSet))
		sw.u32(uint32(s.animators.EntityAt(i)))
		path := ""
		if a.Source != nil {
			path = a.Source.Path()
		}
		sw.str(path)
	}
	return sw.err
}

// Deserialize rebuilds components from Serialize's output, remapping
// entity ids through m. Asset paths are loaded through the registry, so
// readiness follows the usual lifecycle.
func (s *AnimationScene) Deserialize(r io.Reader, m ecs.EntityMap) error {
	sr := &sceneReader{r: r}
	if v := sr.u32(); sr.err == nil && v != sceneVersion {
		return fmt.Errorf("scene: unsupported version %d", v)
	}

	for n := sr.u32(); n > 0 && sr.err == nil; n-- {
		e := m.Get(ecs.Entity(sr.u32()))
		path := sr.str()
		if sr.err != nil {
			break
		}
		s.CreateAnimable(e)
		if path != "" {
			s.SetAnimation(e, path)
		}
	}

	for n := sr.u32(); n > 0 && sr.err == nil; n-- {
		e := m.Get(ecs.Entity(sr.u32()))
		path := sr.str()
		flags := PropertyFlags(sr.u32())
		if sr.err != nil {
			break
		}
		s.CreatePropertyAnimator(e)
		if path != "" {
			s.SetPropertyAnimation(e, path)
		}
		if pa := s.properties.Get(e); pa != nil {
			pa.Flags = flags
		}
	}

	for n := sr.u32(); n > 0 && sr.err == nil; n-- {
		set := int(sr.u32())
		e := m.Get(ecs.Entity(sr.u32()))
		path := sr.str()
		if sr.err != nil {
			break
		}
		s.CreateAnimator(e)
		if a := s.animators.Get(e); a != nil {
			a.DefaultSet = set
		}
		if path != "" {
			s.SetAnimatorSource(e, path)
		}
	}

	if sr.err != nil {
		return fmt.Errorf("scene: deserialize: %w", sr.err)
	}
	return nil
}
