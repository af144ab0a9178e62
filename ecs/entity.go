package ecs

// Entity is an opaque stable identifier of a scene object. Entities are
// allocated and owned by the surrounding scene graph; this module only
// keys component storage by them. Zero is never a valid entity.
type Entity uint32

// InvalidEntity is the zero, never-allocated entity handle.
const InvalidEntity Entity = 0

// IsValid reports whether e refers to an allocated entity.
func (e Entity) IsValid() bool {
	return e != InvalidEntity
}

// EntityMap remaps saved entity ids onto live ones when deserialized state
// is merged into a running scene whose entities have been renumbered.
type EntityMap map[Entity]Entity

// Get returns the live entity for a saved one. Ids absent from the map are
// returned unchanged, so an empty map is the identity remapping.
func (m EntityMap) Get(e Entity) Entity {
	if m == nil {
		return e
	}
	if mapped, ok := m[e]; ok {
		return mapped
	}
	return e
}
