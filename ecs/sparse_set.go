package ecs

// SparseSet is cache-friendly component storage keyed by Entity. Records
// live in a dense slice so per-frame iteration touches contiguous memory;
// a separate entity-to-index map resolves lookups. Removal swaps the last
// record into the freed slot and fixes up the moved entity's map entry,
// so the dense slice never holds holes.
type SparseSet[T any] struct {
	entities []Entity
	values   []T
	index    map[Entity]int
}

// NewSparseSet creates an empty set.
func NewSparseSet[T any]() *SparseSet[T] {
	return &SparseSet[T]{index: make(map[Entity]int)}
}

// Len returns the number of stored records.
func (s *SparseSet[T]) Len() int {
	return len(s.entities)
}

// Has returns true if e has a record in the set.
func (s *SparseSet[T]) Has(e Entity) bool {
	_, ok := s.index[e]
	return ok
}

// Get returns a pointer to e's record, or nil.
func (s *SparseSet[T]) Get(e Entity) *T {
	idx, ok := s.index[e]
	if !ok {
		return nil
	}
	return &s.values[idx]
}

// Set inserts or replaces e's record and returns a pointer to it.
func (s *SparseSet[T]) Set(e Entity, v T) *T {
	if idx, ok := s.index[e]; ok {
		s.values[idx] = v
		return &s.values[idx]
	}
	s.entities = append(s.entities, e)
	s.values = append(s.values, v)
	s.index[e] = len(s.entities) - 1
	return &s.values[len(s.values)-1]
}

// Remove deletes e's record via swap-and-pop. The entity that owned the
// last dense slot is remapped to the freed index. Returns false if e had
// no record.
func (s *SparseSet[T]) Remove(e Entity) bool {
	idx, ok := s.index[e]
	if !ok {
		return false
	}
	last := len(s.entities) - 1
	lastEntity := s.entities[last]

	s.entities[idx] = lastEntity
	s.values[idx] = s.values[last]
	s.index[lastEntity] = idx

	var zero T
	s.values[last] = zero
	s.entities = s.entities[:last]
	s.values = s.values[:last]
	delete(s.index, e)
	return true
}

// At returns a pointer to the record in dense slot i.
func (s *SparseSet[T]) At(i int) *T {
	return &s.values[i]
}

// EntityAt returns the entity owning dense slot i.
func (s *SparseSet[T]) EntityAt(i int) Entity {
	return s.entities[i]
}

// Entities returns the dense entity list. Callers must not mutate it.
func (s *SparseSet[T]) Entities() []Entity {
	return s.entities
}

// Clear drops every record.
func (s *SparseSet[T]) Clear() {
	s.entities = s.entities[:0]
	s.values = s.values[:0]
	s.index = make(map[Entity]int)
}
