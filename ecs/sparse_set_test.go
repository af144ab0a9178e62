package ecs

import "testing"

func TestSparseSetSwapAndPop(t *testing.T) {
	s := NewSparseSet[string]()
	s.Set(Entity(1), "a")
	s.Set(Entity(2), "b")
	s.Set(Entity(3), "c")

	if !s.Remove(Entity(1)) {
		t.Fatalf("Remove should return true for stored entity")
	}

	// The last record (entity 3) must have moved into the freed slot and
	// still resolve through the index map.
	if s.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", s.Len())
	}
	if got := s.Get(Entity(3)); got == nil || *got != "c" {
		t.Fatalf("moved entity lost its record: %v", got)
	}
	if s.EntityAt(0) != Entity(3) {
		t.Fatalf("expected entity 3 in dense slot 0, got %d", s.EntityAt(0))
	}
	if s.Has(Entity(1)) {
		t.Fatalf("removed entity still present")
	}
}

func TestSparseSetSetReplaces(t *testing.T) {
	s := NewSparseSet[int]()
	s.Set(Entity(7), 1)
	s.Set(Entity(7), 2)
	if s.Len() != 1 {
		t.Fatalf("replace should not grow the set, len=%d", s.Len())
	}
	if v := s.Get(Entity(7)); v == nil || *v != 2 {
		t.Fatalf("expected replaced value 2, got %v", v)
	}
}

func TestSparseSetRemoveLast(t *testing.T) {
	s := NewSparseSet[int]()
	s.Set(Entity(4), 40)
	if !s.Remove(Entity(4)) {
		t.Fatalf("Remove should succeed")
	}
	if s.Len() != 0 || s.Has(Entity(4)) {
		t.Fatalf("set should be empty")
	}
	if s.Remove(Entity(4)) {
		t.Fatalf("second Remove should return false")
	}
}

func TestEntityMapIdentityFallback(t *testing.T) {
	m := EntityMap{Entity(5): Entity(50)}
	if m.Get(Entity(5)) != Entity(50) {
		t.Fatalf("mapped entity should remap")
	}
	if m.Get(Entity(6)) != Entity(6) {
		t.Fatalf("unmapped entity should pass through")
	}
	var nilMap EntityMap
	if nilMap.Get(Entity(9)) != Entity(9) {
		t.Fatalf("nil map should be identity")
	}
}
