package echo

import "testing"

func TestShouldIgnoreLocalChange(t *testing.T) {
	s := New(4)
	s.NoteRemoteWrite("hello")
	if !s.ShouldIgnoreLocalChange("hello") {
		t.Fatal("expected suppression of a recently noted remote write")
	}
	if s.ShouldIgnoreLocalChange("world") {
		t.Fatal("expected no suppression of an unrelated text")
	}
}

func TestConsecutiveDedup(t *testing.T) {
	s := New(2)
	s.NoteRemoteWrite("a")
	s.NoteRemoteWrite("a")
	s.NoteRemoteWrite("b")
	// capacity 2: "x" is noted first, then "a" twice in a row. With
	// consecutive-dedup the second "a" is not recorded, so "x" stays in the
	// window; recording it would have evicted "x".
	s2 := New(2)
	s2.NoteRemoteWrite("x")
	s2.NoteRemoteWrite("a")
	s2.NoteRemoteWrite("a")
	if !s2.ShouldIgnoreLocalChange("x") {
		t.Fatal("expected consecutive duplicate note to occupy a single slot")
	}
}

func TestEvictionDropsOldest(t *testing.T) {
	s := New(1)
	s.NoteRemoteWrite("a")
	s.NoteRemoteWrite("b")
	if s.ShouldIgnoreLocalChange("a") {
		t.Fatal("expected a to be evicted once capacity exceeded")
	}
	if !s.ShouldIgnoreLocalChange("b") {
		t.Fatal("expected b to remain")
	}
}
