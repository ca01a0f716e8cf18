package history

import "testing"

func TestCapacityClamp(t *testing.T) {
	h := New(2)
	h.Record("a", LocalSource)
	h.Record("b", LocalSource)
	h.Record("c", LocalSource)
	if got := len(h.GetRecent(10)); got != 2 {
		t.Fatalf("len = %d, want 2 (capacity invariant)", got)
	}
}

func TestGetRecentNewestFirst(t *testing.T) {
	h := New(10)
	h.Record("a", LocalSource)
	h.Record("b", LocalSource)
	h.Record("c", LocalSource)
	recent := h.GetRecent(10)
	if recent[0].Content != "c" || recent[2].Content != "a" {
		t.Fatalf("expected newest-first ordering, got %+v", recent)
	}
}

func TestGetForPeerFilters(t *testing.T) {
	h := New(10)
	h.Record("from-local", LocalSource)
	h.Record("from-peer", "peer-abc")
	got := h.GetForPeer("peer-abc", 10)
	if len(got) != 1 || got[0].Content != "from-peer" {
		t.Fatalf("expected one filtered entry, got %+v", got)
	}
}

func TestGetByIDAfterEviction(t *testing.T) {
	h := New(1)
	first := h.Record("a", LocalSource)
	h.Record("b", LocalSource) // evicts "a"
	if _, ok := h.GetByID(first); ok {
		t.Fatal("expected evicted entry to be gone")
	}
}

func TestCapacityClampedToOne(t *testing.T) {
	h := New(0)
	if h.capacity != 1 {
		t.Fatalf("capacity = %d, want 1", h.capacity)
	}
}
