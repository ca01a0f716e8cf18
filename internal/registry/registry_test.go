package registry

import (
	"testing"

	"github.com/openclipboard/meshd/internal/trust"
)

func TestSetOnlineIgnoresUnknownPeer(t *testing.T) {
	r := New([]Entry{{PeerID: "a", DisplayName: "Alice"}})
	r.SetOnline("unknown", "1.2.3.4:9")
	if _, ok := r.Get("unknown"); ok {
		t.Fatal("expected unknown peer to remain absent")
	}
}

func TestOnlineOfflineLifecycle(t *testing.T) {
	r := New([]Entry{{PeerID: "a", DisplayName: "Alice"}})
	e, _ := r.Get("a")
	if e.Status != Offline {
		t.Fatalf("expected seeded entry Offline, got %v", e.Status)
	}

	r.SetOnline("a", "10.0.0.1:1234")
	e, _ = r.Get("a")
	if e.Status != Online || e.LastAddress != "10.0.0.1:1234" {
		t.Fatalf("expected Online with address, got %+v", e)
	}

	r.SetOffline("a")
	e, _ = r.Get("a")
	if e.Status != Offline {
		t.Fatalf("expected Offline after teardown, got %v", e.Status)
	}
}

func TestListOnlineFiltersByStatus(t *testing.T) {
	r := New([]Entry{{PeerID: "a"}, {PeerID: "b"}})
	r.SetOnline("a", "")
	online := r.ListOnline()
	if len(online) != 1 || online[0].PeerID != "a" {
		t.Fatalf("expected only a online, got %+v", online)
	}
	if len(r.ListAll()) != 2 {
		t.Fatalf("expected 2 total entries")
	}
}

func TestNewFromTrustStoreSeedsOfflineEntries(t *testing.T) {
	store, err := trust.Open("")
	if err != nil {
		t.Fatalf("trust.Open: %v", err)
	}
	if err := store.Save(trust.Record{PeerID: "a", DisplayName: "Alice"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(trust.Record{PeerID: "b", DisplayName: "Bob"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := NewFromTrustStore(store)
	all := r.ListAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 seeded entries, got %d", len(all))
	}
	for _, e := range all {
		if e.Status != Offline {
			t.Fatalf("expected seeded entry %q to start Offline, got %v", e.PeerID, e.Status)
		}
	}
	if len(r.ListOnline()) != 0 {
		t.Fatalf("expected no entries online at seed time")
	}
}
