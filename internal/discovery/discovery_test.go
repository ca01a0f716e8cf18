package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/openclipboard/meshd/internal/trust"
)

func TestStaticScanReturnsOnlyAddressedPeers(t *testing.T) {
	store, err := trust.Open("")
	if err != nil {
		t.Fatalf("trust.Open: %v", err)
	}
	if err := store.Save(trust.Record{PeerID: "aaa", DisplayName: "Alice"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(trust.Record{PeerID: "bbb", DisplayName: "Bob"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	d := NewStatic(store, nil)
	d.SetAddress("aaa", "10.0.0.1:9000")

	peers, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(peers) != 1 || peers[0].PeerID != "aaa" || peers[0].Address != "10.0.0.1:9000" {
		t.Fatalf("expected only aaa with its address, got %+v", peers)
	}
}

func TestStaticStartClosesChannelOnContextCancel(t *testing.T) {
	store, _ := trust.Open("")
	d := NewStatic(store, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := d.Start(ctx, SelfInfo{PeerID: "self"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed, got a value instead")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event channel to close")
	}
}
