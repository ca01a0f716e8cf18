package trust

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSaveGetRemove(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "trust.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	r := Record{PeerID: "abc", IdentityPublicKey: []byte{1, 2, 3}, DisplayName: "Alice", CreatedAt: time.Now()}
	if err := store.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !store.IsTrusted("abc") {
		t.Fatal("expected abc to be trusted after save")
	}
	got, ok := store.Get("abc")
	if !ok || got.DisplayName != "Alice" {
		t.Fatalf("Get returned %+v, ok=%v", got, ok)
	}

	existed, err := store.Remove("abc")
	if err != nil || !existed {
		t.Fatalf("Remove: existed=%v err=%v", existed, err)
	}
	if store.IsTrusted("abc") {
		t.Fatal("expected abc to be untrusted after remove")
	}
}

func TestSaveIdempotent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "trust.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r := Record{PeerID: "abc", IdentityPublicKey: []byte{9}, DisplayName: "Bob", CreatedAt: time.Now()}
	if err := store.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(r); err != nil {
		t.Fatalf("Save (again): %v", err)
	}
	if len(store.List()) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(store.List()))
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Save(Record{PeerID: "p1", IdentityPublicKey: []byte{1}, DisplayName: "P1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.IsTrusted("p1") {
		t.Fatal("expected p1 to survive reopen")
	}
}

func TestRemoveMissingReturnsFalse(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "trust.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	existed, err := store.Remove("nope")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if existed {
		t.Fatal("expected existed=false for missing record")
	}
}
