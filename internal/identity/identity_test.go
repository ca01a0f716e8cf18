package identity

import (
	"path/filepath"
	"testing"
)

func TestGenerateAndVerify(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	msg := []byte("transcript bytes")
	sig := id.Sign(msg)
	if !Verify(msg, sig, id.PublicKey()) {
		t.Fatal("signature did not verify against its own key")
	}
	if Verify([]byte("different"), sig, id.PublicKey()) {
		t.Fatal("signature verified against a different message")
	}
}

func TestVerifyNeverPanicsOnMalformedKey(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Verify panicked: %v", r)
		}
	}()
	if Verify([]byte("x"), []byte("y"), []byte{1, 2, 3}) {
		t.Fatal("expected verification failure on malformed key")
	}
}

func TestPeerIDDeterministic(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := PeerID(id.PublicKey()); got != id.PeerID() {
		t.Fatalf("PeerID(pub) = %s, want %s", got, id.PeerID())
	}
	if len(id.PeerID()) != 64 {
		t.Fatalf("peer-id length = %d, want 64", len(id.PeerID()))
	}
}

func TestLoadPersistsAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	first, err := Load(path)
	if err != nil {
		t.Fatalf("Load (create): %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("Load (reload): %v", err)
	}
	if first.PeerID() != second.PeerID() {
		t.Fatalf("peer-id changed across reload: %s vs %s", first.PeerID(), second.PeerID())
	}
}
