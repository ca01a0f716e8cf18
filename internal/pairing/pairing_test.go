package pairing

import (
	"bytes"
	"testing"
)

func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{
		Version:           0,
		PeerID:            "alice-id",
		DisplayName:       "Alice's Phone",
		IdentityPublicKey: bytes.Repeat([]byte{7}, 32),
		LANPort:           1111,
		Nonce:             bytes.Repeat([]byte{7}, 32),
		LANAddrs:          []string{"192.168.1.10"},
	}

	qr, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(qr)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.PeerID != p.PeerID || decoded.LANPort != p.LANPort || !bytes.Equal(decoded.Nonce, p.Nonce) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, p)
	}
}

func TestDecodeRejectsMalformedBase64(t *testing.T) {
	if _, err := Decode("not valid base64url!!"); err == nil {
		t.Fatal("expected error for malformed base64")
	}
}

func TestDeriveCodeIsDeterministicAndSixDigits(t *testing.T) {
	nonce := bytes.Repeat([]byte{7}, 32)
	code1 := DeriveCode(nonce, "alice-id", "bob-id")
	code2 := DeriveCode(nonce, "alice-id", "bob-id")
	if code1 != code2 {
		t.Fatalf("derive_code not deterministic: %s vs %s", code1, code2)
	}
	if len(code1) != 6 {
		t.Fatalf("code length = %d, want 6", len(code1))
	}
}

func TestDeriveCodeChangesWithInput(t *testing.T) {
	nonce := bytes.Repeat([]byte{7}, 32)
	base := DeriveCode(nonce, "alice-id", "bob-id")
	if DeriveCode(nonce, "alice-id", "carol-id") == base {
		t.Fatal("expected code to change when peer-id changes")
	}
	other := bytes.Repeat([]byte{9}, 32)
	if DeriveCode(other, "alice-id", "bob-id") == base {
		t.Fatal("expected code to change when nonce changes")
	}
}

func TestPairingRoundTripScenario(t *testing.T) {
	nonce := bytes.Repeat([]byte{7}, 32)
	alice := Payload{Version: 0, PeerID: "alice-id", DisplayName: "Alice", IdentityPublicKey: bytes.Repeat([]byte{1}, 32), LANPort: 1111, Nonce: nonce}
	bob := Payload{Version: 0, PeerID: "bob-id", DisplayName: "Bob", IdentityPublicKey: bytes.Repeat([]byte{2}, 32), LANPort: 2222, Nonce: nonce}

	codeAlice := DeriveCode(nonce, alice.PeerID, bob.PeerID)
	codeBob := DeriveCode(nonce, alice.PeerID, bob.PeerID)
	if codeAlice != codeBob {
		t.Fatalf("confirmation codes differ: %s vs %s", codeAlice, codeBob)
	}

	initiatorRecord, responderRecord, err := Finalize(alice, bob)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if initiatorRecord.PeerID != "alice-id" {
		t.Fatalf("expected initiator record to carry alice's id, got %s", initiatorRecord.PeerID)
	}
	if responderRecord.PeerID != "bob-id" {
		t.Fatalf("expected responder record to carry bob's id, got %s", responderRecord.PeerID)
	}
}

func TestFinalizeRejectsNonceMismatch(t *testing.T) {
	alice := Payload{PeerID: "alice-id", Nonce: bytes.Repeat([]byte{1}, 32)}
	bob := Payload{PeerID: "bob-id", Nonce: bytes.Repeat([]byte{2}, 32)}
	if _, _, err := Finalize(alice, bob); err != ErrNonceMismatch {
		t.Fatalf("expected ErrNonceMismatch, got %v", err)
	}
}
