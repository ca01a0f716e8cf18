// Package pairing implements the one-time human-mediated exchange that
// bootstraps mutual trust between two devices: a QR-carried payload plus a
// short confirmation code both sides derive independently and compare by
// eye.
package pairing

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/openclipboard/meshd/internal/trust"
)

// ErrNonceMismatch is returned by Finalize when the two payloads do not
// share the same nonce — either they belong to different pairing sessions
// or one side has been tampered with.
var ErrNonceMismatch = errors.New("pairing: nonce mismatch")

// Payload is the ephemeral structure carried through a QR code (or any
// side channel) during pairing.
type Payload struct {
	Version           uint8
	PeerID            string
	DisplayName       string
	IdentityPublicKey []byte
	LANPort           uint16
	Nonce             []byte
	LANAddrs          []string
}

// wirePayload is Payload's JSON shape.
type wirePayload struct {
	Version     uint8    `json:"version"`
	PeerID      string   `json:"peer_id"`
	DisplayName string   `json:"name"`
	IdentityPK  string   `json:"identity_pk"`
	LANPort     uint16   `json:"lan_port"`
	Nonce       string   `json:"nonce"`
	LANAddrs    []string `json:"lan_addrs"`
}

// NewNonce returns a fresh 32-byte random nonce, shared between both
// payloads of one pairing session.
func NewNonce() ([]byte, error) {
	n := make([]byte, 32)
	if _, err := rand.Read(n); err != nil {
		return nil, fmt.Errorf("pairing: generate nonce: %w", err)
	}
	return n, nil
}

// Encode serializes p to JSON and base64url-no-padding encodes it,
// producing the exact string to render as a QR code.
func Encode(p Payload) (string, error) {
	w := wirePayload{
		Version:     p.Version,
		PeerID:      p.PeerID,
		DisplayName: p.DisplayName,
		IdentityPK:  base64.StdEncoding.EncodeToString(p.IdentityPublicKey),
		LANPort:     p.LANPort,
		Nonce:       base64.StdEncoding.EncodeToString(p.Nonce),
		LANAddrs:    p.LANAddrs,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("pairing: encode: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode is the strict inverse of Encode; malformed base64 or structure
// fails.
func Decode(qr string) (Payload, error) {
	data, err := base64.RawURLEncoding.DecodeString(qr)
	if err != nil {
		return Payload{}, fmt.Errorf("pairing: malformed base64: %w", err)
	}
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return Payload{}, fmt.Errorf("pairing: malformed payload: %w", err)
	}
	pk, err := base64.StdEncoding.DecodeString(w.IdentityPK)
	if err != nil {
		return Payload{}, fmt.Errorf("pairing: malformed public key: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(w.Nonce)
	if err != nil {
		return Payload{}, fmt.Errorf("pairing: malformed nonce: %w", err)
	}
	return Payload{
		Version:           w.Version,
		PeerID:            w.PeerID,
		DisplayName:       w.DisplayName,
		IdentityPublicKey: pk,
		LANPort:           w.LANPort,
		Nonce:             nonce,
		LANAddrs:          w.LANAddrs,
	}, nil
}

// DeriveCode computes the 6-digit confirmation code from the shared nonce
// and both peer-ids. It is deterministic and order-independent is NOT
// assumed — callers on both sides must pass (nonce, initiator_id,
// responder_id) in the same order.
func DeriveCode(nonce []byte, peerA, peerB string) string {
	h := blake2b.Sum256(append(append(append([]byte{}, nonce...), peerA...), peerB...))
	code := binary.LittleEndian.Uint32(h[:4]) % 1_000_000
	return fmt.Sprintf("%06d", code)
}

// Finalize verifies that the initiator's and responder's payloads belong
// to the same pairing session (matching nonce) and emits the two
// TrustRecords ready to persist: initiatorRecord pins the initiator's
// identity (save this on the responder's device) and responderRecord pins
// the responder's identity (save this on the initiator's device).
func Finalize(initQR, respQR Payload) (initiatorRecord, responderRecord trust.Record, err error) {
	if len(initQR.Nonce) != len(respQR.Nonce) || string(initQR.Nonce) != string(respQR.Nonce) {
		return trust.Record{}, trust.Record{}, ErrNonceMismatch
	}

	now := time.Now()
	initiatorRecord = trust.Record{
		PeerID:            initQR.PeerID,
		IdentityPublicKey: initQR.IdentityPublicKey,
		DisplayName:       initQR.DisplayName,
		CreatedAt:         now,
	}
	responderRecord = trust.Record{
		PeerID:            respQR.PeerID,
		IdentityPublicKey: respQR.IdentityPublicKey,
		DisplayName:       respQR.DisplayName,
		CreatedAt:         now,
	}
	return initiatorRecord, responderRecord, nil
}
