// Package identity manages the long-term Ed25519 signature keypair that
// anchors a node's peer-id and every handshake it performs.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"
)

// Identity wraps a node's signing key. It is immutable for the lifetime of
// the keypair and safe to share by reference across sessions.
type Identity struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
	peerID  string
}

// Generate creates a fresh signature keypair from a cryptographic RNG.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate: %w", err)
	}
	return &Identity{public: pub, private: priv, peerID: PeerID(pub)}, nil
}

// PublicKey returns the raw 32-byte public key.
func (id *Identity) PublicKey() ed25519.PublicKey { return id.public }

// PeerID returns the hex-encoded peer-id derived from the public key.
func (id *Identity) PeerID() string { return id.peerID }

// Sign returns a 64-byte detached signature over msg.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.private, msg)
}

// PeerID derives the peer-id (lowercase hex of BLAKE2b-256 of the public
// key) for an arbitrary raw public key. It is a pure function so it can be
// applied to a remote peer's presented key during handshake verification.
func PeerID(publicKey []byte) string {
	sum := blake2b.Sum256(publicKey)
	return hex.EncodeToString(sum[:])
}

// Verify checks sig over msg against publicKey. It never panics on
// malformed key bytes; verification simply fails (ed25519.Verify only
// panics on a malformed public key length, which is checked first).
func Verify(msg, sig, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, msg, sig)
}

// persistedIdentity is the on-disk shape: the 32-byte seed, base64-encoded.
type persistedIdentity struct {
	SigningKeyB64 string `json:"signing_key_b64"`
}

// Load reads an Identity from path, or creates and persists a fresh one if
// the file does not exist.
func Load(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		id, genErr := Generate()
		if genErr != nil {
			return nil, genErr
		}
		if saveErr := id.Save(path); saveErr != nil {
			return nil, saveErr
		}
		return id, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: load %s: %w", path, err)
	}

	var p persistedIdentity
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("identity: parse %s: %w", path, err)
	}
	seed, err := base64.StdEncoding.DecodeString(p.SigningKeyB64)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: malformed seed in %s", path)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{public: pub, private: priv, peerID: PeerID(pub)}, nil
}

// Save persists only the signing-key seed to path; the public key and
// peer-id are always re-derived on load.
func (id *Identity) Save(path string) error {
	seed := id.private.Seed()
	p := persistedIdentity{SigningKeyB64: base64.StdEncoding.EncodeToString(seed)}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("identity: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("identity: save %s: %w", path, err)
	}
	return nil
}
