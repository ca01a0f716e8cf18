// Package trust is the persistent pinned peer-identity store: once a
// peer-id is associated with a public key (via pairing), the handshake
// refuses to accept a different key under the same peer-id without
// re-pairing.
package trust

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record pins one remote peer's identity. Created by pairing finalize;
// never mutated in place — Save replaces the record for peer_id wholesale.
type Record struct {
	PeerID            string
	IdentityPublicKey []byte
	DisplayName       string
	CreatedAt         time.Time
}

// persistedRecord is the on-disk JSON shape for one Record.
type persistedRecord struct {
	PeerID      string    `json:"peer_id"`
	IdentityPK  string    `json:"identity_pk"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is a mutex-guarded, JSON-file-backed map of peer-id to Record.
// Every mutation flushes to disk before returning, so concurrent readers
// observe writes atomically with respect to the lock.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]Record
}

// Open loads an existing trust file, or starts empty if path does not
// exist yet (the file is created on the first Save).
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]Record)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trust: open %s: %w", path, err)
	}

	var persisted []persistedRecord
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("trust: parse %s: %w", path, err)
	}
	for _, p := range persisted {
		pk, err := base64.StdEncoding.DecodeString(p.IdentityPK)
		if err != nil {
			return nil, fmt.Errorf("trust: malformed key for %s: %w", p.PeerID, err)
		}
		s.records[p.PeerID] = Record{
			PeerID:            p.PeerID,
			IdentityPublicKey: pk,
			DisplayName:       p.DisplayName,
			CreatedAt:         p.CreatedAt,
		}
	}
	return s, nil
}

// Save upserts r by PeerID and flushes to disk. Saving the same record
// twice leaves the same observable state as a single save.
func (s *Store) Save(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.PeerID] = r
	return s.flushLocked()
}

// Get returns the record for peerID, if any.
func (s *Store) Get(peerID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[peerID]
	return r, ok
}

// IsTrusted is a convenience wrapper around Get.
func (s *Store) IsTrusted(peerID string) bool {
	_, ok := s.Get(peerID)
	return ok
}

// List returns a snapshot of every trusted record.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// Remove deletes peerID's record, reporting whether one existed.
func (s *Store) Remove(peerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[peerID]; !ok {
		return false, nil
	}
	delete(s.records, peerID)
	if err := s.flushLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// flushLocked writes every record to s.path. Callers must hold s.mu.
func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil // in-memory only, used by tests
	}
	persisted := make([]persistedRecord, 0, len(s.records))
	for _, r := range s.records {
		persisted = append(persisted, persistedRecord{
			PeerID:      r.PeerID,
			IdentityPK:  base64.StdEncoding.EncodeToString(r.IdentityPublicKey),
			DisplayName: r.DisplayName,
			CreatedAt:   r.CreatedAt,
		})
	}
	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("trust: encode: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("trust: flush %s: %w", s.path, err)
	}
	return nil
}
