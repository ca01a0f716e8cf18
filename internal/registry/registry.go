// Package registry is the runtime online/offline/address table for every
// trusted peer, seeded once from the trust store at mesh startup.
package registry

import (
	"sync"

	"github.com/openclipboard/meshd/internal/trust"
)

// Status is a peer's current connectivity state.
type Status int

const (
	Offline Status = iota
	Online
)

// Entry is one row in the registry.
type Entry struct {
	PeerID      string
	DisplayName string
	LastAddress string
	Status      Status
}

// Registry is guarded by a single reader-preferring lock (sync.RWMutex), so
// snapshot reads (Get, ListOnline, ListAll) run concurrently with each other.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New seeds the registry from the given trusted peers, every one starting
// Offline.
func New(trusted []Entry) *Registry {
	r := &Registry{entries: make(map[string]*Entry, len(trusted))}
	for _, e := range trusted {
		e.Status = Offline
		cp := e
		r.entries[e.PeerID] = &cp
	}
	return r
}

// NewFromTrustStore seeds a Registry from every record currently in store,
// the mesh startup path described in §4.9: every trusted peer begins
// Offline until a handshake marks it Online.
func NewFromTrustStore(store *trust.Store) *Registry {
	records := store.List()
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{PeerID: r.PeerID, DisplayName: r.DisplayName})
	}
	return New(entries)
}

// SetOnline transitions an existing entry to Online. A peer-id absent from
// the registry is silently ignored — the trust store, not the registry, is
// authoritative over which peers exist.
func (r *Registry) SetOnline(peerID string, lastAddress string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[peerID]
	if !ok {
		return
	}
	e.Status = Online
	if lastAddress != "" {
		e.LastAddress = lastAddress
	}
}

// SetOffline transitions an existing entry to Offline. Missing peer-ids
// are silently ignored.
func (r *Registry) SetOffline(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[peerID]; ok {
		e.Status = Offline
	}
}

// Get returns a snapshot of one entry.
func (r *Registry) Get(peerID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[peerID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ListOnline returns a snapshot of every Online entry.
func (r *Registry) ListOnline() []Entry {
	return r.list(func(e *Entry) bool { return e.Status == Online })
}

// ListAll returns a snapshot of every entry.
func (r *Registry) ListAll() []Entry {
	return r.list(func(*Entry) bool { return true })
}

func (r *Registry) list(keep func(*Entry) bool) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, *e)
		}
	}
	return out
}
