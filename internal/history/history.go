// Package history is the bounded, append-only log of clipboard changes,
// the one record a host application shows the user as "recent clips".
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalSource is the reserved source_peer sentinel for locally-originated
// entries. Peer-ids are 64-char hex strings and can never collide with it.
const LocalSource = "local"

// Entry is one recorded clipboard change.
type Entry struct {
	ID          string
	Content     string
	SourcePeer  string
	TimestampMs int64
}

// History is a mutex-guarded bounded FIFO. Entries past capacity are
// evicted oldest-first and are unrecoverable.
type History struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

// New returns a History clamped to a minimum capacity of 1.
func New(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{capacity: capacity}
}

// Record appends a new entry and returns its generated id.
func (h *History) Record(content, sourcePeer string) string {
	id := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, Entry{
		ID:          id,
		Content:     content,
		SourcePeer:  sourcePeer,
		TimestampMs: time.Now().UnixMilli(),
	})
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
	return id
}

// GetRecent returns up to limit entries, newest first.
func (h *History) GetRecent(limit int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return newestFirst(h.entries, limit)
}

// GetForPeer returns up to limit entries from sourcePeer, newest first.
func (h *History) GetForPeer(sourcePeer string, limit int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	var filtered []Entry
	for _, e := range h.entries {
		if e.SourcePeer == sourcePeer {
			filtered = append(filtered, e)
		}
	}
	return newestFirst(filtered, limit)
}

// GetByID performs a linear scan for id; it returns false once the entry
// has been evicted.
func (h *History) GetByID(id string) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// newestFirst reverses entries and clips to limit. Callers must hold the lock.
func newestFirst(entries []Entry, limit int) []Entry {
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]Entry, limit)
	for i := 0; i < limit; i++ {
		out[i] = entries[len(entries)-1-i]
	}
	return out
}
