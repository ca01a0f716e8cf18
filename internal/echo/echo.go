// Package echo breaks the local-poll/remote-write feedback loop: when a
// peer's clipboard text is applied locally, the next local clipboard poll
// would otherwise see it and rebroadcast it right back.
package echo

import "sync"

// Suppressor is a bounded FIFO of recently-applied remote texts.
type Suppressor struct {
	mu       sync.Mutex
	capacity int
	recent   []string
}

// New returns a Suppressor clamped to a minimum capacity of 1.
func New(capacity int) *Suppressor {
	if capacity < 1 {
		capacity = 1
	}
	return &Suppressor{capacity: capacity}
}

// NoteRemoteWrite appends text unless it equals the most recently noted
// entry (consecutive-dedup), evicting the oldest entry past capacity.
func (s *Suppressor) NoteRemoteWrite(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.recent) > 0 && s.recent[len(s.recent)-1] == text {
		return
	}
	s.recent = append(s.recent, text)
	if len(s.recent) > s.capacity {
		s.recent = s.recent[len(s.recent)-s.capacity:]
	}
}

// ShouldIgnoreLocalChange reports whether text appears anywhere in the
// suppression window.
func (s *Suppressor) ShouldIgnoreLocalChange(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recent {
		if r == text {
			return true
		}
	}
	return false
}
