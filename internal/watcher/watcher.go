// Package watcher runs the cooperative clipboard-change poll loop that
// drives the mesh orchestrator's local-change path.
package watcher

import (
	"context"
	"time"

	"github.com/openclipboard/meshd/internal/clip"
	"github.com/openclipboard/meshd/internal/echo"
)

// DefaultPollInterval matches the 50ms cadence used across the mesh, a
// tighter loop than the upstream project's 250ms poll.
const DefaultPollInterval = 50 * time.Millisecond

// Callback is invoked once per observed, non-suppressed clipboard change.
type Callback func(clip.Content)

// Watcher polls a clip.Provider and reports genuine, non-echoed changes.
type Watcher struct {
	provider     clip.Provider
	suppressor   *echo.Suppressor
	pollInterval time.Duration
	onChange     Callback

	lastText string
	lastKind clip.Kind
}

// New builds a Watcher. suppressor may be nil, in which case no text is
// ever treated as an echo.
func New(provider clip.Provider, suppressor *echo.Suppressor, onChange Callback) *Watcher {
	return &Watcher{
		provider:     provider,
		suppressor:   suppressor,
		pollInterval: DefaultPollInterval,
		onChange:     onChange,
		lastKind:     clip.Empty,
	}
}

// WithPollInterval overrides the default poll cadence, for tests.
func (w *Watcher) WithPollInterval(d time.Duration) *Watcher {
	w.pollInterval = d
	return w
}

// Run blocks, polling until ctx is canceled. It stops promptly, bounded by
// one iteration's latency.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick runs exactly one poll iteration: read, dedup-against-last-seen,
// echo-check, emit. Tick exposes it for deterministic single-step testing.
func (w *Watcher) tick() {
	content, err := w.provider.Read()
	if err != nil {
		return
	}
	if content.Kind == clip.Empty {
		return
	}
	if content.Kind == w.lastKind && content.Kind == clip.Text && content.Text == w.lastText {
		return
	}

	if content.Kind == clip.Text {
		if w.suppressor != nil && w.suppressor.ShouldIgnoreLocalChange(content.Text) {
			w.lastKind = content.Kind
			w.lastText = content.Text
			return
		}
		w.lastText = content.Text
	}
	w.lastKind = content.Kind

	if w.onChange != nil {
		w.onChange(content)
	}
}

// Tick runs one poll iteration synchronously, for tests that don't want to
// drive the loop through a real ticker.
func (w *Watcher) Tick() { w.tick() }
