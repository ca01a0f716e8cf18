// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the concrete implementation:
//
//	clip_linux.go    — Linux via golang.design/x/clipboard, polling only
//	clip_darwin.go   — macOS via golang.design/x/clipboard, polling
//	clip_windows.go  — Windows via golang.design/x/clipboard, polling
//	clip_headless.go — headless/container stub, used as a fallback when the
//	                   display backend fails to initialize
package clip

// Content is the tagged clipboard payload a Provider reads and writes.
// Exactly one of Text or Image is meaningful, selected by Kind.
type Content struct {
	Kind   Kind
	Text   string
	MIME   string
	Width  int
	Height int
	Image  []byte
}

// Kind discriminates the clipboard content variant.
type Kind int

const (
	Empty Kind = iota
	Text
	Image
)

// Provider is the capability interface the watcher and session use to
// read and write the local OS clipboard.
type Provider interface {
	// Read returns the current clipboard content. An unreadable clipboard
	// (contention, unsupported format) returns Content{Kind: Empty} and a
	// non-nil error; callers are expected to skip the iteration rather than
	// treat this as fatal.
	Read() (Content, error)

	// Write sets the clipboard content.
	Write(Content) error

	// Watch returns a channel that receives a signal whenever the
	// clipboard might have changed. The channel is never closed. Callers
	// should call Read() on receipt.
	Watch() <-chan struct{}

	// Close releases resources held by the backend.
	Close()
}
