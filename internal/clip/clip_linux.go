//go:build linux

package clip

import (
	"bytes"
	"log/slog"
	"time"

	"golang.design/x/clipboard"
)

const pollInterval = 50 * time.Millisecond

type linuxProvider struct {
	watchCh  chan struct{}
	done     chan struct{}
	lastText []byte
	lastImg  []byte
}

// New returns the Linux clipboard provider, or a headless no-op fallback if
// the display environment is unavailable (e.g. a headless server without
// X11 or Wayland). clipboard.Init is called here, not in init(), so CLI
// subcommands that never touch the clipboard don't pay the probe cost.
func New() Provider {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return newHeadless()
	}
	p := &linuxProvider{
		watchCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.poll()
	return p
}

func (p *linuxProvider) poll() {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			text := clipboard.Read(clipboard.FmtText)
			img := clipboard.Read(clipboard.FmtImage)
			if !bytes.Equal(text, p.lastText) || !bytes.Equal(img, p.lastImg) {
				p.lastText = text
				p.lastImg = img
				select {
				case p.watchCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (p *linuxProvider) Read() (Content, error) {
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		return Content{Kind: Text, Text: string(text), MIME: "text/plain"}, nil
	}
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		return Content{Kind: Image, MIME: "image/png", Image: img}, nil
	}
	return Content{Kind: Empty}, nil
}

func (p *linuxProvider) Write(c Content) error {
	switch c.Kind {
	case Text:
		clipboard.Write(clipboard.FmtText, []byte(c.Text))
	case Image:
		clipboard.Write(clipboard.FmtImage, c.Image)
	}
	return nil
}

func (p *linuxProvider) Watch() <-chan struct{} { return p.watchCh }
func (p *linuxProvider) Close()                 { close(p.done) }
