//go:build darwin

package clip

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa
// #import <Cocoa/Cocoa.h>
//
// NSInteger meshd_changeCount() {
//     return [[NSPasteboard generalPasteboard] changeCount];
// }
import "C"

import (
	"log/slog"
	"time"

	"golang.design/x/clipboard"
)

const darwinPollInterval = 50 * time.Millisecond

type darwinProvider struct {
	lastChange C.NSInteger
	watchCh    chan struct{}
	done       chan struct{}
}

// New returns the macOS clipboard provider, backed by NSPasteboard's
// changeCount rather than polling content bytes. clipboard.Init is called
// here, not in init(), so CLI subcommands that never touch the clipboard
// don't pay the probe cost or log spurious warnings on headless builds.
func New() Provider {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return newHeadless()
	}
	p := &darwinProvider{
		lastChange: C.meshd_changeCount(),
		watchCh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go p.poll()
	return p
}

func (p *darwinProvider) poll() {
	t := time.NewTicker(darwinPollInterval)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			cc := C.meshd_changeCount()
			if cc != p.lastChange {
				p.lastChange = cc
				select {
				case p.watchCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (p *darwinProvider) Read() (Content, error) {
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		return Content{Kind: Text, Text: string(text), MIME: "text/plain"}, nil
	}
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		return Content{Kind: Image, MIME: "image/png", Image: img}, nil
	}
	return Content{Kind: Empty}, nil
}

func (p *darwinProvider) Write(c Content) error {
	switch c.Kind {
	case Text:
		clipboard.Write(clipboard.FmtText, []byte(c.Text))
	case Image:
		clipboard.Write(clipboard.FmtImage, c.Image)
	}
	return nil
}

func (p *darwinProvider) Watch() <-chan struct{} { return p.watchCh }
func (p *darwinProvider) Close()                 { close(p.done) }
