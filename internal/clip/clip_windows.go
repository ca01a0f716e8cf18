//go:build windows

package clip

// #cgo LDFLAGS: -luser32
//
// #include <windows.h>
// #include <stdlib.h>
//
// static HWND meshd_create_listener_window();
// static void meshd_pump_messages(HWND hwnd, int* changed);
//
// static LRESULT CALLBACK meshd_wnd_proc(HWND hwnd, UINT msg, WPARAM wp, LPARAM lp) {
//     if (msg == WM_CLIPBOARDUPDATE) {
//         PostMessage(hwnd, WM_USER + 1, 0, 0);
//         return 0;
//     }
//     return DefWindowProc(hwnd, msg, wp, lp);
// }
//
// static HWND meshd_create_listener_window() {
//     WNDCLASS wc = {0};
//     wc.lpfnWndProc   = meshd_wnd_proc;
//     wc.hInstance     = GetModuleHandle(NULL);
//     wc.lpszClassName = "MeshdClipboard";
//     RegisterClass(&wc);
//     HWND hwnd = CreateWindowEx(0, "MeshdClipboard", NULL, 0,
//         0, 0, 0, 0, HWND_MESSAGE, NULL, GetModuleHandle(NULL), NULL);
//     AddClipboardFormatListener(hwnd);
//     return hwnd;
// }
//
// static void meshd_pump_messages(HWND hwnd, int* changed) {
//     MSG msg;
//     *changed = 0;
//     while (PeekMessage(&msg, hwnd, 0, 0, PM_REMOVE)) {
//         if (msg.message == WM_USER + 1) {
//             *changed = 1;
//         }
//         TranslateMessage(&msg);
//         DispatchMessage(&msg);
//     }
// }
import "C"

import (
	"log/slog"
	"time"

	"golang.design/x/clipboard"
)

func init() {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed", "err", err)
	}
}

type windowsProvider struct {
	hwnd    C.HWND
	watchCh chan struct{}
	done    chan struct{}
}

// New returns the Windows clipboard provider, driven by
// AddClipboardFormatListener rather than polling content bytes.
func New() Provider {
	hwnd := C.meshd_create_listener_window()
	p := &windowsProvider{
		hwnd:    hwnd,
		watchCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.pump()
	return p
}

func (p *windowsProvider) pump() {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			var changed C.int
			C.meshd_pump_messages(p.hwnd, &changed)
			if changed != 0 {
				select {
				case p.watchCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (p *windowsProvider) Read() (Content, error) {
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		return Content{Kind: Text, Text: string(text), MIME: "text/plain"}, nil
	}
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		return Content{Kind: Image, MIME: "image/png", Image: img}, nil
	}
	return Content{Kind: Empty}, nil
}

func (p *windowsProvider) Write(c Content) error {
	switch c.Kind {
	case Text:
		clipboard.Write(clipboard.FmtText, []byte(c.Text))
	case Image:
		clipboard.Write(clipboard.FmtImage, c.Image)
	}
	return nil
}

func (p *windowsProvider) Watch() <-chan struct{} { return p.watchCh }
func (p *windowsProvider) Close()                 { close(p.done) }
