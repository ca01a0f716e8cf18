// Package ipc provides helpers for the local Unix-socket control channel a
// running `meshd serve` process exposes to the `meshd history` CLI
// sub-command, mirroring the teacher's local-daemon IPC socket used by
// copy/paste/status — adapted to the JSON control protocol in
// internal/control since this module carries no gRPC/protobuf stack.
package ipc

import (
	"net"
	"os"
	"runtime"
)

// SocketPath returns the platform-appropriate path for the control socket.
//
//   - Linux / macOS: $XDG_RUNTIME_DIR/meshd.sock or $TMPDIR/meshd.sock
//     (override with $MESHD_SOCKET)
//   - Windows: \\.\pipe\meshd (named pipe — not yet implemented)
func SocketPath() string {
	if s := os.Getenv("MESHD_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// IsRunning reports whether a meshd daemon appears to be listening on the
// control socket. It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := net.Dial("unix", SocketPath())
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates and returns a net.Listener on the control socket path,
// removing any stale socket file left behind by a previous crashed run.
func Listen() (net.Listener, error) {
	path := SocketPath()
	if runtime.GOOS != "windows" {
		_ = os.Remove(path)
	}
	return listenIPC(path)
}

// Dial connects to a running daemon's control socket.
func Dial() (net.Conn, error) {
	return dialIPC(SocketPath())
}
