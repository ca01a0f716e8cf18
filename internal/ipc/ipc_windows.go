//go:build windows

package ipc

import (
	"errors"
	"net"
)

// Windows named-pipe IPC is not implemented: it would require a dependency
// (github.com/microsoft/go-winio in the teacher) this module never wires in
// for any other component, so meshd falls back to reporting the control
// channel as unavailable on Windows rather than pulling in a single-purpose
// dependency for it.
var errWindowsIPCUnsupported = errors.New("ipc: control socket not implemented on windows")

func socketPath() string { return `\\.\pipe\meshd` }

func listenIPC(string) (net.Listener, error) {
	return nil, errWindowsIPCUnsupported
}

func dialIPC(string) (net.Conn, error) {
	return nil, errWindowsIPCUnsupported
}
