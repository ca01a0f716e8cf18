// Package netio defines the capability interfaces the session and mesh
// layers require from the concrete byte-stream transport, which is
// otherwise out of scope for this module (a QUIC-like transport is assumed
// external in production; nettransport and memtransport provide two
// concrete implementations for running and testing the mesh end to end).
package netio

import "github.com/openclipboard/meshd/internal/protocol"

// Connection is an ordered, reliable, bidirectional byte-stream carrying
// Frames. Send may be called concurrently with itself (the implementation
// must serialize writes internally); Recv is single-consumer.
type Connection interface {
	Send(f protocol.Frame) error
	Recv() (protocol.Frame, error)
	Close() error
	IsClosed() bool
	RemoteAddr() string
}

// Transport dials out to a remote address, producing a Connection.
type Transport interface {
	Connect(address string) (Connection, error)
}

// Listener accepts inbound Connections.
type Listener interface {
	Accept() (Connection, error)
	Close() error
	Addr() string
}
