// Package nettransport is the reference TCP implementation of the
// netio.Transport/Listener/Connection capability interfaces: a real
// runnable stand-in for the QUIC-like transport the core specification
// assumes external.
package nettransport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/openclipboard/meshd/internal/netio"
	"github.com/openclipboard/meshd/internal/protocol"
)

// lengthPrefixSize is the 4-byte big-endian frame-length prefix that
// precedes every serialized Frame on the byte-stream wire (§6).
const lengthPrefixSize = 4

// conn adapts a net.Conn into netio.Connection, applying the
// length-prefix + frame-header framing described in §4.1/§6.
type conn struct {
	nc net.Conn
	br *bufio.Reader

	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex
}

// Wrap adapts an already-established net.Conn.
func Wrap(nc net.Conn) netio.Connection {
	return &conn{nc: nc, br: bufio.NewReaderSize(nc, 64*1024)}
}

func (c *conn) Send(f protocol.Frame) error {
	body := f.Encode()

	prefix := make([]byte, lengthPrefixSize)
	binary.BigEndian.PutUint32(prefix, uint32(len(body)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(prefix); err != nil {
		return fmt.Errorf("nettransport: write length prefix: %w", err)
	}
	if _, err := c.nc.Write(body); err != nil {
		return fmt.Errorf("nettransport: write frame: %w", err)
	}
	return nil
}

func (c *conn) Recv() (protocol.Frame, error) {
	prefix := make([]byte, lengthPrefixSize)
	if _, err := fillBuf(c.br, prefix); err != nil {
		return protocol.Frame{}, fmt.Errorf("nettransport: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix)
	if n > protocol.MaxPayloadSize+protocol.HeaderSize {
		return protocol.Frame{}, protocol.ErrPayloadTooLarge
	}

	body := make([]byte, n)
	if _, err := fillBuf(c.br, body); err != nil {
		return protocol.Frame{}, fmt.Errorf("nettransport: read frame: %w", err)
	}
	return protocol.DecodeFrame(body)
}

func fillBuf(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *conn) Close() error {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()
	return c.nc.Close()
}

func (c *conn) IsClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

func (c *conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

// Transport dials plain TCP connections.
type Transport struct{}

func (Transport) Connect(address string) (netio.Connection, error) {
	nc, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("nettransport: connect %s: %w", address, err)
	}
	return Wrap(nc), nil
}

// Listener accepts plain TCP connections.
type Listener struct {
	ln net.Listener
}

// Listen binds a TCP listener on address ("host:port"; an empty host
// binds all interfaces).
func Listen(address string) (*Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("nettransport: listen %s: %w", address, err)
	}
	return &Listener{ln: ln}, nil
}

func (l *Listener) Accept() (netio.Connection, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("nettransport: accept: %w", err)
	}
	return Wrap(nc), nil
}

func (l *Listener) Close() error  { return l.ln.Close() }
func (l *Listener) Addr() string { return l.ln.Addr().String() }
