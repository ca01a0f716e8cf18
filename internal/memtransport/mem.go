// Package memtransport provides an in-memory duplex Connection for tests
// that exercise the session and mesh layers without a real network,
// grounded in the original project's in-memory test transport.
package memtransport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/openclipboard/meshd/internal/netio"
	"github.com/openclipboard/meshd/internal/protocol"
)

// conn is a netio.Connection backed by net.Pipe, carrying length-delimited
// frames the same way nettransport does, so both share exactly the same
// wire discipline even though this one never touches a socket.
type conn struct {
	pipe   net.Conn
	remote string

	mu     sync.Mutex
	closed bool
}

// Pipe returns a connected pair of in-memory Connections, as if one had
// dialed the other.
func Pipe() (dialer, acceptor netio.Connection) {
	a, b := net.Pipe()
	return &conn{pipe: a, remote: "mem-acceptor"}, &conn{pipe: b, remote: "mem-dialer"}
}

func (c *conn) Send(f protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("memtransport: send on closed connection")
	}
	body := f.Encode()
	prefix := []byte{byte(len(body) >> 24), byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	if _, err := c.pipe.Write(prefix); err != nil {
		return fmt.Errorf("memtransport: write prefix: %w", err)
	}
	if _, err := c.pipe.Write(body); err != nil {
		return fmt.Errorf("memtransport: write frame: %w", err)
	}
	return nil
}

func (c *conn) Recv() (protocol.Frame, error) {
	prefix := make([]byte, 4)
	if err := readFull(c.pipe, prefix); err != nil {
		return protocol.Frame{}, fmt.Errorf("memtransport: read prefix: %w", err)
	}
	n := int(prefix[0])<<24 | int(prefix[1])<<16 | int(prefix[2])<<8 | int(prefix[3])
	if n > protocol.MaxPayloadSize+protocol.HeaderSize {
		return protocol.Frame{}, protocol.ErrPayloadTooLarge
	}
	body := make([]byte, n)
	if err := readFull(c.pipe, body); err != nil {
		return protocol.Frame{}, fmt.Errorf("memtransport: read frame: %w", err)
	}
	return protocol.DecodeFrame(body)
}

func readFull(r net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.pipe.Close()
}

func (c *conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) RemoteAddr() string { return c.remote }
