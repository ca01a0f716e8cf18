// Package control is the local JSON request/response protocol a running
// `meshd serve` process speaks over the Unix socket from internal/ipc, so
// the `meshd history` CLI sub-command can inspect a live daemon's in-memory
// state (`meshd trust` reads the trust file directly and does not use it). It plays the same role as the teacher's
// IPC-over-gRPC channel, adapted to plain JSON lines since this module
// drops the grpc/protobuf stack entirely (see DESIGN.md).
package control

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/openclipboard/meshd/internal/history"
	"github.com/openclipboard/meshd/internal/registry"
)

// Request is one control-channel query. Op selects the operation; the
// remaining fields are interpreted according to Op.
type Request struct {
	Op    string `json:"op"`              // "history" | "peers"
	Peer  string `json:"peer,omitempty"`  // history: filter by source peer, if set
	Limit int    `json:"limit,omitempty"` // history: max entries, 0 = no limit
}

// Response carries the result of one Request. Error is non-empty on failure;
// callers should check it before reading the other fields.
type Response struct {
	Error   string           `json:"error,omitempty"`
	Entries []history.Entry  `json:"entries,omitempty"`
	Peers   []registry.Entry `json:"peers,omitempty"`
}

// Server answers control-channel requests against a live daemon's History
// and Registry.
type Server struct {
	History  *history.History
	Registry *registry.Registry
}

// Serve accepts connections on ln until it returns an error (including
// ln.Close() from elsewhere), handling exactly one request per connection.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("control: accept: %w", err)
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = json.NewEncoder(conn).Encode(Response{Error: fmt.Sprintf("control: decode request: %v", err)})
		return
	}

	resp := s.dispatch(req)
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) dispatch(req Request) Response {
	switch req.Op {
	case "history":
		if req.Peer != "" {
			return Response{Entries: s.History.GetForPeer(req.Peer, req.Limit)}
		}
		return Response{Entries: s.History.GetRecent(req.Limit)}
	case "peers":
		return Response{Peers: s.Registry.ListAll()}
	default:
		return Response{Error: fmt.Sprintf("control: unknown op %q", req.Op)}
	}
}

// Query opens a connection to the control socket with dial (for example
// internal/ipc's Dial) and returns the single Response to req.
func Query(dial func() (net.Conn, error), req Request) (Response, error) {
	conn, err := dial()
	if err != nil {
		return Response{}, fmt.Errorf("control: dial: %w", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("control: encode request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("control: decode response: %w", err)
	}
	if resp.Error != "" {
		return Response{}, fmt.Errorf("control: %s", resp.Error)
	}
	return resp, nil
}
