// Package discovery defines the peer-discovery capability interface and a
// trust-store-backed reference implementation suitable for single-LAN
// testing. Real mDNS/Bonjour discovery is an external collaborator per the
// core specification and is not implemented here.
package discovery

import (
	"context"

	"github.com/openclipboard/meshd/internal/trust"
)

// SelfInfo is what a node advertises about itself when discovery starts.
type SelfInfo struct {
	PeerID  string
	Name    string
	Address string
}

// PeerInfo is what Scan/the event stream report about a discovered peer.
type PeerInfo struct {
	PeerID  string
	Name    string
	Address string
}

// Discovery is the capability interface the mesh orchestrator's dial task
// polls for candidate peers.
type Discovery interface {
	Start(ctx context.Context, self SelfInfo) (<-chan PeerInfo, error)
	Scan(ctx context.Context) ([]PeerInfo, error)
	Stop()
}

// Static replays every trusted peer's last-known address on every Scan. It
// is the reference implementation used for single-host tests and for LANs
// where addresses are configured out of band rather than discovered via
// mDNS.
type Static struct {
	store     *trust.Store
	addresses map[string]string // peer_id -> address, updated externally
}

// NewStatic returns a Static discovery backed by store. addresses seeds the
// known peer_id->address map; callers update it (e.g. from a config file or
// prior successful connections) as addresses become known.
func NewStatic(store *trust.Store, addresses map[string]string) *Static {
	if addresses == nil {
		addresses = make(map[string]string)
	}
	return &Static{store: store, addresses: addresses}
}

func (s *Static) Start(ctx context.Context, _ SelfInfo) (<-chan PeerInfo, error) {
	ch := make(chan PeerInfo)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (s *Static) Scan(ctx context.Context) ([]PeerInfo, error) {
	var out []PeerInfo
	for _, r := range s.store.List() {
		addr, ok := s.addresses[r.PeerID]
		if !ok {
			continue
		}
		out = append(out, PeerInfo{PeerID: r.PeerID, Name: r.DisplayName, Address: addr})
	}
	return out, nil
}

func (s *Static) Stop() {}

// SetAddress records addr as peerID's known address, for Scan to surface.
func (s *Static) SetAddress(peerID, addr string) {
	s.addresses[peerID] = addr
}
