package mesh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openclipboard/meshd/internal/clip"
	"github.com/openclipboard/meshd/internal/discovery"
	"github.com/openclipboard/meshd/internal/echo"
	"github.com/openclipboard/meshd/internal/history"
	"github.com/openclipboard/meshd/internal/identity"
	"github.com/openclipboard/meshd/internal/nettransport"
	"github.com/openclipboard/meshd/internal/registry"
	"github.com/openclipboard/meshd/internal/trust"
)

// fakeClip is an in-memory clip.Provider; the mesh tests drive fan-out via
// Orchestrator.Broadcast directly rather than a real clipboard poll, so
// Watch is never consulted.
type fakeClip struct {
	mu      sync.Mutex
	content clip.Content
	watchCh chan struct{}
}

func newFakeClip() *fakeClip { return &fakeClip{watchCh: make(chan struct{})} }

func (f *fakeClip) Read() (clip.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content, nil
}
func (f *fakeClip) Write(c clip.Content) error {
	f.mu.Lock()
	f.content = c
	f.mu.Unlock()
	return nil
}
func (f *fakeClip) Watch() <-chan struct{} { return f.watchCh }
func (f *fakeClip) Close()                 {}

type recvEvent struct {
	peerID string
	text   string
}

// node bundles one test mesh participant: its identity, trust store,
// discovery, and Orchestrator, plus channels observing its callbacks.
type node struct {
	id   *identity.Identity
	store *trust.Store
	disc *discovery.Static
	orch *Orchestrator
	addr string

	recv         chan recvEvent
	connected    chan string
	disconnected chan string
}

func newNode(t *testing.T, id *identity.Identity, bindAddr string) *node {
	t.Helper()
	ln, err := nettransport.Listen(bindAddr)
	if err != nil {
		t.Fatalf("nettransport.Listen: %v", err)
	}
	store, err := trust.Open("")
	if err != nil {
		t.Fatalf("trust.Open: %v", err)
	}
	disc := discovery.NewStatic(store, nil)

	recv := make(chan recvEvent, 16)
	connected := make(chan string, 16)
	disconnected := make(chan string, 16)

	o := New(Config{
		Identity:   id,
		Listener:   ln,
		Transport:  nettransport.Transport{},
		Discovery:  disc,
		TrustStore: store,
		Clipboard:  newFakeClip(),
		Registry:   registry.New(nil),
		History:    history.New(64),
		Echo:       echo.New(16),

		DialScanInterval: 30 * time.Millisecond,
		InitialBackoff:   30 * time.Millisecond,
		MaxBackoff:       150 * time.Millisecond,

		Callbacks: Callbacks{
			OnClipboardText:    func(peerID, text string) { recv <- recvEvent{peerID, text} },
			OnPeerConnected:    func(peerID string) { connected <- peerID },
			OnPeerDisconnected: func(peerID string) { disconnected <- peerID },
		},
	})

	return &node{
		id: id, store: store, disc: disc, orch: o, addr: ln.Addr(),
		recv: recv, connected: connected, disconnected: disconnected,
	}
}

func mustIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id
}

// trustPair makes a and b mutually trust each other and know each other's
// address, the precondition for the dial/accept tie-break to run.
func trustPair(t *testing.T, a, b *node) {
	t.Helper()
	if err := a.store.Save(trust.Record{PeerID: b.id.PeerID(), IdentityPublicKey: b.id.PublicKey(), DisplayName: "b"}); err != nil {
		t.Fatalf("a.store.Save: %v", err)
	}
	if err := b.store.Save(trust.Record{PeerID: a.id.PeerID(), IdentityPublicKey: a.id.PublicKey(), DisplayName: "a"}); err != nil {
		t.Fatalf("b.store.Save: %v", err)
	}
	a.disc.SetAddress(b.id.PeerID(), b.addr)
	b.disc.SetAddress(a.id.PeerID(), a.addr)
}

func waitForPeerCount(t *testing.T, o *Orchestrator, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(o.ConnectedPeerIDs()) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d connected peer(s), currently %v", want, o.ConnectedPeerIDs())
}

func waitClipboardText(t *testing.T, ch <-chan recvEvent, timeout time.Duration) recvEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for clipboard text")
		return recvEvent{}
	}
}

// TestMeshThreeNodeFanOut is the core specification's scenario 5: three
// mutually trusting nodes form a full mesh, and a broadcast from one node
// reaches both others but never echoes back to the sender.
func TestMeshThreeNodeFanOut(t *testing.T) {
	a := newNode(t, mustIdentity(t), "127.0.0.1:0")
	b := newNode(t, mustIdentity(t), "127.0.0.1:0")
	c := newNode(t, mustIdentity(t), "127.0.0.1:0")

	trustPair(t, a, b)
	trustPair(t, a, c)
	trustPair(t, b, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.orch.Run(ctx)
	go b.orch.Run(ctx)
	go c.orch.Run(ctx)

	waitForPeerCount(t, a.orch, 2, 3*time.Second)
	waitForPeerCount(t, b.orch, 2, 3*time.Second)
	waitForPeerCount(t, c.orch, 2, 3*time.Second)

	a.orch.Broadcast("mesh-hello")

	bEv := waitClipboardText(t, b.recv, 3*time.Second)
	if bEv.peerID != a.id.PeerID() || bEv.text != "mesh-hello" {
		t.Fatalf("b got %+v, want peer=%s text=mesh-hello", bEv, a.id.PeerID())
	}
	cEv := waitClipboardText(t, c.recv, 3*time.Second)
	if cEv.peerID != a.id.PeerID() || cEv.text != "mesh-hello" {
		t.Fatalf("c got %+v, want peer=%s text=mesh-hello", cEv, a.id.PeerID())
	}

	select {
	case ev := <-a.recv:
		t.Fatalf("a should never receive its own broadcast, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestMeshTieBreakOnlySmallerDials runs two peers under the deterministic
// dial/accept split (only the lexicographically smaller peer-id dials) and
// asserts that exactly one connection forms on each side and carries a
// broadcast from the smaller peer to the larger. Which side dialed is not
// observed directly.
func TestMeshTieBreakOnlySmallerDials(t *testing.T) {
	n1 := newNode(t, mustIdentity(t), "127.0.0.1:0")
	n2 := newNode(t, mustIdentity(t), "127.0.0.1:0")
	smaller, larger := n1, n2
	if smaller.id.PeerID() > larger.id.PeerID() {
		smaller, larger = n2, n1
	}
	trustPair(t, smaller, larger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go smaller.orch.Run(ctx)
	go larger.orch.Run(ctx)

	waitForPeerCount(t, smaller.orch, 1, 3*time.Second)
	waitForPeerCount(t, larger.orch, 1, 3*time.Second)

	smaller.orch.Broadcast("from-smaller")
	ev := waitClipboardText(t, larger.recv, 3*time.Second)
	if ev.text != "from-smaller" || ev.peerID != smaller.id.PeerID() {
		t.Fatalf("larger got %+v, want peer=%s text=from-smaller", ev, smaller.id.PeerID())
	}
}

// TestMeshReconnectAfterRemoteRestart is scenario 6: after the acceptor
// goes away, the dialer's connect_loop keeps retrying at its backoff, and
// reconnects once the acceptor restarts on the same address with the same
// identity.
func TestMeshReconnectAfterRemoteRestart(t *testing.T) {
	dialerID := mustIdentity(t)
	acceptorID := mustIdentity(t)
	// Force dialerID to sort lower so it is deterministically the dialer.
	for dialerID.PeerID() > acceptorID.PeerID() {
		dialerID, acceptorID = acceptorID, dialerID
		var err error
		dialerID, err = identity.Generate()
		if err != nil {
			t.Fatalf("identity.Generate: %v", err)
		}
		acceptorID, err = identity.Generate()
		if err != nil {
			t.Fatalf("identity.Generate: %v", err)
		}
	}

	dialer := newNode(t, dialerID, "127.0.0.1:0")
	acceptorCtx, acceptorCancel := context.WithCancel(context.Background())
	acceptor := newNode(t, acceptorID, "127.0.0.1:0")
	trustPair(t, dialer, acceptor)

	dialerCtx, dialerCancel := context.WithCancel(context.Background())
	defer dialerCancel()
	go dialer.orch.Run(dialerCtx)
	go acceptor.orch.Run(acceptorCtx)

	waitForPeerCount(t, dialer.orch, 1, 3*time.Second)

	acceptorCancel()
	waitForPeerCount(t, dialer.orch, 0, 3*time.Second)

	// Restart the acceptor with the same identity and trust store, bound to
	// the exact address the dialer already knows about.
	restarted := newNode(t, acceptorID, acceptor.addr)
	if err := restarted.store.Save(trust.Record{PeerID: dialerID.PeerID(), IdentityPublicKey: dialerID.PublicKey(), DisplayName: "dialer"}); err != nil {
		t.Fatalf("restarted.store.Save: %v", err)
	}
	restartCtx, restartCancel := context.WithCancel(context.Background())
	defer restartCancel()
	go restarted.orch.Run(restartCtx)

	waitForPeerCount(t, dialer.orch, 1, 6*time.Second)

	dialer.orch.Broadcast("after-restart")
	ev := waitClipboardText(t, restarted.recv, 3*time.Second)
	if ev.text != "after-restart" {
		t.Fatalf("restarted acceptor got %+v, want text=after-restart", ev)
	}
}

// TestMeshDuplicateInboundRejectedPostHandshake exercises the dedup half
// of the tie-break rule directly: a peer that is already registered must
// reject a second inbound connection from the same remote identity rather
// than replacing the live one.
func TestMeshDuplicateInboundRejectedPostHandshake(t *testing.T) {
	n1 := newNode(t, mustIdentity(t), "127.0.0.1:0")
	n2 := newNode(t, mustIdentity(t), "127.0.0.1:0")
	smaller, larger := n1, n2
	if smaller.id.PeerID() > larger.id.PeerID() {
		smaller, larger = n2, n1
	}
	trustPair(t, smaller, larger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go smaller.orch.Run(ctx)
	go larger.orch.Run(ctx)

	waitForPeerCount(t, smaller.orch, 1, 3*time.Second)
	waitForPeerCount(t, larger.orch, 1, 3*time.Second)

	// A second, independently-dialed connection from the smaller peer
	// should complete its handshake but be rejected as a duplicate once
	// handleInbound looks it up in the acceptor's peer map.
	conn, err := (nettransport.Transport{}).Connect(larger.addr)
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	extra := New(Config{
		Identity:   smaller.id,
		Transport:  nettransport.Transport{},
		TrustStore: smaller.store,
		Clipboard:  newFakeClip(),
		Registry:   registry.New(nil),
		History:    history.New(8),
		Echo:       echo.New(8),
	})
	_ = extra // only newSession is needed below
	sess := extra.newSession(conn)
	if _, err := sess.Handshake(context.Background()); err != nil {
		t.Fatalf("duplicate handshake: %v", err)
	}

	// The acceptor's peer count must remain 1: the duplicate connection is
	// closed rather than replacing the registered peer.
	waitForPeerCount(t, larger.orch, 1, 2*time.Second)
}
