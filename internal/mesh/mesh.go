// Package mesh implements the Mesh Orchestrator: the accept/dial loops,
// dial/accept tie-break deduplication, exponential-backoff reconnection,
// per-peer message loop, and clipboard fan-out that turn a handful of
// paired Sessions into a live peer-to-peer clipboard mesh.
//
// This is the largest single component in the core specification, and the
// one most directly grounded in the teacher's internal/hub (central
// register/unregister/broadcast) and internal/federation (exponential
// backoff reconnect loop) packages, restructured around symmetric
// dial/accept peers instead of a hub-and-spoke client/server split.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openclipboard/meshd/internal/clip"
	"github.com/openclipboard/meshd/internal/discovery"
	"github.com/openclipboard/meshd/internal/echo"
	"github.com/openclipboard/meshd/internal/history"
	"github.com/openclipboard/meshd/internal/identity"
	"github.com/openclipboard/meshd/internal/netio"
	"github.com/openclipboard/meshd/internal/protocol"
	"github.com/openclipboard/meshd/internal/registry"
	"github.com/openclipboard/meshd/internal/replay"
	"github.com/openclipboard/meshd/internal/session"
	"github.com/openclipboard/meshd/internal/trust"
	"github.com/openclipboard/meshd/internal/watcher"
)

// Default timing, per §4.12/§5 of the specification.
const (
	DefaultDialScanInterval = 300 * time.Millisecond
	DefaultInitialBackoff   = 200 * time.Millisecond
	DefaultMaxBackoff       = 5 * time.Second
	DefaultOutboundCapacity = 32
)

// ErrHistoryEntryNotFound is returned by RecallFromHistory when the given
// id has been evicted or never existed.
var ErrHistoryEntryNotFound = errors.New("mesh: history entry not found")

// Callbacks are the host application's hooks into mesh events. Any field
// left nil is simply not invoked.
type Callbacks struct {
	// OnPeerConnected fires after a peer completes handshake and is
	// registered in the peer map and Registry.
	OnPeerConnected func(peerID string)
	// OnPeerDisconnected fires when a peer's message loop exits (or its
	// inbound connection is rejected by the tie-break/duplicate rule).
	OnPeerDisconnected func(peerID string)
	// OnClipboardText fires for every ClipText received from a peer, after
	// it has been applied to the local clipboard and recorded in History.
	OnClipboardText func(peerID, text string)
	// OnMessage fires for every non-ClipText variant received from a peer
	// (Ping/Pong/ClipImage/File*), so the host can implement its own
	// file-transfer or liveness handling.
	OnMessage func(peerID string, msg protocol.Variant)
	// OnError reports discovery errors, handshake failures, and
	// backpressure drops. The mesh never panics on a single peer's
	// failure; this is the error-callback propagation path of §7.
	OnError func(err error)
}

// Config assembles everything an Orchestrator needs. Listener, Transport,
// and Discovery are the three external capability traits from §6; the
// rest are the shared stores described in §3's ownership rules.
type Config struct {
	Identity   *identity.Identity
	Listener   netio.Listener
	Transport  netio.Transport
	Discovery  discovery.Discovery
	TrustStore *trust.Store
	Replay     *replay.Protector
	Clipboard  clip.Provider
	Registry   *registry.Registry
	History    *history.History
	Echo       *echo.Suppressor
	Callbacks  Callbacks

	// PairingMode constructs every Session in pairing mode (accept unknown
	// peers at the trust gate; still verify signature + binding). `serve`
	// leaves it off, and the `pair` CLI flow does not run an Orchestrator.
	PairingMode bool
	// HardenTransport enables the optional post-handshake secretbox
	// hardening (§4.7a) on every Session this Orchestrator creates.
	HardenTransport bool
	// HandshakeTimeout overrides the Session default (5s) if non-zero.
	HandshakeTimeout time.Duration

	// MeshMode enables the local Clipboard Watcher: local changes are
	// recorded under history.LocalSource and fanned out to every peer.
	// Disabled, an Orchestrator still relays peer-to-peer but never reads
	// the local clipboard itself (used by tests that drive PeerHandles
	// directly).
	MeshMode bool

	// Overridable timing, defaulted below; present so tests can run the
	// mesh's loops on a much shorter cadence than production.
	DialScanInterval time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	OutboundCapacity int
}

// peerHandle is the shared mutable state one live connection exposes to
// the rest of the Orchestrator: a bounded outbound text channel and the
// Session that owns the underlying connection.
type peerHandle struct {
	peerID   string
	outbound chan string
	sess     *session.Session
}

// Orchestrator runs the accept loop, dial loop, and per-peer message loops
// that together form the mesh. The zero value is not usable; construct
// with New.
type Orchestrator struct {
	id         *identity.Identity
	listener   netio.Listener
	transport  netio.Transport
	discovery  discovery.Discovery
	trustStore *trust.Store
	replay     *replay.Protector
	clipboard  clip.Provider
	registry   *registry.Registry
	history    *history.History
	echo       *echo.Suppressor
	callbacks  Callbacks

	pairingMode     bool
	hardenTransport bool
	handshakeTimeout time.Duration
	meshMode        bool

	dialScanInterval time.Duration
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	outboundCapacity int

	mu    sync.Mutex
	peers map[string]*peerHandle

	silentRecall atomic.Bool
}

// New constructs an Orchestrator from cfg. Timing fields left zero take
// the package defaults.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		id:               cfg.Identity,
		listener:         cfg.Listener,
		transport:        cfg.Transport,
		discovery:        cfg.Discovery,
		trustStore:       cfg.TrustStore,
		replay:           cfg.Replay,
		clipboard:        cfg.Clipboard,
		registry:         cfg.Registry,
		history:          cfg.History,
		echo:             cfg.Echo,
		callbacks:        cfg.Callbacks,
		pairingMode:      cfg.PairingMode,
		hardenTransport:  cfg.HardenTransport,
		handshakeTimeout: cfg.HandshakeTimeout,
		meshMode:         cfg.MeshMode,
		dialScanInterval: cfg.DialScanInterval,
		initialBackoff:   cfg.InitialBackoff,
		maxBackoff:       cfg.MaxBackoff,
		outboundCapacity: cfg.OutboundCapacity,
		peers:            make(map[string]*peerHandle),
	}
	if o.dialScanInterval <= 0 {
		o.dialScanInterval = DefaultDialScanInterval
	}
	if o.initialBackoff <= 0 {
		o.initialBackoff = DefaultInitialBackoff
	}
	if o.maxBackoff <= 0 {
		o.maxBackoff = DefaultMaxBackoff
	}
	if o.outboundCapacity <= 0 {
		o.outboundCapacity = DefaultOutboundCapacity
	}
	return o
}

// Run starts the accept task, the dial task, and (if MeshMode is enabled)
// the local Clipboard Watcher, blocking until ctx is canceled. All spawned
// per-peer workers are also bound to ctx and exit within one iteration of
// their own cancellation.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(2)
	go func() { defer wg.Done(); o.acceptLoop(ctx) }()
	go func() { defer wg.Done(); o.dialLoop(ctx) }()

	if o.meshMode {
		wg.Add(1)
		go func() { defer wg.Done(); o.watchLocal(ctx) }()
	}

	wg.Wait()
}

// ── accept task ──────────────────────────────────────────────────────────

func (o *Orchestrator) acceptLoop(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = o.listener.Close()
	}()

	for {
		conn, err := o.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.reportError(fmt.Errorf("mesh: accept: %w", err))
			continue
		}
		go o.handleInbound(ctx, conn)
	}
}

func (o *Orchestrator) handleInbound(ctx context.Context, conn netio.Connection) {
	sess := o.newSession(conn)
	peerID, err := sess.Handshake(ctx)
	if err != nil {
		o.reportError(fmt.Errorf("mesh: inbound handshake: %w", err))
		return
	}

	// Tie-break: of two peers, the lexicographically smaller peer-id
	// dials; the other accepts. An inbound connection arriving at the
	// node that should have dialed is closed, not registered.
	if o.id.PeerID() < peerID {
		slog.Info("mesh: closing inbound connection, tie-break says we should dial",
			"peer", peerID)
		sess.Close()
		o.reportDisconnected(peerID)
		return
	}

	handle := &peerHandle{peerID: peerID, outbound: make(chan string, o.outboundCapacity), sess: sess}
	if !o.registerPeer(handle) {
		slog.Info("mesh: closing duplicate inbound connection", "peer", peerID)
		sess.Close()
		o.reportDisconnected(peerID)
		return
	}

	o.registry.SetOnline(peerID, conn.RemoteAddr())
	o.reportConnected(peerID)
	slog.Info("mesh: peer connected (inbound)", "peer", peerID, "addr", conn.RemoteAddr())

	o.messageLoop(ctx, handle)

	o.unregisterPeer(peerID)
	o.registry.SetOffline(peerID)
	o.reportDisconnected(peerID)
	slog.Info("mesh: peer disconnected", "peer", peerID)
}

// ── dial task ────────────────────────────────────────────────────────────

func (o *Orchestrator) dialLoop(ctx context.Context) {
	ticker := time.NewTicker(o.dialScanInterval)
	defer ticker.Stop()

	var dialingMu sync.Mutex
	dialing := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		peers, err := o.discovery.Scan(ctx)
		if err != nil {
			o.reportError(fmt.Errorf("mesh: discovery scan: %w", err))
			continue
		}

		for _, p := range peers {
			if p.PeerID == o.id.PeerID() {
				continue
			}
			if o.trustStore != nil && !o.trustStore.IsTrusted(p.PeerID) {
				continue
			}
			if !(o.id.PeerID() < p.PeerID) {
				continue // tie-break: the higher id accepts, it does not dial
			}
			if o.isConnected(p.PeerID) {
				continue
			}

			dialingMu.Lock()
			already := dialing[p.PeerID]
			if !already {
				dialing[p.PeerID] = true
			}
			dialingMu.Unlock()
			if already {
				continue
			}

			target := p
			go func() {
				o.connectLoop(ctx, target)
				dialingMu.Lock()
				delete(dialing, target.PeerID)
				dialingMu.Unlock()
			}()
		}
	}
}

// connectLoop maintains an ongoing connection attempt (and reconnection,
// with exponential backoff) toward a single dial target until ctx is
// canceled or a duplicate connection is detected.
func (o *Orchestrator) connectLoop(ctx context.Context, target discovery.PeerInfo) {
	backoff := o.initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}
		if o.isConnected(target.PeerID) {
			return
		}

		conn, err := o.transport.Connect(target.Address)
		if err != nil {
			o.reportError(fmt.Errorf("mesh: connect %s (%s): %w", target.PeerID, target.Address, err))
			if !o.sleepBackoff(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, o.maxBackoff)
			continue
		}

		sess := o.newSession(conn)
		peerID, err := sess.Handshake(ctx)
		if err != nil {
			o.reportError(fmt.Errorf("mesh: dial handshake %s (%s): %w", target.PeerID, target.Address, err))
			if !o.sleepBackoff(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, o.maxBackoff)
			continue
		}

		handle := &peerHandle{peerID: peerID, outbound: make(chan string, o.outboundCapacity), sess: sess}
		if !o.registerPeer(handle) {
			// Lost the race against an inbound connection from the same
			// peer; the inbound side won, nothing further to do here.
			sess.Close()
			return
		}

		backoff = o.initialBackoff
		o.registry.SetOnline(peerID, conn.RemoteAddr())
		o.reportConnected(peerID)
		slog.Info("mesh: peer connected (outbound)", "peer", peerID, "addr", target.Address)

		o.messageLoop(ctx, handle)

		o.unregisterPeer(peerID)
		o.registry.SetOffline(peerID)
		o.reportDisconnected(peerID)
		slog.Info("mesh: peer disconnected, will retry", "peer", peerID)

		if !o.sleepBackoff(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, o.maxBackoff)
	}
}

// ── per-peer message loop ───────────────────────────────────────────────

type recvResult struct {
	msg protocol.Variant
	err error
}

// messageLoop cooperatively selects between an outbound text enqueued by
// broadcast (which it writes to the local clipboard, then sends via the
// Session) and an inbound Message from the Session's receive path. It
// returns once the connection is no longer usable in either direction.
func (o *Orchestrator) messageLoop(ctx context.Context, h *peerHandle) {
	inbound := make(chan recvResult, 1)
	go func() {
		for {
			msg, err := h.sess.RecvMessage()
			inbound <- recvResult{msg, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.sess.Close()
			return

		case text, ok := <-h.outbound:
			if !ok {
				h.sess.Close()
				return
			}
			if err := o.clipboard.Write(clip.Content{Kind: clip.Text, MIME: "text/plain", Text: text}); err != nil {
				o.reportError(fmt.Errorf("mesh: write local clipboard for %s: %w", h.peerID, err))
			}
			if err := h.sess.SendClipboard(); err != nil {
				o.reportError(fmt.Errorf("mesh: send clipboard to %s: %w", h.peerID, err))
				h.sess.Close()
				return
			}

		case r := <-inbound:
			if r.err != nil {
				return
			}
			o.handleInboundMessage(h.peerID, r.msg)
		}
	}
}

func (o *Orchestrator) handleInboundMessage(peerID string, msg protocol.Variant) {
	switch m := msg.(type) {
	case protocol.ClipText:
		o.echo.NoteRemoteWrite(m.Text)
		o.history.Record(m.Text, peerID)
		if err := o.clipboard.Write(clip.Content{Kind: clip.Text, MIME: m.MIME, Text: m.Text}); err != nil {
			o.reportError(fmt.Errorf("mesh: apply remote clipboard from %s: %w", peerID, err))
		}
		o.reportClipboardText(peerID, m.Text)
	default:
		o.reportMessage(peerID, msg)
	}
}

// ── local watcher / mesh-mode fan-out ───────────────────────────────────

// watchLocal runs the Clipboard Watcher that drives local-change fan-out
// in mesh mode, honoring the one-shot silent_recall flag set by
// RecallFromHistory.
func (o *Orchestrator) watchLocal(ctx context.Context) {
	w := watcher.New(o.clipboard, o.echo, func(c clip.Content) {
		if c.Kind != clip.Text {
			return
		}
		if o.silentRecall.CompareAndSwap(true, false) {
			return
		}
		o.history.Record(c.Text, history.LocalSource)
		o.Broadcast(c.Text)
	})
	w.Run(ctx)
}

// RecallFromHistory writes a previously recorded entry back to the local
// clipboard without fanning it out to peers: the local watcher's next
// observed change will be this same write, and the one-shot silent_recall
// flag set here suppresses its broadcast.
func (o *Orchestrator) RecallFromHistory(id string) error {
	entry, ok := o.history.GetByID(id)
	if !ok {
		return ErrHistoryEntryNotFound
	}
	o.silentRecall.Store(true)
	return o.clipboard.Write(clip.Content{Kind: clip.Text, MIME: "text/plain", Text: entry.Content})
}

// Broadcast enqueues text on every connected peer's outbound channel.
// Backpressure is the channel's capacity (32 by default); a full channel
// has its oldest pending write dropped to make room, and the drop is
// reported via the error callback.
func (o *Orchestrator) Broadcast(text string) {
	o.mu.Lock()
	handles := make([]*peerHandle, 0, len(o.peers))
	for _, h := range o.peers {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		select {
		case h.outbound <- text:
		default:
			select {
			case <-h.outbound:
			default:
			}
			select {
			case h.outbound <- text:
			default:
			}
			o.reportError(fmt.Errorf("mesh: outbound channel full for %s, dropped oldest pending write", h.peerID))
		}
	}
}

// ── peer map helpers ─────────────────────────────────────────────────────

func (o *Orchestrator) registerPeer(h *peerHandle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.peers[h.peerID]; exists {
		return false
	}
	o.peers[h.peerID] = h
	return true
}

func (o *Orchestrator) unregisterPeer(peerID string) {
	o.mu.Lock()
	delete(o.peers, peerID)
	o.mu.Unlock()
}

func (o *Orchestrator) isConnected(peerID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.peers[peerID]
	return ok
}

// ConnectedPeerIDs returns a snapshot of every peer-id with a live
// connection right now.
func (o *Orchestrator) ConnectedPeerIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.peers))
	for id := range o.peers {
		out = append(out, id)
	}
	return out
}

func (o *Orchestrator) newSession(conn netio.Connection) *session.Session {
	opts := make([]session.Option, 0, 4)
	if o.trustStore != nil {
		opts = append(opts, session.WithTrustStore(o.trustStore))
	}
	if o.replay != nil {
		opts = append(opts, session.WithReplayProtector(o.replay))
	}
	if o.pairingMode {
		opts = append(opts, session.WithPairingMode())
	}
	if o.hardenTransport {
		opts = append(opts, session.WithTransportHardening())
	}
	if o.handshakeTimeout > 0 {
		opts = append(opts, session.WithHandshakeTimeout(o.handshakeTimeout))
	}
	return session.New(conn, o.id, o.clipboard, opts...)
}

// ── callback helpers (nil-safe) ──────────────────────────────────────────

func (o *Orchestrator) reportConnected(peerID string) {
	if o.callbacks.OnPeerConnected != nil {
		o.callbacks.OnPeerConnected(peerID)
	}
}

func (o *Orchestrator) reportDisconnected(peerID string) {
	if o.callbacks.OnPeerDisconnected != nil {
		o.callbacks.OnPeerDisconnected(peerID)
	}
}

func (o *Orchestrator) reportClipboardText(peerID, text string) {
	if o.callbacks.OnClipboardText != nil {
		o.callbacks.OnClipboardText(peerID, text)
	}
}

func (o *Orchestrator) reportMessage(peerID string, msg protocol.Variant) {
	if o.callbacks.OnMessage != nil {
		o.callbacks.OnMessage(peerID, msg)
	}
}

func (o *Orchestrator) reportError(err error) {
	slog.Warn("mesh error", "err", err)
	if o.callbacks.OnError != nil {
		o.callbacks.OnError(err)
	}
}

// ── backoff helpers ──────────────────────────────────────────────────────

func (o *Orchestrator) sleepBackoff(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		cur = max
	}
	return cur
}
