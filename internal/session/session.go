// Package session implements the authenticated handshake and the
// post-handshake message plane for one connection: the hardest subsystem
// in the mesh, and the one most directly lifted from the upstream
// project's session state machine.
package session

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/openclipboard/meshd/internal/clip"
	"github.com/openclipboard/meshd/internal/identity"
	"github.com/openclipboard/meshd/internal/netio"
	"github.com/openclipboard/meshd/internal/protocol"
	"github.com/openclipboard/meshd/internal/replay"
	"github.com/openclipboard/meshd/internal/trust"
)

// transcriptPrefix is the fixed byte string signed (and verified) as part
// of every Hello.
var transcriptPrefix = []byte("openclipboard-hello")

// Handshake failure kinds. Each is returned to the caller and the
// underlying connection is closed before returning; no operation panics on
// adversarial input.
var (
	ErrHandshakeTimeout  = errors.New("session: handshake timed out")
	ErrUnexpectedMessage = errors.New("session: unexpected message before handshake completion")
	ErrBadFieldLength    = errors.New("session: malformed hello field length")
	ErrBindingFailure    = errors.New("session: peer_id not derived from presented public key")
	ErrBadSignature      = errors.New("session: invalid hello signature")
	ErrReplayedHello     = errors.New("session: replayed handshake nonce")
	ErrUntrustedPeer     = errors.New("session: peer is not in the trust store")
	ErrPublicKeyMismatch = errors.New("session: pinned public key does not match presented key")
	ErrNotReady          = errors.New("session: message plane used before handshake completed")
)

const defaultHandshakeTimeout = 5 * time.Second

// Option configures a Session at construction time.
type Option func(*Session)

// WithTrustStore enables the trust gate (modes "trust" and "trust+replay").
func WithTrustStore(s *trust.Store) Option {
	return func(sess *Session) { sess.trustStore = s }
}

// WithReplayProtector enables replay checking (mode "trust+replay").
func WithReplayProtector(p *replay.Protector) Option {
	return func(sess *Session) { sess.replay = p }
}

// WithPairingMode accepts unknown peers at the trust gate while still
// verifying signature and peer-id binding ("pairing" mode). It does not
// weaken any cryptographic check.
func WithPairingMode() Option {
	return func(sess *Session) { sess.pairingMode = true }
}

// WithHandshakeTimeout overrides the default 5s handshake receive timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(sess *Session) { sess.handshakeTimeout = d }
}

// WithTransportHardening derives a post-handshake secretbox key from both
// sides' nonces and additionally seals every frame sent after Ready. This
// hardens, but does not replace, the assumed-external transport's own
// confidentiality.
func WithTransportHardening() Option {
	return func(sess *Session) { sess.harden = true }
}

// Session owns one Connection exclusively. It is parameterized by
// connection, identity, and clipboard provider, with optional trust store
// and replay protector per the four construction modes (bare, trust,
// trust+replay, pairing).
type Session struct {
	conn      netio.Connection
	id        *identity.Identity
	clipboard clip.Provider

	trustStore  *trust.Store
	replay      *replay.Protector
	pairingMode bool
	harden      bool

	handshakeTimeout time.Duration

	seq     uint64
	sendMu  sync.Mutex
	ready   atomic.Bool
	peerID  string
	encKey  *[32]byte
}

// New constructs a Session. The zero-value options (no trust store, no
// replay protector, pairingMode false) correspond to "bare" mode, used by
// tests running against an in-memory duplex.
func New(conn netio.Connection, id *identity.Identity, clipboard clip.Provider, opts ...Option) *Session {
	s := &Session{
		conn:             conn,
		id:               id,
		clipboard:        clipboard,
		handshakeTimeout: defaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PeerID returns the verified remote peer-id. Valid only after Handshake
// succeeds.
func (s *Session) PeerID() string { return s.peerID }

// buildTranscript reproduces the exact byte layout signed by a Hello:
// "openclipboard-hello" || version || be_u32(len(peer_id)) || peer_id ||
// be_u32(len(pk)) || pk || be_u32(len(nonce)) || nonce.
func buildTranscript(version uint8, peerID string, publicKey, nonce []byte) []byte {
	var buf []byte
	buf = append(buf, transcriptPrefix...)
	buf = append(buf, version)
	buf = appendLenPrefixed(buf, []byte(peerID))
	buf = appendLenPrefixed(buf, publicKey)
	buf = appendLenPrefixed(buf, nonce)
	return buf
}

func appendLenPrefixed(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, field...)
	return buf
}

// Handshake runs the Fresh -> HelloSent -> HelloReceived -> Verified ->
// Ready state machine. On any failure the connection is closed and a
// typed error is returned; the session never partially transitions.
func (s *Session) Handshake(ctx context.Context) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		s.conn.Close()
		return "", fmt.Errorf("session: generate nonce: %w", err)
	}

	pub := s.id.PublicKey()
	transcript := buildTranscript(protocol.CurrentVersion, s.id.PeerID(), pub, nonce)
	sig := s.id.Sign(transcript)

	hello := protocol.Hello{
		PeerID:    s.id.PeerID(),
		Version:   protocol.CurrentVersion,
		PublicKey: pub,
		Nonce:     nonce,
		Signature: sig,
	}
	if err := s.sendVariant(hello); err != nil {
		s.conn.Close()
		return "", fmt.Errorf("session: send hello: %w", err)
	}

	remote, err := s.recvWithTimeout(ctx)
	if err != nil {
		s.conn.Close()
		return "", err
	}

	remoteHello, ok := remote.(protocol.Hello)
	if !ok {
		s.conn.Close()
		return "", ErrUnexpectedMessage
	}

	if err := s.verifyHello(remoteHello); err != nil {
		s.conn.Close()
		return "", err
	}

	if s.harden {
		s.encKey = deriveTransportKey(nonce, remoteHello.Nonce)
	}

	s.peerID = remoteHello.PeerID
	s.ready.Store(true)
	return s.peerID, nil
}

// verifyHello performs every check in order, rejecting on the first
// failure, exactly as specified: field lengths, binding, signature,
// replay (if configured), trust (if configured and not pairing mode).
func (s *Session) verifyHello(h protocol.Hello) error {
	if len(h.PublicKey) != 32 || len(h.Nonce) != 32 || len(h.Signature) != 64 {
		return ErrBadFieldLength
	}

	if identity.PeerID(h.PublicKey) != h.PeerID {
		return ErrBindingFailure
	}

	transcript := buildTranscript(h.Version, h.PeerID, h.PublicKey, h.Nonce)
	if !identity.Verify(transcript, h.Signature, h.PublicKey) {
		return ErrBadSignature
	}

	if s.replay != nil {
		if err := s.replay.CheckAndStore(h.PeerID, h.Nonce); err != nil {
			return fmt.Errorf("%w: %v", ErrReplayedHello, err)
		}
	}

	if s.trustStore != nil && !s.pairingMode {
		rec, ok := s.trustStore.Get(h.PeerID)
		if !ok {
			return ErrUntrustedPeer
		}
		if string(rec.IdentityPublicKey) != string(h.PublicKey) {
			return ErrPublicKeyMismatch
		}
	}

	return nil
}

// recvWithTimeout reads one message, bounded by s.handshakeTimeout (or
// ctx's own deadline, whichever fires first).
func (s *Session) recvWithTimeout(ctx context.Context) (protocol.Variant, error) {
	type result struct {
		v   protocol.Variant
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		v, err := s.RecvMessage()
		resCh <- result{v, err}
	}()

	timer := time.NewTimer(s.handshakeTimeout)
	defer timer.Stop()

	select {
	case r := <-resCh:
		return r.v, r.err
	case <-timer.C:
		return nil, ErrHandshakeTimeout
	case <-ctx.Done():
		return nil, ErrHandshakeTimeout
	}
}

// sendVariant encodes v, assigns the next sequence number under the
// session's single send lock, optionally seals the payload, and writes
// the resulting frame. Safe for concurrent callers.
func (s *Session) sendVariant(v protocol.Variant) error {
	payload, err := protocol.EncodeMessage(v)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	seq := atomic.AddUint64(&s.seq, 1)

	if s.encKey != nil {
		payload, err = seal(payload, s.encKey)
		if err != nil {
			return err
		}
	}

	frame, err := protocol.NewFrame(v.MsgType(), v.StreamID(), seq, payload)
	if err != nil {
		return err
	}
	return s.conn.Send(frame)
}

// RecvMessage reads one frame and decodes its payload. Single-consumer.
func (s *Session) RecvMessage() (protocol.Variant, error) {
	frame, err := s.conn.Recv()
	if err != nil {
		return nil, err
	}
	payload := frame.Payload
	if s.encKey != nil && len(payload) > 0 {
		payload, err = open(payload, s.encKey)
		if err != nil {
			return nil, err
		}
	}
	return protocol.DecodeMessage(payload)
}

// SendClipboard reads the local clipboard and, unless it is empty, sends
// the corresponding ClipText/ClipImage message. No-op on an empty
// clipboard, per the spec's Empty-is-a-no-op rule.
func (s *Session) SendClipboard() error {
	content, err := s.clipboard.Read()
	if err != nil {
		return nil // watcher-style swallow: a transient read failure isn't fatal
	}
	now := time.Now().UnixMilli()
	switch content.Kind {
	case clip.Text:
		return s.sendVariant(protocol.ClipText{MIME: content.MIME, Text: content.Text, TimestampMs: now})
	case clip.Image:
		return s.sendVariant(protocol.ClipImage{MIME: content.MIME, Width: content.Width, Height: content.Height, ImageBytes: content.Image, TimestampMs: now})
	default:
		return nil
	}
}

// SendFileOffer/Accept/Reject/Chunk/Done send the symmetric file-transfer
// messages; receiving is via RecvMessage's type switch.
func (s *Session) SendFileOffer(fileID, name string, size int64, mime string) error {
	return s.sendVariant(protocol.FileOffer{FileID: fileID, Name: name, Size: size, MIME: mime})
}

func (s *Session) SendFileAccept(fileID string) error {
	return s.sendVariant(protocol.FileAccept{FileID: fileID})
}

func (s *Session) SendFileReject(fileID, reason string) error {
	return s.sendVariant(protocol.FileReject{FileID: fileID, Reason: reason})
}

func (s *Session) SendFileChunk(fileID string, offset int64, chunk []byte) error {
	return s.sendVariant(protocol.FileChunk{FileID: fileID, Offset: offset, ChunkBytes: chunk})
}

func (s *Session) SendFileDone(fileID, contentHashHex string) error {
	return s.sendVariant(protocol.FileDone{FileID: fileID, ContentHashHex: contentHashHex})
}

// Close tears down the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

func randomNonce() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// deriveTransportKey derives a 32-byte secretbox key from both sides'
// handshake nonces via HKDF-SHA256, so a passive observer who didn't see
// the handshake cannot derive the same key. The two nonces are ordered
// byte-lexicographically before concatenation so the dialer and the
// acceptor — each of whom calls this with "local" and "remote" swapped
// relative to the other — derive the identical salt and therefore the
// identical key.
func deriveTransportKey(localNonce, remoteNonce []byte) *[32]byte {
	first, second := localNonce, remoteNonce
	if bytes.Compare(first, second) > 0 {
		first, second = second, first
	}
	salt := append(append([]byte{}, first...), second...)
	h := hkdf.New(sha256.New, salt, nil, []byte("openclipboard-session-v1"))
	var key [32]byte
	_, _ = h.Read(key[:])
	return &key
}

func seal(plaintext []byte, key *[32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

func open(ciphertext []byte, key *[32]byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, errors.New("session: ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plain, ok := secretbox.Open(nil, ciphertext[24:], &nonce, key)
	if !ok {
		return nil, errors.New("session: decryption failed")
	}
	return plain, nil
}
