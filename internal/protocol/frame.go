package protocol

import "encoding/binary"

// Stream identifies the logical stream a message belongs to. Frames on the
// same stream are delivered in send order by the transport; there is no
// ordering guarantee across streams.
type Stream uint32

const (
	StreamControl   Stream = 1
	StreamClipboard Stream = 2
	StreamFile      Stream = 3
)

// MsgType is the one-byte wire tag identifying a message variant.
type MsgType uint8

const (
	MsgHello      MsgType = 1
	MsgPing       MsgType = 2
	MsgPong       MsgType = 3
	MsgClipText   MsgType = 10
	MsgClipImage  MsgType = 11
	MsgFileOffer  MsgType = 20
	MsgFileAccept MsgType = 21
	MsgFileReject MsgType = 22
	MsgFileChunk  MsgType = 23
	MsgFileDone   MsgType = 24
)

const (
	// HeaderSize is the fixed length of a Frame header in bytes.
	HeaderSize = 18

	// MaxPayloadSize is the largest payload a Frame may carry (4 MiB).
	MaxPayloadSize = 4 * 1024 * 1024
)

// CurrentVersion is the only frame version this implementation emits.
const CurrentVersion uint8 = 0

// Frame is the fixed wire unit: an 18-byte big-endian header followed by
// payload bytes. Seq is assigned by the sender as a monotonically
// increasing per-session counter; it is informational only — the
// transport, not the protocol, guarantees in-order delivery within a
// stream.
type Frame struct {
	Version    uint8
	MsgType    MsgType
	StreamID   Stream
	Seq        uint64
	PayloadLen uint32
	Payload    []byte
}

// Encode produces the contiguous wire representation of f: header followed
// by payload. It does not validate f.PayloadLen against len(f.Payload); the
// caller must keep them consistent (NewFrame does this for you).
func (f Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = f.Version
	buf[1] = byte(f.MsgType)
	binary.BigEndian.PutUint32(buf[2:6], uint32(f.StreamID))
	binary.BigEndian.PutUint64(buf[6:14], f.Seq)
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// NewFrame builds a Frame with PayloadLen derived from payload, rejecting
// payloads larger than MaxPayloadSize before encoding is ever attempted.
func NewFrame(msgType MsgType, stream Stream, seq uint64, payload []byte) (Frame, error) {
	if len(payload) > MaxPayloadSize {
		return Frame{}, ErrPayloadTooLarge
	}
	return Frame{
		Version:    CurrentVersion,
		MsgType:    msgType,
		StreamID:   stream,
		Seq:        seq,
		PayloadLen: uint32(len(payload)),
		Payload:    payload,
	}, nil
}

// DecodeFrame parses a Frame out of buf. It rejects inputs shorter than the
// header, a declared payload_len exceeding MaxPayloadSize, and a declared
// payload_len exceeding the bytes actually remaining in buf. It never
// panics on arbitrary input.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, ErrFrameTooShort
	}

	payloadLen := binary.BigEndian.Uint32(buf[14:18])
	if payloadLen > MaxPayloadSize {
		return Frame{}, ErrPayloadTooLarge
	}
	if uint32(len(buf)-HeaderSize) < payloadLen {
		return Frame{}, ErrPayloadShort
	}

	f := Frame{
		Version:    buf[0],
		MsgType:    MsgType(buf[1]),
		StreamID:   Stream(binary.BigEndian.Uint32(buf[2:6])),
		Seq:        binary.BigEndian.Uint64(buf[6:14]),
		PayloadLen: payloadLen,
	}
	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		copy(f.Payload, buf[HeaderSize:HeaderSize+payloadLen])
	}
	return f, nil
}
