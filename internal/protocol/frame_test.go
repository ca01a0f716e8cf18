package protocol

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	f, err := NewFrame(MsgClipText, StreamClipboard, 42, []byte("hello world"))
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	encoded := f.Encode()
	decoded, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}

	if decoded.Version != f.Version || decoded.MsgType != f.MsgType ||
		decoded.StreamID != f.StreamID || decoded.Seq != f.Seq ||
		!bytes.Equal(decoded.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, f)
	}
}

func TestNewFrameRejectsOversizedPayload(t *testing.T) {
	_, err := NewFrame(MsgClipText, StreamClipboard, 0, make([]byte, MaxPayloadSize+1))
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecodeFrameRejectsOversizedDeclaredLength(t *testing.T) {
	buf := make([]byte, HeaderSize)
	// declare payload_len = MaxPayloadSize+1 at offset 14
	buf[14], buf[15], buf[16], buf[17] = 0x00, 0x40, 0x00, 0x01
	_, err := DecodeFrame(buf)
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecodeFrameRejectsShortInput(t *testing.T) {
	if _, err := DecodeFrame(make([]byte, HeaderSize-1)); err != ErrFrameTooShort {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}
}

func TestDecodeFrameRejectsTruncatedPayload(t *testing.T) {
	buf := make([]byte, HeaderSize+4)
	buf[17] = 10 // declares 10 bytes payload, only 4 present
	if _, err := DecodeFrame(buf); err != ErrPayloadShort {
		t.Fatalf("expected ErrPayloadShort, got %v", err)
	}
}

func TestDecodeFrameNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		bytes.Repeat([]byte{0xff}, HeaderSize),
		bytes.Repeat([]byte{0xff}, HeaderSize+10),
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("DecodeFrame panicked on %v: %v", in, r)
				}
			}()
			_, _ = DecodeFrame(in)
		}()
	}
}
