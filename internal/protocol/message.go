package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// variantType is the JSON discriminator carried by every message.
type variantType string

const (
	variantHello      variantType = "HELLO"
	variantPing       variantType = "PING"
	variantPong       variantType = "PONG"
	variantClipText   variantType = "CLIP_TEXT"
	variantClipImage  variantType = "CLIP_IMAGE"
	variantFileOffer  variantType = "FILE_OFFER"
	variantFileAccept variantType = "FILE_ACCEPT"
	variantFileReject variantType = "FILE_REJECT"
	variantFileChunk  variantType = "FILE_CHUNK"
	variantFileDone   variantType = "FILE_DONE"
)

// Variant is implemented by every message type in the catalogue. StreamID
// and MsgType report where the encoded wire envelope routes the message.
type Variant interface {
	StreamID() Stream
	MsgType() MsgType
}

// wireEnvelope is the on-the-wire JSON shape: one discriminator field plus
// every variant's fields, all optional so a single struct can decode any
// message without a two-pass unmarshal.
type wireEnvelope struct {
	Type variantType `json:"type"`

	// Hello
	PeerID    string `json:"peer_id,omitempty"`
	Version   uint8  `json:"version,omitempty"`
	PublicKey string `json:"identity_public_key,omitempty"` // base64
	Nonce     string `json:"nonce,omitempty"`               // base64
	Signature string `json:"signature,omitempty"`           // base64

	// Ping/Pong
	TimestampMs int64 `json:"timestamp_ms,omitempty"`

	// ClipText / ClipImage
	MIME   string `json:"mime,omitempty"`
	Text   string `json:"text,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Image  string `json:"image_bytes,omitempty"` // base64

	// File*
	FileID   string `json:"file_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Offset   int64  `json:"offset,omitempty"`
	Chunk    string `json:"chunk_bytes,omitempty"` // base64
	HashHex  string `json:"content_hash_hex,omitempty"`
}

// Hello is the only message permitted before handshake completion.
type Hello struct {
	PeerID    string
	Version   uint8
	PublicKey []byte
	Nonce     []byte
	Signature []byte
}

func (Hello) StreamID() Stream { return StreamControl }
func (Hello) MsgType() MsgType { return MsgHello }

// Ping/Pong are liveness probes on the control stream.
type Ping struct{ TimestampMs int64 }
type Pong struct{ TimestampMs int64 }

func (Ping) StreamID() Stream { return StreamControl }
func (Ping) MsgType() MsgType { return MsgPing }
func (Pong) StreamID() Stream { return StreamControl }
func (Pong) MsgType() MsgType { return MsgPong }

// ClipText carries a plain-text clipboard update.
type ClipText struct {
	MIME        string
	Text        string
	TimestampMs int64
}

func (ClipText) StreamID() Stream { return StreamClipboard }
func (ClipText) MsgType() MsgType { return MsgClipText }

// ClipImage carries a raster clipboard update.
type ClipImage struct {
	MIME        string
	Width       int
	Height      int
	ImageBytes  []byte
	TimestampMs int64
}

func (ClipImage) StreamID() Stream { return StreamClipboard }
func (ClipImage) MsgType() MsgType { return MsgClipImage }

// FileOffer announces an incoming file transfer.
type FileOffer struct {
	FileID string
	Name   string
	Size   int64
	MIME   string
}

func (FileOffer) StreamID() Stream { return StreamFile }
func (FileOffer) MsgType() MsgType { return MsgFileOffer }

// FileAccept/FileReject answer a FileOffer.
type FileAccept struct{ FileID string }
type FileReject struct {
	FileID string
	Reason string
}

func (FileAccept) StreamID() Stream { return StreamFile }
func (FileAccept) MsgType() MsgType { return MsgFileAccept }
func (FileReject) StreamID() Stream { return StreamFile }
func (FileReject) MsgType() MsgType { return MsgFileReject }

// FileChunk carries one piece of file content.
type FileChunk struct {
	FileID     string
	Offset     int64
	ChunkBytes []byte
}

func (FileChunk) StreamID() Stream { return StreamFile }
func (FileChunk) MsgType() MsgType { return MsgFileChunk }

// FileDone finalizes a transfer with the sender's computed content hash.
type FileDone struct {
	FileID         string
	ContentHashHex string
}

func (FileDone) StreamID() Stream { return StreamFile }
func (FileDone) MsgType() MsgType { return MsgFileDone }

// EncodeMessage serializes v to the JSON payload carried inside a Frame.
func EncodeMessage(v Variant) ([]byte, error) {
	env := wireEnvelope{}
	switch m := v.(type) {
	case Hello:
		env.Type = variantHello
		env.PeerID = m.PeerID
		env.Version = m.Version
		env.PublicKey = base64.StdEncoding.EncodeToString(m.PublicKey)
		env.Nonce = base64.StdEncoding.EncodeToString(m.Nonce)
		env.Signature = base64.StdEncoding.EncodeToString(m.Signature)
	case Ping:
		env.Type = variantPing
		env.TimestampMs = m.TimestampMs
	case Pong:
		env.Type = variantPong
		env.TimestampMs = m.TimestampMs
	case ClipText:
		env.Type = variantClipText
		env.MIME = m.MIME
		env.Text = m.Text
		env.TimestampMs = m.TimestampMs
	case ClipImage:
		env.Type = variantClipImage
		env.MIME = m.MIME
		env.Width = m.Width
		env.Height = m.Height
		env.Image = base64.StdEncoding.EncodeToString(m.ImageBytes)
		env.TimestampMs = m.TimestampMs
	case FileOffer:
		env.Type = variantFileOffer
		env.FileID = m.FileID
		env.Name = m.Name
		env.Size = m.Size
		env.MIME = m.MIME
	case FileAccept:
		env.Type = variantFileAccept
		env.FileID = m.FileID
	case FileReject:
		env.Type = variantFileReject
		env.FileID = m.FileID
		env.Reason = m.Reason
	case FileChunk:
		env.Type = variantFileChunk
		env.FileID = m.FileID
		env.Offset = m.Offset
		env.Chunk = base64.StdEncoding.EncodeToString(m.ChunkBytes)
	case FileDone:
		env.Type = variantFileDone
		env.FileID = m.FileID
		env.HashHex = m.ContentHashHex
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, v)
	}
	return json.Marshal(env)
}

// DecodeMessage parses the JSON payload of a Frame back into its Variant.
func DecodeMessage(payload []byte) (Variant, error) {
	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode message: %w", err)
	}

	b64 := func(s string) ([]byte, error) {
		if s == "" {
			return nil, nil
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadBase64, err)
		}
		return b, nil
	}

	switch env.Type {
	case variantHello:
		pk, err := b64(env.PublicKey)
		if err != nil {
			return nil, err
		}
		nonce, err := b64(env.Nonce)
		if err != nil {
			return nil, err
		}
		sig, err := b64(env.Signature)
		if err != nil {
			return nil, err
		}
		return Hello{PeerID: env.PeerID, Version: env.Version, PublicKey: pk, Nonce: nonce, Signature: sig}, nil
	case variantPing:
		return Ping{TimestampMs: env.TimestampMs}, nil
	case variantPong:
		return Pong{TimestampMs: env.TimestampMs}, nil
	case variantClipText:
		return ClipText{MIME: env.MIME, Text: env.Text, TimestampMs: env.TimestampMs}, nil
	case variantClipImage:
		img, err := b64(env.Image)
		if err != nil {
			return nil, err
		}
		return ClipImage{MIME: env.MIME, Width: env.Width, Height: env.Height, ImageBytes: img, TimestampMs: env.TimestampMs}, nil
	case variantFileOffer:
		return FileOffer{FileID: env.FileID, Name: env.Name, Size: env.Size, MIME: env.MIME}, nil
	case variantFileAccept:
		return FileAccept{FileID: env.FileID}, nil
	case variantFileReject:
		return FileReject{FileID: env.FileID, Reason: env.Reason}, nil
	case variantFileChunk:
		chunk, err := b64(env.Chunk)
		if err != nil {
			return nil, err
		}
		return FileChunk{FileID: env.FileID, Offset: env.Offset, ChunkBytes: chunk}, nil
	case variantFileDone:
		return FileDone{FileID: env.FileID, ContentHashHex: env.HashHex}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
