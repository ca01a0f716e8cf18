// Package protocol defines the wire frame format and the typed message
// catalogue exchanged over an established connection.
package protocol

import "errors"

// Decode-time failures. All are returned, never panicked, per the decoder's
// no-panic-on-adversarial-input contract.
var (
	ErrFrameTooShort   = errors.New("protocol: frame shorter than header")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds maximum size")
	ErrPayloadShort    = errors.New("protocol: declared payload_len exceeds remaining input")
	ErrBadBase64       = errors.New("protocol: malformed base64 field")
	ErrUnknownType     = errors.New("protocol: unknown message type")
	ErrBadLength       = errors.New("protocol: malformed field length")
)
