// Package packet implements the signed datagram envelope shared by the
// server and client endpoints: a fixed 56-byte header, HMAC-SHA256 signing,
// and constant-time verification.
package packet

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// MTU is the maximum size of a single packet, header and body included.
const MTU = 1500

// HeaderSize is the length of the fixed packet header in bytes.
const HeaderSize = 56

// MaxBodySize is the largest body that fits within MTU.
const MaxBodySize = MTU - HeaderSize

// Type identifies the kind of packet carried by the envelope.
type Type uint8

const (
	Connection   Type = 0
	Payload      Type = 1
	Heartbeat    Type = 2
	Disconnect   Type = 3
	Disconnected Type = 4
)

// Valid reports whether t is a known packet type.
func (t Type) Valid() bool {
	return t <= Disconnected
}

func (t Type) String() string {
	switch t {
	case Connection:
		return "connection"
	case Payload:
		return "payload"
	case Heartbeat:
		return "heartbeat"
	case Disconnect:
		return "disconnect"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var (
	// ErrBodyTooLarge is returned when a body would not fit within MTU.
	ErrBodyTooLarge = errors.New("packet: body too large")

	// ErrTruncated is returned by Verify when the buffer is shorter than the
	// header, or when its length differs from the header plus body_length.
	ErrTruncated = errors.New("packet: truncated")

	// ErrInvalidType is returned by Verify when packet_type is unknown.
	ErrInvalidType = errors.New("packet: invalid type")

	// ErrBadSignature is returned by Verify when the HMAC does not match.
	ErrBadSignature = errors.New("packet: bad signature")
)

// Header is the decoded form of the 56-byte wire header. It does not include
// the body.
type Header struct {
	Sequence     uint64
	AckSequence  uint64
	AckBits      [4]byte
	Type         Type
	BodyLength   uint16
}

// field offsets within the wire header, see spec §4.1.
const (
	offHMAC       = 0
	offSequence   = 32
	offAck        = 40
	offAckBits    = 48
	offType       = 52
	offReserved   = 53
	offBodyLength = 54
)

// Sign fills the header fields of buf[0:HeaderSize] and body buf[HeaderSize:HeaderSize+len(body)],
// computes the HMAC-SHA256 over everything but the MAC itself, and writes it
// into buf[0:32]. buf must be at least HeaderSize+len(body) bytes; the
// returned slice is buf[:HeaderSize+len(body)].
func Sign(buf []byte, secret [32]byte, sequence, ackSequence uint64, ackBits [4]byte, typ Type, body []byte) ([]byte, error) {
	if len(body) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	n := HeaderSize + len(body)
	if len(buf) < n {
		return nil, ErrBodyTooLarge
	}
	buf = buf[:n]

	binary.LittleEndian.PutUint64(buf[offSequence:], sequence)
	binary.LittleEndian.PutUint64(buf[offAck:], ackSequence)
	copy(buf[offAckBits:offAckBits+4], ackBits[:])
	buf[offType] = byte(typ)
	buf[offReserved] = 0
	binary.LittleEndian.PutUint16(buf[offBodyLength:], uint16(len(body)))
	copy(buf[HeaderSize:], body)

	mac := hmac.New(sha256.New, secret[:])
	mac.Write(buf[offSequence:n])
	copy(buf[offHMAC:offHMAC+32], mac.Sum(nil))

	return buf, nil
}

// Verified is a packet whose signature has been checked against a secret.
type Verified struct {
	Header
	body []byte
}

// Body returns the packet's payload bytes. The returned slice aliases the
// buffer passed to Verify and must not be retained past its lifetime.
func (v Verified) Body() []byte {
	return v.body
}

// Verify checks buf as a signed packet using secret, returning the decoded
// header and body on success. buf must be exactly header+body long; trailing
// garbage is rejected as truncation info mismatch isn't tolerated on a
// fixed-framing protocol.
func Verify(buf []byte, secret [32]byte) (Verified, error) {
	if len(buf) < HeaderSize {
		return Verified{}, ErrTruncated
	}

	bodyLength := binary.LittleEndian.Uint16(buf[offBodyLength:])
	n := HeaderSize + int(bodyLength)
	if len(buf) != n {
		return Verified{}, ErrTruncated
	}

	typ := Type(buf[offType])
	if !typ.Valid() {
		return Verified{}, ErrInvalidType
	}

	mac := hmac.New(sha256.New, secret[:])
	mac.Write(buf[offSequence:n])
	sum := mac.Sum(nil)

	if !hmac.Equal(sum, buf[offHMAC:offHMAC+32]) {
		return Verified{}, ErrBadSignature
	}

	var ackBits [4]byte
	copy(ackBits[:], buf[offAckBits:offAckBits+4])

	return Verified{
		Header: Header{
			Sequence:    binary.LittleEndian.Uint64(buf[offSequence:]),
			AckSequence: binary.LittleEndian.Uint64(buf[offAck:]),
			AckBits:     ackBits,
			Type:        typ,
			BodyLength:  bodyLength,
		},
		body: buf[HeaderSize:n],
	}, nil
}

// PeekType reads the packet_type field without checking the signature. It is
// only safe to act on a type read this way before a peer has a secret
// assigned to it, i.e. to decide whether an unrecognized address's first
// datagram is worth treating as a Connection attempt at all; every other
// decision must wait for Verify.
func PeekType(buf []byte) (Type, bool) {
	if len(buf) < HeaderSize {
		return 0, false
	}
	typ := Type(buf[offType])
	return typ, typ.Valid()
}
