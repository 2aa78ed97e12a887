// Package token mints and encodes the out-of-band (secret, connection_token)
// pair a side-channel service hands to a client before it calls Connect. The
// wire encoding used on that side channel is deliberately not part of the
// protocol core (spec §1, §6); this package only provides a convenient,
// byte-stable representation for whatever HTTP-like service distributes it,
// base-58 encoded the way the original example server/client CLIs did it.
package token

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size is the length in bytes of both a Secret and a ConnectionToken.
const Size = 32

// Secret is the HMAC-SHA256 key shared between a connection's two endpoints.
type Secret [Size]byte

// String base58-encodes s for handing to a side channel or logging.
func (s Secret) String() string {
	return base58.Encode(s[:])
}

// ParseSecret decodes a base58-encoded Secret.
func ParseSecret(s string) (Secret, error) {
	var out Secret
	b, err := base58.Decode(s)
	if err != nil {
		return out, fmt.Errorf("token: decode secret: %w", err)
	}
	if len(b) != Size {
		return out, fmt.Errorf("token: secret must decode to %d bytes, got %d", Size, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// ConnectionToken is the one-time identifier a client presents in its first
// Connection packet to claim a server-reserved slot.
type ConnectionToken [Size]byte

// String base58-encodes t for handing to a side channel or logging.
func (t ConnectionToken) String() string {
	return base58.Encode(t[:])
}

// ParseConnectionTokenString decodes a base58-encoded ConnectionToken, as
// received over a side channel rather than unpacked from a packet body.
func ParseConnectionTokenString(s string) (ConnectionToken, error) {
	var out ConnectionToken
	b, err := base58.Decode(s)
	if err != nil {
		return out, fmt.Errorf("token: decode connection token: %w", err)
	}
	if len(b) != Size {
		return out, fmt.Errorf("token: connection token must decode to %d bytes, got %d", Size, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Pair is a (secret, connection_token) pair as handed out by a reservation.
type Pair struct {
	Secret          Secret
	ConnectionToken ConnectionToken
}

// New mints a fresh random Pair using crypto/rand. Callers distribute the
// result to a client through their own out-of-band channel.
func New() (Pair, error) {
	var p Pair
	if _, err := rand.Read(p.Secret[:]); err != nil {
		return Pair{}, fmt.Errorf("token: generate secret: %w", err)
	}
	if _, err := rand.Read(p.ConnectionToken[:]); err != nil {
		return Pair{}, fmt.Errorf("token: generate connection token: %w", err)
	}
	return p, nil
}

// ParseConnectionToken decodes a 32-byte connection token from a packet body,
// returning an error if body is not exactly Size bytes. Unlike
// ParseConnectionTokenString, this operates on the raw wire body, not the
// side channel's base58 text form.
func ParseConnectionToken(body []byte) (ConnectionToken, error) {
	var t ConnectionToken
	if len(body) != Size {
		return t, fmt.Errorf("token: connection token must be %d bytes, got %d", Size, len(body))
	}
	copy(t[:], body)
	return t, nil
}
