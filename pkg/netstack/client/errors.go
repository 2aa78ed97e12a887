package client

import "errors"

var (
	// ErrMaxConnectionsReached is returned by Connect when the slot table is
	// full.
	ErrMaxConnectionsReached = errors.New("client: maximum connections reached")

	// ErrAlreadyConnectedToAddress is returned by Connect when a live slot
	// already maps to remoteAddress.
	ErrAlreadyConnectedToAddress = errors.New("client: already connected to address")

	// ErrConnectionNotFound is returned by Send when handle does not refer
	// to a live slot.
	ErrConnectionNotFound = errors.New("client: connection not found")

	// ErrConnectionStillConnecting is returned by Send when handle refers to
	// a slot that has not yet completed its handshake.
	ErrConnectionStillConnecting = errors.New("client: connection still connecting")

	// ErrConnectionDisconnected is part of the state-taxonomy errors spec.md
	// §7 lists for Send, reserved for a slot that has transitioned toward
	// Disconnected but not yet been retired. Since expire retires and bumps
	// the generation of a handle in the same tick it emits Disconnected,
	// Send on a stale handle always resolves to ErrConnectionNotFound first;
	// this sentinel is kept for API-surface completeness and any future
	// design that separates "disconnected" from "retired".
	ErrConnectionDisconnected = errors.New("client: connection disconnected")
)
