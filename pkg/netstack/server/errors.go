package server

import "errors"

var (
	// ErrMaxConnectionsReached is returned by Reserve when the slot table is
	// full.
	ErrMaxConnectionsReached = errors.New("server: maximum connections reached")

	// ErrConnectionNotFound is returned by Send when handle does not refer to
	// a live slot.
	ErrConnectionNotFound = errors.New("server: connection not found")

	// ErrConnectionNotReady is returned by Send when handle refers to a slot
	// that is still Reserved rather than Connected.
	ErrConnectionNotReady = errors.New("server: connection not ready")

	// ErrConnectionDisconnected is part of the state-taxonomy errors spec.md
	// §7 lists for Send, reserved for a slot that has transitioned toward
	// Disconnected but not yet been retired. Since expire retires and bumps
	// the generation of a handle in the same tick it emits Disconnected,
	// Send on a stale handle always resolves to ErrConnectionNotFound first;
	// this sentinel is kept for API-surface completeness and any future
	// design that separates "disconnected" from "retired".
	ErrConnectionDisconnected = errors.New("server: connection disconnected")
)
