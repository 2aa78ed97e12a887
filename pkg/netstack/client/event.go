package client

import "github.com/r2northstar/netstack/pkg/netstack/slottable"

// EventKind identifies which field of Event is populated.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
	EventMessageAcknowledged
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventMessageAcknowledged:
		return "message_acknowledged"
	default:
		return "unknown"
	}
}

// Event is one entry in the batch Update returns. Only the fields relevant
// to Kind are meaningful.
type Event struct {
	Kind EventKind

	Handle slottable.Handle

	// Payload is set for EventMessage. It aliases the receive buffer and
	// must not be retained past the call to Update that produced it.
	Payload []byte

	// Sequence is set for EventMessageAcknowledged (the acknowledged
	// sequence number) and for EventMessage (the received packet's sequence
	// number).
	Sequence uint64
}
