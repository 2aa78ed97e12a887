// Package transport implements the §6 non-blocking datagram transport
// collaborator, plus a UDP adapter grounded on pkg/nspkt.Listener's direct
// use of *net.UDPConn for connectionless packet I/O.
package transport

import "net/netip"

// Transport is the two-method contract the protocol engine drives from
// Update: non-blocking receive and addressed send of opaque datagrams. It is
// owned exclusively by one endpoint; there is no concurrent access from the
// core (spec §5).
type Transport interface {
	// Poll returns the next ready datagram copied into buf, or ok=false if
	// none is ready. It must not block.
	Poll(buf []byte) (n int, addr netip.AddrPort, ok bool, err error)

	// Send writes buf to addr, returning the number of bytes written.
	Send(addr netip.AddrPort, buf []byte) (int, error)
}
