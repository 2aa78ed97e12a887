package transport

import "net/netip"

// datagram is one queued packet addressed to or from a Memory transport.
type datagram struct {
	addr netip.AddrPort
	data []byte
}

// Memory is an in-process Transport useful for tests and for driving two
// endpoints against each other without a real socket. Two endpoints talk to
// each other by each holding the other's address and sharing a Network.
type Memory struct {
	addr    netip.AddrPort
	network *Network
	inbox   []datagram
}

// Network routes datagrams between Memory transports registered on it by
// address, analogous to a LAN segment.
type Network struct {
	peers map[netip.AddrPort]*Memory
}

// NewNetwork creates an empty Network.
func NewNetwork() *Network {
	return &Network{peers: make(map[netip.AddrPort]*Memory)}
}

// NewTransport creates a Memory transport bound to addr on n.
func (n *Network) NewTransport(addr netip.AddrPort) *Memory {
	m := &Memory{addr: addr, network: n}
	n.peers[addr] = m
	return m
}

// Poll implements Transport.
func (m *Memory) Poll(buf []byte) (n int, addr netip.AddrPort, ok bool, err error) {
	if len(m.inbox) == 0 {
		return 0, netip.AddrPort{}, false, nil
	}
	d := m.inbox[0]
	m.inbox = m.inbox[1:]
	return copy(buf, d.data), d.addr, true, nil
}

// Send implements Transport, delivering buf to the Memory transport
// registered on the same Network under addr, if any.
func (m *Memory) Send(addr netip.AddrPort, buf []byte) (int, error) {
	peer, ok := m.network.peers[addr]
	if !ok {
		return len(buf), nil // like a real UDP socket, sends into the void succeed
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	peer.inbox = append(peer.inbox, datagram{addr: m.addr, data: cp})
	return len(buf), nil
}
