// Package server implements the listening half of the protocol: a fixed
// slot table of reserved and connected peers, driven one tick at a time by
// Update. See spec §4.3, grounded on original_source/netstack/src/server/mod.rs.
package server

import (
	"net/netip"

	"github.com/rs/zerolog"

	"github.com/r2northstar/netstack/pkg/netstack/netstackmetrics"
	"github.com/r2northstar/netstack/pkg/netstack/packet"
	"github.com/r2northstar/netstack/pkg/netstack/replay"
	"github.com/r2northstar/netstack/pkg/netstack/slottable"
	"github.com/r2northstar/netstack/pkg/netstack/token"
	"github.com/r2northstar/netstack/pkg/netstack/transport"
)

// Server is one endpoint of the protocol that accepts connections reserved
// ahead of time out-of-band. It is not safe for concurrent use: every method
// must be called from the single tick loop that owns it (spec §5).
type Server struct {
	transport transport.Transport
	config    Config
	monitor   netstackmetrics.Monitor
	logger    zerolog.Logger

	connections *slottable.List
	states      *slottable.DataList[ConnectionState]
	addresses   *slottable.DataList[netip.AddrPort]
	timeouts    *slottable.DataList[int]
	heartbeats  *slottable.DataList[int]
	secrets     *slottable.DataList[token.Secret]
	sendSeq     *slottable.DataList[uint64]
	recvWindow  *slottable.DataList[replay.Buffer]
	ackMirror   *slottable.DataList[replay.Buffer]

	tokenToHandle map[token.ConnectionToken]slottable.Handle
	addrToHandle  map[netip.AddrPort]slottable.Handle
}

// New creates a Server with a fixed-capacity slot table sized by
// config.MaxConnections. monitor may be netstackmetrics.Noop{}.
func New(config Config, t transport.Transport, monitor netstackmetrics.Monitor, logger zerolog.Logger) *Server {
	n := config.MaxConnections
	return &Server{
		transport: t,
		config:    config,
		monitor:   monitor,
		logger:    logger,

		connections: slottable.New(n),
		states:      slottable.NewDataList[ConnectionState](n),
		addresses:   slottable.NewDataList[netip.AddrPort](n),
		timeouts:    slottable.NewDataList[int](n),
		heartbeats:  slottable.NewDataList[int](n),
		secrets:     slottable.NewDataList[token.Secret](n),
		sendSeq:     slottable.NewDataList[uint64](n),
		recvWindow:  slottable.NewDataList[replay.Buffer](n),
		ackMirror:   slottable.NewDataList[replay.Buffer](n),

		tokenToHandle: make(map[token.ConnectionToken]slottable.Handle),
		addrToHandle:  make(map[netip.AddrPort]slottable.Handle),
	}
}

// Reserve allocates a slot for a client that will present connectionToken in
// its first Connection packet, authenticated with secret. The pair must
// already have reached the client through an out-of-band channel.
func (s *Server) Reserve(secret token.Secret, connectionToken token.ConnectionToken) (slottable.Handle, error) {
	h, ok := s.connections.Create()
	if !ok {
		return slottable.Handle{}, ErrMaxConnectionsReached
	}

	s.states.Set(h, Reserved)
	s.secrets.Set(h, secret)
	s.timeouts.Set(h, s.config.ReservedTimeout)
	s.tokenToHandle[connectionToken] = h

	s.monitor.Reserved()
	return h, nil
}

// Update drains every datagram currently available from the transport,
// advances every slot's timeout and heartbeat by one tick, and returns the
// events produced. It never blocks.
func (s *Server) Update() []Event {
	var events []Event
	s.monitor.Tick()

	var buf [packet.MTU]byte
	for i := 0; s.config.MaxPacketsPerTick == 0 || i < s.config.MaxPacketsPerTick; i++ {
		n, addr, ok, err := s.transport.Poll(buf[:])
		if err != nil {
			s.logger.Warn().Err(err).Msg("transport poll error")
			break
		}
		if !ok {
			break
		}

		if h, found := s.addrToHandle[addr]; found {
			s.handleMessage(h, buf[:n], &events)
		} else {
			s.tryAcceptConnection(addr, buf[:n], &events)
		}
	}

	var expired []slottable.Handle
	s.connections.Iterate(func(h slottable.Handle) {
		timeout, _ := s.timeouts.Get(h)
		timeout--
		if timeout <= 0 {
			expired = append(expired, h)
			return
		}
		s.timeouts.Set(h, timeout)

		if state, _ := s.states.Get(h); state == Connected {
			heartbeat, _ := s.heartbeats.Get(h)
			heartbeat--
			if heartbeat <= 0 {
				s.sendHeartbeatMessage(h)
			} else {
				s.heartbeats.Set(h, heartbeat)
			}
		}
	})

	for _, h := range expired {
		s.expire(h, &events)
	}

	return events
}

// Send transmits payload as a Payload packet to handle, returning the
// sequence number assigned. handle must refer to a Connected slot.
func (s *Server) Send(handle slottable.Handle, payload []byte) (uint64, error) {
	state, ok := s.states.Get(handle)
	if !ok {
		return 0, ErrConnectionNotFound
	}
	switch state {
	case Connected:
		return s.sendInternal(handle, packet.Payload, payload)
	case Reserved:
		return 0, ErrConnectionNotReady
	default:
		return 0, ErrConnectionNotFound
	}
}

func (s *Server) sendInternal(h slottable.Handle, typ packet.Type, body []byte) (uint64, error) {
	seq, _ := s.sendSeq.Get(h)
	seq++
	s.sendSeq.Set(h, seq)

	secret, _ := s.secrets.Get(h)
	addr, _ := s.addresses.Get(h)

	window := s.recvWindow.GetPtr(h)
	ackSeq, ackBits := window.GetAckBits()

	var buf [packet.MTU]byte
	raw, err := packet.Sign(buf[:], secret, seq, ackSeq, ackBits, typ, body)
	if err != nil {
		return 0, err
	}

	if _, err := s.transport.Send(addr, raw); err != nil {
		return 0, err
	}

	s.heartbeats.Set(h, s.config.Heartbeat)
	s.monitor.MessageSent()
	return seq, nil
}

func (s *Server) sendHeartbeatMessage(h slottable.Handle) {
	if _, err := s.sendInternal(h, packet.Heartbeat, nil); err != nil {
		s.logger.Warn().Err(err).Msg("could not send heartbeat")
	}
}

// tryAcceptConnection handles a datagram from an address with no existing
// slot: it must be a Connection packet carrying a token handed out by a
// prior Reserve call.
func (s *Server) tryAcceptConnection(addr netip.AddrPort, buf []byte, events *[]Event) {
	typ, valid := packet.PeekType(buf)
	if !valid || typ != packet.Connection {
		s.logger.Debug().Msg("unexpected packet type from unknown address")
		return
	}

	ct, err := token.ParseConnectionToken(buf[packet.HeaderSize:])
	if err != nil {
		s.logger.Debug().Err(err).Msg("malformed connection token")
		return
	}

	h, found := s.tokenToHandle[ct]
	if !found {
		s.logger.Debug().Msg("no reservation found for connection token")
		return
	}

	secret, _ := s.secrets.Get(h)
	verified, err := packet.Verify(buf, secret)
	if err != nil {
		s.logger.Debug().Err(err).Msg("connection packet failed verification")
		return
	}

	delete(s.tokenToHandle, ct)

	s.states.Set(h, Connected)
	s.addresses.Set(h, addr)
	s.timeouts.Set(h, s.config.Timeout)
	s.heartbeats.Set(h, s.config.Heartbeat)
	s.sendSeq.Set(h, 0)
	s.recvWindow.Set(h, replay.Buffer{})
	s.ackMirror.Set(h, replay.Buffer{})
	s.addrToHandle[addr] = h

	window := s.recvWindow.GetPtr(h)
	window.Acknowledge(verified.Sequence)

	s.monitor.Connected()
	*events = append(*events, Event{Kind: EventConnected, Handle: h})
}

func (s *Server) handleMessage(h slottable.Handle, buf []byte, events *[]Event) {
	secret, _ := s.secrets.Get(h)
	verified, err := packet.Verify(buf, secret)
	if err != nil {
		s.logger.Debug().Err(err).Msg("dropped packet that failed verification")
		return
	}

	window := s.recvWindow.GetPtr(h)
	if !window.Acknowledge(verified.Sequence) {
		s.logger.Debug().Uint64("sequence", verified.Sequence).Msg("dropped replayed or stale sequence")
		return
	}

	if mirror := s.ackMirror.GetPtr(h); mirror != nil {
		for _, seq := range mirror.SetAckBits(verified.AckSequence, verified.AckBits) {
			s.monitor.MessageAcknowledged()
			*events = append(*events, Event{Kind: EventMessageAcknowledged, Handle: h, Sequence: seq})
		}
	}

	s.timeouts.Set(h, s.config.Timeout)

	switch verified.Type {
	case packet.Payload:
		s.monitor.MessageReceived()
		*events = append(*events, Event{Kind: EventMessage, Handle: h, Payload: verified.Body(), Sequence: verified.Sequence})
	case packet.Heartbeat:
		// Only resets the timeout, done above for every valid packet.
	case packet.Disconnect, packet.Disconnected:
		// Reserved for future graceful-shutdown work; tolerated, not acted on.
	default:
		s.logger.Debug().Str("type", verified.Type.String()).Msg("unexpected packet type")
	}
}

func (s *Server) expire(h slottable.Handle, events *[]Event) {
	if addr, ok := s.addresses.Get(h); ok {
		delete(s.addrToHandle, addr)
	}

	s.states.Remove(h)
	s.addresses.Remove(h)
	s.timeouts.Remove(h)
	s.heartbeats.Remove(h)
	s.secrets.Remove(h)
	s.sendSeq.Remove(h)
	s.recvWindow.Remove(h)
	s.ackMirror.Remove(h)
	s.connections.Delete(h)

	s.monitor.Disconnected()
	*events = append(*events, Event{Kind: EventDisconnected, Handle: h})
}

// Connections returns the number of currently live slots, reserved or
// connected.
func (s *Server) Connections() int {
	return s.connections.Len()
}
