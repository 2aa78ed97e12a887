// Package client implements the connecting half of the protocol: a slot
// table of outbound connections, each progressing Connecting → Connected →
// (expired). See spec §4.4, grounded on
// original_source/netstack/src/client/mod.rs for the overall shape, with the
// handshake/replay/ack machinery built out per the distilled specification
// (the original client is a thin send/receive wrapper with no state machine
// of its own).
package client

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

// Client is one endpoint of the protocol that initiates connections to
// addresses it already holds a (secret, connection_token) pair for. It is
// not safe for concurrent use: every method must be called from the single
// tick loop that owns it (spec §5).
type Client struct {
	transport transport.Transport
	config    Config
	monitor   netstackmetrics.Monitor
	logger    zerolog.Logger

	connections *slottable.List
	states      *slottable.DataList[ConnectionState]
	remotes     *slottable.DataList[netip.AddrPort]
	secrets     *slottable.DataList[token.Secret]
	tokens      *slottable.DataList[token.ConnectionToken]
	timeouts    *slottable.DataList[int]
	heartbeats  *slottable.DataList[int]
	sendSeq     *slottable.DataList[uint64]
	recvWindow  *slottable.DataList[replay.Buffer]
	ackMirror   *slottable.DataList[replay.Buffer]

	addrToHandle map[netip.AddrPort]slottable.Handle
}

// New creates a Client with a fixed-capacity slot table sized by
// config.MaxConnections. monitor may be netstackmetrics.Noop{}.
func New(config Config, t transport.Transport, monitor netstackmetrics.Monitor, logger zerolog.Logger) *Client {
	n := config.MaxConnections
	return &Client{
		transport: t,
		config:    config,
		monitor:   monitor,
		logger:    logger,

		connections: slottable.New(n),
		states:      slottable.NewDataList[ConnectionState](n),
		remotes:     slottable.NewDataList[netip.AddrPort](n),
		secrets:     slottable.NewDataList[token.Secret](n),
		tokens:      slottable.NewDataList[token.ConnectionToken](n),
		timeouts:    slottable.NewDataList[int](n),
		heartbeats:  slottable.NewDataList[int](n),
		sendSeq:     slottable.NewDataList[uint64](n),
		recvWindow:  slottable.NewDataList[replay.Buffer](n),
		ackMirror:   slottable.NewDataList[replay.Buffer](n),

		addrToHandle: make(map[netip.AddrPort]slottable.Handle),
	}
}

// Connect begins a handshake with remoteAddress, authenticated with secret
// and identified to the peer by connectionToken (both must already have
// reached this host through an out-of-band channel, typically matching a
// prior call to Server.Reserve on the other end). It sends the first
// Connection packet before returning.
func (c *Client) Connect(remoteAddress netip.AddrPort, secret token.Secret, connectionToken token.ConnectionToken) (slottable.Handle, error) {
	if _, found := c.addrToHandle[remoteAddress]; found {
		return slottable.Handle{}, ErrAlreadyConnectedToAddress
	}

	h, ok := c.connections.Create()
	if !ok {
		return slottable.Handle{}, ErrMaxConnectionsReached
	}

	c.states.Set(h, Connecting)
	c.remotes.Set(h, remoteAddress)
	c.secrets.Set(h, secret)
	c.tokens.Set(h, connectionToken)
	c.timeouts.Set(h, c.config.Timeout)
	c.heartbeats.Set(h, c.config.Heartbeat)
	c.sendSeq.Set(h, 0)
	c.recvWindow.Set(h, replay.Buffer{})
	c.ackMirror.Set(h, replay.Buffer{})
	c.addrToHandle[remoteAddress] = h

	c.monitor.Connecting()

	if _, err := c.sendInternal(h, packet.Connection, connectionToken[:]); err != nil {
		return h, err
	}
	return h, nil
}

// Update drains every datagram currently available from the transport,
// advances every slot's timeout and heartbeat by one tick, and returns the
// events produced. It never blocks.
func (c *Client) Update() []Event {
	var events []Event
	c.monitor.Tick()

	var buf [packet.MTU]byte
	for {
		n, addr, ok, err := c.transport.Poll(buf[:])
		if err != nil {
			c.logger.Warn().Err(err).Msg("transport poll error")
			break
		}
		if !ok {
			break
		}

		h, found := c.addrToHandle[addr]
		if !found {
			c.logger.Debug().Msg("dropped packet from unregistered address")
			continue
		}
		c.handleMessage(h, buf[:n], &events)
	}

	var expired []slottable.Handle
	c.connections.Iterate(func(h slottable.Handle) {
		timeout, _ := c.timeouts.Get(h)
		timeout--
		if timeout <= 0 {
			expired = append(expired, h)
			return
		}
		c.timeouts.Set(h, timeout)

		state, _ := c.states.Get(h)
		heartbeat, _ := c.heartbeats.Get(h)
		heartbeat--
		if heartbeat <= 0 {
			switch state {
			case Connected:
				c.sendHeartbeatMessage(h)
			case Connecting:
				c.retransmitConnectionPacket(h)
			}
		} else {
			c.heartbeats.Set(h, heartbeat)
		}
	})

	for _, h := range expired {
		c.expire(h, &events)
	}

	return events
}

// Send transmits payload as a Payload packet to handle, returning the
// sequence number assigned. handle must refer to a Connected slot.
func (c *Client) Send(handle slottable.Handle, payload []byte) (uint64, error) {
	state, ok := c.states.Get(handle)
	if !ok {
		return 0, ErrConnectionNotFound
	}
	switch state {
	case Connected:
		return c.sendInternal(handle, packet.Payload, payload)
	case Connecting:
		return 0, ErrConnectionStillConnecting
	default:
		return 0, ErrConnectionNotFound
	}
}

func (c *Client) sendInternal(h slottable.Handle, typ packet.Type, body []byte) (uint64, error) {
	seq, _ := c.sendSeq.Get(h)
	seq++
	c.sendSeq.Set(h, seq)

	secret, _ := c.secrets.Get(h)
	remote, _ := c.remotes.Get(h)

	window := c.recvWindow.GetPtr(h)
	ackSeq, ackBits := window.GetAckBits()

	var buf [packet.MTU]byte
	raw, err := packet.Sign(buf[:], secret, seq, ackSeq, ackBits, typ, body)
	if err != nil {
		return 0, err
	}

	if _, err := c.transport.Send(remote, raw); err != nil {
		return 0, err
	}

	c.heartbeats.Set(h, c.config.Heartbeat)
	c.monitor.MessageSent()
	return seq, nil
}

func (c *Client) sendHeartbeatMessage(h slottable.Handle) {
	if _, err := c.sendInternal(h, packet.Heartbeat, nil); err != nil {
		c.logger.Warn().Err(err).Msg("could not send heartbeat")
	}
}

func (c *Client) retransmitConnectionPacket(h slottable.Handle) {
	ct, _ := c.tokens.Get(h)
	if _, err := c.sendInternal(h, packet.Connection, ct[:]); err != nil {
		c.logger.Warn().Err(err).Msg("could not retransmit connection packet")
	}
}

func (c *Client) handleMessage(h slottable.Handle, buf []byte, events *[]Event) {
	secret, _ := c.secrets.Get(h)
	verified, err := packet.Verify(buf, secret)
	if err != nil {
		c.logger.Debug().Err(err).Msg("dropped packet that failed verification")
		return
	}

	window := c.recvWindow.GetPtr(h)
	if !window.Acknowledge(verified.Sequence) {
		c.logger.Debug().Uint64("sequence", verified.Sequence).Msg("dropped replayed or stale sequence")
		return
	}

	if mirror := c.ackMirror.GetPtr(h); mirror != nil {
		for _, seq := range mirror.SetAckBits(verified.AckSequence, verified.AckBits) {
			c.monitor.MessageAcknowledged()
			*events = append(*events, Event{Kind: EventMessageAcknowledged, Handle: h, Sequence: seq})
		}
	}

	state, _ := c.states.Get(h)
	if state == Connecting {
		c.states.Set(h, Connected)
		c.timeouts.Set(h, c.config.Timeout)
		c.heartbeats.Set(h, c.config.Heartbeat)
		c.tokens.Remove(h)

		c.monitor.Connected()
		*events = append(*events, Event{Kind: EventConnected, Handle: h})

		if verified.Type == packet.Payload {
			c.monitor.MessageReceived()
			*events = append(*events, Event{Kind: EventMessage, Handle: h, Payload: verified.Body(), Sequence: verified.Sequence})
		}
		return
	}

	switch verified.Type {
	case packet.Payload:
		c.timeouts.Set(h, c.config.Timeout)
		c.monitor.MessageReceived()
		*events = append(*events, Event{Kind: EventMessage, Handle: h, Payload: verified.Body(), Sequence: verified.Sequence})
	case packet.Heartbeat:
		c.timeouts.Set(h, c.config.Timeout)
	case packet.Disconnect, packet.Disconnected:
		// Reserved for future graceful-shutdown work; tolerated, not acted on.
	default:
		c.logger.Debug().Str("type", verified.Type.String()).Msg("unexpected packet type")
	}
}

func (c *Client) expire(h slottable.Handle, events *[]Event) {
	if addr, ok := c.remotes.Get(h); ok {
		delete(c.addrToHandle, addr)
	}

	c.states.Remove(h)
	c.remotes.Remove(h)
	c.secrets.Remove(h)
	c.tokens.Remove(h)
	c.timeouts.Remove(h)
	c.heartbeats.Remove(h)
	c.sendSeq.Remove(h)
	c.recvWindow.Remove(h)
	c.ackMirror.Remove(h)
	c.connections.Delete(h)

	c.monitor.Disconnected()
	*events = append(*events, Event{Kind: EventDisconnected, Handle: h})
}

// Connections returns the number of currently live slots, connecting or
// connected.
func (c *Client) Connections() int {
	return c.connections.Len()
}
