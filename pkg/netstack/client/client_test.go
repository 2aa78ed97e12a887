package client

import (
	"net/netip"
	"testing"

	"github.com/rs/zerolog"

	"github.com/r2northstar/netstack/pkg/netstack/netstackmetrics"
	"github.com/r2northstar/netstack/pkg/netstack/packet"
	"github.com/r2northstar/netstack/pkg/netstack/replay"
	"github.com/r2northstar/netstack/pkg/netstack/slottable"
	"github.com/r2northstar/netstack/pkg/netstack/token"
	"github.com/r2northstar/netstack/pkg/netstack/transport"
)

var testConfig = Config{
	MaxConnections: 4,
	Timeout:        10,
	Heartbeat:      5,
}

func addrPort(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}

func newTestClient(net *transport.Network, addr netip.AddrPort) *Client {
	return New(testConfig, net.NewTransport(addr), netstackmetrics.Noop{}, zerolog.Nop())
}

func TestConnectSendsConnectionPacket(t *testing.T) {
	net := transport.NewNetwork()
	cli := newTestClient(net, addrPort("127.0.0.1:9400"))
	peer := net.NewTransport(addrPort("127.0.0.1:9401"))

	pair, err := token.New()
	if err != nil {
		t.Fatal(err)
	}

	h, err := cli.Connect(addrPort("127.0.0.1:9401"), pair.Secret, pair.ConnectionToken)
	if err != nil {
		t.Fatal(err)
	}

	var buf [packet.MTU]byte
	n, _, ok, err := peer.Poll(buf[:])
	if err != nil || !ok {
		t.Fatalf("expected the server side to see a connection packet, ok=%v err=%v", ok, err)
	}
	verified, err := packet.Verify(buf[:n], pair.Secret)
	if err != nil {
		t.Fatalf("connection packet failed verification: %v", err)
	}
	if verified.Type != packet.Connection {
		t.Fatalf("expected packet type Connection, got %v", verified.Type)
	}
	if ct, err := token.ParseConnectionToken(verified.Body()); err != nil || ct != pair.ConnectionToken {
		t.Fatalf("expected the connection token in the body, got %v err=%v", ct, err)
	}

	if cli.Connections() != 1 {
		t.Fatalf("expected 1 live connection, got %d", cli.Connections())
	}
	_ = h
}

func TestConnectTwiceToSameAddressFails(t *testing.T) {
	net := transport.NewNetwork()
	cli := newTestClient(net, addrPort("127.0.0.1:9500"))
	net.NewTransport(addrPort("127.0.0.1:9501"))

	pair, _ := token.New()
	if _, err := cli.Connect(addrPort("127.0.0.1:9501"), pair.Secret, pair.ConnectionToken); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.Connect(addrPort("127.0.0.1:9501"), pair.Secret, pair.ConnectionToken); err != ErrAlreadyConnectedToAddress {
		t.Fatalf("expected ErrAlreadyConnectedToAddress, got %v", err)
	}
}

func TestSendWhileConnectingFails(t *testing.T) {
	net := transport.NewNetwork()
	cli := newTestClient(net, addrPort("127.0.0.1:9600"))
	net.NewTransport(addrPort("127.0.0.1:9601"))

	pair, _ := token.New()
	h, err := cli.Connect(addrPort("127.0.0.1:9601"), pair.Secret, pair.ConnectionToken)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cli.Send(h, []byte("hi")); err != ErrConnectionStillConnecting {
		t.Fatalf("expected ErrConnectionStillConnecting, got %v", err)
	}

	if _, err := cli.Send(slottable.Handle{}, []byte("hi")); err != ErrConnectionNotFound {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestConnectingRetransmitsConnectionPacketOnHeartbeatTimer(t *testing.T) {
	net := transport.NewNetwork()
	cli := newTestClient(net, addrPort("127.0.0.1:9700"))
	peer := net.NewTransport(addrPort("127.0.0.1:9701"))

	pair, _ := token.New()
	if _, err := cli.Connect(addrPort("127.0.0.1:9701"), pair.Secret, pair.ConnectionToken); err != nil {
		t.Fatal(err)
	}

	var buf [packet.MTU]byte
	// drain the initial Connection packet sent by Connect.
	if _, _, ok, _ := peer.Poll(buf[:]); !ok {
		t.Fatal("expected the initial connection packet")
	}

	for i := 0; i < testConfig.Heartbeat; i++ {
		cli.Update()
	}

	n, _, ok, err := peer.Poll(buf[:])
	if err != nil || !ok {
		t.Fatalf("expected a retransmitted connection packet, ok=%v err=%v", ok, err)
	}
	verified, err := packet.Verify(buf[:n], pair.Secret)
	if err != nil || verified.Type != packet.Connection {
		t.Fatalf("expected a retransmitted Connection packet, got type=%v err=%v", verified.Type, err)
	}
}

func TestMessageAcknowledgedCarriesSequence(t *testing.T) {
	net := transport.NewNetwork()
	cli := newTestClient(net, addrPort("127.0.0.1:9800"))
	peer := net.NewTransport(addrPort("127.0.0.1:9801"))

	clientAddr := addrPort("127.0.0.1:9800")
	pair, _ := token.New()
	h, err := cli.Connect(addrPort("127.0.0.1:9801"), pair.Secret, pair.ConnectionToken)
	if err != nil {
		t.Fatal(err)
	}

	var buf [packet.MTU]byte
	if _, _, ok, _ := peer.Poll(buf[:]); !ok {
		t.Fatal("expected the initial connection packet")
	}

	// the peer accepts and sends a heartbeat so the client transitions to Connected.
	raw, err := packet.Sign(buf[:], pair.Secret, 1, 0, [4]byte{}, packet.Heartbeat, nil)
	if err != nil {
		t.Fatal(err)
	}
	hb := make([]byte, len(raw))
	copy(hb, raw)
	if _, err := peer.Send(clientAddr, hb); err != nil {
		t.Fatal(err)
	}
	cli.Update()

	seq, err := cli.Send(h, []byte("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok, _ := peer.Poll(buf[:]); !ok {
		t.Fatal("expected the payload packet to reach the peer")
	}

	// simulate the peer's own recvWindow having accepted that payload and
	// mirroring it back in an ack bitfield, the way handleMessage expects.
	var recvWindow replay.Buffer
	recvWindow.Acknowledge(seq)
	ackSeq, ackBits := recvWindow.GetAckBits()

	raw, err = packet.Sign(buf[:], pair.Secret, 2, ackSeq, ackBits, packet.Heartbeat, nil)
	if err != nil {
		t.Fatal(err)
	}
	ack := make([]byte, len(raw))
	copy(ack, raw)
	if _, err := peer.Send(clientAddr, ack); err != nil {
		t.Fatal(err)
	}

	events := cli.Update()
	var found bool
	for _, ev := range events {
		if ev.Kind == EventMessageAcknowledged {
			found = true
			if ev.Sequence != seq {
				t.Fatalf("expected acknowledged sequence %d, got %d", seq, ev.Sequence)
			}
		}
	}
	if !found {
		t.Fatalf("expected an EventMessageAcknowledged, got %+v", events)
	}
}
