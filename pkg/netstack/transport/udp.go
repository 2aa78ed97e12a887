package transport

import (
	"errors"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/r2northstar/netstack/pkg/netstack/packet"
)

// batchSize is how many datagrams a single ReadBatch call asks the kernel
// for. Anything queued beyond what a tick's caller drains via Poll just sits
// in t.queued until the next call.
const batchSize = 32

// UDPTransport adapts a bound *net.UDPConn to the Transport interface. Poll
// is made non-blocking by racing a zero-duration read deadline against the
// socket; the protocol core here is cooperatively scheduled and must not
// block inside Update.
//
// When the platform supports it, receives go through an ipv4.PacketConn's
// ReadBatch (recvmmsg under the hood on Linux) instead of one
// ReadFromUDPAddrPort per datagram, the same batching
// github.com/xtaci/kcp-go uses its xconn for. Poll still hands back one
// datagram at a time; batches just get drained from t.queued across several
// Poll calls instead of making one syscall per call.
type UDPTransport struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn // non-nil when batched receive is usable

	msgs   []ipv4.Message // batch buffers, reused across ReadBatch calls
	queued []ipv4.Message // messages already read from msgs, not yet drained by Poll
}

// NewUDPTransport wraps conn, which should already be bound via
// net.ListenUDP (by both server and client). A connected socket from
// net.DialUDP does not work with Send, which always passes a destination
// address. conn must not be used directly afterwards.
func NewUDPTransport(conn *net.UDPConn) *UDPTransport {
	t := &UDPTransport{conn: conn}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagDst, false); err == nil {
		t.pc = pc
		t.msgs = make([]ipv4.Message, batchSize)
		for i := range t.msgs {
			t.msgs[i].Buffers = [][]byte{make([]byte, packet.MTU)}
		}
	}
	return t
}

// Poll implements Transport. It never blocks: the read deadline is set to
// the current time before each attempt, so an empty socket returns
// ok=false, err=nil instead of waiting for a datagram.
func (t *UDPTransport) Poll(buf []byte) (n int, addr netip.AddrPort, ok bool, err error) {
	if t.pc != nil {
		return t.pollBatch(buf)
	}
	return t.pollSingle(buf)
}

func (t *UDPTransport) pollBatch(buf []byte) (n int, addr netip.AddrPort, ok bool, err error) {
	if len(t.queued) == 0 {
		if err := t.conn.SetReadDeadline(time.Now()); err != nil {
			return 0, netip.AddrPort{}, false, err
		}

		nr, rErr := t.pc.ReadBatch(t.msgs, 0)
		if rErr != nil {
			if errors.Is(rErr, os.ErrDeadlineExceeded) {
				return 0, netip.AddrPort{}, false, nil
			}
			return 0, netip.AddrPort{}, false, rErr
		}
		if nr == 0 {
			return 0, netip.AddrPort{}, false, nil
		}
		t.queued = t.msgs[:nr]
	}

	msg := t.queued[0]
	t.queued = t.queued[1:]

	ap, err := addrPortOf(msg.Addr)
	if err != nil {
		return 0, netip.AddrPort{}, false, err
	}

	n = copy(buf, msg.Buffers[0][:msg.N])
	return n, ap, true, nil
}

func (t *UDPTransport) pollSingle(buf []byte) (n int, addr netip.AddrPort, ok bool, err error) {
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, netip.AddrPort{}, false, err
	}

	rn, rAddr, rErr := t.conn.ReadFromUDPAddrPort(buf)
	if rErr != nil {
		if errors.Is(rErr, os.ErrDeadlineExceeded) {
			return 0, netip.AddrPort{}, false, nil
		}
		return 0, netip.AddrPort{}, false, rErr
	}

	return rn, rAddr.Unmap(), true, nil
}

func addrPortOf(a net.Addr) (netip.AddrPort, error) {
	if udpAddr, ok := a.(*net.UDPAddr); ok {
		return udpAddr.AddrPort().Unmap(), nil
	}
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return netip.AddrPort{}, err
	}
	return ap.Unmap(), nil
}

// Send implements Transport.
func (t *UDPTransport) Send(addr netip.AddrPort, buf []byte) (int, error) {
	n, _, err := t.conn.WriteMsgUDPAddrPort(buf, nil, addr)
	return n, err
}

// LocalAddr returns the transport's bound local address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close closes the underlying socket.
func (t *UDPTransport) Close() error {
	if t.pc != nil {
		_ = t.pc.Close()
	}
	return t.conn.Close()
}
