// Package netstackmetrics implements the §6 Monitor collaborator on top of
// github.com/VictoriaMetrics/metrics, following the counter-set pattern used
// throughout the teacher's pkg/api/api0 and exposed the way
// pkg/nspkt.Listener.WritePrometheus does.
package netstackmetrics

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Monitor is the side-effect-only counter contract every endpoint drives.
// An empty implementation (see Noop) is always acceptable per spec §6.
type Monitor interface {
	Tick()
	Reserved()
	Connecting()
	Connected()
	Disconnected()
	MessageReceived()
	MessageSent()
	MessageAcknowledged()
}

// Noop is a Monitor that discards every callback.
type Noop struct{}

func (Noop) Tick()                {}
func (Noop) Reserved()            {}
func (Noop) Connecting()          {}
func (Noop) Connected()           {}
func (Noop) Disconnected()        {}
func (Noop) MessageReceived()     {}
func (Noop) MessageSent()         {}
func (Noop) MessageAcknowledged() {}

// Set is a Monitor backed by a private VictoriaMetrics metric set, with one
// counter per callback. Name is used as the metric family's base name (e.g.
// "netstack_server" or "netstack_client").
type Set struct {
	set *metrics.Set

	tick                 *metrics.Counter
	reserved             *metrics.Counter
	connecting           *metrics.Counter
	connected            *metrics.Counter
	disconnected         *metrics.Counter
	messageReceived      *metrics.Counter
	messageSent          *metrics.Counter
	messageAcknowledged  *metrics.Counter
}

// NewSet creates a Set whose metric names are prefixed with name (e.g.
// "netstack_server_tick_total").
func NewSet(name string) *Set {
	s := &Set{set: metrics.NewSet()}

	s.tick = s.set.NewCounter(name + `_tick_total`)
	s.reserved = s.set.NewCounter(name + `_reserved_total`)
	s.connecting = s.set.NewCounter(name + `_connecting_total`)
	s.connected = s.set.NewCounter(name + `_connected_total`)
	s.disconnected = s.set.NewCounter(name + `_disconnected_total`)
	s.messageReceived = s.set.NewCounter(name + `_message_received_total`)
	s.messageSent = s.set.NewCounter(name + `_message_sent_total`)
	s.messageAcknowledged = s.set.NewCounter(name + `_message_acknowledged_total`)

	return s
}

func (s *Set) Tick()                { s.tick.Inc() }
func (s *Set) Reserved()            { s.reserved.Inc() }
func (s *Set) Connecting()          { s.connecting.Inc() }
func (s *Set) Connected()           { s.connected.Inc() }
func (s *Set) Disconnected()        { s.disconnected.Inc() }
func (s *Set) MessageReceived()     { s.messageReceived.Inc() }
func (s *Set) MessageSent()         { s.messageSent.Inc() }
func (s *Set) MessageAcknowledged() { s.messageAcknowledged.Inc() }

// WritePrometheus writes the set's metrics in Prometheus text exposition
// format to w.
func (s *Set) WritePrometheus(w io.Writer) {
	s.set.WritePrometheus(w)
}
