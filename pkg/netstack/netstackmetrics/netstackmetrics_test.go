package netstackmetrics

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetIncrementsAndExposes(t *testing.T) {
	s := NewSet("netstack_test")

	s.Tick()
	s.Tick()
	s.Reserved()
	s.Connected()
	s.Disconnected()
	s.MessageReceived()
	s.MessageSent()
	s.MessageAcknowledged()

	var buf bytes.Buffer
	s.WritePrometheus(&buf)

	out := buf.String()
	for _, want := range []string{
		`netstack_test_tick_total 2`,
		`netstack_test_reserved_total 1`,
		`netstack_test_connected_total 1`,
		`netstack_test_disconnected_total 1`,
		`netstack_test_message_received_total 1`,
		`netstack_test_message_sent_total 1`,
		`netstack_test_message_acknowledged_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected prometheus output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestNoopNeverPanics(t *testing.T) {
	var n Noop
	n.Tick()
	n.Reserved()
	n.Connecting()
	n.Connected()
	n.Disconnected()
	n.MessageReceived()
	n.MessageSent()
	n.MessageAcknowledged()
}
