package replay

import "testing"

func TestReplayRejection(t *testing.T) {
	var b Buffer

	if !b.Acknowledge(15) {
		t.Fatal("expected first acknowledge(15) to be accepted")
	}
	if b.Acknowledge(15) {
		t.Fatal("expected second acknowledge(15) to be rejected as a replay")
	}
	if !b.IsAcknowledged(15) {
		t.Fatal("expected 15 to be acknowledged")
	}
}

func TestWindowExpiry(t *testing.T) {
	var b Buffer

	if !b.Acknowledge(1000) {
		t.Fatal("expected acknowledge(1000) to be accepted")
	}
	if !b.Acknowledge(2000) {
		t.Fatal("expected acknowledge(2000) to be accepted")
	}
	if b.IsAcknowledged(1000) {
		t.Fatal("expected 1000 to have fallen out of the window")
	}
}

func TestAckBitfieldRoundTrip(t *testing.T) {
	var src Buffer
	for seq := uint64(60); seq <= 63; seq++ {
		if !src.Acknowledge(seq) {
			t.Fatalf("expected acknowledge(%d) to be accepted", seq)
		}
	}

	ackSeq, bits := src.GetAckBits()
	if ackSeq != 64 {
		t.Errorf("expected ack sequence 64, got %d", ackSeq)
	}
	if bits != [4]byte{0x00, 0x00, 0x00, 0x0F} {
		t.Errorf("expected bits [00 00 00 0F], got %x", bits)
	}

	var dst Buffer
	newlyAcked := dst.SetAckBits(ackSeq, bits)
	if len(newlyAcked) != 4 {
		t.Errorf("expected 4 newly acknowledged sequences, got %d: %v", len(newlyAcked), newlyAcked)
	}

	for seq := uint64(60); seq <= 63; seq++ {
		if !dst.IsAcknowledged(seq) {
			t.Errorf("expected %d to be acknowledged on target", seq)
		}
	}
	if dst.IsAcknowledged(59) {
		t.Error("expected 59 to not be acknowledged on target")
	}
	if dst.IsAcknowledged(64) {
		t.Error("expected 64 to not be acknowledged on target")
	}
}

func TestAcknowledgeAtMostOncePerSequence(t *testing.T) {
	var b Buffer
	for seq := uint64(0); seq < 200; seq++ {
		if !b.Acknowledge(seq) {
			t.Fatalf("expected sequential acknowledge(%d) to be accepted", seq)
		}
		if b.Acknowledge(seq) {
			t.Fatalf("expected replayed acknowledge(%d) to be rejected", seq)
		}
	}
}

func FuzzAcknowledgeNeverPanics(f *testing.F) {
	f.Add(uint64(0))
	f.Add(uint64(15))
	f.Add(uint64(1 << 40))

	f.Fuzz(func(t *testing.T, seq uint64) {
		var b Buffer
		b.Acknowledge(seq)
		b.IsAcknowledged(seq)
		b.GetAckBits()
	})
}
