package slottable

import "testing"

func TestCreateDeleteGeneration(t *testing.T) {
	l := New(2)

	h1, ok := l.Create()
	if !ok {
		t.Fatal("expected create to succeed")
	}
	if h1.Generation%2 == 0 {
		t.Errorf("expected odd generation for live handle, got %d", h1.Generation)
	}

	if !l.Delete(h1) {
		t.Fatal("expected delete to succeed")
	}
	if l.Delete(h1) {
		t.Error("expected second delete of the same handle to fail")
	}
	if l.Valid(h1) {
		t.Error("expected handle to be invalid after delete")
	}
}

func TestMaximumConnectionsReached(t *testing.T) {
	l := New(1)

	if _, ok := l.Create(); !ok {
		t.Fatal("expected first create to succeed")
	}
	if _, ok := l.Create(); ok {
		t.Error("expected second create to fail: table is full")
	}
}

func TestStaleHandleRejectedByDataList(t *testing.T) {
	l := New(1)
	d := NewDataList[string](1)

	h1, _ := l.Create()
	d.Set(h1, "hello")

	l.Delete(h1)
	h2, _ := l.Create()

	if _, ok := d.Get(h1); ok {
		t.Error("expected stale handle to be rejected by Get")
	}
	if ok := d.Set(h1, "stale write"); ok {
		t.Error("expected stale handle to be rejected by Set")
	}
	d.Remove(h1) // no-op, must not disturb h2's slot

	if !d.Set(h2, "fresh") {
		t.Fatal("expected fresh handle to be settable")
	}
	if v, ok := d.Get(h2); !ok || v != "fresh" {
		t.Errorf("expected fresh value, got %q, %v", v, ok)
	}
}

func TestIterateOnlyLive(t *testing.T) {
	l := New(3)

	h1, _ := l.Create()
	h2, _ := l.Create()
	l.Delete(h1)

	var seen []Handle
	l.Iterate(func(h Handle) { seen = append(seen, h) })

	if len(seen) != 1 || seen[0] != h2 {
		t.Errorf("expected only h2 to be live, got %v", seen)
	}
}

func TestAtMostOneSlotPerRemoteAddressInvariantHelper(t *testing.T) {
	// The slot table itself doesn't know about addresses; this exercises the
	// generation fencing that makes the "one slot per address" invariant
	// enforceable by a caller-maintained address->handle map: once a slot is
	// retired and its id reused, a DataList keyed on the old handle must never
	// resolve to the new occupant's data.
	l := New(1)
	d := NewDataList[int](1)

	h1, _ := l.Create()
	d.Set(h1, 1)
	l.Delete(h1)

	h2, _ := l.Create()
	d.Set(h2, 2)

	if v, ok := d.Get(h1); ok {
		t.Errorf("expected h1 to be stale, got value %d", v)
	}
	if v, ok := d.Get(h2); !ok || v != 2 {
		t.Errorf("expected h2 to read back 2, got %d, %v", v, ok)
	}
}
