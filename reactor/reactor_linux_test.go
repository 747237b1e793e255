//go:build linux

package reactor

import "testing"

func TestTicklePipeWakesWait(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	rd, wr, err := NewTicklePipe()
	if err != nil {
		t.Fatalf("NewTicklePipe: %v", err)
	}

	if err := r.Add(rd, EventRead, 0xdead); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := Tickle(wr); err != nil {
		t.Fatalf("Tickle: %v", err)
	}

	out := make([]ReadyEvent, 4)
	n, err := r.Wait(out, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 {
		t.Fatalf("Wait returned %d events, want 1", n)
	}
	if out[0].UserData != 0xdead {
		t.Fatalf("UserData = %#x, want 0xdead", out[0].UserData)
	}
	if out[0].Events&EventRead == 0 {
		t.Fatalf("Events = %v, want EventRead set", out[0].Events)
	}

	if err := DrainPipe(rd); err != nil {
		t.Fatalf("DrainPipe: %v", err)
	}
}

func TestWaitTimesOutWithNoEvents(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	out := make([]ReadyEvent, 4)
	n, err := r.Wait(out, 50)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 0 {
		t.Fatalf("Wait returned %d events, want 0", n)
	}
}

func TestDeleteRemovesRegistration(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	rd, wr, err := NewTicklePipe()
	if err != nil {
		t.Fatalf("NewTicklePipe: %v", err)
	}

	if err := r.Add(rd, EventRead, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Delete(rd); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := Tickle(wr); err != nil {
		t.Fatalf("Tickle: %v", err)
	}

	out := make([]ReadyEvent, 4)
	n, err := r.Wait(out, 50)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 0 {
		t.Fatalf("Wait returned %d events after Delete, want 0", n)
	}
}
