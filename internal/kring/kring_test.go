package kring

import (
	"testing"

	"golang.org/x/sys/unix"
)

// newTestRing skips the test when the host kernel doesn't support
// io_uring (unprivileged containers, old kernels, seccomp filters) —
// these tests exercise a real kernel ring and can't run everywhere.
func newTestRing(t *testing.T, entries uint32) *Ring {
	t.Helper()
	r, err := New(entries)
	if err != nil {
		t.Skipf("io_uring unavailable on this host: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNew_Capacity(t *testing.T) {
	r := newTestRing(t, 8)
	if r.Capacity() != 8 {
		t.Fatalf("Capacity() = %d, want 8", r.Capacity())
	}
}

func TestSubmitFlushDrain_Nop(t *testing.T) {
	r := newTestRing(t, 8)

	if !r.Submit(Entry{Op: OpNop, UserData: 42}) {
		t.Fatal("Submit should succeed on an empty ring")
	}
	if _, err := r.Flush(true); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	completions := r.Drain()
	if len(completions) != 1 {
		t.Fatalf("Drain() = %d completions, want 1", len(completions))
	}
	if completions[0].UserData != 42 {
		t.Errorf("UserData = %d, want 42", completions[0].UserData)
	}
	if completions[0].Result != 0 {
		t.Errorf("Result = %d, want 0 for nop", completions[0].Result)
	}
}

func TestSubmit_FullRingReturnsFalse(t *testing.T) {
	r := newTestRing(t, 2)

	for i := 0; i < 2; i++ {
		if !r.Submit(Entry{Op: OpNop, UserData: uint64(i)}) {
			t.Fatalf("Submit %d should succeed within capacity", i)
		}
	}
	if r.Submit(Entry{Op: OpNop, UserData: 99}) {
		t.Fatal("Submit beyond ring capacity should return false")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	r := newTestRing(t, 8)

	fds := make([]int, 2)
	if err := unix.Pipe2(fds, 0); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	out := []byte("hello ring")
	r.Submit(WriteEntry(int32(fds[1]), out, NoOffset, 1))
	if _, err := r.Flush(true); err != nil {
		t.Fatalf("Flush write: %v", err)
	}
	writeCompletions := r.Drain()
	if len(writeCompletions) != 1 || writeCompletions[0].Result != int32(len(out)) {
		t.Fatalf("write completion = %+v, want result %d", writeCompletions, len(out))
	}

	in := make([]byte, len(out))
	r.Submit(ReadEntry(int32(fds[0]), in, NoOffset, 2))
	if _, err := r.Flush(true); err != nil {
		t.Fatalf("Flush read: %v", err)
	}
	readCompletions := r.Drain()
	if len(readCompletions) != 1 || readCompletions[0].Result != int32(len(out)) {
		t.Fatalf("read completion = %+v, want result %d", readCompletions, len(out))
	}
	if string(in) != string(out) {
		t.Fatalf("read back %q, want %q", in, out)
	}
}

func TestClose_ClosesFD(t *testing.T) {
	r := newTestRing(t, 8)

	fds := make([]int, 2)
	if err := unix.Pipe2(fds, 0); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	defer unix.Close(fds[1])

	r.Submit(CloseEntry(int32(fds[0]), 7))
	if _, err := r.Flush(true); err != nil {
		t.Fatalf("Flush close: %v", err)
	}
	completions := r.Drain()
	if len(completions) != 1 || completions[0].Result != 0 {
		t.Fatalf("close completion = %+v, want result 0", completions)
	}

	if err := unix.Close(fds[0]); err == nil {
		t.Fatal("fd should already be closed by the ring close op")
	}
}

func TestTimeout_ZeroDurationCompletesImmediately(t *testing.T) {
	r := newTestRing(t, 8)

	ts := &unix.Timespec{Sec: 0, Nsec: 0}
	r.Submit(TimeoutEntry(ts, 3))
	if _, err := r.Flush(true); err != nil {
		t.Fatalf("Flush timeout: %v", err)
	}

	completions := r.Drain()
	if len(completions) != 1 {
		t.Fatalf("Drain() = %d completions, want 1", len(completions))
	}
	// ETIME (-62) is the kernel's normal "expired" signal for a timeout
	// op; it is not an operational failure.
	if completions[0].Result != 0 && Errno(completions[0].Result) != unix.ETIME {
		t.Fatalf("timeout result = %d, want 0 or -ETIME", completions[0].Result)
	}
}
