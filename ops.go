package ringrt

import (
	"syscall"
	"time"

	"github.com/ioruntime/ringrt/internal/completer"
	"github.com/ioruntime/ringrt/internal/kring"
	"github.com/ioruntime/ringrt/internal/pagepool"
	"github.com/ioruntime/ringrt/internal/ref"
	"github.com/ioruntime/ringrt/internal/worker"
)

// Ops is the typed capability surface exposed to user futures (spec.md
// section 4.H). It bundles the current task's reference, the shared
// ring submitter, the completer registry, and the worker pool; it is
// cheap to duplicate for child futures because it is a small value
// type carrying only pointers and the owning task reference.
type Ops struct {
	task       ref.Task
	rt         *Runtime
	ring       *kring.Ring
	completers *completer.Registry
	tasks      *TaskRegistry
	workers    *worker.Pool
	pages      *pagepool.Pool
}

// StepFuture is the contract for a single in-flight kernel-ring or
// worker-pool operation: submit once, then report Pending until the
// operation's completer resolves. User futures compose StepFutures by
// holding one in their own state and delegating to it each Poll call —
// the idiomatic Go analogue of awaiting a sub-future.
type StepFuture interface {
	Poll(ops *Ops) (ready bool, value int32, err error)
}

// opState is embedded by every single-completer StepFuture (noop,
// read, write, close, timeout): submit on first poll, extract on every
// poll after.
type opState struct {
	completer ref.Completer
	submitted bool
	submitAt  time.Time
}

// Elapsed returns the time since this op's entry was submitted to the
// ring. Only meaningful once submitted is true.
func (s *opState) Elapsed() time.Duration {
	return time.Since(s.submitAt)
}

func (s *opState) poll(ops *Ops, kind completer.Kind, opName string, entry func(token uint64) kring.Entry) (bool, int32, error) {
	if !s.submitted {
		c, ok := ops.completers.Allocate(ops.task, kind)
		if !ok {
			return true, 0, NewTaskError(opName, packTask(ops.task), ErrCodeRegistryExhausted, "completer table full")
		}
		ops.tasks.IncCompleters(ops.task)

		if !ops.ring.Submit(entry(c.Encode())) {
			ops.completers.Free(c)
			ops.tasks.DecCompleters(ops.task)
			return true, 0, NewTaskError(opName, packTask(ops.task), ErrCodeSubmissionFailed, "ring at capacity")
		}
		s.completer = c
		s.submitted = true
		s.submitAt = time.Now()
		return false, 0, nil
	}

	out, ok := ops.completers.Extract(s.completer)
	if !ok {
		return true, 0, NewTaskError(opName, packTask(ops.task), ErrCodeInvariantViolation, "completer vanished under its owner")
	}

	switch out.State {
	case completer.Pending:
		return false, 0, nil
	case completer.Ready:
		ops.completers.Free(s.completer)
		ops.tasks.DecCompleters(ops.task)
		return true, out.Value, nil
	default: // completer.Failed
		ops.completers.Free(s.completer)
		ops.tasks.DecCompleters(ops.task)
		return true, out.Value, NewErrnoError(opName, packTask(ops.task), kring.Errno(out.Value))
	}
}

func packTask(t ref.Task) int64 {
	return int64(t.Gen)<<32 | int64(t.Index)
}

// Noop submits a no-op ring entry; used as a pure wakeup/round-trip
// primitive and in token-protocol smoke tests.
func (o *Ops) Noop() *NoopOp {
	return &NoopOp{}
}

type NoopOp struct{ opState }

func (f *NoopOp) Poll(ops *Ops) (bool, int32, error) {
	ready, value, err := f.poll(ops, completer.KindOp, "noop", func(token uint64) kring.Entry {
		return kring.NopEntry(token)
	})
	if ready {
		ops.rt.metrics.RecordNoop(uint64(f.Elapsed().Nanoseconds()))
	}
	return ready, value, err
}

// Read submits a read of len(buf) bytes from fd at offset (kring.NoOffset
// for the file's current position). buf must stay alive and unmoved
// until the future reports ready.
func (o *Ops) Read(fd int32, buf []byte, offset uint64) *ReadOp {
	return &ReadOp{fd: fd, buf: buf, offset: offset}
}

type ReadOp struct {
	opState
	fd     int32
	buf    []byte
	offset uint64
}

func (f *ReadOp) Poll(ops *Ops) (bool, int32, error) {
	ready, value, err := f.poll(ops, completer.KindOp, "read", func(token uint64) kring.Entry {
		return kring.ReadEntry(f.fd, f.buf, f.offset, token)
	})
	if ready {
		var bytes uint64
		if err == nil && value > 0 {
			bytes = uint64(value)
		}
		ops.rt.metrics.RecordRead(bytes, uint64(f.Elapsed().Nanoseconds()), err == nil)
	}
	return ready, value, err
}

// Write submits a write of buf to fd at offset.
func (o *Ops) Write(fd int32, buf []byte, offset uint64) *WriteOp {
	return &WriteOp{fd: fd, buf: buf, offset: offset}
}

type WriteOp struct {
	opState
	fd     int32
	buf    []byte
	offset uint64
}

func (f *WriteOp) Poll(ops *Ops) (bool, int32, error) {
	ready, value, err := f.poll(ops, completer.KindOp, "write", func(token uint64) kring.Entry {
		return kring.WriteEntry(f.fd, f.buf, f.offset, token)
	})
	if ready {
		var bytes uint64
		if err == nil && value > 0 {
			bytes = uint64(value)
		}
		ops.rt.metrics.RecordWrite(bytes, uint64(f.Elapsed().Nanoseconds()), err == nil)
	}
	return ready, value, err
}

// Close submits a close of fd.
func (o *Ops) Close(fd int32) *CloseOp {
	return &CloseOp{fd: fd}
}

type CloseOp struct {
	opState
	fd int32
}

func (f *CloseOp) Poll(ops *Ops) (bool, int32, error) {
	ready, value, err := f.poll(ops, completer.KindOp, "close", func(token uint64) kring.Entry {
		return kring.CloseEntry(f.fd, token)
	})
	if ready {
		ops.rt.metrics.RecordClose(uint64(f.Elapsed().Nanoseconds()))
	}
	return ready, value, err
}

// Timeout submits a relative kernel-ring timeout of sec seconds plus
// nsec nanoseconds. Zero duration is legal and completes essentially
// immediately (spec.md section 5).
func (o *Ops) Timeout(sec, nsec int64) *TimeoutOp {
	return &TimeoutOp{ts: unixTimespec(sec, nsec)}
}

type TimeoutOp struct {
	opState
	ts timespecHolder
}

func (f *TimeoutOp) Poll(ops *Ops) (bool, int32, error) {
	ready, value, err := f.poll(ops, completer.KindOp, "timeout", func(token uint64) kring.Entry {
		return kring.TimeoutEntry(f.ts.ptr(), token)
	})
	if err != nil && IsErrno(err, syscall.ETIME) {
		// ETIME is the kernel's normal "expired" signal for a timeout
		// op, not an operational failure (spec.md section 4.H/8).
		err = nil
		value = 0
	}
	if ready {
		ops.rt.metrics.RecordTimeout(uint64(f.Elapsed().Nanoseconds()), err == nil)
	}
	return ready, value, err
}

// Pipe creates an OS pipe synchronously: unlike the other operations,
// pipe creation has no meaningful asynchronous phase to submit through
// the ring, so it is a plain immediate syscall rather than a
// StepFuture.
func (o *Ops) Pipe() (readFD, writeFD int32, err error) {
	return newPipe()
}
