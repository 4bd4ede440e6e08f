package ringrt

import (
	"time"

	"github.com/ioruntime/ringrt/internal/completer"
	"github.com/ioruntime/ringrt/internal/kring"
	"github.com/ioruntime/ringrt/internal/pagepool"
	"github.com/ioruntime/ringrt/internal/worker"
)

// SpawnCPU dispatches closure onto an idle CPU worker and returns a
// StepFuture resolving to its int32 result (spec.md section 4.G/4.H).
// The value type is narrowed from the spec's arbitrary "Send closure
// returning a value" to int32 so every completer in the system shares
// one result-cell shape (see DESIGN.md) — callers needing a richer
// result encode it into an int32 themselves (as the end-to-end test in
// spec.md section 8 scenario 4 does, returning 42 directly).
func (o *Ops) SpawnCPU(closure func() int32) *CPUOp {
	return &CPUOp{closure: closure}
}

type cpuPhase int

const (
	cpuAcquire cpuPhase = iota
	cpuQueueWait
	cpuExecuteWait
)

// CPUOp runs closure's dispatch protocol verbatim from spec.md section
// 4.G: acquire a worker, hand off the closure, submit a Queue-kind
// write of a one-byte sentinel to its command pipe, then on that
// write's completion submit an Execute-kind read of its result pipe,
// and on that completion collect the real value and release the
// worker. The one-byte sentinel the ring writes/reads lives in a
// page-pool slot acquired alongside the worker, rather than a
// goroutine-local array — the same backing-store discipline spec.md
// section 4.B/4.E applies to every other runtime-internal allocation.
type CPUOp struct {
	closure func() int32

	phase  cpuPhase
	worker *worker.Worker
	op     opState
	slot   pagepool.Slot
	start  time.Time
}

func (f *CPUOp) Poll(ops *Ops) (bool, int32, error) {
	switch f.phase {
	case cpuAcquire:
		f.start = time.Now()
		w, ok := ops.workers.Acquire()
		if !ok {
			f.record(ops, false)
			return true, 0, NewTaskError("spawn_cpu", packTask(ops.task), ErrCodeWorkerUnavailable, "no idle CPU worker")
		}
		slot, err := acquirePage(ops.pages)
		if err != nil {
			ops.workers.Release(w)
			f.record(ops, false)
			return true, 0, NewTaskError("spawn_cpu", packTask(ops.task), ErrCodeAllocationFailed, "no sentinel buffer available")
		}
		f.worker = w
		f.slot = slot
		f.worker.Dispatch(f.closure)
		f.slot.Bytes[0] = 1
		f.phase = cpuQueueWait
		fallthrough

	case cpuQueueWait:
		ready, _, err := f.op.poll(ops, completer.KindQueue, "spawn_cpu_queue", func(token uint64) kring.Entry {
			return kring.WriteEntry(f.worker.CmdWriteFD(), f.slot.Bytes[:1], kring.NoOffset, token)
		})
		if err != nil {
			f.release(ops)
			f.record(ops, false)
			return true, 0, err
		}
		if !ready {
			return false, 0, nil
		}
		f.op = opState{}
		f.phase = cpuExecuteWait
		fallthrough

	case cpuExecuteWait:
		ready, _, err := f.op.poll(ops, completer.KindExecute, "spawn_cpu_execute", func(token uint64) kring.Entry {
			return kring.ReadEntry(f.worker.ResultReadFD(), f.slot.Bytes[:1], kring.NoOffset, token)
		})
		if err != nil {
			f.release(ops)
			f.record(ops, false)
			return true, 0, err
		}
		if !ready {
			return false, 0, nil
		}
		value := f.worker.Collect()
		f.release(ops)
		f.record(ops, true)
		return true, value, nil
	}

	panic("unreachable cpu phase")
}

func (f *CPUOp) release(ops *Ops) {
	ops.workers.Release(f.worker)
	releasePage(ops.pages, f.slot)
	f.slot = pagepool.Slot{}
}

func (f *CPUOp) record(ops *Ops, success bool) {
	ops.rt.metrics.RecordSpawnCPU(uint64(time.Since(f.start).Nanoseconds()), success)
}
