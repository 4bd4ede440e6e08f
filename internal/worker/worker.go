// Package worker implements the CPU worker pool of spec.md section
// 4.G: a fixed set of goroutines, each pinned to its own OS thread,
// that run caller-supplied blocking closures off the driver thread and
// report back over a pair of real OS pipes. Those pipes are ordinary
// file descriptors — the command write and result read are themselves
// plain kernel-ring submissions, so cross-thread completions flow
// through the same completion path as everything else.
//
// This generalizes the teacher's per-queue goroutine (queue/runner.go's
// ioLoop, pinned via runtime.LockOSThread) from "one fixed ublk queue
// loop" to "N interchangeable job runners, dispatched a closure at a
// time".
package worker

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/ioruntime/ringrt/internal/logging"
)

// Job is a unit of blocking work submitted to the pool. It runs on a
// dedicated, locked OS thread and returns a single int32 result — the
// same shape as a kernel-ring completion, so its outcome can be posted
// through the completer registry without a second result type.
type Job func() int32

// Worker owns one goroutine locked to its own OS thread, and the two
// pipes used to signal it. CmdR/ResultW are the ends the worker itself
// reads/writes; CmdW/ResultR are the driver-side ends, meant to be
// wired into the kernel ring as ordinary write/read submissions.
type Worker struct {
	index int

	cmdR, cmdW       int
	resultR, resultW int

	job    chan Job
	result chan int32

	done chan struct{}
}

// Pool is the fixed-size set of workers spawn_cpu dispatches onto. At
// most one job is ever in flight per worker, matching spec.md's "a
// worker accepts at most one outstanding job" invariant.
type Pool struct {
	workers []*Worker
	free    []int // indices of idle workers, LIFO
	log     *logging.Logger
}

// New creates a pool of size workers, each backed by a pair of
// kernel pipes. If any worker's pipes fail to open, the ones already
// created are torn down and the error is returned.
func New(size int, log *logging.Logger) (*Pool, error) {
	if log == nil {
		log = logging.Default()
	}

	p := &Pool{log: log}
	for i := 0; i < size; i++ {
		w, err := newWorker(i)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("worker: spawning worker %d: %w", i, err)
		}
		p.workers = append(p.workers, w)
		p.free = append(p.free, i)
		w.start(log)
	}
	return p, nil
}

func newWorker(index int) (*Worker, error) {
	cmdFds := make([]int, 2)
	if err := unix.Pipe2(cmdFds, 0); err != nil {
		return nil, fmt.Errorf("command pipe: %w", err)
	}
	resultFds := make([]int, 2)
	if err := unix.Pipe2(resultFds, 0); err != nil {
		unix.Close(cmdFds[0])
		unix.Close(cmdFds[1])
		return nil, fmt.Errorf("result pipe: %w", err)
	}

	return &Worker{
		index:    index,
		cmdR:     cmdFds[0],
		cmdW:     cmdFds[1],
		resultR:  resultFds[0],
		resultW:  resultFds[1],
		job:      make(chan Job, 1),
		result:   make(chan int32, 1),
		done:     make(chan struct{}),
	}, nil
}

// start launches the worker's goroutine. It is pinned to its OS thread
// for the goroutine's whole lifetime: the command/result pipes are
// ordinary fds shared with the driver, but the blocking Job itself may
// rely on thread-local state (e.g. a set CPU affinity), so the thread
// is never handed back to Go's scheduler mid-job.
//
// A dispatched job is handed to the worker over the job channel (our
// in-process stand-in for serializing a closure into a pipe record),
// but the worker does not start running it until it observes the
// one-byte sentinel the driver writes to cmdW through the kernel ring —
// that byte, not the channel send, is the event the ring can see and
// order against other submissions. Symmetrically the worker signals
// completion by writing a sentinel to resultW itself, directly and
// synchronously, so the driver's ring-submitted read of resultR
// observes exactly one byte per job.
func (w *Worker) start(log *logging.Logger) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		sentinel := make([]byte, 1)
		log.Debugf("worker %d: started", w.index)
		for {
			select {
			case <-w.done:
				log.Debugf("worker %d: shutting down", w.index)
				return
			case job := <-w.job:
				if n, err := unix.Read(w.cmdR, sentinel); err != nil || n == 0 {
					log.Debugf("worker %d: command pipe closed, exiting", w.index)
					return
				}
				res := job()
				w.result <- res
				if _, err := unix.Write(w.resultW, sentinel); err != nil {
					log.Warnf("worker %d: result pipe write failed: %v", w.index, err)
					return
				}
			}
		}
	}()
}

// CmdWriteFD, CmdReadFD, ResultWriteFD and ResultReadFD expose the four
// pipe endpoints a driver wires into kernel-ring submissions: the
// driver writes a one-byte sentinel to CmdWriteFD to hand off a job
// that was already placed on the worker's channel, and reads one byte
// from ResultReadFD once the worker has posted its outcome.
func (w *Worker) CmdWriteFD() int32   { return int32(w.cmdW) }
func (w *Worker) CmdReadFD() int32    { return int32(w.cmdR) }
func (w *Worker) ResultWriteFD() int32 { return int32(w.resultW) }
func (w *Worker) ResultReadFD() int32  { return int32(w.resultR) }

// Dispatch hands job to the worker to run. The caller must not call
// Dispatch again until Collect has drained this job's result.
func (w *Worker) Dispatch(job Job) {
	w.job <- job
}

// Collect blocks until the dispatched job's result is available.
func (w *Worker) Collect() int32 {
	return <-w.result
}

// Acquire removes and returns an idle worker from the pool. ok is
// false when every worker already has a job in flight — the caller
// must wait for a Release before trying again.
func (p *Pool) Acquire() (*Worker, bool) {
	if len(p.free) == 0 {
		return nil, false
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return p.workers[idx], true
}

// Release returns w to the idle set once its job has been fully
// collected.
func (p *Pool) Release(w *Worker) {
	p.free = append(p.free, w.index)
}

// Size returns the pool's fixed worker count.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Idle returns the number of workers currently not dispatched.
func (p *Pool) Idle() int {
	return len(p.free)
}

// Close signals every worker to exit and closes its pipes. It does not
// wait for in-flight jobs to finish; callers should only Close after
// draining all outstanding work.
func (p *Pool) Close() error {
	var firstErr error
	for _, w := range p.workers {
		close(w.done)
		for _, fd := range []int{w.cmdR, w.cmdW, w.resultR, w.resultW} {
			if err := unix.Close(fd); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
