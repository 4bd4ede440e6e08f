// Package ringrt is a freestanding cooperative runtime built directly
// on Linux's io_uring submission interface: a single-threaded driver
// polls user futures, submits their work through the kernel ring, and
// hands blocking closures to a small CPU worker pool reached over
// intra-process pipes.
package ringrt

import (
	"fmt"

	"github.com/ioruntime/ringrt/internal/completer"
	"github.com/ioruntime/ringrt/internal/kring"
	"github.com/ioruntime/ringrt/internal/logging"
	"github.com/ioruntime/ringrt/internal/pagepool"
	"github.com/ioruntime/ringrt/internal/ref"
	"github.com/ioruntime/ringrt/internal/worker"
)

// Options configures a Runtime. Zero-value fields fall back to the
// constants.go defaults.
type Options struct {
	RingEntries       uint32
	TaskCapacity      int
	CompleterCapacity int
	PagePoolCapacity  int
	WorkerCount       int

	// CPUAffinity is accepted but not read by New: worker goroutines
	// are not pinned to any CPU, whatever it holds.
	CPUAffinity []int

	Logger *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.RingEntries == 0 {
		o.RingEntries = DefaultRingEntries
	}
	if o.TaskCapacity == 0 {
		o.TaskCapacity = DefaultTaskCapacity
	}
	if o.CompleterCapacity == 0 {
		o.CompleterCapacity = DefaultCompleterCapacity
	}
	if o.PagePoolCapacity == 0 {
		o.PagePoolCapacity = DefaultPagePoolCapacity
	}
	if o.WorkerCount == 0 {
		o.WorkerCount = DefaultWorkerCount
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	return o
}

type joinRecord struct {
	errMsg []byte
}

// Runtime owns every shared-resource subsystem of spec.md section 5:
// the ring, the completer and task registries, the page pool, and the
// CPU worker pool. It is the sole mutator of scheduling state; workers
// never touch it directly.
type Runtime struct {
	opts Options
	log  *logging.Logger

	ring       *kring.Ring
	completers *completer.Registry
	tasks      *TaskRegistry
	pages      *pagepool.Pool
	workers    *worker.Pool
	metrics    *Metrics

	ready []ref.Task

	joinWaiters map[ref.Task]ref.Task
	joinResults map[ref.Task]*joinRecord
}

// New constructs a Runtime from the given Options, setting up the
// kernel ring, worker pool, and fixed-size tables. Ring setup and
// worker thread creation failures are fatal per spec.md section 7.
func New(opts Options) (*Runtime, error) {
	opts = opts.withDefaults()

	ring, err := kring.New(opts.RingEntries)
	if err != nil {
		return nil, fmt.Errorf("ringrt: ring setup: %w", err)
	}

	workers, err := worker.New(opts.WorkerCount, opts.Logger)
	if err != nil {
		ring.Close()
		return nil, fmt.Errorf("ringrt: worker pool: %w", err)
	}

	pages := pagepool.New(opts.PagePoolCapacity)

	rt := &Runtime{
		opts:        opts,
		log:         opts.Logger,
		ring:        ring,
		completers:  completer.New(opts.CompleterCapacity),
		tasks:       NewTaskRegistry(opts.TaskCapacity, pages),
		pages:       pages,
		workers:     workers,
		metrics:     NewMetrics(),
		joinWaiters: make(map[ref.Task]ref.Task),
		joinResults: make(map[ref.Task]*joinRecord),
	}
	return rt, nil
}

// Metrics returns the runtime's live metrics instance.
func (rt *Runtime) Metrics() *Metrics {
	return rt.metrics
}

// Close tears down the ring and worker pool. Callers must first drain
// Run to completion (or abandon the runtime entirely); Close does not
// wait for in-flight work.
func (rt *Runtime) Close() error {
	var firstErr error
	if err := rt.workers.Close(); err != nil {
		firstErr = err
	}
	if err := rt.ring.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// opsFor builds the Ops handle bound to task t.
func (rt *Runtime) opsFor(t ref.Task) *Ops {
	return &Ops{
		task:       t,
		rt:         rt,
		ring:       rt.ring,
		completers: rt.completers,
		tasks:      rt.tasks,
		workers:    rt.workers,
		pages:      rt.pages,
	}
}

// Spawn registers a root future with the runtime and marks it ready
// for its first poll. ok is false when the task table is full.
func (rt *Runtime) Spawn(build func(*Ops) Future) (ref.Task, bool) {
	return rt.spawn(func(t ref.Task) Future {
		return build(rt.opsFor(t))
	})
}

func (rt *Runtime) spawn(build func(ref.Task) Future) (ref.Task, bool) {
	t, ok := rt.tasks.Spawn(build)
	if !ok {
		return ref.Task{}, false
	}
	rt.metrics.RecordSpawn()
	rt.metrics.RecordTaskLive(uint32(rt.tasks.Live()))
	rt.ready = append(rt.ready, t)
	return t, true
}

func (rt *Runtime) registerJoinWaiter(child, parent ref.Task) {
	rt.joinWaiters[child] = parent
}

func (rt *Runtime) takeJoinResult(child ref.Task) (*joinRecord, bool) {
	rec, ok := rt.joinResults[child]
	if ok {
		delete(rt.joinResults, child)
	}
	return rec, ok
}

func (rt *Runtime) resolveJoin(child ref.Task, errMsg []byte) {
	rt.joinResults[child] = &joinRecord{errMsg: errMsg}
	if parent, ok := rt.joinWaiters[child]; ok {
		delete(rt.joinWaiters, child)
		rt.markReady(parent)
	}
}

func (rt *Runtime) markReady(t ref.Task) {
	rt.ready = append(rt.ready, t)
}

// Run drives the cooperative scheduler until the task table is empty
// and no worker holds outstanding work (spec.md section 5's exit
// condition): poll every ready task once, flush submissions, block in
// the ring if nothing is ready, drain completions and mark their
// owning tasks ready, repeat.
func (rt *Runtime) Run() error {
	for {
		if rt.tasks.Live() == 0 && rt.workers.Idle() == rt.workers.Size() {
			return nil
		}

		batch := rt.ready
		rt.ready = nil
		polled := make(map[ref.Task]bool, len(batch))
		for _, t := range batch {
			if polled[t] {
				continue
			}
			polled[t] = true
			rt.pollTask(t)
		}

		if _, err := rt.ring.Flush(false); err != nil {
			return fmt.Errorf("ringrt: flush: %w", err)
		}

		if len(rt.ready) == 0 {
			if rt.tasks.Live() == 0 {
				return nil
			}
			if _, err := rt.ring.Flush(true); err != nil {
				return fmt.Errorf("ringrt: blocking flush: %w", err)
			}
		}

		for _, c := range rt.ring.Drain() {
			rt.dispatch(c)
		}
	}
}

func (rt *Runtime) pollTask(t ref.Task) {
	f, ok := rt.tasks.Future(t)
	if !ok {
		return
	}

	result := f.Poll(rt.opsFor(t))
	if !result.Ready {
		return
	}

	errMsg := rt.tasks.MarkTerminal(t, result.Err)
	rt.metrics.RecordTaskLive(uint32(rt.tasks.Live()))
	rt.resolveJoin(t, errMsg)
}

func (rt *Runtime) dispatch(c kring.Completion) {
	if !rt.completers.Post(c.UserData, c.Result) {
		// Stale generation: the owning task already aborted and the
		// slot was recycled. Per spec.md section 4.D this is silently
		// discarded, the normal (non-shutdown-specific) path for
		// completions arriving after their task is gone.
		rt.log.Debug("discarding stale completion", "token", c.UserData, "result", c.Result)
		return
	}

	cref := ref.DecodeCompleter(c.UserData)
	owner, ok := rt.completers.Owner(cref)
	if !ok {
		return
	}
	rt.markReady(owner)
}
