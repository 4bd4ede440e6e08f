package ringrt

import "github.com/ioruntime/ringrt/internal/ref"

// Spawn registers a child task built from factory, which receives a
// fresh Ops handle bound to the new task, and returns a StepFuture that
// resolves once the child task terminates (spec.md section 4.H
// `spawn`). ok is false when the task table is full.
//
// Join notification is an addition this rewrite needs that spec.md
// leaves unspecified: the original's waker protocol doesn't describe
// how a parent observes a child's termination. Runtime tracks it with a
// small side table (registerJoinWaiter/resolveJoin) rather than a
// kernel-ring completer, since no kernel operation is actually
// involved — see DESIGN.md.
func (o *Ops) Spawn(factory func(childOps *Ops) Future) (*SpawnOp, bool) {
	child, ok := o.rt.spawn(func(t ref.Task) Future {
		return factory(o.rt.opsFor(t))
	})
	if !ok {
		return nil, false
	}
	return &SpawnOp{child: child}, true
}

// SpawnOp is the join handle returned by Spawn.
type SpawnOp struct {
	child      ref.Task
	registered bool
}

func (f *SpawnOp) Poll(ops *Ops) (bool, int32, error) {
	if rec, ok := ops.rt.takeJoinResult(f.child); ok {
		if rec.errMsg != nil {
			return true, 0, NewTaskError("spawn", packTask(f.child), ErrCodeOperationFailed, string(rec.errMsg))
		}
		return true, 0, nil
	}
	if !f.registered {
		ops.rt.registerJoinWaiter(f.child, ops.task)
		f.registered = true
	}
	return false, 0, nil
}
