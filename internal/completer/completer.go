// Package completer implements the completer registry and task token
// protocol of spec.md sections 4.D and 4.F: a fixed-size table mapping
// 64-bit completion tokens to per-operation result cells and the owning
// task, plus the three token kinds (Op, Queue, Execute) governing what
// extra bookkeeping fires when a result is extracted.
package completer

import "github.com/ioruntime/ringrt/internal/ref"

// Kind distinguishes why a task is waiting on a completer, per spec.md
// section 4.F.
type Kind int

const (
	// KindOp is a plain kernel-ring I/O completion.
	KindOp Kind = iota
	// KindQueue waits for a CPU job's command-pipe write to complete.
	KindQueue
	// KindExecute waits for a CPU job's result-pipe read to complete.
	KindExecute
)

// State is the result of Extract: whether a completer has a value yet,
// and if so whether it was success or a negative kernel errno.
type State int

const (
	// Pending means the completer has not observed a post yet.
	Pending State = iota
	// Ready means a non-negative result was posted.
	Ready
	// Failed means a negative kernel errno was posted.
	Failed
)

// Outcome is what Extract returns.
type Outcome struct {
	State State
	Value int32
}

type cell struct {
	owner    ref.Task
	gen      uint32
	kind     Kind
	occupied bool // true between Allocate and Free
	hasValue bool
	value    int32
}

// Registry is the fixed-capacity completer table. Like the task
// registry, it is owned exclusively by the runtime's driver thread; no
// internal locking is performed.
type Registry struct {
	cells []cell
	free  []uint32 // free-list of indices, unordered
}

// New creates a registry with room for capacity live completers.
func New(capacity int) *Registry {
	r := &Registry{
		cells: make([]cell, capacity),
		free:  make([]uint32, capacity),
	}
	for i := range r.free {
		r.free[i] = uint32(capacity - 1 - i)
	}
	return r
}

// Capacity returns the completer table's fixed size.
func (r *Registry) Capacity() int {
	return len(r.cells)
}

// Live returns the number of currently allocated (not yet freed)
// completers.
func (r *Registry) Live() int {
	return len(r.cells) - len(r.free)
}

// Allocate reserves the lowest free slot for owner, tags it with kind,
// and returns its reference. ok is false when the table is full.
func (r *Registry) Allocate(owner ref.Task, kind Kind) (ref.Completer, bool) {
	if len(r.free) == 0 {
		return ref.Completer{}, false
	}

	pos := 0
	for i, candidate := range r.free {
		if candidate < r.free[pos] {
			pos = i
		}
	}
	idx := r.free[pos]
	r.free[pos] = r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]

	c := &r.cells[idx]
	c.owner = owner
	c.kind = kind
	c.occupied = true
	c.hasValue = false
	c.value = 0

	return ref.Completer{Index: idx, Gen: c.gen}, true
}

// Owner returns the task that owns the given completer, for callers
// that need to re-derive the task reference from a decoded token.
func (r *Registry) Owner(c ref.Completer) (ref.Task, bool) {
	cell, ok := r.lookup(c)
	if !ok {
		return ref.Task{}, false
	}
	return cell.owner, true
}

// Kind returns the completer's token kind.
func (r *Registry) Kind(c ref.Completer) (Kind, bool) {
	cell, ok := r.lookup(c)
	if !ok {
		return 0, false
	}
	return cell.kind, true
}

// Post writes result into the completer decoded from token iff its
// generation still matches a live, occupied slot. A generation mismatch
// means the owning task already aborted and the slot was recycled: the
// post is silently discarded, per spec.md section 4.D.
func (r *Registry) Post(token uint64, result int32) bool {
	c := ref.DecodeCompleter(token)
	cell, ok := r.lookup(c)
	if !ok {
		return false
	}
	cell.hasValue = true
	cell.value = result
	return true
}

// Extract reads and clears the pending result for c. It does not free
// the slot — callers free explicitly once the owning task has observed
// the result and no longer needs the completer, per spec.md's completer
// lifecycle (freed after Extract, not as a side effect of it).
func (r *Registry) Extract(c ref.Completer) (Outcome, bool) {
	cell, ok := r.lookup(c)
	if !ok {
		return Outcome{}, false
	}
	if !cell.hasValue {
		return Outcome{State: Pending}, true
	}

	value := cell.value
	cell.hasValue = false

	if value < 0 {
		return Outcome{State: Failed, Value: value}, true
	}
	return Outcome{State: Ready, Value: value}, true
}

// Free returns c's slot to the free-list and advances its generation,
// invalidating any still-outstanding token that decodes to it.
func (r *Registry) Free(c ref.Completer) bool {
	cell, ok := r.lookup(c)
	if !ok {
		return false
	}
	cell.occupied = false
	cell.hasValue = false
	cell.gen++
	r.free = append(r.free, c.Index)
	return true
}

func (r *Registry) lookup(c ref.Completer) (*cell, bool) {
	if int(c.Index) >= len(r.cells) {
		return nil, false
	}
	cell := &r.cells[c.Index]
	if !cell.occupied || cell.gen != c.Gen {
		return nil, false
	}
	return cell, true
}
