package ringrt

import (
	"github.com/ioruntime/ringrt/internal/pagepool"
	"github.com/ioruntime/ringrt/internal/ref"
)

type taskCell struct {
	future   Future
	gen      uint32
	occupied bool

	// slot is the task's backing store (spec.md section 4.E: "sizes the
	// backing store; requests a slot from §4.B, else from the system"),
	// acquired at spawn and released at teardown. It holds a copy of the
	// future's terminal diagnostic bytes, taken before the slot is
	// returned to the pool.
	slot pagepool.Slot

	// terminal is set once future.Poll returns Ready; the slot is not
	// actually freed until liveCompleters also reaches zero, per
	// spec.md section 3's destruction rule.
	terminal       bool
	liveCompleters int
}

// TaskRegistry is the fixed-capacity table of owned, type-erased
// futures (spec.md section 4.E). It is single-owner: the runtime's
// driver thread is its only caller.
type TaskRegistry struct {
	cells []taskCell
	free  []uint32 // free-list of indices, unordered
	pages *pagepool.Pool
}

// NewTaskRegistry creates a registry with room for capacity live tasks,
// backed by pages for each task's backing-store slot.
func NewTaskRegistry(capacity int, pages *pagepool.Pool) *TaskRegistry {
	r := &TaskRegistry{
		cells: make([]taskCell, capacity),
		free:  make([]uint32, capacity),
		pages: pages,
	}
	for i := range r.free {
		r.free[i] = uint32(capacity - 1 - i)
	}
	return r
}

// Capacity returns the task table's fixed size.
func (r *TaskRegistry) Capacity() int {
	return len(r.cells)
}

// Live returns the number of tasks currently occupying a slot,
// including terminal tasks still waiting on live completers.
func (r *TaskRegistry) Live() int {
	return len(r.cells) - len(r.free)
}

// Spawn reserves the lowest free slot and a page-pool backing-store
// slot, then installs the future returned by build, which receives the
// new task's own reference (so futures that need to address themselves
// — none of the built-in ops do, but user code may) can capture it. ok
// is false when the task table is full or no backing-store slot could
// be obtained from the pool or the system allocator (spec.md section 7's
// allocation-failure case, surfaced the same way as table exhaustion).
func (r *TaskRegistry) Spawn(build func(ref.Task) Future) (ref.Task, bool) {
	if len(r.free) == 0 {
		return ref.Task{}, false
	}

	slot, err := acquirePage(r.pages)
	if err != nil {
		return ref.Task{}, false
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

	t := ref.Task{Index: idx, Gen: r.cells[idx].gen}
	r.cells[idx] = taskCell{
		future:   build(t),
		gen:      t.Gen,
		occupied: true,
		slot:     slot,
	}
	return t, true
}

// Future returns the live future at t, or ok=false if t is stale or
// the slot is unoccupied.
func (r *TaskRegistry) Future(t ref.Task) (Future, bool) {
	cell, ok := r.lookup(t)
	if !ok {
		return nil, false
	}
	return cell.future, true
}

// MarkTerminal records that t's future has reached a terminal result,
// copying errMsg through the task's page-pool backing-store slot (and
// returning that copy) before the slot may be torn down. The slot is
// torn down immediately if there are no live completers, otherwise
// teardown is deferred until DecCompleters brings the count to zero.
func (r *TaskRegistry) MarkTerminal(t ref.Task, errMsg []byte) []byte {
	cell, ok := r.lookup(t)
	if !ok {
		return nil
	}
	cell.terminal = true

	var out []byte
	if errMsg != nil {
		n := copy(cell.slot.Bytes, errMsg)
		out = append([]byte(nil), cell.slot.Bytes[:n]...)
	}

	r.tryTeardown(t.Index, cell)
	return out
}

// IncCompleters records that a new completer now references t.
func (r *TaskRegistry) IncCompleters(t ref.Task) {
	if cell, ok := r.lookup(t); ok {
		cell.liveCompleters++
	}
}

// DecCompleters records that one of t's completers was freed. If t is
// already terminal and this was its last live completer, the task's
// slot is torn down.
func (r *TaskRegistry) DecCompleters(t ref.Task) {
	cell, ok := r.lookup(t)
	if !ok {
		return
	}
	cell.liveCompleters--
	r.tryTeardown(t.Index, cell)
}

func (r *TaskRegistry) tryTeardown(idx uint32, cell *taskCell) {
	if !cell.terminal || cell.liveCompleters > 0 {
		return
	}
	releasePage(r.pages, cell.slot)
	cell.slot = pagepool.Slot{}
	cell.occupied = false
	cell.future = nil
	cell.gen++
	r.free = append(r.free, idx)
}

func (r *TaskRegistry) lookup(t ref.Task) (*taskCell, bool) {
	if int(t.Index) >= len(r.cells) {
		return nil, false
	}
	cell := &r.cells[t.Index]
	if !cell.occupied || cell.gen != t.Gen {
		return nil, false
	}
	return cell, true
}
