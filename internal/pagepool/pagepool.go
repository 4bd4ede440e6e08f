// Package pagepool implements the runtime's fixed-capacity pool of
// page-sized memory slots. It backs internal allocations (submission
// buffers, descriptor scratch space) without touching the system
// allocator on the hot path.
package pagepool

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PageSize is the only size the pool ever parks. Anything else falls
// back to the caller's own allocation strategy.
const PageSize = 4096

// Slot is a naturally aligned page-sized region. Ptr is the address of
// the backing memory; Bytes is a Go slice view over the same memory for
// safe access.
type Slot struct {
	Ptr   uintptr
	Bytes []byte
}

// Pool is a dense-indexed, single-owner slab of up to Capacity parked
// page slots. It is not safe for concurrent use: the runtime's driver
// thread is its sole owner, matching the single-threaded ownership
// discipline described in spec.md section 5.
type Pool struct {
	slots []Slot
	index int // count of parked slots; also the next free write position
}

// New creates a pool with room for capacity parked slots.
func New(capacity int) *Pool {
	return &Pool{
		slots: make([]Slot, capacity),
		index: 0,
	}
}

// Capacity returns the maximum number of slots the pool can park.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// Parked returns the number of slots currently parked in the pool.
func (p *Pool) Parked() int {
	return p.index
}

// Acquire returns a parked slot if n fits within one page and the pool
// is non-empty. Otherwise it returns ok=false and the caller must fall
// back to allocating its own memory (e.g. via AllocatePage or a plain
// make([]byte, n)).
func (p *Pool) Acquire(n int) (Slot, bool) {
	if n > PageSize || p.index == 0 {
		return Slot{}, false
	}

	p.index--
	slot := p.slots[p.index]
	p.slots[p.index] = Slot{}
	return slot, true
}

// Release parks slot back into the pool iff it is exactly one page and a
// parking position is free. Otherwise it hands the slot back to the
// caller (ok=false) for system deallocation via FreePage.
func (p *Pool) Release(slot Slot) bool {
	if len(slot.Bytes) != PageSize || p.index >= len(p.slots) {
		return false
	}

	p.slots[p.index] = slot
	p.index++
	return true
}

// AllocatePage asks the kernel directly for one anonymous page-sized
// mapping. This is the pool-miss path: it never touches Go's own
// allocator, matching the "page slot is a region returned by the system
// allocator" invariant of spec.md section 3.
func AllocatePage() (Slot, error) {
	b, err := unix.Mmap(-1, 0, PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return Slot{}, fmt.Errorf("pagepool: mmap failed: %w", err)
	}
	return Slot{Ptr: uintptr(unsafe.Pointer(&b[0])), Bytes: b}, nil
}

// FreePage releases a page obtained from AllocatePage (or a released,
// unparked Slot) back to the kernel.
func FreePage(slot Slot) error {
	if slot.Bytes == nil {
		return nil
	}
	if err := unix.Munmap(slot.Bytes); err != nil {
		return fmt.Errorf("pagepool: munmap failed: %w", err)
	}
	return nil
}
