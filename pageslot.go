package ringrt

import "github.com/ioruntime/ringrt/internal/pagepool"

// acquirePage gets a page-sized slot from pool, falling back to a
// direct system mmap when the pool has none parked — the page-pool
// contract of spec.md section 4.B ("acquire returns a parked slot...
// otherwise the caller must fall back to the system allocator").
func acquirePage(pool *pagepool.Pool) (pagepool.Slot, error) {
	if slot, ok := pool.Acquire(pagepool.PageSize); ok {
		return slot, nil
	}
	return pagepool.AllocatePage()
}

// releasePage returns slot to pool, falling back to a system munmap
// when the pool has no free parking position.
func releasePage(pool *pagepool.Pool, slot pagepool.Slot) error {
	if pool.Release(slot) {
		return nil
	}
	return pagepool.FreePage(slot)
}
