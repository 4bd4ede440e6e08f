// Package kring implements the raw kernel-ring plumbing of spec.md
// sections 4.A and 4.C: io_uring setup via direct syscalls, the
// memory-mapped submission/completion rings, and flush-on-demand
// submission. No higher-level io_uring binding is used here — the spec
// makes that a domain requirement of the runtime core, not an ambient
// concern a library could paper over (see DESIGN.md).
//
// This generalizes the teacher's ublk-specific URING_CMD-only ring
// (internal/uring/minimal.go in the teacher repo) to the opcode set the
// runtime operations façade needs: noop, read, write, timeout, close.
package kring

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Op is a kernel io_uring opcode. Values match Linux's
// include/uapi/linux/io_uring.h.
type Op uint8

const (
	OpNop     Op = 0
	OpTimeout Op = 11
	OpClose   Op = 19
	OpRead    Op = 22
	OpWrite   Op = 23
)

// NoOffset marks an Entry.Offset as "use the file's current position"
// rather than an explicit byte offset.
const NoOffset uint64 = ^uint64(0)

// Entry is the abstract submission-entry layout of spec.md section 6:
// opcode, file descriptor, buffer pointer, length, offset, flags, and
// the 64-bit user-data token that is echoed back verbatim on completion.
type Entry struct {
	Op       Op
	FD       int32
	Addr     uint64
	Len      uint32
	Offset   uint64
	Flags    uint32
	UserData uint64
}

// Completion is a (user_data, signed_result) pair yielded by Drain, in
// the order the kernel posted them — not necessarily submission order.
type Completion struct {
	UserData uint64
	Result   int32
}

// sqe mirrors struct io_uring_sqe (64 bytes).
type sqe struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opcodeFlags uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	pad         [2]uint64
}

// cqe mirrors struct io_uring_cqe (16 bytes).
type cqe struct {
	userData uint64
	res      int32
	flags    uint32
}

// sqRingOffsets mirrors struct io_sqring_offsets: the kernel's layout
// puts "dropped" and "array" at the positions a CQ ring instead uses
// for "cqes" and "flags" — the two ring kinds are NOT layout-compatible
// past ringEntries, so each gets its own struct.
type sqRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

// cqRingOffsets mirrors struct io_cqring_offsets.
type cqRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

type params struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        sqRingOffsets
	cqOff        cqRingOffsets
}

const (
	ioringOffSQRing = 0x00000000
	ioringOffCQRing = 0x08000000
	ioringOffSQEs   = 0x10000000

	ioringEnterGetEvents = 1 << 0
)

// Ring owns the mmap'd submission/completion queues for one io_uring
// instance. It is single-owner: the runtime's driver thread is the only
// caller, matching spec.md section 5's shared-resource policy.
type Ring struct {
	fd int

	sqRingMem []byte
	cqRingMem []byte
	sqesMem   []byte

	sqHead  *uint32
	sqTail  *uint32
	sqMask  uint32
	sqArray []uint32
	sqes    []sqe

	cqHead *uint32
	cqTail *uint32
	cqMask uint32
	cqes   []cqe

	capacity uint32
	pending  uint32
}

// New sets up a ring with room for entries submission-queue slots
// (completion queue is sized 2x, matching the teacher's convention).
func New(entries uint32) (*Ring, error) {
	var p params
	p.sqEntries = entries

	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(&p)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("kring: io_uring_setup: %w", errno)
	}

	r := &Ring{fd: int(fd), capacity: p.sqEntries}

	sqSize := p.sqOff.array + p.sqEntries*4
	sqMem, err := unix.Mmap(r.fd, ioringOffSQRing, int(sqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Close(r.fd)
		return nil, fmt.Errorf("kring: mmap sq ring: %w", err)
	}
	r.sqRingMem = sqMem

	cqSize := p.cqOff.cqes + p.cqEntries*uint32(unsafe.Sizeof(cqe{}))
	cqMem, err := unix.Mmap(r.fd, ioringOffCQRing, int(cqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(r.sqRingMem)
		unix.Close(r.fd)
		return nil, fmt.Errorf("kring: mmap cq ring: %w", err)
	}
	r.cqRingMem = cqMem

	sqesSize := int(p.sqEntries) * int(unsafe.Sizeof(sqe{}))
	sqesMem, err := unix.Mmap(r.fd, ioringOffSQEs, sqesSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(r.cqRingMem)
		unix.Munmap(r.sqRingMem)
		unix.Close(r.fd)
		return nil, fmt.Errorf("kring: mmap sqes: %w", err)
	}
	r.sqesMem = sqesMem

	base := unsafe.Pointer(&r.sqRingMem[0])
	r.sqHead = (*uint32)(unsafe.Add(base, p.sqOff.head))
	r.sqTail = (*uint32)(unsafe.Add(base, p.sqOff.tail))
	r.sqMask = *(*uint32)(unsafe.Add(base, p.sqOff.ringMask))
	arrayPtr := (*uint32)(unsafe.Add(base, p.sqOff.array))
	r.sqArray = unsafe.Slice(arrayPtr, p.sqEntries)
	r.sqes = unsafe.Slice((*sqe)(unsafe.Pointer(&r.sqesMem[0])), p.sqEntries)

	cqBase := unsafe.Pointer(&r.cqRingMem[0])
	r.cqHead = (*uint32)(unsafe.Add(cqBase, p.cqOff.head))
	r.cqTail = (*uint32)(unsafe.Add(cqBase, p.cqOff.tail))
	r.cqMask = *(*uint32)(unsafe.Add(cqBase, p.cqOff.ringMask))
	cqesPtr := (*cqe)(unsafe.Add(cqBase, p.cqOff.cqes))
	r.cqes = unsafe.Slice(cqesPtr, p.cqEntries)

	return r, nil
}

// Close tears down the mmap'd regions and the ring descriptor.
func (r *Ring) Close() error {
	var firstErr error
	if err := unix.Munmap(r.sqesMem); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Munmap(r.cqRingMem); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Munmap(r.sqRingMem); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Close(r.fd); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Capacity returns the ring's fixed submission-queue size.
func (r *Ring) Capacity() uint32 {
	return r.capacity
}

// Submit reserves one entry at the local submission tail and writes its
// kind-specific fields. It returns false if the ring has no spare
// capacity — the caller must flush or retry later, per spec.md section
// 4.C's submission contract.
func (r *Ring) Submit(e Entry) bool {
	head := atomic.LoadUint32(r.sqHead)
	tail := atomic.LoadUint32(r.sqTail)
	if tail+r.pending-head >= r.capacity {
		return false
	}

	idx := (tail + r.pending) & r.sqMask
	s := &r.sqes[idx]
	*s = sqe{
		opcode:      uint8(e.Op),
		flags:       0,
		ioprio:      0,
		fd:          e.FD,
		off:         e.Offset,
		addr:        e.Addr,
		len:         e.Len,
		opcodeFlags: e.Flags,
		userData:    e.UserData,
	}
	r.sqArray[idx] = idx
	r.pending++
	return true
}

// Flush publishes every locally queued entry with a single
// io_uring_enter syscall. When wait is true it also blocks until at
// least one completion is available.
func (r *Ring) Flush(wait bool) (uint32, error) {
	toSubmit := r.pending
	if toSubmit == 0 && !wait {
		return 0, nil
	}

	if toSubmit > 0 {
		newTail := atomic.LoadUint32(r.sqTail) + toSubmit
		atomic.StoreUint32(r.sqTail, newTail)
		r.pending = 0
	}

	var flags, minComplete uintptr
	if wait {
		flags = ioringEnterGetEvents
		minComplete = 1
	}

	n, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), uintptr(toSubmit), minComplete, flags, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("kring: io_uring_enter: %w", errno)
	}
	return uint32(n), nil
}

// Drain consumes every completion currently posted, advancing the
// completion head, and returns them in kernel order (section 4.C).
func (r *Ring) Drain() []Completion {
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	if head == tail {
		return nil
	}

	out := make([]Completion, 0, tail-head)
	for head != tail {
		idx := head & r.cqMask
		c := r.cqes[idx]
		out = append(out, Completion{UserData: c.userData, Result: c.res})
		head++
	}
	atomic.StoreUint32(r.cqHead, head)
	return out
}

// Errno extracts the negative kernel errno carried by a Failed
// completion's result, as a syscall.Errno.
func Errno(result int32) syscall.Errno {
	return syscall.Errno(-result)
}

// NopEntry builds a no-op submission: it round-trips through the ring
// and completes with result 0, used for wakeups and token-protocol
// smoke tests.
func NopEntry(userData uint64) Entry {
	return Entry{Op: OpNop, UserData: userData}
}

// ReadEntry builds a read of len(buf) bytes from fd at offset (NoOffset
// for the file's current position) into buf. buf must stay alive and
// unmoved until the completion is observed.
func ReadEntry(fd int32, buf []byte, offset uint64, userData uint64) Entry {
	var addr uint64
	if len(buf) > 0 {
		addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}
	return Entry{
		Op:       OpRead,
		FD:       fd,
		Addr:     addr,
		Len:      uint32(len(buf)),
		Offset:   offset,
		UserData: userData,
	}
}

// WriteEntry builds a write of buf to fd at offset, symmetric with
// ReadEntry.
func WriteEntry(fd int32, buf []byte, offset uint64, userData uint64) Entry {
	var addr uint64
	if len(buf) > 0 {
		addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}
	return Entry{
		Op:       OpWrite,
		FD:       fd,
		Addr:     addr,
		Len:      uint32(len(buf)),
		Offset:   offset,
		UserData: userData,
	}
}

// CloseEntry builds a close of fd.
func CloseEntry(fd int32, userData uint64) Entry {
	return Entry{Op: OpClose, FD: fd, UserData: userData}
}

// TimeoutEntry builds a relative timeout keyed off ts, which must stay
// alive and unmoved until the completion is observed — the kernel reads
// it asynchronously by address, exactly like a read/write buffer.
func TimeoutEntry(ts *unix.Timespec, userData uint64) Entry {
	return Entry{
		Op:       OpTimeout,
		FD:       -1,
		Addr:     uint64(uintptr(unsafe.Pointer(ts))),
		Len:      1,
		Offset:   0,
		UserData: userData,
	}
}
