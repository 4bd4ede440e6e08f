// Package ref holds the index+generation reference types shared by the
// task registry and the completer registry. It exists on its own so those
// two packages can refer to each other's identities without importing one
// another.
package ref

// Task identifies a slot in the task table: a dense index plus a
// generation counter that increments every time the slot is recycled.
// A Task is stale once its generation no longer matches the table's.
type Task struct {
	Index uint32
	Gen   uint32
}

// Completer identifies a slot in the completer table the same way, and
// additionally knows how to round-trip through the 64-bit "user data"
// word the kernel ring echoes back verbatim on completion.
type Completer struct {
	Index uint32
	Gen   uint32
}

// Encode packs a Completer into the 64-bit token carried as io_uring user
// data: high 32 bits generation, low 32 bits index.
func (c Completer) Encode() uint64 {
	return uint64(c.Gen)<<32 | uint64(c.Index)
}

// DecodeCompleter is the inverse of Encode.
func DecodeCompleter(token uint64) Completer {
	return Completer{
		Gen:   uint32(token >> 32),
		Index: uint32(token & 0xffffffff),
	}
}
