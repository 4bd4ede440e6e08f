package ringrt

// Future is the type-erased, pinned unit of cooperative scheduling
// (spec.md section 4.E/9). Go's interfaces are the idiomatic substitute
// for the hand-rolled (poll-fn-pointer, data-pointer) erasure the
// source language needs in an allocator-free environment.
//
// Poll is called by the driver at most once per tick while the task is
// ready. It must not block: any awaited operation is represented by
// submitting through Ops and returning Pending until that operation's
// completer is ready. The waker protocol is degenerate by design (see
// SPEC_FULL.md) — the driver already knows which task to re-poll from
// the completion's user-data, so Future never receives or stores a
// waker of its own.
type Future interface {
	Poll(ops *Ops) PollResult
}

// PollResult is what Poll returns: either Pending (Ready is false) or a
// terminal outcome. Err is nil on success and a diagnostic message on
// failure, mirroring the top-level `Option<&'static [u8]>` contract of
// spec.md section 7.
type PollResult struct {
	Ready bool
	Err   []byte
}

// Pending is returned by a Future that has more work to do but is
// waiting on an in-flight operation.
var Pending = PollResult{}

// Done returns a terminal success result.
func Done() PollResult {
	return PollResult{Ready: true}
}

// Failed returns a terminal failure result carrying msg as the
// diagnostic.
func Failed(msg string) PollResult {
	return PollResult{Ready: true, Err: []byte(msg)}
}

// FutureFunc adapts a plain poll function to the Future interface, for
// small one-off futures that don't need their own named type.
type FutureFunc func(ops *Ops) PollResult

func (f FutureFunc) Poll(ops *Ops) PollResult {
	return f(ops)
}
