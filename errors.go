package ringrt

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured runtime error carrying the op that failed, the
// owning task (if any), and a high-level category alongside the raw
// kernel errno.
type Error struct {
	Op    string    // operation that failed (e.g. "read", "spawn", "spawn_cpu")
	Task  int64     // packed task ref (gen<<32|index), -1 if not applicable
	Code  ErrorCode // high-level category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Task >= 0 {
		parts = append(parts, fmt.Sprintf("task=%d", e.Task))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("ringrt: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("ringrt: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is the runtime error taxonomy of spec.md section 7.
type ErrorCode string

const (
	// ErrCodeSubmissionFailed: ring queue full or invalid parameters.
	// Recoverable — the caller may retry later.
	ErrCodeSubmissionFailed ErrorCode = "submission failed"
	// ErrCodeOperationFailed: a negative kernel errno was returned in a
	// completion.
	ErrCodeOperationFailed ErrorCode = "operation failed"
	// ErrCodeRegistryExhausted: the task or completer table is full.
	ErrCodeRegistryExhausted ErrorCode = "registry exhausted"
	// ErrCodeAllocationFailed: the page pool and system allocator both
	// refused.
	ErrCodeAllocationFailed ErrorCode = "allocation failed"
	// ErrCodeWorkerUnavailable: every CPU worker is busy.
	ErrCodeWorkerUnavailable ErrorCode = "worker unavailable"
	// ErrCodeInvariantViolation: a token decoded to a stale generation,
	// or a completer vanished under its owning task. A stale completion
	// is discarded on the post path and only logged at debug level; a
	// vanished completer is returned to its future with this code.
	// Neither case stops the process.
	ErrCodeInvariantViolation ErrorCode = "internal invariant violation"
)

// NewError creates a structured error with no task association.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Task: -1, Code: code, Msg: msg}
}

// NewTaskError creates a structured error attributed to a task.
func NewTaskError(op string, task int64, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Task: task, Code: code, Msg: msg}
}

// NewErrnoError wraps a kernel errno as an operation-failed error.
func NewErrnoError(op string, task int64, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		Task:  task,
		Code:  ErrCodeOperationFailed,
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// WrapError retags an arbitrary error with an operation name, mapping
// syscall.Errno to its taxonomy category when present.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if re, ok := inner.(*Error); ok {
		return &Error{Op: op, Task: re.Task, Code: re.Code, Errno: re.Errno, Msg: re.Msg, Inner: re.Inner}
	}

	code := ErrCodeOperationFailed
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Task: -1, Code: code, Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Task: -1, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error with the given category.
func IsCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsErrno reports whether err is a *Error wrapping the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Errno == errno
	}
	return false
}
