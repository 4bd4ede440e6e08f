package ringrt

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("spawn", ErrCodeRegistryExhausted, "task table full")

	assert.Equal(t, "spawn", err.Op)
	assert.Equal(t, ErrCodeRegistryExhausted, err.Code)
	assert.Equal(t, "ringrt: task table full (op=spawn)", err.Error())
}

func TestErrnoError(t *testing.T) {
	err := NewErrnoError("read", 7, syscall.EBADF)

	assert.Equal(t, syscall.EBADF, err.Errno)
	assert.Equal(t, ErrCodeOperationFailed, err.Code)
	assert.EqualValues(t, 7, err.Task)
}

func TestWrapError(t *testing.T) {
	err := WrapError("close", syscall.EBADF)

	require.NotNil(t, err)
	assert.Equal(t, ErrCodeOperationFailed, err.Code)
	assert.ErrorIs(t, err, syscall.EBADF)
}

func TestWrapError_Nil(t *testing.T) {
	assert.Nil(t, WrapError("noop", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("timeout", ErrCodeSubmissionFailed, "ring full")

	assert.True(t, IsCode(err, ErrCodeSubmissionFailed))
	assert.False(t, IsCode(err, ErrCodeWorkerUnavailable))
	assert.False(t, IsCode(nil, ErrCodeSubmissionFailed))
}

func TestIsErrno(t *testing.T) {
	err := NewErrnoError("write", 0, syscall.EPIPE)

	assert.True(t, IsErrno(err, syscall.EPIPE))
	assert.False(t, IsErrno(err, syscall.EBADF))
	assert.False(t, IsErrno(nil, syscall.EPIPE))
}
