package ringrt

import "golang.org/x/sys/unix"

// timespecHolder pins a unix.Timespec for the duration of a kernel-ring
// timeout submission: the kernel reads it asynchronously by address,
// exactly like a read/write buffer, so it must not move or be collected
// before the completion fires.
type timespecHolder struct {
	ts unix.Timespec
}

func (h *timespecHolder) ptr() *unix.Timespec {
	return &h.ts
}

func unixTimespec(sec, nsec int64) timespecHolder {
	return timespecHolder{ts: unix.Timespec{Sec: sec, Nsec: nsec}}
}

// newPipe creates a pipe via pipe2(2) with no special flags.
func newPipe() (readFD, writeFD int32, err error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, 0); err != nil {
		return 0, 0, WrapError("pipe", err)
	}
	return int32(fds[0]), int32(fds[1]), nil
}
