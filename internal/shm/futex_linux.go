//go:build linux

package shm

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Futex operation codes (linux/futex.h). x/sys/unix exports the syscall
// number but not the ops, so they are defined here. Non-PRIVATE variants:
// the words live in MAP_SHARED mappings waited on by multiple processes.
const (
	futexOpWait = 0
	futexOpWake = 1
)

// futexWait blocks until the word at addr changes from expected, a wake is
// posted, or the timeout elapses. A negative timeout waits indefinitely.
// Non-private futex: the word lives in a MAP_SHARED mapping and is waited on
// by multiple processes.
func futexWait(addr *int32, expected int32, timeout time.Duration) error {
	var tsPtr unsafe.Pointer
	if timeout >= 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		tsPtr = unsafe.Pointer(&ts)
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexOpWait,
		uintptr(uint32(expected)),
		uintptr(tsPtr),
		0, 0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		// Value already changed or spurious wake: caller re-checks state.
		return nil
	case unix.ETIMEDOUT:
		return ErrTimeout
	default:
		return errno
	}
}

// futexWake wakes up to n waiters blocked on the word at addr.
func futexWake(addr *int32, n int) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexOpWake,
		uintptr(n),
		0, 0, 0,
	)
}
