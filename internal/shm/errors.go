package shm

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by blocking waits that exceed their deadline.
	// It is always recoverable: drop the frame or sample and continue.
	ErrTimeout = errors.New("shm: wait timed out")

	// ErrEmpty is returned by ReadLatest before the first write.
	ErrEmpty = errors.New("shm: no frames written yet")

	// ErrCapacity is returned when a payload exceeds the fixed slot size.
	ErrCapacity = errors.New("shm: payload exceeds slot capacity")
)

// ResourceError reports a failure to create, open, or validate a shared
// memory segment. Fatal at startup when the segment is one this process must
// own; recoverable via bounded retry when waiting for a peer to create it.
type ResourceError struct {
	Name string
	Op   string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("shm: %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
