//go:build linux

package shm

import (
	"math"
	"sync/atomic"
	"time"
)

// SemValueMax caps the counter, mirroring POSIX SEM_VALUE_MAX. A ring
// producer posts on every frame whether or not a consumer is waiting, so
// without the cap the counter would eventually wrap negative and kill the
// semaphore.
const SemValueMax = math.MaxInt32

// Sem is a cross-process counting semaphore whose counter word lives inside a
// shared memory segment. Any process that maps the segment can post or wait;
// blocking is implemented with a non-private futex on the counter word, so no
// in-place construction by a particular runtime is required — a freshly
// zeroed word is a valid semaphore with count zero.
type Sem struct {
	word *int32
}

// SemAt overlays a semaphore on the int32 word at the given address. The
// word must live in a MAP_SHARED mapping for cross-process use.
func SemAt(word *int32) *Sem {
	return &Sem{word: word}
}

// Post increments the counter, saturating at SemValueMax, and wakes one
// waiter.
func (s *Sem) Post() {
	for {
		v := atomic.LoadInt32(s.word)
		if v >= SemValueMax {
			break
		}
		if atomic.CompareAndSwapInt32(s.word, v, v+1) {
			break
		}
	}
	futexWake(s.word, 1)
}

// Wait decrements the counter, blocking up to timeout while it is zero.
// Returns ErrTimeout if the deadline passes without a post.
func (s *Sem) Wait(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		v := atomic.LoadInt32(s.word)
		if v > 0 {
			if atomic.CompareAndSwapInt32(s.word, v, v-1) {
				return nil
			}
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		if err := futexWait(s.word, 0, remaining); err != nil {
			return err
		}
	}
}

// TryWait decrements the counter without blocking. Reports whether a token
// was taken.
func (s *Sem) TryWait() bool {
	for {
		v := atomic.LoadInt32(s.word)
		if v <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(s.word, v, v-1) {
			return true
		}
	}
}

// Value returns the current counter value. Diagnostic only.
func (s *Sem) Value() int32 {
	return atomic.LoadInt32(s.word)
}
