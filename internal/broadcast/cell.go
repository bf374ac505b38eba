//go:build linux

package broadcast

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"camswitch-go/internal/shm"
)

const cellMagic uint32 = 0x43535732 // "CSW2"

// cellHeader is the fixed 32-byte header preceding the value area.
type cellHeader struct {
	magic     uint32
	abi       uint32
	version   uint32
	seq       uint32 // write-in-progress seqlock word; odd while a write is copying
	valueSize uint64
	_         [8]byte
}

const cellHeaderSize = 32
const cellABI uint32 = 1

// Cell is a shared-memory "latest value + version" broadcast primitive.
//
// A write copies the value and then atomically bumps the version; a read
// copies the value under a seqlock retry loop and then loads the version.
// Readers may observe a stale value but, under the single-writer contract,
// never a torn one; delivery is "eventually latest" with no exactly-once
// guarantee. T must be a fixed-size POD struct; it is overlaid directly onto
// the mapped region.
type Cell[T any] struct {
	seg *shm.Segment
}

func cellSize[T any]() int {
	var zero T
	return cellHeaderSize + int(unsafe.Sizeof(zero))
}

// NewCell attaches to the named cell segment, creating it if needed.
func NewCell[T any](name string) (*Cell[T], error) {
	seg, err := shm.Create(name, cellSize[T]())
	if err != nil {
		return nil, err
	}
	c := &Cell[T]{seg: seg}
	if seg.Role() == shm.RoleCreated {
		var zero T
		h := c.header()
		h.abi = cellABI
		h.valueSize = uint64(unsafe.Sizeof(zero))
		atomic.StoreUint32(&h.magic, cellMagic)
	} else if err := c.validate(); err != nil {
		seg.Close()
		return nil, err
	}
	return c, nil
}

// OpenCell attaches to an existing peer-owned cell, retrying with backoff
// while the peer has not created or initialized it yet.
func OpenCell[T any](name string, attempts int, backoff time.Duration) (*Cell[T], error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		seg, err := shm.Open(name, cellSize[T]())
		if err == nil {
			c := &Cell[T]{seg: seg}
			if err = c.validate(); err == nil {
				return c, nil
			}
			seg.Close()
		}
		lastErr = err
		time.Sleep(backoff)
	}
	return nil, lastErr
}

func (c *Cell[T]) header() *cellHeader {
	return (*cellHeader)(unsafe.Pointer(&c.seg.Bytes()[0]))
}

func (c *Cell[T]) valuePtr() *T {
	return (*T)(unsafe.Pointer(&c.seg.Bytes()[cellHeaderSize]))
}

func (c *Cell[T]) validate() error {
	var zero T
	h := c.header()
	if m := atomic.LoadUint32(&h.magic); m != cellMagic {
		return &shm.ResourceError{Name: c.seg.Name(), Op: "validate",
			Err: fmt.Errorf("bad cell magic %#x (segment not initialized yet?)", m)}
	}
	if h.abi != cellABI {
		return &shm.ResourceError{Name: c.seg.Name(), Op: "validate",
			Err: fmt.Errorf("cell ABI version %d, want %d", h.abi, cellABI)}
	}
	if h.valueSize != uint64(unsafe.Sizeof(zero)) {
		return &shm.ResourceError{Name: c.seg.Name(), Op: "validate",
			Err: fmt.Errorf("cell value size %d, layout expects %d", h.valueSize, unsafe.Sizeof(zero))}
	}
	return nil
}

// Write publishes v as the latest value. Single-writer contract; readers are
// excluded from the copy window by the seqlock word, not a lock.
func (c *Cell[T]) Write(v T) {
	h := c.header()
	atomic.AddUint32(&h.seq, 1) // odd: copy in progress
	*c.valuePtr() = v
	atomic.AddUint32(&h.seq, 1)
	atomic.AddUint32(&h.version, 1)
}

// Read returns the current value and its version. The version increases by
// exactly one per write and never decreases. The copy retries while a write
// is in flight, so the returned value is never torn.
func (c *Cell[T]) Read() (T, uint32) {
	h := c.header()
	for {
		s1 := atomic.LoadUint32(&h.seq)
		if s1&1 != 0 {
			runtime.Gosched()
			continue
		}
		v := *c.valuePtr()
		if atomic.LoadUint32(&h.seq) == s1 {
			return v, atomic.LoadUint32(&h.version)
		}
	}
}

// Version returns the current version without copying the value.
func (c *Cell[T]) Version() uint32 {
	return atomic.LoadUint32(&c.header().version)
}

// mutate gives wrappers that maintain disjoint sub-records (one slot per
// writer process) direct access to the value area, then bumps the version.
// The seqlock word covers the callback so readers never see a half-updated
// record.
func (c *Cell[T]) mutate(f func(*T)) {
	h := c.header()
	atomic.AddUint32(&h.seq, 1)
	f(c.valuePtr())
	atomic.AddUint32(&h.seq, 1)
	atomic.AddUint32(&h.version, 1)
}

// Role reports whether this process created the segment.
func (c *Cell[T]) Role() shm.Role { return c.seg.Role() }

// Close unmaps the segment.
func (c *Cell[T]) Close() error { return c.seg.Close() }

// Unlink removes the segment; creator only, at final shutdown.
func (c *Cell[T]) Unlink() error { return c.seg.Unlink() }
