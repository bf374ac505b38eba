//go:build linux

package shm

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"camswitch-go/internal/models"
)

// RingCapacity is the number of frame slots: one second of video at 30 fps.
const RingCapacity = 30

const ringMagic uint32 = 0x43535731 // "CSW1"

// ringHeader is the fixed 64-byte header at the start of a ring segment.
type ringHeader struct {
	magic           uint32
	abi             uint32
	writeIndex      uint64
	frameIntervalMs uint32 // consumer-adjustable producer throttle, 0 = full rate
	newFrameSem     int32
	_               [40]byte
}

const (
	ringHeaderSize = 64
	frameSize      = 56 + models.MaxFrameSize
	ringSize       = ringHeaderSize + RingCapacity*frameSize
)

// Ring is a single-writer, multi-reader, latest-wins ring buffer of frames in
// a named shared memory segment.
//
// Writer contract (not runtime-enforced): exactly one process calls Write.
// The slot copy completes before the write index is advanced, so readers only
// ever observe indices whose slots are fully written. A reader copying slot
// w-1 races the writer only after the writer has lapped the whole ring, which
// at the design frame rate gives it a full second of slack.
type Ring struct {
	seg *Segment
}

// NewRing attaches to the named ring segment, creating it if needed. The
// creator stamps the ABI header; an opener validates it.
func NewRing(name string) (*Ring, error) {
	if err := checkFrameLayout(); err != nil {
		return nil, err
	}
	seg, err := Create(name, ringSize)
	if err != nil {
		return nil, err
	}
	r := &Ring{seg: seg}
	if seg.Role() == RoleCreated {
		h := r.header()
		h.abi = abiVersion
		atomic.StoreUint32(&h.magic, ringMagic)
	} else if err := r.validate(); err != nil {
		seg.Close()
		return nil, err
	}
	return r, nil
}

// OpenRing attaches to an existing ring segment owned by a peer, retrying
// with backoff while the peer has not created or initialized it yet.
func OpenRing(name string, attempts int, backoff time.Duration) (*Ring, error) {
	if err := checkFrameLayout(); err != nil {
		return nil, err
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		seg, err := Open(name, ringSize)
		if err == nil {
			r := &Ring{seg: seg}
			if err = r.validate(); err == nil {
				return r, nil
			}
			seg.Close()
		}
		lastErr = err
		time.Sleep(backoff)
	}
	return nil, lastErr
}

func (r *Ring) header() *ringHeader {
	return (*ringHeader)(unsafe.Pointer(&r.seg.Bytes()[0]))
}

func (r *Ring) frameAt(slot uint64) *models.Frame {
	off := ringHeaderSize + slot*frameSize
	return (*models.Frame)(unsafe.Pointer(&r.seg.Bytes()[off]))
}

func (r *Ring) sem() *Sem {
	return SemAt(&r.header().newFrameSem)
}

func (r *Ring) validate() error {
	h := r.header()
	if m := atomic.LoadUint32(&h.magic); m != ringMagic {
		return &ResourceError{Name: r.seg.Name(), Op: "validate",
			Err: fmt.Errorf("bad ring magic %#x (segment not initialized yet?)", m)}
	}
	if h.abi != abiVersion {
		return &ResourceError{Name: r.seg.Name(), Op: "validate",
			Err: fmt.Errorf("ring ABI version %d, want %d", h.abi, abiVersion)}
	}
	return nil
}

// Write copies frame into the next slot, publishes the advanced write index
// with release ordering, and posts the new-frame semaphore. It never fails
// for a full ring (the oldest slot is overwritten); only an oversized payload
// is rejected, and it corrupts nothing.
func (r *Ring) Write(frame *models.Frame) error {
	if frame.DataSize > models.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrCapacity, frame.DataSize)
	}
	h := r.header()
	idx := atomic.LoadUint64(&h.writeIndex)
	*r.frameAt(idx % RingCapacity) = *frame
	atomic.StoreUint64(&h.writeIndex, idx+1)
	r.sem().Post()
	return nil
}

// ReadLatest copies the most recently written frame into dst. Non-blocking;
// returns ErrEmpty before the first write.
func (r *Ring) ReadLatest(dst *models.Frame) error {
	idx := atomic.LoadUint64(&r.header().writeIndex)
	if idx == 0 {
		return ErrEmpty
	}
	*dst = *r.frameAt((idx - 1) % RingCapacity)
	return nil
}

// WaitForFrame blocks until the writer posts a new frame or the timeout
// elapses. Pair with ReadLatest to avoid busy-polling.
func (r *Ring) WaitForFrame(timeout time.Duration) error {
	return r.sem().Wait(timeout)
}

// WriteIndex returns the monotonic write cursor. Readers use it to detect
// producer progress without copying a frame.
func (r *Ring) WriteIndex() uint64 {
	return atomic.LoadUint64(&r.header().writeIndex)
}

// FrameInterval returns the consumer-requested producer interval.
func (r *Ring) FrameInterval() time.Duration {
	ms := atomic.LoadUint32(&r.header().frameIntervalMs)
	return time.Duration(ms) * time.Millisecond
}

// SetFrameInterval asks the producer to throttle to one frame per interval.
// Zero restores the producer's native rate.
func (r *Ring) SetFrameInterval(d time.Duration) {
	atomic.StoreUint32(&r.header().frameIntervalMs, uint32(d.Milliseconds()))
}

// Role reports whether this process created the segment.
func (r *Ring) Role() Role { return r.seg.Role() }

// Close unmaps the segment.
func (r *Ring) Close() error { return r.seg.Close() }

// Unlink removes the segment; creator only, at final shutdown.
func (r *Ring) Unlink() error { return r.seg.Unlink() }

func checkFrameLayout() error {
	if s := unsafe.Sizeof(models.Frame{}); s != frameSize {
		return fmt.Errorf("frame layout drifted: sizeof=%d, ABI expects %d", s, frameSize)
	}
	if s := unsafe.Sizeof(ringHeader{}); s != ringHeaderSize {
		return fmt.Errorf("ring header layout drifted: sizeof=%d, ABI expects %d", s, ringHeaderSize)
	}
	return nil
}
