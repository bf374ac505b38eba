//go:build linux

// Package zerocopy passes opaque hardware-buffer descriptors between a
// capture process and a consumer without copying pixel payloads. A single
// current-slot descriptor plus two counting semaphores give the buffer
// exactly one logical owner at any instant: the producer until it publishes,
// the consumer from wakeup until MarkConsumed.
package zerocopy

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"camswitch-go/internal/models"
	"camswitch-go/internal/shm"
)

// MaxPlanes is the largest plane count a descriptor can carry (Y/UV/alpha).
const MaxPlanes = 3

// Plane references one plane of a hardware buffer by its opaque share
// handle. The handle is meaningful only to the buffer allocator's import
// call in the consumer process.
type Plane struct {
	Handle int64
	Size   uint64
}

// Descriptor identifies a hardware frame buffer without its pixels. Fixed
// 96-byte layout, part of the shared-memory ABI.
type Descriptor struct {
	FrameNumber   uint64
	TimestampNs   int64
	CameraID      models.Camera
	Width         int32
	Height        int32
	Format        models.Format
	PlaneCount    uint32
	_             uint32
	Planes        [MaxPlanes]Plane
	BrightnessAvg float32
	_             uint32
}

const chanMagic uint32 = 0x43535733 // "CSW3"
const chanABI uint32 = 1

type chanHeader struct {
	magic       uint32
	abi         uint32
	newFrameSem int32
	consumedSem int32
	version     uint32
	_           uint32
	_           [8]byte
}

const (
	chanHeaderSize = 32
	descriptorSize = 96
	chanSize       = chanHeaderSize + descriptorSize
)

// Channel is the single-slot descriptor handoff channel.
type Channel struct {
	seg *shm.Segment
}

// NewChannel attaches to the named channel, creating it if needed. The
// creator seeds the consumed semaphore with one token (the empty slot is
// "already consumed") and stamps the ABI header.
func NewChannel(name string) (*Channel, error) {
	if err := checkLayout(); err != nil {
		return nil, err
	}
	seg, err := shm.Create(name, chanSize)
	if err != nil {
		return nil, err
	}
	c := &Channel{seg: seg}
	if seg.Role() == shm.RoleCreated {
		h := c.header()
		h.abi = chanABI
		h.consumedSem = 1
		atomic.StoreUint32(&h.magic, chanMagic)
	} else if err := c.validate(); err != nil {
		seg.Close()
		return nil, err
	}
	return c, nil
}

// OpenChannel attaches to an existing peer-owned channel with retry.
func OpenChannel(name string, attempts int, backoff time.Duration) (*Channel, error) {
	if err := checkLayout(); err != nil {
		return nil, err
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		seg, err := shm.Open(name, chanSize)
		if err == nil {
			c := &Channel{seg: seg}
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

func (c *Channel) header() *chanHeader {
	return (*chanHeader)(unsafe.Pointer(&c.seg.Bytes()[0]))
}

func (c *Channel) slot() *Descriptor {
	return (*Descriptor)(unsafe.Pointer(&c.seg.Bytes()[chanHeaderSize]))
}

func (c *Channel) validate() error {
	h := c.header()
	if m := atomic.LoadUint32(&h.magic); m != chanMagic {
		return &shm.ResourceError{Name: c.seg.Name(), Op: "validate",
			Err: fmt.Errorf("bad channel magic %#x (segment not initialized yet?)", m)}
	}
	if h.abi != chanABI {
		return &shm.ResourceError{Name: c.seg.Name(), Op: "validate",
			Err: fmt.Errorf("channel ABI version %d, want %d", h.abi, chanABI)}
	}
	return nil
}

// Write publishes desc into the slot once the consumer has finished with the
// slot's current occupant. It returns the previous descriptor so the caller
// can release the underlying hardware buffer only now that the consumer is
// done with it. On shm.ErrTimeout the slot was NOT overwritten and the
// caller must release the buffer it was about to publish instead of leaking
// it (back-pressure fallback).
func (c *Channel) Write(desc Descriptor, timeout time.Duration) (*Descriptor, error) {
	h := c.header()
	if err := shm.SemAt(&h.consumedSem).Wait(timeout); err != nil {
		return nil, err
	}
	var prev *Descriptor
	if atomic.LoadUint32(&h.version) > 0 {
		p := *c.slot()
		prev = &p
	}
	*c.slot() = desc
	atomic.AddUint32(&h.version, 1)
	shm.SemAt(&h.newFrameSem).Post()
	return prev, nil
}

// WaitForFrame blocks until the producer publishes a descriptor or the
// timeout elapses. The caller owns the referenced buffer until it calls
// MarkConsumed; the producer cannot overwrite the slot before that.
func (c *Channel) WaitForFrame(timeout time.Duration) (Descriptor, error) {
	if err := shm.SemAt(&c.header().newFrameSem).Wait(timeout); err != nil {
		return Descriptor{}, err
	}
	return *c.slot(), nil
}

// MarkConsumed returns slot ownership to the producer.
func (c *Channel) MarkConsumed() {
	shm.SemAt(&c.header().consumedSem).Post()
}

// Version returns the number of descriptors published so far.
func (c *Channel) Version() uint32 {
	return atomic.LoadUint32(&c.header().version)
}

// Role reports whether this process created the segment.
func (c *Channel) Role() shm.Role { return c.seg.Role() }

// Close unmaps the channel.
func (c *Channel) Close() error { return c.seg.Close() }

// Unlink removes the channel; creator only, at final shutdown.
func (c *Channel) Unlink() error { return c.seg.Unlink() }

func checkLayout() error {
	if s := unsafe.Sizeof(Descriptor{}); s != descriptorSize {
		return fmt.Errorf("descriptor layout drifted: sizeof=%d, ABI expects %d", s, descriptorSize)
	}
	if s := unsafe.Sizeof(chanHeader{}); s != chanHeaderSize {
		return fmt.Errorf("channel header layout drifted: sizeof=%d, ABI expects %d", s, chanHeaderSize)
	}
	return nil
}
