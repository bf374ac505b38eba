//go:build linux

package zerocopy

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrAlreadyReleased is returned when a buffer handle is released twice.
var ErrAlreadyReleased = errors.New("zerocopy: buffer already released")

// OwnedBuffer is a release-exactly-once handle for a hardware buffer. The
// release callback returns the buffer to the allocator (VIO frame release or
// equivalent); the handle refuses a second release instead of double-freeing.
type OwnedBuffer struct {
	desc     Descriptor
	release  func() error
	released atomic.Bool
}

// NewOwnedBuffer wraps a hardware buffer in a single-release handle.
// release may be nil for buffers the allocator reclaims elsewhere.
func NewOwnedBuffer(desc Descriptor, release func() error) *OwnedBuffer {
	return &OwnedBuffer{desc: desc, release: release}
}

// Descriptor returns the descriptor referencing this buffer.
func (b *OwnedBuffer) Descriptor() Descriptor { return b.desc }

// Release returns the buffer to its allocator. Exactly one call succeeds;
// every later call returns ErrAlreadyReleased.
func (b *OwnedBuffer) Release() error {
	if !b.released.CompareAndSwap(false, true) {
		return ErrAlreadyReleased
	}
	if b.release == nil {
		return nil
	}
	return b.release()
}

// Released reports whether the buffer has been given back.
func (b *OwnedBuffer) Released() bool { return b.released.Load() }

// Producer pairs a channel with the deferred-release protocol: the buffer
// published in write k is held pending and released only when write k+1
// succeeds (proof the consumer has finished with it). On back-pressure
// timeout the new buffer is released immediately and the pending one stays
// pending, so no buffer ever has two live owners and none leaks.
type Producer struct {
	ch      *Channel
	pending *OwnedBuffer
}

// NewProducer wraps ch for deferred-release publishing.
func NewProducer(ch *Channel) *Producer {
	return &Producer{ch: ch}
}

// Publish hands buf's descriptor to the consumer. On timeout buf is released
// back to the allocator and the error is shm.ErrTimeout.
func (p *Producer) Publish(buf *OwnedBuffer, timeout time.Duration) error {
	if _, err := p.ch.Write(buf.Descriptor(), timeout); err != nil {
		if relErr := buf.Release(); relErr != nil {
			return errors.Join(err, relErr)
		}
		return err
	}
	if p.pending != nil {
		if err := p.pending.Release(); err != nil {
			p.pending = buf
			return err
		}
	}
	p.pending = buf
	return nil
}

// Close releases any still-pending buffer. Call at producer shutdown.
func (p *Producer) Close() error {
	if p.pending == nil {
		return nil
	}
	err := p.pending.Release()
	p.pending = nil
	return err
}
