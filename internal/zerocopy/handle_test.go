package zerocopy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camswitch-go/internal/shm"
)

func TestOwnedBufferReleaseExactlyOnce(t *testing.T) {
	calls := 0
	buf := NewOwnedBuffer(testDesc(1), func() error {
		calls++
		return nil
	})

	assert.False(t, buf.Released())
	require.NoError(t, buf.Release())
	assert.True(t, buf.Released())
	assert.Equal(t, 1, calls)

	err := buf.Release()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyReleased))
	assert.Equal(t, 1, calls)
}

func TestProducerDeferredRelease(t *testing.T) {
	ch := newTestChannel(t, "prod")
	p := NewProducer(ch)

	released := make(map[uint64]bool)
	mkBuf := func(num uint64) *OwnedBuffer {
		return NewOwnedBuffer(testDesc(num), func() error {
			released[num] = true
			return nil
		})
	}

	first := mkBuf(1)
	require.NoError(t, p.Publish(first, time.Second))
	assert.False(t, first.Released(), "published buffer stays owned until the next publish")

	// Consumer finishes with frame 1.
	_, err := ch.WaitForFrame(time.Second)
	require.NoError(t, err)
	ch.MarkConsumed()

	second := mkBuf(2)
	require.NoError(t, p.Publish(second, time.Second))
	assert.True(t, released[1], "previous buffer released after successful publish")
	assert.False(t, second.Released())

	require.NoError(t, p.Close())
	assert.True(t, released[2], "pending buffer released on close")
}

func TestProducerTimeoutReleasesNewBuffer(t *testing.T) {
	ch := newTestChannel(t, "prod_timeout")
	p := NewProducer(ch)

	first := NewOwnedBuffer(testDesc(1), func() error { return nil })
	require.NoError(t, p.Publish(first, time.Second))

	// Consumer never drains: the next publish times out and must hand the
	// new buffer back, while the pending one stays live in the slot.
	second := NewOwnedBuffer(testDesc(2), func() error { return nil })
	err := p.Publish(second, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shm.ErrTimeout))
	assert.True(t, second.Released())
	assert.False(t, first.Released())

	require.NoError(t, p.Close())
	assert.True(t, first.Released())
}
