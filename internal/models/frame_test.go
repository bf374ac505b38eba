package models

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyZone(t *testing.T) {
	assert.Equal(t, ZoneDark, ClassifyZone(0))
	assert.Equal(t, ZoneDark, ClassifyZone(49.9))
	assert.Equal(t, ZoneDim, ClassifyZone(50))
	assert.Equal(t, ZoneDim, ClassifyZone(69.9))
	assert.Equal(t, ZoneNormal, ClassifyZone(70))
	assert.Equal(t, ZoneNormal, ClassifyZone(179.9))
	assert.Equal(t, ZoneBright, ClassifyZone(180))
	assert.Equal(t, ZoneBright, ClassifyZone(255))
}

func TestFramePayloadRoundTrip(t *testing.T) {
	f := new(Frame)
	payload := []byte{1, 2, 3, 4, 5}
	require.NoError(t, f.SetPayload(payload))
	assert.Equal(t, uint64(5), f.DataSize)
	assert.Equal(t, payload, f.Payload())
}

func TestFramePayloadTooLarge(t *testing.T) {
	f := new(Frame)
	big := make([]byte, MaxFrameSize+1)
	assert.ErrorIs(t, f.SetPayload(big), ErrPayloadTooLarge)
}

func TestCameraOther(t *testing.T) {
	assert.Equal(t, CameraNight, CameraDay.Other())
	assert.Equal(t, CameraDay, CameraNight.Other())
	assert.True(t, CameraDay.Valid())
	assert.False(t, Camera(2).Valid())
}

// The structs below cross the process boundary as raw bytes; their sizes
// are part of the shared memory ABI.
func TestSharedLayoutSizes(t *testing.T) {
	assert.Equal(t, uintptr(56+MaxFrameSize), unsafe.Sizeof(Frame{}))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(BrightnessSample{}))
	assert.Equal(t, uintptr(8), unsafe.Sizeof(ControlState{}))
}
