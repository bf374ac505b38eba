package models

import (
	"errors"
	"time"
)

// MaxFrameSize is the fixed payload capacity of a frame slot: one 1080p NV12
// frame. It is part of the shared-memory ABI and must be identical in every
// process that attaches to a segment.
const MaxFrameSize = 1920 * 1080 * 3 / 2

// ErrPayloadTooLarge is returned when a payload does not fit in a frame slot.
var ErrPayloadTooLarge = errors.New("payload exceeds max frame size")

// Format identifies the encoding of a frame payload.
type Format int32

const (
	FormatJPEG Format = 0
	FormatNV12 Format = 1
	FormatRGB  Format = 2
	FormatH264 Format = 3
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatNV12:
		return "nv12"
	case FormatRGB:
		return "rgb"
	case FormatH264:
		return "h264"
	default:
		return "unknown"
	}
}

// Zone classifies ambient brightness for low-light handling.
type Zone uint8

const (
	ZoneDark   Zone = 0 // needs correction
	ZoneDim    Zone = 1 // mild correction
	ZoneNormal Zone = 2
	ZoneBright Zone = 3
)

func (z Zone) String() string {
	switch z {
	case ZoneDark:
		return "dark"
	case ZoneDim:
		return "dim"
	case ZoneNormal:
		return "normal"
	case ZoneBright:
		return "bright"
	default:
		return "unknown"
	}
}

// ClassifyZone maps a mean brightness (0-255) to its zone.
func ClassifyZone(avg float32) Zone {
	switch {
	case avg < 50:
		return ZoneDark
	case avg < 70:
		return ZoneDim
	case avg < 180:
		return ZoneNormal
	default:
		return ZoneBright
	}
}

// Frame is a single camera frame as laid out in shared memory.
//
// The field order, sizes, and padding are the inter-process ABI: every process
// attaching to a frame segment overlays exactly this layout. All fields are
// naturally aligned; the header is 56 bytes followed by the payload.
type Frame struct {
	FrameNumber       uint64 // monotonic per writer
	TimestampNs       int64  // capture time, monotonic clock
	CameraID          Camera
	Width             int32
	Height            int32
	Format            Format
	DataSize          uint64 // valid bytes in Data
	BrightnessAvg     float32
	BrightnessLux     uint32
	BrightnessZone    Zone
	CorrectionApplied uint8
	_                 [6]byte
	Data              [MaxFrameSize]byte
}

// Payload returns the valid portion of the frame data.
func (f *Frame) Payload() []byte {
	n := f.DataSize
	if n > MaxFrameSize {
		n = MaxFrameSize
	}
	return f.Data[:n]
}

// SetPayload copies b into the frame and records its size.
func (f *Frame) SetPayload(b []byte) error {
	if len(b) > MaxFrameSize {
		return ErrPayloadTooLarge
	}
	copy(f.Data[:], b)
	f.DataSize = uint64(len(b))
	return nil
}

// Timestamp returns the capture time as a time.Time.
func (f *Frame) Timestamp() time.Time {
	return time.Unix(0, f.TimestampNs)
}
