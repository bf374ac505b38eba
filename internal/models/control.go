package models

// Camera selects one of the two physical capture sources. The numeric values
// are part of the shared-memory ABI (day=0, night=1).
type Camera int32

const (
	CameraDay   Camera = 0
	CameraNight Camera = 1
)

func (c Camera) String() string {
	switch c {
	case CameraDay:
		return "day"
	case CameraNight:
		return "night"
	default:
		return "unknown"
	}
}

// Other returns the opposite camera.
func (c Camera) Other() Camera {
	if c == CameraDay {
		return CameraNight
	}
	return CameraDay
}

// Valid reports whether c is one of the two known cameras.
func (c Camera) Valid() bool {
	return c == CameraDay || c == CameraNight
}

// BrightnessSample is the per-camera brightness record published by the
// capture pipeline. Fixed 32-byte layout, part of the shared-memory ABI.
type BrightnessSample struct {
	FrameNumber       uint64
	TimestampNs       int64
	Avg               float32
	Lux               uint32
	Zone              Zone
	CorrectionApplied uint8
	_                 [6]byte
}

// ControlState is the single control record consumed by the capture daemons:
// which camera should be producing the active frame stream.
type ControlState struct {
	ActiveCamera Camera
	_            uint32
}
