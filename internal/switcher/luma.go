package switcher

import (
	"errors"
	"fmt"

	"camswitch-go/internal/models"
)

// ErrLumaUnavailable is returned for compressed formats whose pixel data
// cannot be inspected without decoding.
var ErrLumaUnavailable = errors.New("switcher: brightness unavailable for compressed format")

// MeanLuma computes the mean luminance of a frame's payload on a 0-255
// scale. NV12 frames average the Y plane directly; RGB frames use the
// BT.601 weights. Compressed payloads return ErrLumaUnavailable.
func MeanLuma(frame *models.Frame) (float64, error) {
	if frame.DataSize == 0 {
		return 0, fmt.Errorf("switcher: empty payload")
	}

	switch frame.Format {
	case models.FormatNV12:
		ySize := int(frame.Width) * int(frame.Height)
		if ySize <= 0 || uint64(ySize) > frame.DataSize {
			return 0, fmt.Errorf("switcher: nv12 payload %d too small for %dx%d luma plane",
				frame.DataSize, frame.Width, frame.Height)
		}
		var sum uint64
		for _, b := range frame.Data[:ySize] {
			sum += uint64(b)
		}
		return float64(sum) / float64(ySize), nil

	case models.FormatRGB:
		n := int(frame.DataSize)
		if n < 3 || n%3 != 0 {
			return 0, fmt.Errorf("switcher: rgb payload size %d not a pixel multiple", n)
		}
		var sum float64
		data := frame.Data[:n]
		for i := 0; i < n; i += 3 {
			sum += 0.299*float64(data[i]) + 0.587*float64(data[i+1]) + 0.114*float64(data[i+2])
		}
		return sum / float64(n/3), nil

	default:
		return 0, ErrLumaUnavailable
	}
}
