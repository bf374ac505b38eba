package capture

import (
	"fmt"
	"math"
	"time"

	"gocv.io/x/gocv"

	"camswitch-go/internal/models"
)

// Source fills a frame with pixel data for one grab. Implementations set
// Width, Height, Format and the payload; the service owns the rest of the
// header.
type Source interface {
	Grab(frame *models.Frame) error
	Close() error
}

// DeviceSource reads from a V4L2 device or RTSP URL through OpenCV and
// emits RGB frames.
type DeviceSource struct {
	cap *gocv.VideoCapture
	img gocv.Mat
	rgb gocv.Mat
}

func OpenDevice(source string, width, height int) (*DeviceSource, error) {
	cap, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", source, err)
	}
	cap.Set(gocv.VideoCaptureFrameWidth, float64(width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(height))
	cap.Set(gocv.VideoCaptureBufferSize, 1) // Minimal buffer

	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("capture: device %s not opened", source)
	}

	return &DeviceSource{
		cap: cap,
		img: gocv.NewMat(),
		rgb: gocv.NewMat(),
	}, nil
}

func (d *DeviceSource) Grab(frame *models.Frame) error {
	if ok := d.cap.Read(&d.img); !ok || d.img.Empty() {
		return fmt.Errorf("capture: device read failed")
	}

	// OpenCV hands back BGR; the shared frame format is RGB.
	gocv.CvtColor(d.img, &d.rgb, gocv.ColorBGRToRGB)

	data, err := d.rgb.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("capture: mat data: %w", err)
	}
	if err := frame.SetPayload(data); err != nil {
		return err
	}
	frame.Width = int32(d.rgb.Cols())
	frame.Height = int32(d.rgb.Rows())
	frame.Format = models.FormatRGB
	return nil
}

func (d *DeviceSource) Close() error {
	d.img.Close()
	d.rgb.Close()
	return d.cap.Close()
}

// SynthSource generates flat NV12 frames whose brightness follows a slow
// sinusoidal day/night cycle, so the switcher has something to react to
// without hardware attached.
type SynthSource struct {
	width, height int
	cycle         time.Duration
	start         time.Time
}

func NewSynthSource(width, height int, cycle time.Duration) *SynthSource {
	return &SynthSource{
		width:  width,
		height: height,
		cycle:  cycle,
		start:  time.Now(),
	}
}

// Luma returns the Y value the current cycle position produces, 10..220.
func (s *SynthSource) Luma() uint8 {
	phase := float64(time.Since(s.start)) / float64(s.cycle)
	v := (math.Sin(2*math.Pi*phase) + 1) / 2
	return uint8(10 + v*210)
}

func (s *SynthSource) Grab(frame *models.Frame) error {
	ySize := s.width * s.height
	total := ySize + ySize/2
	if total > models.MaxFrameSize {
		return models.ErrPayloadTooLarge
	}

	y := s.Luma()
	buf := frame.Data[:total]
	for i := 0; i < ySize; i++ {
		buf[i] = y
	}
	for i := ySize; i < total; i++ {
		buf[i] = 128 // neutral chroma
	}

	frame.DataSize = uint64(total)
	frame.Width = int32(s.width)
	frame.Height = int32(s.height)
	frame.Format = models.FormatNV12
	return nil
}

func (s *SynthSource) Close() error { return nil }
