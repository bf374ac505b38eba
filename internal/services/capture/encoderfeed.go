package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"camswitch-go/internal/metrics"
	"camswitch-go/internal/models"
	"camswitch-go/internal/shm"
	"camswitch-go/internal/zerocopy"
)

// EncoderFeed drives the per-camera zero-copy descriptor channels the way
// the capture pipeline hands dmabuf frames to a hardware encoder. The
// simulator has no real dmabufs, so buffer handles are synthetic and
// release is a pool-counter decrement.
type EncoderFeed struct {
	channels  [2]*zerocopy.Channel
	producers [2]*zerocopy.Producer
	metrics   *metrics.Metrics

	mu       sync.Mutex
	inFlight int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEncoderFeed(m *metrics.Metrics) (*EncoderFeed, error) {
	if m == nil {
		m = metrics.New()
	}
	day, err := zerocopy.NewChannel(shm.NameZeroCopyDay)
	if err != nil {
		return nil, err
	}
	night, err := zerocopy.NewChannel(shm.NameZeroCopyNight)
	if err != nil {
		day.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &EncoderFeed{
		channels: [2]*zerocopy.Channel{day, night},
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
	}
	f.producers = [2]*zerocopy.Producer{
		zerocopy.NewProducer(day),
		zerocopy.NewProducer(night),
	}
	return f, nil
}

// StartConsumers runs one drain loop per channel, standing in for the
// encoder process on the other side.
func (f *EncoderFeed) StartConsumers() {
	for cam := models.CameraDay; cam <= models.CameraNight; cam++ {
		f.wg.Add(1)
		go f.consume(cam)
	}
}

func (f *EncoderFeed) consume(cam models.Camera) {
	defer f.wg.Done()
	ch := f.channels[cam]
	for {
		if f.ctx.Err() != nil {
			return
		}
		_, err := ch.WaitForFrame(200 * time.Millisecond)
		if err != nil {
			if errors.Is(err, shm.ErrTimeout) {
				f.metrics.SemTimeouts.Add(1)
				continue
			}
			log.Warn().Err(err).Str("camera", cam.String()).Msg("Zero-copy wait failed")
			continue
		}
		ch.MarkConsumed()
	}
}

// Publish hands one frame's descriptor to the camera's channel. A full
// channel (encoder stalled) drops the frame and reclaims the buffer, which
// is the producer-side contract for owned buffers.
func (f *EncoderFeed) Publish(frame *models.Frame) {
	desc := zerocopy.Descriptor{
		FrameNumber:   frame.FrameNumber,
		TimestampNs:   frame.TimestampNs,
		CameraID:      frame.CameraID,
		Width:         frame.Width,
		Height:        frame.Height,
		Format:        frame.Format,
		PlaneCount:    1,
		BrightnessAvg: frame.BrightnessAvg,
	}
	desc.Planes[0] = zerocopy.Plane{
		Handle: int64(frame.FrameNumber), // synthetic handle
		Size:   frame.DataSize,
	}

	f.mu.Lock()
	f.inFlight++
	f.mu.Unlock()

	buf := zerocopy.NewOwnedBuffer(desc, func() error {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
		return nil
	})

	if err := f.producers[frame.CameraID].Publish(buf, 50*time.Millisecond); err != nil {
		if errors.Is(err, shm.ErrTimeout) {
			f.metrics.SemTimeouts.Add(1)
		} else {
			log.Warn().Err(err).Msg("Zero-copy publish failed")
		}
	}
}

// InFlight reports buffers handed out and not yet released.
func (f *EncoderFeed) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *EncoderFeed) Stop() {
	f.cancel()
	f.wg.Wait()
	for cam := models.CameraDay; cam <= models.CameraNight; cam++ {
		f.producers[cam].Close()
		f.channels[cam].Close()
	}
}

// Unlink removes both descriptor channel segments.
func (f *EncoderFeed) Unlink() {
	for cam := models.CameraDay; cam <= models.CameraNight; cam++ {
		if err := f.channels[cam].Unlink(); err != nil {
			log.Warn().Err(err).Str("camera", cam.String()).Msg("Zero-copy unlink failed")
		}
	}
}
