// Package capture feeds the shared-memory surfaces the switcher consumes:
// frames into the ring, brightness samples into the broadcast cell. It
// stands in for the real camera pipeline, either from a capture device or
// from a synthetic day/night cycle.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"camswitch-go/internal/broadcast"
	"camswitch-go/internal/metrics"
	"camswitch-go/internal/models"
	"camswitch-go/internal/shm"
	"camswitch-go/internal/switcher"
)

type Options struct {
	Source       Source
	FPS          int
	WarmupFrames int
	// NightProbeOffset is added to the day reading to fake the night
	// camera's IR-lit brightness sample.
	NightProbeOffset float64
	// ZeroCopy also drives the per-camera descriptor channels.
	ZeroCopy bool
	// Metrics receives producer-side counters; a private set is created
	// when nil.
	Metrics *metrics.Metrics
}

type Service struct {
	opts       Options
	ring       *shm.Ring
	brightness *broadcast.Brightness
	control    *broadcast.Control
	feed       *EncoderFeed

	gate        *switcher.Controller
	active      models.Camera
	controlSeen uint32
	frameNumber uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates the ring and brightness segments (or attaches to
// leftovers from a previous run) and prepares the capture loop.
func NewService(opts Options) (*Service, error) {
	ring, err := shm.NewRing(shm.NameActiveFrame)
	if err != nil {
		return nil, err
	}

	brightness, err := broadcast.NewBrightness()
	if err != nil {
		ring.Close()
		return nil, err
	}

	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	// The gate only drops warmup frames here; switching decisions stay
	// with the switcher daemon.
	gate := switcher.NewController(switcher.Config{WarmupFrames: opts.WarmupFrames})
	gate.NotifyActiveCamera(models.CameraDay, "init")

	var feed *EncoderFeed
	if opts.ZeroCopy {
		feed, err = NewEncoderFeed(opts.Metrics)
		if err != nil {
			brightness.Close()
			ring.Close()
			return nil, err
		}
		feed.StartConsumers()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		opts:       opts,
		ring:       ring,
		brightness: brightness,
		feed:       feed,
		gate:       gate,
		active:     models.CameraDay,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the capture loop. The control channel is attached lazily
// inside the loop because the switcher daemon may start after us.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts the loop and detaches from shared memory. Segments created by
// this process are left in place for readers; callers decide when to unlink.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	s.opts.Source.Close()
	if s.feed != nil {
		s.feed.Stop()
	}
	s.brightness.Close()
	s.ring.Close()
	if s.control != nil {
		s.control.Close()
	}
}

// Unlink removes the segments this process created.
func (s *Service) Unlink() {
	if s.feed != nil {
		s.feed.Unlink()
	}
	if err := s.brightness.Unlink(); err != nil {
		log.Warn().Err(err).Msg("Brightness unlink failed")
	}
	if err := s.ring.Unlink(); err != nil {
		log.Warn().Err(err).Msg("Ring unlink failed")
	}
}

func (s *Service) run() {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Capture loop panic recovered")
		}
	}()

	interval := time.Second / time.Duration(s.opts.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Int("fps", s.opts.FPS).
		Dur("interval", interval).
		Msg("Capture loop started")

	for {
		select {
		case <-s.ctx.Done():
			log.Info().Uint64("frames", s.frameNumber).Msg("Capture loop stopped")
			return
		case <-ticker.C:
			s.checkControl()
			s.captureOnce()

			// Readers can ask producers to slow down through the ring
			// header; honor anything slower than our own rate.
			if throttle := s.ring.FrameInterval(); throttle > interval {
				ticker.Reset(throttle)
			} else {
				ticker.Reset(interval)
			}
		}
	}
}

// checkControl follows the switcher's published camera selection. On a
// change the warmup gate re-arms so the first frames after the flip are
// swallowed, like a real sensor settling its exposure.
func (s *Service) checkControl() {
	if s.control == nil {
		control, err := broadcast.OpenControl(1, 0)
		if err != nil {
			return // switcher not up yet
		}
		s.control = control
		log.Info().Msg("Attached to switcher control channel")
	}

	state, version := s.control.Read()
	if version == s.controlSeen {
		return
	}
	s.controlSeen = version
	if !state.ActiveCamera.Valid() || state.ActiveCamera == s.active {
		return
	}

	log.Info().
		Str("from", s.active.String()).
		Str("to", state.ActiveCamera.String()).
		Msg("Control channel switched active camera")
	s.active = state.ActiveCamera
	s.gate.NotifyActiveCamera(state.ActiveCamera, "control")
}

func (s *Service) captureOnce() {
	frame := new(models.Frame)
	if err := s.opts.Source.Grab(frame); err != nil {
		log.Warn().Err(err).Msg("Frame grab failed")
		return
	}

	s.frameNumber++
	frame.FrameNumber = s.frameNumber
	frame.TimestampNs = time.Now().UnixNano()
	frame.CameraID = s.active

	avg, err := switcher.MeanLuma(frame)
	if err != nil {
		log.Warn().Err(err).Msg("Brightness measurement failed")
		avg = 0
	}
	frame.BrightnessAvg = float32(avg)
	frame.BrightnessZone = models.ClassifyZone(float32(avg))

	s.publishBrightness(avg, frame)

	err = s.gate.PublishFrame(frame, func(f *models.Frame) error {
		return s.ring.Write(f)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Frame publish failed")
		return
	}

	if s.feed != nil {
		s.feed.Publish(frame)
	}
}

// publishBrightness emits the day sample from the measured luma. When the
// night camera is active the day camera still probes ambient light, which
// is what lets the switcher find its way back to day.
func (s *Service) publishBrightness(avg float64, frame *models.Frame) {
	sample := models.BrightnessSample{
		FrameNumber: frame.FrameNumber,
		TimestampNs: frame.TimestampNs,
		Avg:         float32(avg),
		Lux:         uint32(avg * 4), // rough lux estimate for display only
		Zone:        frame.BrightnessZone,
	}
	s.brightness.Update(models.CameraDay, sample)

	if s.active == models.CameraNight {
		night := sample
		night.Avg = float32(avg + s.opts.NightProbeOffset)
		night.Zone = models.ClassifyZone(night.Avg)
		s.brightness.Update(models.CameraNight, night)
	}
}
