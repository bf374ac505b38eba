// Package worker runs the day/night switcher: a single poll loop that feeds
// shared-memory brightness samples into the hysteresis controller and acts
// on its decisions.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"camswitch-go/internal/broadcast"
	"camswitch-go/internal/config"
	"camswitch-go/internal/metrics"
	"camswitch-go/internal/models"
	"camswitch-go/internal/services/messaging"
	"camswitch-go/internal/shm"
	"camswitch-go/internal/switcher"
)

// SwitchFunc flips the physical camera mux (GPIO, V4L2 control, external
// command). It must be idempotent: the runtime may retry a target.
type SwitchFunc func(target models.Camera) error

// Deps are the shared-memory attachments and side-effect hooks the runtime
// drives. Brightness and Control are required; the rest may be nil.
type Deps struct {
	Brightness *broadcast.Brightness
	Control    *broadcast.Control
	Ring       *shm.Ring
	SwitchFn   SwitchFunc
	Events     *messaging.Service
	Metrics    *metrics.Metrics
}

// Runtime owns the switch controller and serializes all access to it. One
// goroutine polls brightness; the API and signal surfaces call in through
// ForceDay/ForceNight/ResumeAuto/Status.
type Runtime struct {
	cfg    *config.Config
	deps   Deps
	logger zerolog.Logger

	mu           sync.Mutex // guards ctrl and lastFrameNum
	ctrl         *switcher.Controller
	lastVersion  uint32
	lastFrameNum [2]uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a runtime around an initial camera taken from cfg.
func New(cfg *config.Config, logger zerolog.Logger, deps Deps) (*Runtime, error) {
	if deps.Brightness == nil || deps.Control == nil {
		return nil, errors.New("worker: brightness and control channels are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	ctrl := switcher.NewController(switcher.Config{
		DayToNightThreshold: cfg.DayToNightThreshold,
		NightToDayThreshold: cfg.NightToDayThreshold,
		DayToNightHold:      cfg.DayToNightHold,
		NightToDayHold:      cfg.NightToDayHold,
		WarmupFrames:        cfg.WarmupFrames,
	})

	initial := models.CameraDay
	if strings.EqualFold(cfg.InitialCamera, "night") {
		initial = models.CameraNight
	}
	ctrl.NotifyActiveCamera(initial, "init")

	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		ctrl:   ctrl,
		ctx:    ctx,
		cancel: cancel,
	}

	deps.Control.Write(models.ControlState{ActiveCamera: initial})
	deps.Metrics.ActiveCamera.Store(uint64(initial))
	return rt, nil
}

// Start launches the brightness poll loop.
func (rt *Runtime) Start() {
	rt.wg.Add(1)
	go rt.pollLoop()
	rt.logger.Info().
		Str("initial_camera", rt.ActiveCamera().String()).
		Dur("poll_day", rt.cfg.PollIntervalDay).
		Dur("poll_night", rt.cfg.PollIntervalNight).
		Msg("Switcher runtime started")
}

// Stop halts the poll loop and waits for it to exit.
func (rt *Runtime) Stop() {
	rt.cancel()
	rt.wg.Wait()
	rt.logger.Info().Msg("Switcher runtime stopped")
}

func (rt *Runtime) pollLoop() {
	defer rt.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Switcher poll loop panic recovered")
		}
	}()

	timer := time.NewTimer(rt.pollInterval())
	defer timer.Stop()

	for {
		select {
		case <-rt.ctx.Done():
			return
		case <-timer.C:
			rt.pollOnce()
			timer.Reset(rt.pollInterval())
		}
	}
}

// pollInterval relaxes while the night camera is active: the day camera is
// only probing ambient light then, so sub-second latency buys nothing.
func (rt *Runtime) pollInterval() time.Duration {
	if rt.ActiveCamera() == models.CameraNight {
		return rt.cfg.PollIntervalNight
	}
	return rt.cfg.PollIntervalDay
}

func (rt *Runtime) pollOnce() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	version := rt.deps.Brightness.Version()
	if version == rt.lastVersion {
		rt.deps.Metrics.BrightnessSkipped.Add(1)
		return
	}
	rt.lastVersion = version

	// Night first so the day sample, which drives decisions, is fed last
	// against fully updated stats.
	rt.feedSample(models.CameraNight)
	if decision := rt.feedSample(models.CameraDay); decision != switcher.DecisionNone {
		target := models.CameraDay
		if decision == switcher.DecisionToNight {
			target = models.CameraNight
		}
		rt.performSwitch(rt.ctrl.ActiveCamera(), target, decision.String(), false)
	}
}

// feedSample reads one camera's latest brightness and feeds it to the
// controller. Samples already seen (same frame number) are not re-fed, so a
// stalled producer cannot age a hysteresis timer on stale data.
func (rt *Runtime) feedSample(cam models.Camera) switcher.Decision {
	sample, _ := rt.deps.Brightness.Read(cam)
	if sample.FrameNumber == 0 || sample.FrameNumber == rt.lastFrameNum[cam] {
		return switcher.DecisionNone
	}
	rt.lastFrameNum[cam] = sample.FrameNumber

	rt.deps.Metrics.BrightnessSamples.Add(1)
	if cam == models.CameraDay {
		rt.deps.Metrics.SetDayBrightness(float64(sample.Avg))
	}
	return rt.ctrl.RecordBrightness(cam, float64(sample.Avg))
}

// performSwitch executes the camera flip and publishes the new state.
// A failing switch callback is logged and counted but the runtime still
// updates its own state: the mux may have partially switched, and retrying
// from a consistent view beats oscillating on a stale one.
func (rt *Runtime) performSwitch(from, target models.Camera, reason string, forced bool) {
	brightness := rt.ctrl.Status().Stats[models.CameraDay].Latest

	if rt.deps.SwitchFn != nil {
		if err := rt.deps.SwitchFn(target); err != nil {
			rt.deps.Metrics.SwitchErrors.Add(1)
			log.Error().Err(err).
				Str("from", from.String()).
				Str("to", target.String()).
				Msg("Camera switch callback failed")
		}
	}

	rt.ctrl.NotifyActiveCamera(target, reason)

	rt.deps.Control.Write(models.ControlState{ActiveCamera: target})

	rt.deps.Metrics.ActiveCamera.Store(uint64(target))
	if forced {
		rt.deps.Metrics.ForcedSwitches.Add(1)
	} else if target == models.CameraNight {
		rt.deps.Metrics.SwitchesToNight.Add(1)
	} else {
		rt.deps.Metrics.SwitchesToDay.Add(1)
	}

	log.Info().
		Str("from", from.String()).
		Str("to", target.String()).
		Str("reason", reason).
		Float64("day_brightness", brightness).
		Msg("Camera switched")

	if rt.deps.Events != nil {
		event := models.SwitchEvent{
			From:       from,
			To:         target,
			Reason:     reason,
			Brightness: brightness,
			Timestamp:  time.Now(),
		}
		if err := rt.deps.Events.PublishSwitchEvent(event); err != nil {
			log.Warn().Err(err).Msg("Switch event publish failed")
		}
	}
}

// ForceDay overrides hysteresis and activates the day camera.
func (rt *Runtime) ForceDay() {
	rt.force(models.CameraDay)
}

// ForceNight overrides hysteresis and activates the night camera.
func (rt *Runtime) ForceNight() {
	rt.force(models.CameraNight)
}

func (rt *Runtime) force(target models.Camera) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	from := rt.ctrl.ActiveCamera()
	rt.ctrl.ForceManual(target)
	rt.performSwitch(from, target, "forced-"+target.String(), true)
	rt.deps.Metrics.ManualMode.Store(1)
}

// ResumeAuto returns to hysteresis-driven switching from the current camera.
func (rt *Runtime) ResumeAuto() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.ctrl.ResumeAuto()
	rt.deps.Metrics.ManualMode.Store(0)
	log.Info().Str("active", rt.ctrl.ActiveCamera().String()).Msg("Resumed automatic switching")
}

// ActiveCamera reports the camera the runtime believes is active.
func (rt *Runtime) ActiveCamera() models.Camera {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.ctrl.ActiveCamera()
}

// Status snapshots the controller for the API surface.
func (rt *Runtime) Status() switcher.Status {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.ctrl.Status()
}

// PublishFrame routes a captured frame through the warmup gate and double
// buffer into the shared ring. Used when the runtime is embedded in the
// capture process; returns an error if no ring was attached.
func (rt *Runtime) PublishFrame(frame *models.Frame) error {
	if rt.deps.Ring == nil {
		return errors.New("worker: no frame ring attached")
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	before := rt.ctrl.Status().WarmupRemaining
	err := rt.ctrl.PublishFrame(frame, func(f *models.Frame) error {
		return rt.deps.Ring.Write(f)
	})
	if err != nil {
		return err
	}
	if before > 0 {
		rt.deps.Metrics.FramesDroppedWarm.Add(1)
	} else {
		rt.deps.Metrics.FramesPublished.Add(1)
	}
	return nil
}

// CommandSwitchFn builds a SwitchFunc that runs cfg.SwitchCommand with the
// target camera name appended, bounded by cfg.SwitchTimeout. Returns nil if
// no command is configured.
func CommandSwitchFn(cfg *config.Config) SwitchFunc {
	if cfg.SwitchCommand == "" {
		return nil
	}
	return func(target models.Camera) error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.SwitchTimeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, cfg.SwitchCommand, target.String())
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("switch command %q: %w (output: %s)",
				cfg.SwitchCommand, err, strings.TrimSpace(string(out)))
		}
		return nil
	}
}
