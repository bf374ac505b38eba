// Package switcher decides which of the day/night cameras should be active,
// based on brightness hysteresis, and gates frame publication through a
// warmup counter and a double buffer.
package switcher

import (
	"errors"
	"time"

	"camswitch-go/internal/models"
)

// Mode selects automatic hysteresis switching or a manual override.
type Mode int

const (
	ModeAuto Mode = iota
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// Decision is the outcome of feeding one brightness sample.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionToDay
	DecisionToNight
)

func (d Decision) String() string {
	switch d {
	case DecisionToDay:
		return "to-day"
	case DecisionToNight:
		return "to-night"
	default:
		return "none"
	}
}

// Config holds the caller-supplied switching thresholds. Immutable after
// construction; this package never reads configuration from files.
type Config struct {
	DayToNightThreshold float64       // mean brightness (0-255) below which night is considered
	NightToDayThreshold float64       // mean brightness (0-255) above which day is considered
	DayToNightHold      time.Duration // how long brightness must stay below before switching
	NightToDayHold      time.Duration // how long brightness must stay above before switching
	WarmupFrames        int           // frames dropped after a switch while exposure settles
}

// BrightnessStat tracks observed brightness for one camera.
type BrightnessStat struct {
	Latest    float64
	Avg       float64
	Samples   int
	UpdatedAt time.Time
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Mode             Mode
	ActiveCamera     models.Camera
	Stats            [2]BrightnessStat
	LastSwitchReason string
	WarmupRemaining  int
}

// PublishFunc delivers a gated frame to shared memory or any other sink.
type PublishFunc func(*models.Frame) error

// ErrNilPublish is returned by PublishFrame when no callback is supplied.
var ErrNilPublish = errors.New("switcher: nil publish callback")

const noManualTarget = models.Camera(-1)

// Controller is the day/night switch state machine. It is not safe for
// concurrent use; the runtime serializes access.
type Controller struct {
	cfg          Config
	mode         Mode
	active       models.Camera
	manualTarget models.Camera

	stats      [2]BrightnessStat
	belowSince time.Time // zero when the day->night timer is not running
	aboveSince time.Time // zero when the night->day timer is not running
	lastReason string

	buffers         [2]*models.Frame
	activeSlot      int
	warmupRemaining int

	now func() time.Time
}

// NewController builds a controller in auto mode with the day camera active.
func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:          cfg,
		mode:         ModeAuto,
		active:       models.CameraDay,
		manualTarget: noManualTarget,
		lastReason:   "init",
		buffers:      [2]*models.Frame{new(models.Frame), new(models.Frame)},
		now:          time.Now,
	}
}

// RecordBrightness feeds one brightness sample and returns the resulting
// switch decision. Only samples from the day camera drive transitions: the
// night camera's brightness is tracked for observability but its IR-lit
// readings say nothing about ambient light. In manual mode stats are still
// updated but the decision is always DecisionNone.
func (c *Controller) RecordBrightness(cam models.Camera, value float64) Decision {
	c.updateStat(cam, value)

	if c.mode == ModeManual {
		return DecisionNone
	}
	if cam != models.CameraDay {
		return DecisionNone
	}

	now := c.now()
	if c.active == models.CameraDay {
		if value < c.cfg.DayToNightThreshold {
			if c.belowSince.IsZero() {
				c.belowSince = now
			}
			if now.Sub(c.belowSince) >= c.cfg.DayToNightHold {
				c.belowSince = time.Time{}
				return DecisionToNight
			}
		} else {
			c.belowSince = time.Time{}
		}
		return DecisionNone
	}

	// Night active: the day camera keeps producing brightness samples as a
	// probe; switch back once ambient light has recovered long enough.
	if value > c.cfg.NightToDayThreshold {
		if c.aboveSince.IsZero() {
			c.aboveSince = now
		}
		if now.Sub(c.aboveSince) >= c.cfg.NightToDayHold {
			c.aboveSince = time.Time{}
			return DecisionToDay
		}
	} else {
		c.aboveSince = time.Time{}
	}
	return DecisionNone
}

// NotifyActiveCamera records that the hardware has switched to cam. Both
// hysteresis timers are cleared, the warmup gate is armed, and the double
// buffer restarts at slot zero.
func (c *Controller) NotifyActiveCamera(cam models.Camera, reason string) {
	c.active = cam
	c.belowSince = time.Time{}
	c.aboveSince = time.Time{}
	c.warmupRemaining = c.cfg.WarmupFrames
	c.activeSlot = 0
	if reason == "" {
		reason = "switch"
	}
	c.lastReason = reason
}

// PublishFrame passes frame through the warmup gate and double buffer. While
// warmup frames remain the frame is dropped and the callback not invoked
// (suppressing transient auto-exposure frames right after a switch).
// Otherwise the frame is copied into the inactive slot, the slots flip, and
// the callback receives the now-active slot — never the slot currently being
// overwritten.
func (c *Controller) PublishFrame(frame *models.Frame, publish PublishFunc) error {
	if publish == nil {
		return ErrNilPublish
	}
	if c.warmupRemaining > 0 {
		c.warmupRemaining--
		return nil
	}
	inactive := 1 - c.activeSlot
	*c.buffers[inactive] = *frame
	c.activeSlot = inactive
	return publish(c.buffers[c.activeSlot])
}

// ForceManual switches to manual mode and activates cam immediately,
// bypassing hysteresis. Timers are cleared; brightness is still tracked.
func (c *Controller) ForceManual(cam models.Camera) {
	c.mode = ModeManual
	c.manualTarget = cam
	c.active = cam
	c.belowSince = time.Time{}
	c.aboveSince = time.Time{}
	c.lastReason = "manual-" + cam.String()
}

// ResumeAuto returns to automatic switching from whatever camera is active.
func (c *Controller) ResumeAuto() {
	c.mode = ModeAuto
	c.manualTarget = noManualTarget
	c.belowSince = time.Time{}
	c.aboveSince = time.Time{}
	c.lastReason = "resume-auto"
}

// ActiveCamera returns the camera the controller believes is active.
func (c *Controller) ActiveCamera() models.Camera { return c.active }

// Mode returns the current switching mode.
func (c *Controller) Mode() Mode { return c.mode }

// Status returns a snapshot for the observability surface.
func (c *Controller) Status() Status {
	return Status{
		Mode:             c.mode,
		ActiveCamera:     c.active,
		Stats:            c.stats,
		LastSwitchReason: c.lastReason,
		WarmupRemaining:  c.warmupRemaining,
	}
}

func (c *Controller) updateStat(cam models.Camera, value float64) {
	if !cam.Valid() {
		return
	}
	s := &c.stats[cam]
	s.Latest = value
	s.Samples++
	if s.Samples == 1 {
		s.Avg = value
	} else {
		s.Avg += (value - s.Avg) / float64(s.Samples)
	}
	s.UpdatedAt = c.now()
}
