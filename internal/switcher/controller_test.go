package switcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camswitch-go/internal/models"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestController() (*Controller, *fakeClock) {
	ctrl := NewController(Config{
		DayToNightThreshold: 40,
		NightToDayThreshold: 60,
		DayToNightHold:      500 * time.Millisecond,
		NightToDayHold:      time.Second,
		WarmupFrames:        3,
	})
	clock := &fakeClock{t: time.Unix(1000, 0)}
	ctrl.now = clock.now
	return ctrl, clock
}

func TestSwitchToNightAfterHold(t *testing.T) {
	ctrl, clock := newTestController()

	// Darkness must persist for the full hold before a decision fires,
	// and continuous darkness fires exactly once after the switch is acted
	// on.
	decisions := 0
	for i := 0; i < 20; i++ {
		d := ctrl.RecordBrightness(models.CameraDay, 35)
		if d != DecisionNone {
			assert.Equal(t, DecisionToNight, d)
			decisions++
			assert.GreaterOrEqual(t, clock.t.Sub(time.Unix(1000, 0)), 500*time.Millisecond)
			ctrl.NotifyActiveCamera(models.CameraNight, d.String())
		}
		clock.advance(100 * time.Millisecond)
	}
	assert.Equal(t, 1, decisions)
}

func TestBrightnessBounceNeverSwitches(t *testing.T) {
	ctrl, clock := newTestController()

	// Oscillating around the threshold resets the timer each time it
	// recovers; no amount of bouncing may trigger a switch.
	for i := 0; i < 50; i++ {
		v := 35.0
		if i%3 == 2 {
			v = 45.0
		}
		d := ctrl.RecordBrightness(models.CameraDay, v)
		assert.Equal(t, DecisionNone, d)
		clock.advance(200 * time.Millisecond)
	}
}

func TestSwitchBackToDay(t *testing.T) {
	ctrl, clock := newTestController()
	ctrl.NotifyActiveCamera(models.CameraNight, "test")

	var got Decision
	for i := 0; i < 15 && got == DecisionNone; i++ {
		got = ctrl.RecordBrightness(models.CameraDay, 80)
		clock.advance(200 * time.Millisecond)
	}
	assert.Equal(t, DecisionToDay, got)
}

func TestHysteresisBandHolds(t *testing.T) {
	ctrl, clock := newTestController()

	// Values between the two thresholds never move either direction.
	for i := 0; i < 20; i++ {
		assert.Equal(t, DecisionNone, ctrl.RecordBrightness(models.CameraDay, 50))
		clock.advance(time.Second)
	}

	ctrl.NotifyActiveCamera(models.CameraNight, "test")
	for i := 0; i < 20; i++ {
		assert.Equal(t, DecisionNone, ctrl.RecordBrightness(models.CameraDay, 50))
		clock.advance(time.Second)
	}
}

func TestNightSamplesNeverDriveDecisions(t *testing.T) {
	ctrl, clock := newTestController()

	// The night camera sees IR-lit scenes; its readings are tracked but
	// must not age any timer.
	for i := 0; i < 30; i++ {
		assert.Equal(t, DecisionNone, ctrl.RecordBrightness(models.CameraNight, 10))
		clock.advance(time.Second)
	}
	assert.Equal(t, 30, ctrl.Status().Stats[models.CameraNight].Samples)
}

func TestManualModeSuppressesDecisions(t *testing.T) {
	ctrl, clock := newTestController()
	ctrl.ForceManual(models.CameraDay)

	for i := 0; i < 30; i++ {
		assert.Equal(t, DecisionNone, ctrl.RecordBrightness(models.CameraDay, 5))
		clock.advance(time.Second)
	}
	assert.Equal(t, ModeManual, ctrl.Mode())
	// Stats still track while manual.
	assert.Equal(t, 30, ctrl.Status().Stats[models.CameraDay].Samples)
}

func TestForceManualActivatesImmediately(t *testing.T) {
	ctrl, _ := newTestController()

	ctrl.ForceManual(models.CameraNight)
	assert.Equal(t, models.CameraNight, ctrl.ActiveCamera())
	assert.Equal(t, ModeManual, ctrl.Mode())
	assert.Equal(t, "manual-night", ctrl.Status().LastSwitchReason)
}

func TestResumeAutoRestartsTimers(t *testing.T) {
	ctrl, clock := newTestController()

	ctrl.ForceManual(models.CameraNight)
	assert.Equal(t, models.CameraNight, ctrl.ActiveCamera())

	// Age a would-be timer under manual, then resume: the elapsed manual
	// time must not count toward the hold.
	ctrl.RecordBrightness(models.CameraDay, 90)
	clock.advance(10 * time.Second)
	ctrl.ResumeAuto()
	assert.Equal(t, ModeAuto, ctrl.Mode())

	d := ctrl.RecordBrightness(models.CameraDay, 90)
	assert.Equal(t, DecisionNone, d, "first sample after resume only starts the timer")

	clock.advance(2 * time.Second)
	d = ctrl.RecordBrightness(models.CameraDay, 90)
	assert.Equal(t, DecisionToDay, d)
}

func TestNotifyResetsTimers(t *testing.T) {
	ctrl, clock := newTestController()

	// Half the hold elapses in darkness, then a switch notification lands
	// (e.g. a forced switch): the partial timer must not survive it.
	ctrl.RecordBrightness(models.CameraDay, 30)
	clock.advance(300 * time.Millisecond)
	ctrl.NotifyActiveCamera(models.CameraDay, "test")

	d := ctrl.RecordBrightness(models.CameraDay, 30)
	assert.Equal(t, DecisionNone, d)
	clock.advance(300 * time.Millisecond)
	d = ctrl.RecordBrightness(models.CameraDay, 30)
	assert.Equal(t, DecisionNone, d, "timer restarted by notify, hold not yet met")
	clock.advance(300 * time.Millisecond)
	d = ctrl.RecordBrightness(models.CameraDay, 30)
	assert.Equal(t, DecisionToNight, d)
}

func TestWarmupGateDropsThenPublishes(t *testing.T) {
	ctrl, _ := newTestController()
	ctrl.NotifyActiveCamera(models.CameraNight, "test")

	var published []uint64
	publish := func(f *models.Frame) error {
		published = append(published, f.FrameNumber)
		return nil
	}

	for i := uint64(1); i <= 6; i++ {
		f := &models.Frame{FrameNumber: i}
		require.NoError(t, ctrl.PublishFrame(f, publish))
	}

	// Warmup is 3: frames 1-3 dropped, 4-6 delivered.
	assert.Equal(t, []uint64{4, 5, 6}, published)
}

func TestPublishFrameDoubleBuffer(t *testing.T) {
	ctrl, _ := newTestController()

	var last *models.Frame
	publish := func(f *models.Frame) error {
		if last != nil {
			assert.NotSame(t, last, f, "consecutive publishes must use alternating slots")
		}
		last = f
		return nil
	}

	for i := uint64(1); i <= 4; i++ {
		src := &models.Frame{FrameNumber: i}
		require.NoError(t, ctrl.PublishFrame(src, publish))
		assert.NotSame(t, src, last, "callback receives the internal slot, not the caller's frame")
		assert.Equal(t, i, last.FrameNumber)
	}
}

func TestPublishFrameNilCallback(t *testing.T) {
	ctrl, _ := newTestController()
	err := ctrl.PublishFrame(&models.Frame{}, nil)
	assert.ErrorIs(t, err, ErrNilPublish)
}

func TestBrightnessStatRunningAverage(t *testing.T) {
	ctrl, _ := newTestController()

	for _, v := range []float64{10, 20, 30} {
		ctrl.RecordBrightness(models.CameraDay, v)
	}
	st := ctrl.Status().Stats[models.CameraDay]
	assert.Equal(t, 3, st.Samples)
	assert.InDelta(t, 20.0, st.Avg, 1e-9)
	assert.Equal(t, 30.0, st.Latest)
}
