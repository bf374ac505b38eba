package worker

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camswitch-go/internal/broadcast"
	"camswitch-go/internal/config"
	"camswitch-go/internal/metrics"
	"camswitch-go/internal/models"
	"camswitch-go/internal/switcher"
)

type switchRecorder struct {
	mu      sync.Mutex
	targets []models.Camera
	err     error
}

func (r *switchRecorder) fn(target models.Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
	return r.err
}

func (r *switchRecorder) calls() []models.Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Camera(nil), r.targets...)
}

func testConfig() *config.Config {
	return &config.Config{
		DayToNightThreshold: 40,
		NightToDayThreshold: 60,
		DayToNightHold:      0, // decide on the first qualifying sample
		NightToDayHold:      0,
		WarmupFrames:        3,
		InitialCamera:       "day",
		PollIntervalDay:     10 * time.Millisecond,
		PollIntervalNight:   20 * time.Millisecond,
	}
}

func newTestRuntime(t *testing.T) (*Runtime, *broadcast.Brightness, *broadcast.Control, *switchRecorder) {
	t.Helper()
	suffix := fmt.Sprintf("%s_%d", t.Name(), os.Getpid())

	brightness, err := broadcast.NewBrightnessNamed("camswitch_test_b_" + suffix)
	require.NoError(t, err)
	t.Cleanup(func() {
		brightness.Unlink()
		brightness.Close()
	})

	control, err := broadcast.NewControlNamed("camswitch_test_c_" + suffix)
	require.NoError(t, err)
	t.Cleanup(func() {
		control.Unlink()
		control.Close()
	})

	rec := &switchRecorder{}
	rt, err := New(testConfig(), zerolog.Nop(), Deps{
		Brightness: brightness,
		Control:    control,
		SwitchFn:   rec.fn,
		Metrics:    metrics.New(),
	})
	require.NoError(t, err)
	return rt, brightness, control, rec
}

func feedDay(b *broadcast.Brightness, frameNum uint64, avg float32) {
	b.Update(models.CameraDay, models.BrightnessSample{
		FrameNumber: frameNum,
		TimestampNs: time.Now().UnixNano(),
		Avg:         avg,
		Zone:        models.ClassifyZone(avg),
	})
}

func TestRuntimePublishesInitialState(t *testing.T) {
	rt, _, control, _ := newTestRuntime(t)

	state, version := control.Read()
	assert.Equal(t, models.CameraDay, state.ActiveCamera)
	assert.Equal(t, uint32(1), version)
	assert.Equal(t, models.CameraDay, rt.ActiveCamera())
}

func TestRuntimeDarkSampleSwitchesToNight(t *testing.T) {
	rt, brightness, control, rec := newTestRuntime(t)

	feedDay(brightness, 1, 20)
	rt.pollOnce()

	assert.Equal(t, models.CameraNight, rt.ActiveCamera())
	assert.Equal(t, []models.Camera{models.CameraNight}, rec.calls())

	state, _ := control.Read()
	assert.Equal(t, models.CameraNight, state.ActiveCamera)
	assert.Equal(t, uint64(1), rt.deps.Metrics.SwitchesToNight.Load())
}

func TestRuntimeSkipsUnchangedVersion(t *testing.T) {
	rt, brightness, _, _ := newTestRuntime(t)

	feedDay(brightness, 1, 120)
	rt.pollOnce()
	before := rt.deps.Metrics.BrightnessSkipped.Load()
	rt.pollOnce() // no new write
	assert.Equal(t, before+1, rt.deps.Metrics.BrightnessSkipped.Load())
}

func TestRuntimeIgnoresRepeatedFrameNumber(t *testing.T) {
	rt, brightness, _, _ := newTestRuntime(t)

	feedDay(brightness, 1, 120)
	rt.pollOnce()
	samples := rt.deps.Metrics.BrightnessSamples.Load()

	// Same frame number republished: version moves, sample must not count.
	feedDay(brightness, 1, 120)
	rt.pollOnce()
	assert.Equal(t, samples, rt.deps.Metrics.BrightnessSamples.Load())
}

func TestRuntimeForceAndResume(t *testing.T) {
	rt, brightness, control, rec := newTestRuntime(t)

	rt.ForceNight()
	assert.Equal(t, models.CameraNight, rt.ActiveCamera())
	assert.Equal(t, switcher.ModeManual, rt.Status().Mode)
	assert.Equal(t, []models.Camera{models.CameraNight}, rec.calls())

	state, _ := control.Read()
	assert.Equal(t, models.CameraNight, state.ActiveCamera)
	assert.Equal(t, uint64(1), rt.deps.Metrics.ForcedSwitches.Load())

	// Manual mode pins the camera regardless of brightness.
	feedDay(brightness, 1, 250)
	rt.pollOnce()
	assert.Equal(t, models.CameraNight, rt.ActiveCamera())

	rt.ResumeAuto()
	assert.Equal(t, switcher.ModeAuto, rt.Status().Mode)

	feedDay(brightness, 2, 250)
	rt.pollOnce()
	assert.Equal(t, models.CameraDay, rt.ActiveCamera())
}

func TestRuntimeSwitchErrorIsOptimistic(t *testing.T) {
	rt, brightness, control, rec := newTestRuntime(t)
	rec.err = fmt.Errorf("mux jammed")

	feedDay(brightness, 1, 10)
	rt.pollOnce()

	// The callback failed but state still advances; a stale view would
	// just make the loop oscillate.
	assert.Equal(t, models.CameraNight, rt.ActiveCamera())
	state, _ := control.Read()
	assert.Equal(t, models.CameraNight, state.ActiveCamera)
	assert.Equal(t, uint64(1), rt.deps.Metrics.SwitchErrors.Load())
}

func TestRuntimeStartStop(t *testing.T) {
	rt, brightness, _, _ := newTestRuntime(t)

	rt.Start()
	feedDay(brightness, 1, 15)
	time.Sleep(100 * time.Millisecond)
	rt.Stop()

	assert.Equal(t, models.CameraNight, rt.ActiveCamera())
}
