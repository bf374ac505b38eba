// Package metrics exposes switcher counters through a dedicated Prometheus
// registry. Hot-path code bumps atomic counters; collectors read them lazily
// on scrape, so nothing in the frame path ever blocks on the registry.
package metrics

import (
	"math"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all switcher metrics.
type Metrics struct {
	// Frame flow counters
	FramesPublished    atomic.Uint64
	FramesDroppedWarm  atomic.Uint64
	BrightnessSamples  atomic.Uint64
	BrightnessSkipped  atomic.Uint64 // poll ticks where the sample version had not moved

	// Switch counters
	SwitchesToDay   atomic.Uint64
	SwitchesToNight atomic.Uint64
	SwitchErrors    atomic.Uint64
	ForcedSwitches  atomic.Uint64

	// Shared memory health
	SemTimeouts   atomic.Uint64
	AttachRetries atomic.Uint64

	// Current state gauges
	ActiveCamera      atomic.Uint64 // 0 = day, 1 = night
	ManualMode        atomic.Uint64 // 0 = auto, 1 = manual
	DayBrightnessBits atomic.Uint64 // float64 bits of the latest day-camera mean

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	gauge := func(name, help string, load func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			load,
		))
	}

	gauge("switcher_frames_published_total", "Frames published to the active frame ring",
		func() float64 { return float64(m.FramesPublished.Load()) })
	gauge("switcher_frames_dropped_warmup_total", "Frames dropped while post-switch warmup was active",
		func() float64 { return float64(m.FramesDroppedWarm.Load()) })
	gauge("switcher_brightness_samples_total", "Brightness samples fed to the hysteresis controller",
		func() float64 { return float64(m.BrightnessSamples.Load()) })
	gauge("switcher_brightness_skipped_total", "Poll ticks skipped because no new brightness sample arrived",
		func() float64 { return float64(m.BrightnessSkipped.Load()) })

	gauge("switcher_switches_to_day_total", "Automatic switches to the day camera",
		func() float64 { return float64(m.SwitchesToDay.Load()) })
	gauge("switcher_switches_to_night_total", "Automatic switches to the night camera",
		func() float64 { return float64(m.SwitchesToNight.Load()) })
	gauge("switcher_switch_errors_total", "Camera switch callbacks that returned an error",
		func() float64 { return float64(m.SwitchErrors.Load()) })
	gauge("switcher_forced_switches_total", "Manual switch overrides via API or signal",
		func() float64 { return float64(m.ForcedSwitches.Load()) })

	gauge("switcher_sem_timeouts_total", "Shared memory semaphore waits that timed out",
		func() float64 { return float64(m.SemTimeouts.Load()) })
	gauge("switcher_attach_retries_total", "Retries while attaching to shared memory segments",
		func() float64 { return float64(m.AttachRetries.Load()) })

	gauge("switcher_active_camera", "Active camera (0=day, 1=night)",
		func() float64 { return float64(m.ActiveCamera.Load()) })
	gauge("switcher_manual_mode", "Switching mode (0=auto, 1=manual)",
		func() float64 { return float64(m.ManualMode.Load()) })
	gauge("switcher_day_brightness_mean", "Latest mean brightness reported by the day camera (0-255)",
		func() float64 { return math.Float64frombits(m.DayBrightnessBits.Load()) })
}

// SetDayBrightness stores the latest day-camera mean for the gauge.
func (m *Metrics) SetDayBrightness(v float64) {
	m.DayBrightnessBits.Store(math.Float64bits(v))
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
