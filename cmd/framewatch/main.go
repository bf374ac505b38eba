// framewatch is a read-side diagnostic: it attaches to the shared frame
// ring, wakes on the new-frame semaphore, and reports frame rate, the
// latest header, and the switcher's published state.
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"camswitch-go/internal/broadcast"
	"camswitch-go/internal/models"
	"camswitch-go/internal/shm"
)

func main() {
	var (
		interval = flag.Duration("interval", 2*time.Second, "Report interval")
		attempts = flag.Int("attach-retries", 50, "Shared memory attach retries")
		backoff  = flag.Duration("attach-interval", 200*time.Millisecond, "Delay between attach retries")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ring, err := shm.OpenRing(shm.NameActiveFrame, *attempts, *backoff)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to attach frame ring")
	}
	defer ring.Close()

	brightness, err := broadcast.OpenBrightness(*attempts, *backoff)
	if err != nil {
		log.Warn().Err(err).Msg("Brightness channel unavailable")
		brightness = nil
	} else {
		defer brightness.Close()
	}

	control, err := broadcast.OpenControl(*attempts, *backoff)
	if err != nil {
		log.Warn().Err(err).Msg("Control channel unavailable")
		control = nil
	} else {
		defer control.Close()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	frames := 0
	timeouts := 0
	lastIndex := ring.WriteIndex()
	report := time.NewTicker(*interval)
	defer report.Stop()

	frame := new(models.Frame)
	for {
		select {
		case <-quit:
			log.Info().Msg("Exiting")
			return
		case <-report.C:
			ev := log.Info().
				Float64("fps", float64(frames)/interval.Seconds()).
				Int("sem_timeouts", timeouts).
				Uint64("write_index", ring.WriteIndex())
			if err := ring.ReadLatest(frame); err == nil {
				ev = ev.
					Uint64("frame", frame.FrameNumber).
					Str("camera", frame.CameraID.String()).
					Str("format", frame.Format.String()).
					Float32("brightness", frame.BrightnessAvg).
					Str("zone", frame.BrightnessZone.String()).
					Dur("age", time.Since(frame.Timestamp()))
			}
			if control != nil {
				state, _ := control.Read()
				ev = ev.Str("active_camera", state.ActiveCamera.String())
			}
			if brightness != nil {
				sample, _ := brightness.Read(models.CameraDay)
				ev = ev.Float32("day_brightness", sample.Avg)
			}
			ev.Msg("Ring status")
			frames = 0
			timeouts = 0
		default:
			if err := ring.WaitForFrame(100 * time.Millisecond); err != nil {
				if errors.Is(err, shm.ErrTimeout) {
					timeouts++
					continue
				}
				log.Error().Err(err).Msg("Wait for frame failed")
				return
			}
			if idx := ring.WriteIndex(); idx != lastIndex {
				frames += int(idx - lastIndex)
				lastIndex = idx
			}
		}
	}
}
