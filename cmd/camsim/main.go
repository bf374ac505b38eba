// camsim stands in for the camera capture pipeline: it creates the shared
// frame ring and brightness channel, publishes frames from a capture device
// or a synthetic day/night cycle, and follows the switcher's control channel.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"camswitch-go/internal/metrics"
	"camswitch-go/internal/services/capture"
)

func main() {
	var (
		device      = flag.String("device", "", "V4L2 device or RTSP URL (empty = synthetic source)")
		width       = flag.Int("width", 1280, "Frame width")
		height      = flag.Int("height", 720, "Frame height")
		fps         = flag.Int("fps", 30, "Capture rate")
		cycle       = flag.Duration("cycle", 2*time.Minute, "Synthetic day/night cycle period")
		warmup      = flag.Int("warmup", 3, "Frames dropped after a camera switch")
		zeroCopy    = flag.Bool("zerocopy", false, "Also drive the zero-copy descriptor channels")
		cleanup     = flag.Bool("cleanup", true, "Unlink shared memory on exit")
		level       = flag.String("log-level", "info", "Log level")
		metricsAddr = flag.String("metrics-addr", "", "Prometheus listen address (empty = disabled)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(*level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	var (
		source capture.Source
		err    error
	)
	if *device != "" {
		source, err = capture.OpenDevice(*device, *width, *height)
		if err != nil {
			log.Fatal().Err(err).Str("device", *device).Msg("Failed to open capture device")
		}
		log.Info().Str("device", *device).Msg("Capturing from device")
	} else {
		source = capture.NewSynthSource(*width, *height, *cycle)
		log.Info().Dur("cycle", *cycle).Msg("Using synthetic day/night source")
	}

	m := metrics.New()
	if *metricsAddr != "" {
		go func() {
			server := &http.Server{Addr: *metricsAddr, Handler: m.Handler()}
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		log.Info().Str("addr", *metricsAddr).Msg("Serving metrics")
	}

	svc, err := capture.NewService(capture.Options{
		Source:           source,
		FPS:              *fps,
		WarmupFrames:     *warmup,
		NightProbeOffset: 0,
		ZeroCopy:         *zeroCopy,
		Metrics:          m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create capture service")
	}
	svc.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")
	svc.Stop()
	if *cleanup {
		svc.Unlink()
	}
	log.Info().Msg("Shutdown complete")
}
