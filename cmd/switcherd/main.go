package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"camswitch-go/internal/api"
	"camswitch-go/internal/broadcast"
	"camswitch-go/internal/config"
	"camswitch-go/internal/logging"
	"camswitch-go/internal/metrics"
	"camswitch-go/internal/services/messaging"
	"camswitch-go/internal/shm"
	"camswitch-go/internal/worker"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Optionally tee logs into the embedded Logdy web viewer
	if cfg.LogdyEnabled {
		if w, url, err := logging.StartLogdy(cfg); err == nil {
			log.Logger = log.Output(zerolog.MultiLevelWriter(
				zerolog.ConsoleWriter{Out: os.Stderr}, w))
			log.Info().Str("url", url).Msg("Log tee to Logdy enabled")
		} else {
			log.Warn().Err(err).Msg("Failed to start Logdy, continuing without it")
		}
	}

	log.Info().
		Str("service_id", cfg.ServiceID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("initial_camera", cfg.InitialCamera).
		Msg("Starting camera switcher daemon")

	m := metrics.New()

	// The control channel is ours to create; brightness and the frame ring
	// are produced by the capture process, so attach with retry while it
	// comes up.
	control, err := broadcast.NewControl()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create control channel")
	}
	defer control.Close()

	brightness, err := attachWithRetry(cfg, m, func() (*broadcast.Brightness, error) {
		return broadcast.OpenBrightness(1, 0)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to attach brightness channel")
	}
	defer brightness.Close()

	// The frame ring only feeds the /frame endpoint here; run without it
	// if the capture process has not created it yet.
	ring, err := attachWithRetry(cfg, m, func() (*shm.Ring, error) {
		return shm.OpenRing(shm.NameActiveFrame, 1, 0)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Frame ring unavailable, /frame endpoint disabled")
		ring = nil
	} else {
		defer ring.Close()
	}

	// NATS switch events are optional
	var events *messaging.Service
	if cfg.NatsEnabled {
		events, err = messaging.NewService(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, switch events disabled")
			events = nil
		}
	}

	logger := logging.NewServiceLogger(cfg, "switcher")
	rt, err := worker.New(cfg, logger, worker.Deps{
		Brightness: brightness,
		Control:    control,
		Ring:       ring,
		SwitchFn:   worker.CommandSwitchFn(cfg),
		Events:     events,
		Metrics:    m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create switcher runtime")
	}
	rt.Start()

	// API server
	server := api.NewServer(cfg, rt, ring, brightness, m)
	if err := server.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup API server")
	}
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// SIGUSR1/SIGUSR2 force day/night from the command line; SIGHUP
	// resumes automatic switching.
	forceSig := make(chan os.Signal, 1)
	signal.Notify(forceSig, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	go func() {
		for sig := range forceSig {
			switch sig {
			case syscall.SIGUSR1:
				log.Info().Msg("SIGUSR1: forcing day camera")
				rt.ForceDay()
			case syscall.SIGUSR2:
				log.Info().Msg("SIGUSR2: forcing night camera")
				rt.ForceNight()
			case syscall.SIGHUP:
				log.Info().Msg("SIGHUP: resuming automatic switching")
				rt.ResumeAuto()
			}
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("API server forced to shutdown")
	}
	rt.Stop()

	if events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.NatsDrainTimeout)
		if err := events.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("NATS shutdown error")
		}
		cancel()
	}

	// The control cell is ours; remove it so a restart recreates it fresh.
	if err := control.Unlink(); err != nil {
		log.Warn().Err(err).Msg("Failed to unlink control channel")
	}

	log.Info().Msg("Shutdown complete")
}

// attachWithRetry retries a single-shot shared memory attach with backoff,
// counting each re-attempt so a stalled capture process shows up on /metrics.
func attachWithRetry[T any](cfg *config.Config, m *metrics.Metrics, open func() (T, error)) (T, error) {
	var (
		v       T
		lastErr error
	)
	for i := 0; i < cfg.AttachRetries; i++ {
		if i > 0 {
			m.AttachRetries.Add(1)
			time.Sleep(cfg.AttachInterval)
		}
		v, lastErr = open()
		if lastErr == nil {
			return v, nil
		}
	}
	return v, lastErr
}
