package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	ServiceID   string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// NATS (switch event publishing, optional)
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	// Docker: Use nats://nats:4222 if running the switcher in Docker
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration // For graceful shutdown
	EventsSubject      string

	// Day/night switching
	// Brightness is a mean luma on a 0-255 scale.
	DayToNightThreshold float64
	NightToDayThreshold float64
	DayToNightHold      time.Duration
	NightToDayHold      time.Duration
	WarmupFrames        int
	InitialCamera       string // "day" or "night"

	// Brightness polling
	// Short interval while the day camera is active, long while on night:
	// at night the day camera only probes ambient light, so polling can relax.
	PollIntervalDay   time.Duration
	PollIntervalNight time.Duration

	// Shared memory attach
	AttachRetries  int
	AttachInterval time.Duration

	// Camera switch command (external hook invoked on switch, optional)
	SwitchCommand string
	SwitchTimeout time.Duration

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		ServiceID:   getEnv("SERVICE_ID", "switcher-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy (lightweight web log viewer)
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// NATS (configured for Docker Compose setup)
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),
		EventsSubject:      getEnv("EVENTS_SUBJECT", "camswitch.events"),

		// Day/night switching
		DayToNightThreshold: getEnvFloat("DAY_TO_NIGHT_THRESHOLD", 40),
		NightToDayThreshold: getEnvFloat("NIGHT_TO_DAY_THRESHOLD", 60),
		DayToNightHold:      getEnvDuration("DAY_TO_NIGHT_HOLD", 5*time.Second),
		NightToDayHold:      getEnvDuration("NIGHT_TO_DAY_HOLD", 10*time.Second),
		WarmupFrames:        getEnvInt("WARMUP_FRAMES", 3),
		InitialCamera:       getEnv("INITIAL_CAMERA", "day"),

		// Brightness polling
		PollIntervalDay:   getEnvDuration("POLL_INTERVAL_DAY", 200*time.Millisecond),
		PollIntervalNight: getEnvDuration("POLL_INTERVAL_NIGHT", 1*time.Second),

		// Shared memory attach
		AttachRetries:  getEnvInt("ATTACH_RETRIES", 50),
		AttachInterval: getEnvDuration("ATTACH_INTERVAL", 200*time.Millisecond),

		// Camera switch command
		SwitchCommand: getEnv("SWITCH_COMMAND", ""),
		SwitchTimeout: getEnvDuration("SWITCH_TIMEOUT", 5*time.Second),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	// Check for Docker-specific environment indicators
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	// Check for .dockerenv file
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
