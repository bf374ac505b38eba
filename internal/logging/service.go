package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"camswitch-go/internal/config"
	"camswitch-go/internal/models"
)

func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("service_id", cfg.ServiceID).Str("service", service).Logger()
}

func WithCamera(base zerolog.Logger, cam models.Camera) zerolog.Logger {
	return base.With().Str("camera", cam.String()).Logger()
}
