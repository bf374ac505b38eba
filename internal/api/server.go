package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"camswitch-go/internal/api/handlers"
	"camswitch-go/internal/broadcast"
	"camswitch-go/internal/config"
	"camswitch-go/internal/metrics"
	"camswitch-go/internal/shm"
)

type Server struct {
	config  *config.Config
	router  *gin.Engine
	server  *http.Server
	metrics *metrics.Metrics

	healthHandler   *handlers.HealthHandler
	switcherHandler *handlers.SwitcherHandler
	frameHandler    *handlers.FrameHandler
}

func NewServer(cfg *config.Config, rt handlers.SwitcherControl, ring *shm.Ring, brightness *broadcast.Brightness, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	return &Server{
		config:          cfg,
		router:          gin.New(),
		metrics:         m,
		healthHandler:   handlers.NewHealthHandler(cfg.ServiceID, cfg.Version),
		switcherHandler: handlers.NewSwitcherHandler(rt),
		frameHandler:    handlers.NewFrameHandler(ring, brightness),
	}
}

func (s *Server) Setup() error {
	s.setupMiddleware()

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	return nil
}

func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting switcher API")
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	log.Info().Msg("Stopping switcher API")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) GetServer() *http.Server {
	return s.server
}
