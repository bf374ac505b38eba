package api

import "github.com/gin-gonic/gin"

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.ServiceInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	switcher := s.router.Group("/switcher")
	{
		switcher.GET("/status", s.switcherHandler.Status)
		switcher.POST("/force/day", s.switcherHandler.ForceDay)
		switcher.POST("/force/night", s.switcherHandler.ForceNight)
		switcher.POST("/auto", s.switcherHandler.ResumeAuto)
	}

	s.router.GET("/frame", s.frameHandler.LatestFrameInfo)
	s.router.GET("/brightness", s.frameHandler.Brightness)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}
