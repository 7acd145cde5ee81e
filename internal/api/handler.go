package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"funding-hedge-core/internal/engine"
	"funding-hedge-core/internal/events"
	"funding-hedge-core/internal/monitor"
)

// Server wires the operator HTTP surface around the engine and event bus.
type Server struct {
	Router *gin.Engine
	Bus    *events.Bus
	Engine *engine.Engine
	Metrics *monitor.SystemMetrics

	JWTSecret        string
	OperatorPassword string
	Meta             SystemMeta
}

// SystemMeta describes static runtime info exposed to the UI.
type SystemMeta struct {
	DryRun  bool
	Symbols []string
	Venues  []string
	Version string
}

// NewServer builds the router and registers every route.
func NewServer(
	bus *events.Bus,
	eng *engine.Engine,
	metrics *monitor.SystemMetrics,
	meta SystemMeta,
	jwtSecret string,
	operatorPassword string,
) *Server {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:           r,
		Bus:              bus,
		Engine:           eng,
		Metrics:          metrics,
		JWTSecret:        jwtSecret,
		OperatorPassword: operatorPassword,
		Meta:             meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api/v1")
	{
		api.POST("/auth/login", s.login)
		api.GET("/system/meta", s.getSystemMeta)
		api.GET("/metrics", s.getMetrics)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/status", s.getStatus)
			protected.POST("/hedging/start", s.startHedging)
			protected.POST("/hedging/stop", s.stopHedging)
			protected.POST("/emergency-shutdown", s.emergencyShutdown)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getSystemMeta(c *gin.Context) {
	c.JSON(http.StatusOK, s.Meta)
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

// Start runs the HTTP server, blocking until it fails or is shut down.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
