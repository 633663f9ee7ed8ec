package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adaptivesql/pooltuner/api/handlers"
	"github.com/adaptivesql/pooltuner/api/middleware"
	"github.com/adaptivesql/pooltuner/api/websocket"
	"github.com/adaptivesql/pooltuner/internal/auth"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
	"github.com/gin-gonic/gin"
)

// Services collects everything the API serves. All fields are required.
type Services struct {
	Pool         handlers.PoolService
	PoolLimits   config.PoolConfig
	Lifecycle    handlers.LifecycleService
	Workload     handlers.WorkloadReporter
	Health       handlers.HealthService
	Remediations handlers.RemediationHistory
	Metrics      handlers.MetricsService
	Alerts       handlers.AlertService
	Events       handlers.EventStore
	EventStream  <-chan *models.Event
}

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	authService *auth.Service
	services    Services
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
}

func NewServer(cfg config.APIConfig, wsCfg config.WebSocketConfig, mode string, services Services) *Server {
	if mode == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	authService := auth.NewService(cfg.JWTSecret, cfg.JWTDuration)
	wsHub := websocket.NewHub(wsCfg)

	s := &Server{
		router:      router,
		cfg:         cfg,
		wsCfg:       wsCfg,
		authService: authService,
		services:    services,
		wsHub:       wsHub,
	}

	s.setupMiddleware()
	s.setupRoutes()

	go wsHub.Run()

	if services.EventStream != nil {
		s.wsBridge = websocket.NewEventBridge(wsHub, services.EventStream)
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())

	corsCfg := middleware.DefaultCORSConfig()
	if len(s.cfg.CORS.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = s.cfg.CORS.AllowedOrigins
	}
	if len(s.cfg.CORS.AllowedMethods) > 0 {
		corsCfg.AllowMethods = s.cfg.CORS.AllowedMethods
	}
	if len(s.cfg.CORS.AllowedHeaders) > 0 {
		corsCfg.AllowHeaders = s.cfg.CORS.AllowedHeaders
	}
	corsCfg.AllowCredentials = s.cfg.CORS.AllowCredentials
	s.router.Use(middleware.CORS(corsCfg))

	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger())

	if s.cfg.MaxRequestSize > 0 {
		s.router.Use(middleware.RequestSizeLimit(s.cfg.MaxRequestSize))
	}

	rateLimiter := middleware.NewRateLimiter(s.cfg.RateLimit, time.Minute)
	s.router.Use(middleware.RateLimit(rateLimiter))
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.services.Health, s.services.Remediations)
	authHandler := handlers.NewAuthHandler(s.cfg, s.authService)
	poolHandler := handlers.NewPoolHandler(s.services.Pool, s.services.Lifecycle, s.services.Workload, s.services.PoolLimits)
	metricsHandler := handlers.NewMetricsHandler(s.services.Metrics, s.services.Workload)
	alertsHandler := handlers.NewAlertsHandler(s.services.Alerts)
	eventsHandler := handlers.NewEventsHandler(s.services.Events)

	// Public probes
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	// Auth
	s.router.POST("/auth/login", middleware.AuthRateLimiter(), authHandler.Login)

	// WebSocket event stream
	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	// Protected API
	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.authService))
	{
		protected.GET("/pool/stats", poolHandler.Stats)
		protected.GET("/pool/scaling-events", poolHandler.ScalingHistory)
		protected.POST("/pool/scale", poolHandler.Scale)
		protected.POST("/pool/refresh", poolHandler.Refresh)
		protected.GET("/pool/connections", poolHandler.Connections)
		protected.GET("/pool/workload", poolHandler.Workload)

		protected.GET("/ssl/report", healthHandler.SSLReport)
		protected.GET("/ssl/remediations", healthHandler.Remediations)

		protected.GET("/metrics/current", metricsHandler.Current)
		protected.GET("/metrics/:kind/aggregates", metricsHandler.Aggregates)
		protected.GET("/metrics/:kind/trend", metricsHandler.Trend)
		protected.GET("/analytics", metricsHandler.Analytics)

		protected.GET("/alerts", alertsHandler.Status)
		protected.GET("/alerts/rules", alertsHandler.ListRules)
		protected.POST("/alerts/rules", alertsHandler.CreateRule)
		protected.DELETE("/alerts/rules/:id", alertsHandler.DeleteRule)
		protected.POST("/alerts/:id/acknowledge", alertsHandler.Acknowledge)
		protected.POST("/alerts/:id/resolve", alertsHandler.Resolve)

		protected.GET("/events/recent", eventsHandler.Recent)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
