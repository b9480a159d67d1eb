package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/OldStager01/droplet-predictor/api/docs"
	"github.com/OldStager01/droplet-predictor/api/handlers"
	"github.com/OldStager01/droplet-predictor/api/middleware"
	"github.com/OldStager01/droplet-predictor/api/websocket"
	"github.com/OldStager01/droplet-predictor/internal/auth"
	"github.com/OldStager01/droplet-predictor/internal/events"
	"github.com/OldStager01/droplet-predictor/pkg/config"
	"github.com/OldStager01/droplet-predictor/pkg/models"
)

const insecureSecret = "change-me-in-production"

// Dependencies are the collaborators the HTTP layer serves from.
type Dependencies struct {
	Health    handlers.HealthChecker
	Users     handlers.UserStore
	Predictor handlers.Predictor
	Models    handlers.ModelCache
	History   handlers.HistoryRecorder
	Events    *events.EventBus
}

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.APIConfig
	deps        Dependencies
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
	wsEvents    <-chan *models.Event
	stopSweep   chan struct{}
}

func NewServer(cfg config.APIConfig, wsCfg config.WebSocketConfig, deps Dependencies) *Server {
	if cfg.JWTSecret == "" || cfg.JWTSecret == insecureSecret {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ttl := cfg.JWTDuration
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	wsHub := websocket.NewHub(&wsCfg)

	s := &Server{
		router:      gin.New(),
		config:      cfg,
		deps:        deps,
		authService: auth.NewService(cfg.JWTSecret, ttl).WithIssuer(cfg.JWTIssuer),
		wsHub:       wsHub,
		stopSweep:   make(chan struct{}),
	}

	s.setupMiddleware()
	s.setupRoutes()

	go wsHub.Run()

	if deps.Events != nil {
		s.wsEvents = deps.Events.SubscribeAll()
		s.wsBridge = websocket.NewEventBridge(wsHub, s.wsEvents)
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger("/health/live"))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.CORS(middleware.CORSFromConfig(s.config.CORS)))
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxBodyBytes))

	rateLimit := s.config.RateLimit
	if rateLimit <= 0 {
		rateLimit = 100
	}
	rateLimiter := middleware.NewRateLimiter(rateLimit, time.Minute)
	rateLimiter.StartSweeper(5*time.Minute, s.stopSweep)
	s.router.Use(middleware.RateLimit(rateLimiter))
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Health, s.deps.Models)
	authHandler := handlers.NewAuthHandler(s.deps.Users, s.authService, handlers.CookieSettings{
		Name:     s.config.CookieName,
		Path:     s.config.CookiePath,
		Secure:   s.config.CookieSecure,
		HTTPOnly: s.config.CookieHTTPOnly,
	})
	predictHandler := handlers.NewPredictHandler(s.deps.Predictor, s.deps.History, s.deps.Models, s.config.WriteTimeout)
	historyHandler := handlers.NewHistoryHandler(s.deps.History, s.config.DefaultLimit, s.config.MaxLimit)

	authLimit := s.config.AuthRateLimit
	if authLimit <= 0 {
		authLimit = 5
	}
	authLimiter := middleware.NewEndpointRateLimiter()
	authLimiter.AddEndpoint("/auth/login", authLimit, time.Minute)
	authLimiter.AddEndpoint("/auth/register", authLimit, time.Minute)
	authLimiter.StartSweeper(5*time.Minute, s.stopSweep)

	// Public routes
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)
	s.router.GET("/configurations", predictHandler.Configurations)

	authGroup := s.router.Group("/auth")
	authGroup.Use(authLimiter.Middleware())
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
	}

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	docs.SwaggerInfo.BasePath = "/"
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Protected routes
	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.authService, s.config.CookieName))
	{
		protected.POST("/predict", predictHandler.Predict)
		protected.GET("/history", historyHandler.List)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	idle := s.config.IdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  idle,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
		s.deps.Events.Unsubscribe(s.wsEvents)
	}
	s.wsHub.Stop()
	close(s.stopSweep)

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

func (s *Server) AuthService() *auth.Service {
	return s.authService
}
