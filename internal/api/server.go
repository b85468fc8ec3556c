package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bilet/internal/cache"
	"bilet/internal/config"
	"bilet/internal/database"
	"bilet/internal/handlers"
	"bilet/internal/logger"
	"bilet/internal/messaging"
	"bilet/internal/middleware"
	"bilet/internal/repository"
	"bilet/internal/search"
	"bilet/internal/service"
)

// Server is the HTTP API process: stores, services, router.
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	redis    *cache.RedisStore
	services *service.Services
	repos    *repository.Repositories
}

// NewServer wires the full stack according to the configured drivers.
func NewServer(cfg *config.Config) (*Server, error) {
	server := &Server{config: cfg}

	var repos *repository.Repositories
	switch cfg.StoreDriver {
	case "memory":
		repos = repository.NewMemory()
	default:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		server.db = db
		repos = repository.NewPostgres(db)
	}
	server.repos = repos

	var slots cache.SlotStore
	var authCache cache.AuthCache
	switch cfg.CounterDriver {
	case "memory":
		mem := cache.NewMemoryStore()
		slots = mem
		authCache = mem
	default:
		redisStore, err := cache.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		server.redis = redisStore
		slots = redisStore
		authCache = redisStore
	}

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		// The API stays up without the bus; events are dropped.
		logger.Get().Warn("NATS unavailable, events disabled", "error", err)
	} else {
		server.nats = natsClient
		publisher = natsClient
	}

	var index search.ShowingIndex
	if es, err := search.NewElasticsearchClient(cfg.Search); err != nil {
		logger.Get().Warn("Elasticsearch unavailable, catalog search disabled", "error", err)
	} else {
		index = es
	}

	server.services = service.New(repos, slots, publisher, index, cfg)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	server.router = router

	server.setupRoutes(authCache)
	return server, nil
}

func (s *Server) setupRoutes(authCache cache.AuthCache) {
	h := handlers.NewHandlers(s.services)

	api := s.router.Group("/api")
	api.Use(middleware.BasicAuth(s.repos.Users, authCache))
	{
		admission := api.Group("/admission")
		{
			admission.POST("/check", h.CheckAdmission)
			admission.POST("/heartbeat", h.Heartbeat)
			admission.POST("/release", h.Release)
		}

		queue := api.Group("/queue")
		{
			queue.GET("/status/:token", h.TokenStatus)
			queue.DELETE("/token/:token", h.CancelToken)
		}

		bookings := api.Group("/bookings")
		{
			bookings.POST("", h.CreateBooking)
			bookings.GET("", h.ListBookings)
			bookings.POST("/confirm", h.ConfirmBooking)
			bookings.POST("/cancel", h.CancelBooking)
		}

		showings := api.Group("/showings")
		{
			showings.POST("", h.CreateShowing)
			showings.GET("", h.ListShowings)
		}

		api.GET("/seats", h.ListSeats)

		api.POST("/payments/notifications", h.PaymentNotification)
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"service": "bilet-api",
	}

	if s.db != nil {
		check := s.db.HealthCheck(c.Request.Context())
		resp["database"] = check
		if check.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	logger.Get().Info("Starting API server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return srv.ListenAndServe()
}

// Cleanup closes the server's connections.
func (s *Server) Cleanup() {
	if s.nats != nil {
		s.nats.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// GetRouter exposes the router for tests.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
