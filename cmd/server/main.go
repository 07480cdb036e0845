package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hoponpass/daypass-backend/internal/config"
	"github.com/hoponpass/daypass-backend/internal/database"
	"github.com/hoponpass/daypass-backend/internal/events"
	"github.com/hoponpass/daypass-backend/internal/handlers"
	"github.com/hoponpass/daypass-backend/internal/metrics"
	"github.com/hoponpass/daypass-backend/internal/middleware"
	"github.com/hoponpass/daypass-backend/internal/services"
	"github.com/hoponpass/daypass-backend/internal/storage"
	"github.com/hoponpass/daypass-backend/pkg/jwt"
	"github.com/hoponpass/daypass-backend/pkg/sms"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting day-pass booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Database
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Event bus for chat change notifications
	wmLogger := events.NewWatermillLogger(logger)
	var bus *events.PubSub
	if cfg.Redis.EventsEnabled {
		rdb := storage.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		bus, err = events.NewRedisPubSub(rdb, cfg.Redis.Namespace+"-server", wmLogger)
		if err != nil {
			logger.Fatalf("Failed to create redis event bus: %v", err)
		}
		logger.WithField("addr", cfg.Redis.Addr).Info("Chat events published to Redis Streams")
	} else {
		bus = events.NewInMemoryPubSub(wmLogger)
		logger.Info("Chat events kept in-process")
	}
	defer bus.Close()

	appMetrics := metrics.New()
	eventRouter, err := events.NewRouter(bus.Subscriber, appMetrics, logger)
	if err != nil {
		logger.Fatalf("Failed to create event router: %v", err)
	}

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.SessionTokenExpiry)
	bookingRepository := database.NewBookingRepository(db)
	pickupRepository := database.NewPickupRequestRepository(db)
	chatRepository := database.NewChatRepository(db)

	rateLimitService := services.NewRateLimitService(db, cfg.RateLimit)
	bookingService := services.NewBookingService(bookingRepository, jwtService, appMetrics, &cfg.Booking, logger)
	pickupService := services.NewPickupService(pickupRepository, bookingRepository, newSMSGateway(cfg.SMS, logger), appMetrics, cfg.Pickup.MaxGroupSize, logger)
	chatService := services.NewChatService(chatRepository, events.NewChatNotifier(bus.Publisher), appMetrics, logger)
	logger.Info("Services initialized")

	var cronService *services.CronService
	if cfg.Maintenance.CronEnabled {
		cronService = services.NewCronService(rateLimitService, chatRepository, pickupRepository, cfg.Maintenance.RetentionDays, cfg.Booking.Location(), logger)
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
		defer cronService.Stop()
	}

	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	if cfg.RateLimit.Enabled {
		bookingHandler.WithRateLimiter(rateLimitService)
	}

	// HTTP router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.Server.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}
	router.Use(appMetrics.Middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck(db, version))
	router.GET("/metrics", appMetrics.Handler())

	handlers.Routes{
		Bookings: bookingHandler,
		Pickups:  handlers.NewPickupHandler(pickupService, logger),
		Chat:     handlers.NewChatHandler(chatService, logger),
		JWT:      jwtService,
		Logger:   logger,
	}.Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventRouter.Run(gctx)
	})
	g.Go(func() error {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server forced to shutdown: %v", err)
		}
		return eventRouter.Close()
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return
	}
	logger.Info("Server exited successfully")
}

// newSMSGateway picks the pickup confirmation gateway for the configured SMS mode
func newSMSGateway(cfg config.SMSConfig, logger *logrus.Logger) sms.Gateway {
	if cfg.Mode != "production" {
		logger.Info("SMS Gateway in development mode (no actual SMS will be sent)")
		return sms.NewDevGateway(logger)
	}

	if cfg.Method == "api_v2" {
		logger.Info("Using Dialog API v2 method (POST with authentication)")
		return sms.NewDialogGateway(sms.DialogConfig{
			APIURL:   cfg.APIURL,
			Username: cfg.Username,
			Password: cfg.Password,
			Mask:     cfg.Mask,
		}, logger)
	}

	logger.Info("Using Dialog URL method (GET request with esmsqk)")
	return sms.NewDialogURLGateway(sms.DefaultDialogURLEndpoint, cfg.ESMSQK, cfg.Mask, logger)
}
