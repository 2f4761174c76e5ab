package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busmate/booking-backend/internal/config"
	"github.com/busmate/booking-backend/internal/database"
	"github.com/busmate/booking-backend/internal/handlers"
	"github.com/busmate/booking-backend/internal/middleware"
	"github.com/busmate/booking-backend/internal/services"
	"github.com/busmate/booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting BusMate Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

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
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	bookingRepo := database.NewPostgresBookingRepository(db)
	seatInventory := database.NewPostgresSeatInventory(db)
	scheduleRepo := database.NewPostgresScheduleRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)

	// Services
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	gateway := services.NewPayMongoService(&cfg.PayMongo, logger)
	ticketService := services.NewTicketService(scheduleRepo, logger)

	orchestratorConfig := services.OrchestratorConfig{
		HoldTTL:          cfg.Booking.HoldTTL,
		PollMaxAttempts:  cfg.Booking.PollMaxAttempts,
		PollInterval:     cfg.Booking.PollInterval,
		MaxSeatsPerOrder: cfg.Booking.MaxSeatsPerOrder,
		DefaultCurrency:  "PHP",
		ReturnURL:        cfg.PayMongo.ReturnURL,
		PublicKey:        cfg.PayMongo.PublicKey,
	}
	orchestrator := services.NewBookingOrchestratorService(
		bookingRepo,
		seatInventory,
		scheduleRepo,
		auditRepo,
		gateway,
		ticketService,
		orchestratorConfig,
		logger,
	)

	// Background jobs
	reaper := services.NewHoldExpirationService(bookingRepo, seatInventory, cfg.Booking.ReaperInterval, logger)
	reaper.Start()

	cronService := services.NewCronService(bookingRepo, auditRepo, cfg.Booking.RetentionDays, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Handlers
	bookingHandler := handlers.NewBookingOrchestratorHandler(
		orchestrator,
		ticketService,
		bookingRepo,
		seatInventory,
		scheduleRepo,
		logger,
	)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(db))

	v1 := router.Group("/api/v1")
	{
		// Public availability views
		v1.GET("/schedules", bookingHandler.Schedules)
		v1.GET("/schedules/:schedule_id/seats", bookingHandler.SeatMap)
		v1.GET("/payments/methods", bookingHandler.PaymentMethods)

		// Gateway callbacks (authenticated by intent knowledge, not JWT)
		v1.POST("/payments/verify/:intent_id", bookingHandler.VerifyAfterRedirect)
		v1.POST("/payments/webhook", bookingHandler.Webhook)

		// Booking flow (protected)
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(jwtService, logger))
		{
			bookings.POST("/hold", bookingHandler.StartHold)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:booking_id", bookingHandler.GetStatus)
			bookings.POST("/:booking_id/payment-method", bookingHandler.ChooseMethod)
			bookings.POST("/:booking_id/cancel", bookingHandler.Cancel)
			bookings.GET("/:booking_id/ticket", bookingHandler.Ticket)
			bookings.GET("/:booking_id/ticket.pdf", bookingHandler.TicketPDF)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // payment polling can hold a request open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	reaper.Stop()
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
		}
		if userCtx, exists := middleware.GetUserContext(c); exists {
			fields["user_id"] = userCtx.UserID
		}

		entry := logger.WithFields(fields)
		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
