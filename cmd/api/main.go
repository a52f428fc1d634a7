package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chamahq/chama-backend/internal/config"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/chamahq/chama-backend/internal/handler"
	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/chamahq/chama-backend/internal/repository/postgres"
	"github.com/chamahq/chama-backend/internal/service"
	"github.com/chamahq/chama-backend/internal/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Initialize repositories
	fundRepo := postgres.NewFundRepository(pool)
	invitationRepo := postgres.NewInvitationRepository(pool)
	transactionRepo := postgres.NewTransactionRepository(pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(pool)
	contributionRepo := postgres.NewContributionRepository(pool)
	loanRepo := postgres.NewLoanRepository(pool)
	projectionRepo := postgres.NewFundProjectionRepository(pool)
	repaymentRepo := postgres.NewRepaymentRepository(pool)
	votingRepo := postgres.NewVotingRepository(pool)
	dissolutionRepo := postgres.NewDissolutionRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)
	jobLocker := postgres.NewAdvisoryJobLocker(pool)

	// Event pipeline: the websocket feed and the projection sync see every
	// event directly; delivery to the external bus goes through the outbox
	// fallback so failures are retried by the worker. No bus is wired in the
	// single-binary deployment, so the bus publisher is a no-op.
	hub := websocket.NewHub()
	wsPublisher := websocket.NewPublisher(hub)
	projectionSync := service.NewProjectionSyncService(projectionRepo)
	busPublisher := event.NopPublisher{}
	externalPublisher := event.NewOutboxPublisher(busPublisher, outboxRepo)
	publisher := event.NewFanOut(wsPublisher, projectionSync, externalPublisher)

	audit := event.LogAuditSink{}

	// Initialize services
	fundService := service.NewFundService(fundRepo, publisher, audit)
	invitationService := service.NewInvitationService(fundRepo, invitationRepo, publisher, audit)
	contributionService := service.NewContributionService(fundRepo, contributionRepo, transactionRepo, idempotencyRepo, publisher, audit)
	loanService := service.NewLoanService(loanRepo, projectionRepo, publisher, audit)
	repaymentService := service.NewRepaymentService(loanRepo, repaymentRepo, idempotencyRepo, publisher, audit)
	votingService := service.NewVotingService(loanRepo, votingRepo, publisher, audit)
	penaltyService := service.NewPenaltyService(repaymentRepo, projectionRepo, publisher, audit)
	dissolutionService := service.NewDissolutionService(fundRepo, transactionRepo, loanRepo, repaymentRepo, contributionRepo, dissolutionRepo, publisher, audit)
	overviewService := service.NewOverviewService(fundRepo, transactionRepo, contributionRepo, loanRepo)

	// Background workers
	outboxWorker := service.NewOutboxWorker(outboxRepo, busPublisher, log.Logger, service.OutboxWorkerConfig{
		Interval:   cfg.OutboxInterval,
		BatchSize:  100,
		MaxBackoff: time.Hour,
	})
	scheduler := service.NewScheduler(fundRepo, loanRepo, jobLocker, contributionService, repaymentService, penaltyService, invitationService, log.Logger, service.SchedulerConfig{
		Interval: cfg.SchedulerInterval,
	})

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	outboxWorker.Start(workerCtx)
	scheduler.Start(workerCtx)

	// Initialize auth middleware
	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth middleware")
	}
	rateLimiter := middleware.NewRateLimiterWithConfig(cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	// Initialize handlers
	fundHandler := handler.NewFundHandler(fundService)
	contributionHandler := handler.NewContributionHandler(contributionService)
	loanHandler := handler.NewLoanHandler(loanService)
	repaymentHandler := handler.NewRepaymentHandler(repaymentService)
	votingHandler := handler.NewVotingHandler(votingService)
	dissolutionHandler := handler.NewDissolutionHandler(dissolutionService)
	invitationHandler := handler.NewInvitationHandler(invitationService)
	overviewHandler := handler.NewOverviewHandler(overviewService)
	wsHandler := handler.NewWebSocketHandler(hub, cfg.CORSOrigins)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "If-Match", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Register API routes
	handler.RegisterRoutes(e, authMiddleware, rateLimiter, fundHandler, contributionHandler, loanHandler, repaymentHandler, votingHandler, dissolutionHandler, invitationHandler, overviewHandler, wsHandler)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	scheduler.Stop()
	outboxWorker.Stop()
	cancelWorkers()
	rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
