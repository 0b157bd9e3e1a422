// File: findmycoach/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"

	"findmycoach/config"
	"findmycoach/cron"
	"findmycoach/database"
	auditRepo "findmycoach/database/repository/audit"
	bookingRepo "findmycoach/database/repository/booking"
	coachRepo "findmycoach/database/repository/coach"
	webhookRepo "findmycoach/database/repository/webhook"
	"findmycoach/handlers"
	"findmycoach/middleware"
	"findmycoach/routes"
	"findmycoach/services/booking"
	"findmycoach/services/payment"
	"findmycoach/services/reconcile"
	"findmycoach/utils"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()

	mongoClient, err := database.Connect(config.AppConfig.DatabaseURL)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to connect to MongoDB: %v", err)
	}
	db := mongoClient.Database(config.AppConfig.DatabaseName)

	cacheClient, err := utils.NewCacheClient(config.AppConfig)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize cache: %v", err)
	}

	stripe.Key = config.AppConfig.StripeKey

	// Repositories.
	bookings := bookingRepo.NewMongoBookingRepo(db)
	audits := auditRepo.NewMongoAuditRepo(db)
	webhooks := webhookRepo.NewMongoWebhookRepo(db)
	coaches := coachRepo.NewMongoCoachRepo(db)

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelIndex()
	if err := bookings.EnsureIndexes(indexCtx); err != nil {
		logger.Sugar().Fatalf("main: failed to create booking indexes: %v", err)
	}
	if err := webhooks.EnsureIndexes(indexCtx); err != nil {
		logger.Sugar().Fatalf("main: failed to create webhook indexes: %v", err)
	}

	// Services.
	gateway := payment.NewStripeGateway(logger)
	ledger := &booking.DefaultBookingLedger{
		Repo:       bookings,
		Coaches:    coaches,
		Gateway:    gateway,
		Audit:      audits,
		Cache:      cacheClient,
		FeePercent: config.AppConfig.PlatformFeePercent,
		Logger:     logger,
	}
	engine := reconcile.NewEngine(bookings, audits, cacheClient, logger)
	onboarder := &payment.ConnectOnboarder{
		Coaches: coaches,
		BaseURL: config.AppConfig.AppBaseURL,
	}

	// Handlers.
	handlerBundle := &routes.HandlerBundle{
		Booking: handlers.NewBookingHandler(ledger, audits, logger),
		Webhook: handlers.NewWebhookHandler(webhooks, engine, cacheClient, config.AppConfig.StripeWebhookSecret, logger),
		Connect: handlers.NewConnectHandler(onboarder, logger),
	}

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(cors.Default())
	router.Use(middleware.RateLimitMiddleware(config.AppConfig.MaxRequestsPerMin))

	routes.RegisterRoutes(router, handlerBundle)

	// Out-of-band reconciliation of PENDING bookings.
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	sweeper := &booking.PendingSweeper{
		Repo:    bookings,
		Gateway: gateway,
		Audit:   audits,
		Cache:   cacheClient,
		Logger:  logger,
		MinAge:  time.Duration(config.AppConfig.PendingSweepAgeMin) * time.Minute,
	}
	go cron.StartPendingSweep(sweepCtx, sweeper,
		time.Duration(config.AppConfig.PendingSweepIntervalMin)*time.Minute, logger)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")
	cancelSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}
	if err := mongoClient.Disconnect(ctx); err != nil {
		logger.Sugar().Warnf("main: mongo disconnect: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
