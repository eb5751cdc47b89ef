package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticket-engine/config"
	"ticket-engine/internal/catalog"
	"ticket-engine/internal/events"
	"ticket-engine/internal/handlers"
	"ticket-engine/internal/ledger"
	"ticket-engine/internal/notify"
	"ticket-engine/internal/services"
	"ticket-engine/internal/store"
	_ "ticket-engine/migrations"
	"ticket-engine/monitoring"
	"ticket-engine/security"
	"ticket-engine/utils"

	"github.com/joho/godotenv"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file loaded", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	app := pocketbase.New()

	// Storage
	var (
		redisClient *redis.Client
		backend     store.Store
	)
	switch cfg.StoreBackend {
	case config.StoreRedis:
		redisClient, err = utils.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		backend = store.NewRedisStore(redisClient)
	default:
		backend = store.NewMemoryStore()
	}
	slog.Info("Store initialized", "backend", cfg.StoreBackend)

	// Notifications
	var notifier notify.Notifier = notify.Nop{}
	if cfg.PubNubEnabled() {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pnConfig.UUID = cfg.PubNubUserID
		notifier = notify.NewPubNubNotifier(pubnub.NewPubNub(pnConfig))
	}

	inventory := ledger.New()

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(inventory, redisClient, cfg.MetricsInterval)
	}

	deps := services.Dependencies{
		Catalog:  catalog.New(),
		Ledger:   inventory,
		Store:    backend,
		Events:   events.NewRecordDirectory(app),
		Notifier: notifier,
		Monitor:  monitor,
		Breaker: utils.NewCircuitBreakerWithSettings("store", utils.BreakerSettings{
			MaxRequests:  cfg.BreakerMaxRequests,
			Interval:     cfg.BreakerInterval,
			Timeout:      cfg.BreakerTimeout,
			FailureRatio: cfg.BreakerFailureRatio,
		}),
		PersistenceTimeout: cfg.PersistenceTimeout,
	}

	// Initialize services
	ticketService := services.NewTicketService(deps)
	reservationService := services.NewReservationService(deps, services.ReservationOptions{
		CodeLength:   cfg.ReservationCodeLength,
		CodeAttempts: cfg.ReservationCodeAttempts,
	})
	analyticsService := services.NewAnalyticsService(deps)

	// Initialize handlers
	ticketHandler := handlers.NewTicketHandler(ticketService)
	reservationHandler := handlers.NewReservationHandler(reservationService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)

	var createLimit func(e *core.RequestEvent) error
	if cfg.RateLimitPerMinute > 0 {
		var limiter security.Limiter = security.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
		if redisClient != nil {
			limiter = security.NewRedisLimiter(redisClient, cfg.RateLimitPerMinute, time.Minute)
		}
		createLimit = security.ReservationRateLimit(limiter)
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: !cfg.IsProduction(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		restoreCtx, restoreCancel := context.WithTimeout(ctx, 30*time.Second)
		defer restoreCancel()
		if err := ticketService.RestoreInventory(restoreCtx); err != nil {
			slog.Error("Inventory restore incomplete", "error", err)
		}

		if monitor != nil {
			if err := monitor.Start(); err != nil {
				return fmt.Errorf("start metrics: %w", err)
			}
			e.Router.GET("/metrics", func(e *core.RequestEvent) error {
				promhttp.Handler().ServeHTTP(e.Response, e.Request)
				return nil
			})
		}

		handlers.RegisterRoutes(e.Router, ticketHandler, reservationHandler, analyticsHandler, createLimit)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient != nil {
				if err := utils.RedisHealthCheck(redisClient); err != nil {
					return e.JSON(http.StatusServiceUnavailable, map[string]string{
						"status": "unhealthy",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(http.StatusOK, map[string]string{
				"status":  "healthy",
				"store":   cfg.StoreBackend,
				"breaker": deps.Breaker.State().String(),
			})
		})

		slog.Info("Server routes registered")
		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		if monitor != nil {
			if err := monitor.Shutdown(); err != nil {
				slog.Error("Metrics shutdown failed", "error", err)
			}
		}
		return e.Next()
	})

	// Default to "serve" on the configured port when no command is given
	if len(os.Args) == 1 {
		app.RootCmd.SetArgs([]string{"serve", "--http", "0.0.0.0:" + cfg.Port})
	}

	return app.Start()
}

// handleShutdown cancels background work on SIGINT/SIGTERM
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
