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

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/hop/internal/api"
	"github.com/lalith-99/hop/internal/config"
	"github.com/lalith-99/hop/internal/db"
	"github.com/lalith-99/hop/internal/friends"
	"github.com/lalith-99/hop/internal/identity"
	"github.com/lalith-99/hop/internal/observ"
	"github.com/lalith-99/hop/internal/presence"
	"github.com/lalith-99/hop/internal/provision"
	"github.com/lalith-99/hop/internal/realtime"
	"github.com/lalith-99/hop/internal/repository"
	"github.com/lalith-99/hop/internal/repository/memory"
	"github.com/lalith-99/hop/internal/repository/postgres"
	"github.com/lalith-99/hop/internal/space"
	"github.com/lalith-99/hop/internal/user"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observ.NewMetrics(reg)

	// Store. Postgres in every real environment; memory for local runs
	// without a database.
	var (
		store  repository.Store
		health func(context.Context) error
	)
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		if cfg.AutoMigrate {
			if err := db.AutoMigrate(ctx, database.Pool(), logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		store = postgres.NewStore(database.Pool())
		health = database.Health
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.New()
	}

	// Presence registry.
	var registry presence.Registry
	switch cfg.PresenceBackend {
	case config.PresenceBackendRedis:
		redisRegistry, client, err := presence.NewRedisRegistry(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		registry = redisRegistry

		if cfg.PresenceResetOnBoot {
			if err := redisRegistry.Reset(ctx); err != nil {
				return fmt.Errorf("reset presence registry: %w", err)
			}
			if err := store.Statuses().DeleteAll(ctx); err != nil {
				return fmt.Errorf("clear stale statuses: %w", err)
			}
			logger.Info("presence registry reset")
		}
	default:
		registry = presence.NewMemoryRegistry()
		// No connection survives a restart of a process-local registry.
		if err := store.Statuses().DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear stale statuses: %w", err)
		}
	}

	hub := realtime.NewHub(metrics, logger)
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("hop"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Drain()

		relay := realtime.NewNATSRelay(nc, hub, logger)
		if err := relay.Start(); err != nil {
			return fmt.Errorf("start nats relay: %w", err)
		}
		defer relay.Stop()
		hub.SetRelay(relay)
		logger.Info("nats relay enabled", zap.String("url", nc.ConnectedUrl()))
	}

	coordinator := presence.NewCoordinator(store.Friends(), registry, hub, metrics, logger)
	lifecycle := realtime.NewLifecycle(store, registry, coordinator, hub, logger)

	verifier, err := identity.NewClient(cfg.StackProjectID, cfg.StackSecretServerKey, cfg.StackTimeout,
		identity.WithAPIURL(cfg.StackAPIURL),
	)
	if err != nil {
		return fmt.Errorf("create identity client: %w", err)
	}

	provisioner := provision.NewClient(cfg.FlyAPIURL, cfg.FlyTimeout,
		provision.WithAppDomain(cfg.FlyAppDomain),
		provision.WithMetrics(metrics),
	)
	compensator := space.NewCompensator(provisioner, cfg.FlyCompensationAttempts, logger,
		space.WithCompensatorMetrics(metrics),
	)
	go func() {
		if err := compensator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("compensator stopped", zap.Error(err))
		}
	}()

	var webhooks identity.WebhookVerifier
	if cfg.StackWebhookSecret != "" {
		wh, err := identity.NewWebhookVerifier(cfg.StackWebhookSecret)
		if err != nil {
			return fmt.Errorf("create webhook verifier: %w", err)
		}
		webhooks = wh
	} else {
		logger.Warn("STACK_WEBHOOK_SECRET not set; identity webhooks will be rejected")
	}

	spaces := space.NewService(store, provisioner, compensator, logger, space.WithNotifier(coordinator))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Logger:       logger,
		Verifier:     verifier,
		Webhooks:     webhooks,
		Users:        user.NewService(store.Users(), spaces, logger),
		Friends:      friends.NewService(store, coordinator, logger),
		Spaces:       spaces,
		TicketSecret: cfg.TicketSecret,
		TicketTTL:    cfg.TicketTTL,
		WebSocket:    realtime.NewHandler(lifecycle, cfg.TicketSecret, logger).ServeWS,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:       health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting hop",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreBackend),
			zap.String("presence", cfg.PresenceBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	// Shutdown does not touch hijacked websockets.
	lifecycle.Shutdown(shutdownCtx)
	return nil
}
