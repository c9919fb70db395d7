package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	httpAdapter "github.com/lorrc/service-desk-notifier/internal/adapters/primary/http"
	"github.com/lorrc/service-desk-notifier/internal/adapters/primary/websocket"
	"github.com/lorrc/service-desk-notifier/internal/adapters/secondary/email"
	"github.com/lorrc/service-desk-notifier/internal/adapters/secondary/postgres"
	"github.com/lorrc/service-desk-notifier/internal/adapters/secondary/push"
	"github.com/lorrc/service-desk-notifier/internal/adapters/secondary/redis"
	"github.com/lorrc/service-desk-notifier/internal/adapters/secondary/templates"
	"github.com/lorrc/service-desk-notifier/internal/auth"
	"github.com/lorrc/service-desk-notifier/internal/config"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/core/services"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/eventbus"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)
	logger.Debug("effective configuration", "config", cfg.String())

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Database Pool
	if cfg.Database.RunMigrations {
		if err := postgres.Migrate(cfg.Database.MigrationsPath, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	logger.Info("database connection established")

	// 4. Optional Redis and the settings backend
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.Connect(ctx, cfg.Redis.URL, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close failed", "error", err)
			}
		}()
	}

	var settingsRepo ports.SettingsRepository
	switch cfg.Settings.Backend {
	case config.SettingsBackendRedis:
		settingsRepo = redis.NewSettingsRepository(redisClient, cfg.Settings.RedisKey)
	default:
		settingsRepo = postgres.NewSettingsRepository(pool)
	}
	logger.Info("settings backend selected", "backend", cfg.Settings.Backend)

	// 5. Delivery channels
	hub := websocket.NewHub(cfg.WebSocket.HubBufferSize, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	var mailer ports.Mailer
	if cfg.Mail.Enabled() {
		smtpMailer, err := email.NewSMTPMailer(email.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			Timeout:  cfg.Mail.Timeout,
			TLS:      cfg.Mail.TLS,
		}, logger)
		if err != nil {
			return err
		}
		mailer = smtpMailer
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
		mailer = email.NewLogMailer(logger)
	}

	forwarder, err := push.NewForwarder(cfg.Push.Endpoint, cfg.Push.Timeout, logger)
	if err != nil {
		return err
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return err
	}

	// 6. Core services (Wiring the Hexagon)
	loc, err := services.LoadLocation(cfg.Notify.Timezone)
	if err != nil {
		return err
	}

	permissions := services.NewPermissionCache(postgres.NewRoleRepository(pool), logger)
	if err := permissions.Rebuild(ctx); err != nil {
		return err
	}

	dispatcher := services.NewDispatcher(services.DispatcherDeps{
		Broadcaster: hub,
		Mailer:      mailer,
		Push:        forwarder,
		Renderer:    renderer,
		Settings:    services.NewSettingsResolver(settingsRepo),
		Recipients:  services.NewRecipientResolver(cfg.Notify.SupportEmail),
		Transformer: services.NewContentTransformer(loc),
		Accounts:    postgres.NewAccountRepository(pool),
		Permissions: permissions,
		Created:     websocket.NewCreatedTicketBroadcaster(hub),
	}, services.DispatcherConfig{
		BaseURL:        cfg.Notify.BaseURL,
		ChannelTimeout: cfg.Notify.ChannelTimeout,
	}, logger)

	bus := eventbus.New(logger)
	if err := dispatcher.Register(bus); err != nil {
		return err
	}

	// 7. Setup Router
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	healthHandler := httpAdapter.NewHealthHandler(pool, cfg.App.Version)
	if redisClient != nil {
		healthHandler.WithCheck("redis", redisClient)
	}

	wsHandler := httpAdapter.NewWebSocketHandler(hub, tokenManager, httpAdapter.WebSocketConfig{
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		IsDevelopment:   cfg.IsDevelopment(),
	}, logger)

	router := httpAdapter.NewRouter(httpAdapter.RouterDeps{
		Publisher:   bus,
		Permissions: permissions,
		Tokens:      tokenManager,
		WebSocket:   wsHandler,
		Health:      healthHandler,
		RateLimits: httpAdapter.RateLimits{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			IngestRPS:         cfg.RateLimit.IngestRPS,
			IngestBurst:       cfg.RateLimit.IngestBurst,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		CORSMaxAge:     cfg.CORS.MaxAge,
		Logger:         logger,
	})

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop intake first, then let queued events finish before clients go away.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := bus.Close(shutdownCtx); err != nil {
		logger.Warn("event bus did not drain before deadline", "error", err)
	}
	stopHub()

	return nil
}
