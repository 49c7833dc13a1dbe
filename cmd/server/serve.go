package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guilddesk/internal/auth"
	"github.com/parsascontentcorner/guilddesk/internal/config"
	"github.com/parsascontentcorner/guilddesk/internal/database"
	"github.com/parsascontentcorner/guilddesk/internal/docstore"
	grpcserver "github.com/parsascontentcorner/guilddesk/internal/grpc"
	"github.com/parsascontentcorner/guilddesk/internal/httpapi"
	"github.com/parsascontentcorner/guilddesk/internal/notify"
	"github.com/parsascontentcorner/guilddesk/internal/ratelimit"
	"github.com/parsascontentcorner/guilddesk/pkg/logger"
)

func runServer(parent context.Context) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		// Sync errors on stdout/stderr are expected for non-syncable descriptors
		_ = log.Sync()
	}()

	log.Info("starting guilddesk",
		zap.String("environment", cfg.Server.Env),
		zap.String("http_port", cfg.Server.HTTPPort),
		zap.String("grpc_port", cfg.Server.GRPCPort),
	)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}()

	log.Info("running database migrations")
	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	db.StartCleanupJob(ctx, 30*time.Minute)

	store, err := docstore.Connect(ctx, &cfg.Mongo, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := store.Close(closeCtx); err != nil {
			log.Error("failed to close document store", zap.Error(err))
		}
	}()

	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	limiter, closeLimiter, err := newIPLimiter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLimiter()

	notifier, closeNotifier, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	cipher, err := auth.NewTokenCipher(cfg.Security.TokenEncryptionKey)
	if err != nil {
		return err
	}

	discordClient := auth.NewDiscordClient(cfg, log)
	discordClient.SetRateLimiter(ratelimit.NewRouteLimiter(log))

	sessions := auth.NewSessionManager(db, discordClient, cipher, &cfg.Security, log)

	router := httpapi.NewRouter(cfg, httpapi.Deps{
		QA:       store.QA(),
		Setup:    store.Setup(),
		Sessions: sessions,
		Limiter:  limiter,
		Notifier: notifier,
		Checks: map[string]httpapi.HealthChecker{
			"postgres": db,
			"mongodb":  store,
		},
	}, log)
	httpServer := httpapi.NewServer(router, cfg.Server.HTTPPort, log)

	grpcServer, err := grpcserver.NewServer(cfg.Server.GRPCPort, log)
	if err != nil {
		return err
	}
	grpcserver.NewWatcher(grpcServer.Health(), map[string]grpcserver.Checker{
		"postgres": db,
		"mongodb":  store,
	}, log).Start(ctx, 30*time.Second)

	errCh := make(chan error, 2)

	go func() {
		if err := grpcServer.Serve(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		if err := httpServer.Serve(); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		log.Error("server stopped unexpectedly", zap.Error(serveErr))
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	log.Info("shutting down servers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
	}
	grpcServer.GracefulStop()

	log.Info("servers shut down successfully")
	return serveErr
}

// newIPLimiter selects the Redis limiter when REDIS_ADDR is set and the in-memory one otherwise
func newIPLimiter(ctx context.Context, cfg *config.Config, log *zap.Logger) (ratelimit.IPLimiter, func(), error) {
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute

	if cfg.Redis.Addr == "" {
		limiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, window)
		limiter.StartSweeper(ctx, window, log)
		log.Info("using in-memory client rate limiter")
		return limiter, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("using redis client rate limiter", zap.String("addr", cfg.Redis.Addr))

	return ratelimit.NewRedisLimiter(client, cfg.RateLimit.Requests, window), func() {
		if err := client.Close(); err != nil {
			log.Error("failed to close redis client", zap.Error(err))
		}
	}, nil
}

// newNotifier publishes to RabbitMQ when AMQP_URL is set and discards events otherwise
func newNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, func(), error) {
	if cfg.AMQP.URL == "" {
		log.Info("change notifications disabled")
		return notify.Nop{}, func() {}, nil
	}

	publisher, err := notify.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log)
	if err != nil {
		return nil, nil, err
	}

	return notify.NewLogged(publisher, log), func() {
		if err := publisher.Close(); err != nil {
			log.Error("failed to close change notifier", zap.Error(err))
		}
	}, nil
}
