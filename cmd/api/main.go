package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ads-users/internal/api/http"
	"github.com/spec-kit/ads-users/internal/api/http/handlers"
	"github.com/spec-kit/ads-users/internal/auth"
	"github.com/spec-kit/ads-users/internal/config"
	"github.com/spec-kit/ads-users/internal/events"
	"github.com/spec-kit/ads-users/internal/observability"
	"github.com/spec-kit/ads-users/internal/persistence"
	"github.com/spec-kit/ads-users/internal/repository"
	"github.com/spec-kit/ads-users/internal/service"
	"github.com/spec-kit/ads-users/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := map[string]handlers.Pinger{}

	var userRepo repository.UserRepository
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		lite, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite", zap.Error(err))
		}
		defer lite.Close()
		if cfg.Storage.RunMigrations {
			if err := persistence.RunSQLiteMigrations(ctx, lite.DB, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		userRepo = repository.NewUserSQLiteRepository(lite.DB)
		deps["sqlite"] = lite
	default:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if cfg.Storage.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		userRepo = repository.NewUserPgRepository(pg.PoolHandle())
		deps["postgres"] = pg
	}

	dispatcher := events.NewInMemoryDispatcher(logger)

	var sink events.Sink
	switch cfg.Events.Backend {
	case config.EventsRedis:
		redis := persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		sink = events.NewRedisSink(redis, cfg.Events.ChannelPrefix)
		deps["redis"] = redis
	case config.EventsAMQP:
		mq, err := persistence.NewRabbitMQ(ctx, cfg.RabbitMQ, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Fatal("failed to connect rabbitmq", zap.Error(err))
		}
		defer mq.Close()
		sink = events.NewAMQPSink(mq, cfg.Events.Exchange)
		deps["rabbitmq"] = mq
	default:
		sink = events.NewLogSink(logger)
	}
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	relayDone := worker.StartEventRelay(relayCtx,
		service.NewEventRelayService(dispatcher, sink, logger, cfg.Events.BufferSize))

	userService := service.NewUserService(cfg.Pagination, service.UserDependencies{
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled, write routes are open")
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:       cfg.App.Name,
		StrictRouting: false,
		ReadTimeout:   cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps, metrics),
		Users:          handlers.NewUsersHandler(userService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		AuthEnabled:    cfg.Auth.Enabled,
	})

	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("events", sink.Name()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}

	stopRelay()
	<-relayDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
