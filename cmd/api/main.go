package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/auth-service/internal/api/http"
	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/counter"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/limiter"
	"github.com/spec-kit/auth-service/internal/mail"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/persistence"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/service"
	"github.com/spec-kit/auth-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	readiness := map[string]handlers.Pinger{"postgres": pg}
	sessionCfg := session.Config{
		Expiration:     cfg.Session.TTL,
		KeyLookup:      "cookie:" + cfg.Session.CookieName,
		CookieSecure:   cfg.Session.Secure,
		CookieHTTPOnly: true,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
	}

	var store counter.Store
	switch cfg.Counter.Backend {
	case config.CounterBackendMemory:
		logger.Warn("using in-process counting store; limits are not shared between instances")
		store = counter.NewMemoryStore(nil)
	default:
		redis := persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		readiness["redis"] = redis
		store = counter.NewRedisStore(redis.Client, nil)
		sessionCfg.Storage = persistence.NewSessionStorage(redis.Client, cfg.Redis.ReadTimeout+cfg.Redis.WriteTimeout)
	}

	metrics := observability.NewMetrics()
	hasher, err := auth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Fatal("invalid bcrypt cost", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	notifications := service.NewNotificationService(mail.NewSMTPSender(mail.SMTPSettings{
		Host:      cfg.Mail.SMTPHost,
		Port:      cfg.Mail.SMTPPort,
		Username:  cfg.Mail.SMTPUser,
		Password:  cfg.Mail.SMTPPassword,
		TLSMode:   cfg.Mail.SMTPTLSMode,
		FromName:  cfg.Mail.FromName,
		FromEmail: cfg.Mail.FromEmail,
	}), logger, cfg.Mail)
	mailWorker := worker.StartNotificationWorker(dispatcher, notifications, logger, worker.Options{})

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Identities: repository.NewIdentityRepository(pg.PoolHandle()),
		Limiter:    limiter.New(store, limiter.DefaultPolicy(), nil),
		Tokens:     auth.NewTokenManager(cfg.Auth.JWTSecret, logger, nil),
		Hasher:     hasher,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	sessions := auth.NewSessions(session.New(sessionCfg))

	app := fiber.New(httptransport.FiberConfig(cfg.App))
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:         logger,
		Metrics:        metrics,
		Flood:          limiter.NewFloodLimiter(store, limiter.DefaultFloodPolicy(), nil),
		Timeout:        cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.App.AllowedOrigins,
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:            handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness, metrics),
		Auth:              handlers.NewAuthHandler(authService, sessions, cfg.Session.CookieName),
		SessionMiddleware: auth.NewSessionMiddleware(sessions),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	mailWorker.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
