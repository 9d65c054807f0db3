package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/fieldops/auth-service/internal/api/http"
	"github.com/fieldops/auth-service/internal/api/http/handlers"
	"github.com/fieldops/auth-service/internal/auth"
	"github.com/fieldops/auth-service/internal/config"
	"github.com/fieldops/auth-service/internal/events"
	"github.com/fieldops/auth-service/internal/notification"
	"github.com/fieldops/auth-service/internal/observability"
	"github.com/fieldops/auth-service/internal/otp"
	"github.com/fieldops/auth-service/internal/persistence"
	"github.com/fieldops/auth-service/internal/repository"
	"github.com/fieldops/auth-service/internal/service"
	"github.com/fieldops/auth-service/internal/worker"
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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisConn := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redisConn.Close()

	var (
		accountRepo repository.AccountRepository
		resetRepo   repository.PasswordResetRepository
	)
	if pg.Enabled() {
		accountRepo = repository.NewAccountRepository(pg.PoolHandle())
		resetRepo = repository.NewPasswordResetRepository(pg.PoolHandle())
	} else {
		logger.Warn("using in-memory account store; data is lost on restart")
		accountRepo = repository.NewMemoryAccountRepository()
		resetRepo = repository.NewMemoryPasswordResetRepository()
	}

	ledger := buildLedger(cfg, redisConn, logger)
	smsSender := buildSMSSender(cfg, logger)

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, notification.NewLogMailer(logger), logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		AccountRepo:       accountRepo,
		PasswordResetRepo: resetRepo,
		Ledger:            ledger,
		SMS:               smsSender,
		Dispatcher:        dispatcher,
		Logger:            logger,
	})
	if authService.TokenManager().SharesRefreshSecret() {
		logger.Warn("AUTH_REFRESH_SECRET not set; refresh tokens are signed with the access secret")
	}
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.IsProduction(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:     cfg.App.RequestTimeout(),
		ExposeDebug: !cfg.App.IsProduction(),
	})

	deps := map[string]handlers.Pinger{"postgres": nil, "redis": nil}
	if pg.Enabled() {
		deps["postgres"] = pg
	}
	routes := httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Auth:           handlers.NewAuthHandler(authService),
		Accounts:       handlers.NewAccountsHandler(authService),
		AuthMiddleware: authMiddleware,
	}
	if redisConn.Healthy() {
		deps["redis"] = redisConn
		routes.LoginLimit = httptransport.CredentialRateLimit(redisConn.Client, "login", cfg.RateLimit.PerMinute, logger)
		routes.OTPLimit = httptransport.CredentialRateLimit(redisConn.Client, "otp", cfg.RateLimit.PerMinute, logger)
	} else {
		logger.Warn("redis unavailable; rate limiting disabled")
	}
	httptransport.RegisterRoutes(app, routes)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(cfg.App.ShutdownTimeout()); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func buildLedger(cfg *config.Config, redisConn *persistence.Redis, logger *zap.Logger) otp.Ledger {
	switch cfg.OTP.Backend {
	case config.OTPBackendRedis:
		if redisConn.Healthy() {
			return otp.NewRedisLedger(redisConn.Client, cfg.OTP.KeyPrefix, cfg.OTP.TTL())
		}
		logger.Warn("redis unavailable; falling back to in-memory otp ledger")
	case config.OTPBackendMemory:
	}
	return otp.NewMemoryLedger(cfg.OTP.TTL())
}

func buildSMSSender(cfg *config.Config, logger *zap.Logger) notification.SMSSender {
	if cfg.SMS.GatewayURL == "" {
		if cfg.App.IsProduction() {
			logger.Warn("SMS_GATEWAY_URL not set; verification codes will not be delivered")
			return notification.NewLogSMSSender(logger, false)
		}
		return notification.NewLogSMSSender(logger, true)
	}
	return notification.NewHTTPSMSSender(cfg.SMS.GatewayURL, cfg.SMS.APIKey, cfg.SMS.Sender, cfg.SMS.Timeout())
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
