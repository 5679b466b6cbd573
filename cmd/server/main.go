package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/predictkings/billing-service/internal/adapters/postgres"
	"github.com/predictkings/billing-service/internal/adapters/rediscache"
	"github.com/predictkings/billing-service/internal/adapters/secrets"
	"github.com/predictkings/billing-service/internal/config"
	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/internal/domain/ports"
	"github.com/predictkings/billing-service/internal/events"
	"github.com/predictkings/billing-service/internal/gateways"
	webhookHandler "github.com/predictkings/billing-service/internal/handlers/webhook"
	subscriptionService "github.com/predictkings/billing-service/internal/services/subscription"
	webhookService "github.com/predictkings/billing-service/internal/services/webhook"
	"github.com/predictkings/billing-service/pkg/middleware"
	"github.com/predictkings/billing-service/pkg/observability"
	"github.com/predictkings/billing-service/pkg/shutdown"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting billing service",
		zap.String("version", "0.1.0"),
	)

	shutdownManager := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	// Database
	dbPool, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	shutdownManager.RegisterNoErr("database", dbPool.Close)

	logger.Info("Database connection established",
		zap.String("database", cfg.Database.Database),
	)

	// Redis for the replay guard
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	shutdownManager.RegisterCloser("redis", redisClient)

	// Secret backend for webhook signing keys
	secretManager, err := initSecretManager(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize secret manager", zap.Error(err))
	}

	gatewayRegistry, err := initGateways(cfg, secretManager, logger)
	if err != nil {
		logger.Fatal("Failed to initialize gateway adapters", zap.Error(err))
	}

	// Repositories and services
	db := postgres.NewDBExecutor(dbPool)
	ledger := postgres.NewTransactionRepository()
	subscriptions := postgres.NewSubscriptionRepository(db)
	users := postgres.NewUserRepository(db)
	replayGuard := rediscache.NewReplayGuard(redisClient, logger)

	stateMachine := subscriptionService.NewStateMachine(subscriptions, logger)

	bus := events.NewBus(logger)
	bus.Subscribe(domain.EventTypeSubscriptionActivated, events.NewAnalyticsHandler(logger))
	bus.Subscribe(domain.EventTypeSubscriptionActivated, events.NewNotificationHandler(nil, logger))

	processor := webhookService.NewProcessor(
		gatewayRegistry,
		db,
		replayGuard,
		ledger,
		users,
		stateMachine,
		bus,
		logger,
		cfg.Webhooks.ReplayTTL,
	)

	// Expiry sweep
	sweeper := shutdown.NewPeriodicWorker("expiry-sweep", cfg.Sweep.Interval, logger)
	sweeper.Start(func(ctx context.Context) {
		if err := stateMachine.ExpireLapsed(ctx); err != nil {
			logger.Error("Expiry sweep failed", zap.Error(err))
		}
	})

	// Webhook HTTP server
	inflight := shutdown.NewInFlightTracker("webhooks", logger)
	handler := webhookHandler.NewHandler(processor, inflight, logger)

	mux := http.NewServeMux()
	handler.Register(mux)

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      rateLimiter.Middleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Webhook server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Webhook server failed", zap.Error(err))
		}
	}()

	// Metrics and health
	healthChecker := observability.NewHealthChecker(dbPool, redisClient)
	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort), healthChecker, logger)

	logger.Info("Metrics server listening",
		zap.Int("port", cfg.Server.MetricsPort),
	)

	// Shut down in reverse: servers stop accepting, in-flight drains,
	// workers stop, then redis and the pool close.
	shutdownManager.Register("expiry-sweep", sweeper.Shutdown)
	shutdownManager.Register("in-flight-webhooks", inflight.Shutdown)
	shutdownManager.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)
	shutdownManager.RegisterHTTPServer("metrics-server", metricsServer)
	shutdownManager.RegisterHTTPServer("webhook-server", server)

	shutdownManager.WaitForShutdown()
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	if cfg.Development {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	zapCfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, _ := zapCfg.Build()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool
func initDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func initSecretManager(cfg *config.Config, logger *zap.Logger) (ports.SecretManager, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Secrets.Backend {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion)
		awsCfg.Profile = cfg.Secrets.AWSProfile
		awsCfg.Endpoint = cfg.Secrets.AWSEndpoint
		return secrets.NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)

	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.Secrets.VaultAddress)
		vaultCfg.Token = cfg.Secrets.VaultToken
		vaultCfg.MountPath = cfg.Secrets.VaultMountPath
		vaultCfg.KVVersion = cfg.Secrets.VaultKVVersion
		return secrets.NewVaultAdapter(ctx, vaultCfg, logger)

	default:
		return secrets.NewEnvSecretManager(logger), nil
	}
}

// initGateways resolves each gateway's signing secret and builds the
// adapter registry. A gateway with no configured secret is left out rather
// than accepting unverifiable deliveries.
func initGateways(cfg *config.Config, secretManager ports.SecretManager, logger *zap.Logger) (*gateways.Registry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	plans, err := buildPlanTable(cfg.Plans)
	if err != nil {
		return nil, err
	}

	type gatewaySecret struct {
		gateway    domain.Gateway
		secretName string
		build      func(secret string) gateways.Adapter
	}

	specs := []gatewaySecret{
		{domain.GatewayPaystack, cfg.Webhooks.PaystackSecretName, func(s string) gateways.Adapter { return gateways.NewPaystack(s, plans) }},
		{domain.GatewayAlatPay, cfg.Webhooks.AlatPaySecretName, func(s string) gateways.Adapter { return gateways.NewAlatPay(s, plans) }},
		{domain.GatewayCoralPay, cfg.Webhooks.CoralPaySecretName, func(s string) gateways.Adapter { return gateways.NewCoralPay(s, plans) }},
		{domain.GatewayCredo, cfg.Webhooks.CredoSecretName, func(s string) gateways.Adapter { return gateways.NewCredo(s, plans) }},
	}

	adapters := make([]gateways.Adapter, 0, len(specs))
	for _, spec := range specs {
		secret, err := secretManager.GetSecret(ctx, spec.secretName)
		if err != nil {
			logger.Warn("Gateway disabled, signing secret unavailable",
				zap.String("gateway", string(spec.gateway)),
				zap.Error(err),
			)
			continue
		}
		adapters = append(adapters, spec.build(secret))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no gateway signing secrets configured")
	}

	registry := gateways.NewRegistry(adapters...)
	logger.Info("Gateway adapters registered",
		zap.Int("count", len(adapters)),
	)

	return registry, nil
}

func buildPlanTable(cfg config.PlansConfig) (*gateways.PlanTable, error) {
	prices := make([]gateways.PlanPrice, 0, 3)
	for _, entry := range []struct {
		amount string
		plan   domain.PlanType
	}{
		{cfg.DailyAmount, domain.PlanDaily},
		{cfg.WeeklyAmount, domain.PlanWeekly},
		{cfg.MonthlyAmount, domain.PlanMonthly},
	} {
		amount, err := decimal.NewFromString(entry.amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q for %s plan: %w", entry.amount, entry.plan, err)
		}
		prices = append(prices, gateways.PlanPrice{Amount: amount, Plan: entry.plan})
	}

	return gateways.NewPlanTable(prices), nil
}
