package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/auth"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/db"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/grpcx"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/httpx"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/kafkax"
	otelx "github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/otel"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/runtime"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/credentials"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/handlers"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/outbound"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/outbox"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/reconcile"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/resolver"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/storage"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/webhook"
)

func main() {
	logger := runtime.NewLogger("calendar-sync-service")
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	if err := db.Migrate(cfg.DatabaseURL, storage.Migrations, storage.MigrationsDir, logger); err != nil {
		logger.Error("db migration failed", "err", err)
		os.Exit(1)
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	verifier, err := auth.NewVerifier(ctx, auth.VerifierConfig{
		HMACSecret: cfg.JWTSecret,
		JWKSURL:    cfg.JWKSURL,
		Issuer:     cfg.JWTIssuer,
	})
	if err != nil {
		logger.Error("auth setup failed", "err", err)
		os.Exit(1)
	}

	var sealer *credentials.Sealer
	if cfg.TokenSealingKey != nil {
		if sealer, err = credentials.NewSealer(cfg.TokenSealingKey); err != nil {
			logger.Error("token sealer setup failed", "err", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("TOKEN_SEALING_KEY not set; calendar tokens are stored unsealed")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
	}

	tenants := storage.NewTenantRepository(pool)
	directory := storage.NewDirectoryRepository(pool)
	outboxRepo := outbox.NewRepository()
	appts := storage.NewAppointmentRepository(pool, outboxRepo)
	syncState := storage.NewSyncStateRepository(pool)

	creds := credentials.NewManager(tenants, sealer, logger, credentials.Config{HTTPTimeout: cfg.GoogleHTTPTimeout})
	connector := gcal.NewConnector(tenants, creds, cfg.GoogleEndpoint)

	writer := outbound.NewWriter(connector, directory, appts, cfg.EventDuration, logger)
	res := resolver.New(directory, logger)
	reconciler := reconcile.NewReconciler(connector, appts, directory, res, reconcile.Config{
		PageSize: int64(cfg.SyncPageSize),
		MaxPages: cfg.SyncMaxPages,
	}, logger)
	poller := reconcile.NewDeletionPoller(connector, appts, int64(cfg.SyncPageSize), logger)
	coordinator := reconcile.NewCoordinator(connector, reconciler, poller, syncState, cfg.ReconcileOnChange, logger)

	var guard webhook.ReplayGuard = webhook.NewMemoryReplayGuard()
	if rdb != nil {
		guard = webhook.NewRedisReplayGuard(rdb, "gcal:msgnum", cfg.ReplayTTL)
	}
	webhookHandler := webhook.NewHandler(tenants, coordinator, guard, logger)
	registrar := webhook.NewRegistrar(connector, syncState, cfg.WebhookAddress, cfg.WatchTTL)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:    cfg.KafkaBrokers,
		PollEvery:  2 * time.Second,
		MaxBackoff: time.Minute,
		BatchSize:  50,
		Retention:  cfg.OutboxRetention,
	})
	go publisher.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers), Optional: true},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			Optional: true,
		})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, verifier, cfg.AdminRole, webhookHandler,
		handlers.NewAppointmentHandler(appts, directory, writer, logger),
		handlers.NewCalendarHandler(handlers.CalendarDeps{
			Syncer:   coordinator,
			Grants:   creds,
			Settings: tenants,
			Channels: registrar,
		}, logger),
	)

	var rateLimit httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, time.Minute, "rl:calendar-sync", nil)
		rateLimit = rl.Middleware(logger, true)
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimit)
	} else {
		rateLimit = httpx.NewRateLimiter(cfg.RateLimit, time.Minute, nil).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimit)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, "/healthz", "/readyz"),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
		rateLimit,
	)
	handler = otelhttp.NewHandler(handler, "calendar-sync")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := grpcx.NewHealthServer(logger)
	go health.Watch(ctx, "", 10*time.Second, db.ReadyCheck(pool))
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc health server starting", "addr", lis.Addr().String())
		if err := health.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	health.Stop()
	logger.Info("http server stopped")
}
