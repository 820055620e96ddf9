package main

import (
	"errors"
	"time"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/config"
)

type serviceConfig struct {
	Service     string
	Port        string
	GRPCPort    string
	DatabaseURL string

	GoogleHTTPTimeout time.Duration
	GoogleEndpoint    string
	EventDuration     time.Duration
	SyncPageSize      int
	SyncMaxPages      int
	ReconcileOnChange bool
	TokenSealingKey   []byte

	WebhookAddress string
	WatchTTL       time.Duration
	ReplayTTL      time.Duration

	JWTSecret string
	JWKSURL   string
	JWTIssuer string
	AdminRole []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers    string
	OutboxRetention time.Duration

	BodyLimit      int64
	RequestTimeout time.Duration
	RateLimit      int
	CORSOrigins    []string
}

func loadConfig() (serviceConfig, error) {
	var (
		cfg  serviceConfig
		errs []error
		err  error
	)
	cfg.Service = config.String("SERVICE_NAME", "calendar-sync-service")
	if cfg.Port, err = config.Port("PORT", "8090"); err != nil {
		errs = append(errs, err)
	}
	if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9095"); err != nil {
		errs = append(errs, err)
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		errs = append(errs, err)
	}

	if cfg.GoogleHTTPTimeout, err = config.Duration("GOOGLE_HTTP_TIMEOUT", 20*time.Second); err != nil {
		errs = append(errs, err)
	}
	cfg.GoogleEndpoint = config.String("GOOGLE_API_ENDPOINT", "")
	if cfg.EventDuration, err = config.Duration("CALENDAR_EVENT_DURATION", time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.SyncPageSize, err = config.Int("SYNC_PAGE_SIZE", 250); err != nil {
		errs = append(errs, err)
	}
	if cfg.SyncMaxPages, err = config.Int("SYNC_MAX_PAGES", 20); err != nil {
		errs = append(errs, err)
	}
	cfg.ReconcileOnChange = config.Bool("SYNC_RECONCILE_ON_CHANGE", false)
	if cfg.TokenSealingKey, err = config.Base64Key("TOKEN_SEALING_KEY", 32); err != nil {
		errs = append(errs, err)
	}

	cfg.WebhookAddress = config.String("WEBHOOK_ADDRESS", "")
	if cfg.WatchTTL, err = config.Duration("WATCH_TTL", 7*24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.ReplayTTL, err = config.Duration("WEBHOOK_REPLAY_TTL", 30*24*time.Hour); err != nil {
		errs = append(errs, err)
	}

	cfg.JWTSecret = config.String("JWT_SECRET", "")
	cfg.JWKSURL = config.String("JWKS_URL", "")
	cfg.JWTIssuer = config.String("JWT_ISSUER", "")
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		errs = append(errs, errors.New("JWT_SECRET or JWKS_URL is required"))
	}
	cfg.AdminRole = config.List("CALENDAR_ADMIN_ROLES")
	if len(cfg.AdminRole) == 0 {
		cfg.AdminRole = []string{"owner", "admin"}
	}

	cfg.RedisAddr = config.String("REDIS_ADDR", "")
	cfg.RedisPassword = config.String("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = config.NonNegativeInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	cfg.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	if cfg.OutboxRetention, err = config.Duration("OUTBOX_RETENTION", 72*time.Hour); err != nil {
		errs = append(errs, err)
	}

	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.BodyLimit = int64(bodyLimit)
	if cfg.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		errs = append(errs, err)
	}
	cfg.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS")

	return cfg, errors.Join(errs...)
}
