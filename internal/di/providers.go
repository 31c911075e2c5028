package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-api/internal/config"
	"github.com/tutorlink/tutorlink-api/internal/health"
	"github.com/tutorlink/tutorlink-api/internal/http/handler"
	"github.com/tutorlink/tutorlink-api/internal/http/middleware"
	"github.com/tutorlink/tutorlink-api/internal/http/router"
	"github.com/tutorlink/tutorlink-api/internal/observability"
	"github.com/tutorlink/tutorlink-api/internal/repository"
	"github.com/tutorlink/tutorlink-api/internal/security"
	"github.com/tutorlink/tutorlink-api/internal/service"
	"github.com/tutorlink/tutorlink-api/internal/sms"
)

// Tools is the subset of the graph the operator commands need.
type Tools struct {
	Admins *service.AdminService
	Ledger *service.TokenLedger
}

var StorageSet = wire.NewSet(
	provideDB,
	provideKVStore,
	repository.NewUserRepository,
	repository.NewAdminRepository,
	repository.NewLegalRepository,
)

var ServiceSet = wire.NewSet(
	provideJWTManager,
	provideTokenLedger,
	provideOTPSessionManager,
	provideSMSSender,
	provideTokenService,
	provideAuthService,
	provideUserService,
	provideAdminService,
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewUserHandler,
	handler.NewAdminHandler,
	provideReadiness,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

func provideDB(ctx context.Context, cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.Migrate(ctx, db, cfg.DatabaseDriver); err != nil {
		_ = repository.Close(db)
		return nil, nil, err
	}
	return db, func() { _ = repository.Close(db) }, nil
}

// provideKVStore picks Redis when REDIS_URL is set and the in-process store
// otherwise. The in-process store cannot enforce revocation.
func provideKVStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.KVStore, func(), error) {
	if !cfg.SharedStoreConfigured() {
		logger.Warn("REDIS_URL not set, using in-process session store; token revocation is not enforced")
		return service.NewInMemoryKVStore(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	store := service.NewRedisKVStore(client, cfg.RedisKeyPrefix, cfg.RedisOpTimeout)
	if err := store.Ping(ctx); err != nil {
		logger.Warn("redis not reachable at startup", "error", err.Error())
	}
	return store, func() { _ = client.Close() }, nil
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTSecret, cfg.JWTAdminSecret, security.TokenTTLs{
		Access:  cfg.JWTAccessExpiry,
		Refresh: cfg.JWTRefreshExpiry,
		Admin:   cfg.JWTAdminExpiry,
	})
}

func provideTokenLedger(store service.KVStore, logger *slog.Logger) *service.TokenLedger {
	ledger := service.NewTokenLedger(store)
	if !ledger.RevocationEnforced() {
		logger.Warn("token ledger is untracked, logout will not invalidate issued tokens")
	}
	return ledger
}

func provideOTPSessionManager(store service.KVStore, cfg *config.Config) *service.OTPSessionManager {
	return service.NewOTPSessionManager(store, cfg.OTPTTL, cfg.OTPMaxAttempts, cfg.OTPHashCost)
}

func provideSMSSender(cfg *config.Config) sms.Sender {
	if !cfg.SMSConfigured() {
		return sms.NoopSender{}
	}
	return sms.NewHTTPSender(sms.HTTPSenderConfig{
		URL:     cfg.SMSProviderURL,
		APIKey:  cfg.SMSAPIKey,
		From:    cfg.SMSSender,
		Timeout: cfg.SMSTimeout,
	})
}

func provideTokenService(jwtMgr *security.JWTManager, ledger *service.TokenLedger, users repository.UserRepository) *service.TokenService {
	return service.NewTokenService(jwtMgr, ledger, users)
}

func provideAuthService(
	cfg *config.Config,
	sessions *service.OTPSessionManager,
	tokens *service.TokenService,
	users repository.UserRepository,
	legal repository.LegalRepository,
	sender sms.Sender,
	store service.KVStore,
) *service.AuthService {
	return service.NewAuthService(sessions, tokens, users, legal, sender, store, service.AuthConfig{
		ResendCooldown: cfg.OTPResendCooldown,
		TestCode:       cfg.OTPTestCode,
	})
}

func provideUserService(users repository.UserRepository, legal repository.LegalRepository) *service.UserService {
	return service.NewUserService(users, legal)
}

func provideAdminService(admins repository.AdminRepository, jwtMgr *security.JWTManager) *service.AdminService {
	return service.NewAdminService(admins, jwtMgr)
}

func provideReadiness(store service.KVStore, db *gorm.DB) *health.ProbeRunner {
	return health.NewProbeRunner(2*time.Second, 5*time.Second,
		health.Check{Name: "kv_store", Run: store.Ping},
		health.Check{Name: "database", Run: func(ctx context.Context) error { return repository.Ping(ctx, db) }},
	)
}

func provideRouterDependencies(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	jwtMgr *security.JWTManager,
	ledger *service.TokenLedger,
	users repository.UserRepository,
	admins repository.AdminRepository,
	store service.KVStore,
	readiness *health.ProbeRunner,
) router.Dependencies {
	apiLimiter := middleware.NewRateLimiter(store, middleware.RateLimitConfig{
		Scope:  "api",
		Limit:  cfg.APIRateLimitRPM,
		Window: time.Minute,
		Mode:   middleware.FailOpen,
	})
	authLimiter := middleware.NewRateLimiter(store, middleware.RateLimitConfig{
		Scope:  "auth",
		Limit:  cfg.AuthRateLimitRPM,
		Window: time.Minute,
		Mode:   middleware.FailClosed,
	})
	return router.Dependencies{
		AuthHandler:        authHandler,
		UserHandler:        userHandler,
		AdminHandler:       adminHandler,
		JWTManager:         jwtMgr,
		Ledger:             ledger,
		Users:              users,
		Admins:             admins,
		CORSOrigins:        cfg.CORSOrigins,
		AuthRateLimitRPM:   cfg.AuthRateLimitRPM,
		APIRateLimitRPM:    cfg.APIRateLimitRPM,
		GlobalRateLimiter:  apiLimiter.Middleware(),
		AuthRateLimiter:    authLimiter.Middleware(),
		Readiness:          readiness,
		RevocationEnforced: ledger.RevocationEnforced(),
		EnableOTelHTTP:     cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func provideRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func newTools(admins *service.AdminService, ledger *service.TokenLedger) *Tools {
	return &Tools{Admins: admins, Ledger: ledger}
}
