package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	DatabaseURL    string
	DatabaseDriver string

	RedisURL       string
	RedisKeyPrefix string
	RedisOpTimeout time.Duration

	JWTSecret        string
	JWTAdminSecret   string
	JWTIssuer        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration
	JWTAdminExpiry   time.Duration

	OTPTTL            time.Duration
	OTPMaxAttempts    int
	OTPResendCooldown time.Duration
	OTPTestCode       string
	OTPHashCost       int

	SMSProviderURL string
	SMSAPIKey      string
	SMSSender      string
	SMSTimeout     time.Duration

	AuthRequireRevocation bool
	AuthRateLimitRPM      int
	APIRateLimitRPM       int
	CORSOrigins           []string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64

	ShutdownTimeout time.Duration
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

// SharedStoreConfigured reports whether session and ledger state will live in
// Redis.
func (c *Config) SharedStoreConfigured() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}

func (c *Config) SMSConfigured() bool {
	return strings.TrimSpace(c.SMSProviderURL) != ""
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg, err := load()
	recordLoad(context.Background(), os.Getenv("APP_ENV"), cfg, err)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		AppEnv:   strings.ToLower(getEnv("APP_ENV", "development")),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),

		RedisURL:       getEnv("REDIS_URL", ""),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "tutorlink"),
		RedisOpTimeout: p.duration("REDIS_OP_TIMEOUT", 2*time.Second),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAdminSecret:   getEnv("JWT_ADMIN_SECRET", ""),
		JWTIssuer:        getEnv("JWT_ISSUER", "tutorlink-api"),
		JWTAccessExpiry:  p.expiry("JWT_ACCESS_EXPIRY", time.Hour),
		JWTRefreshExpiry: p.expiry("JWT_REFRESH_EXPIRY", 30*24*time.Hour),
		JWTAdminExpiry:   p.expiry("JWT_ADMIN_EXPIRY", 8*time.Hour),

		OTPTTL:            p.duration("OTP_TTL", 300*time.Second),
		OTPMaxAttempts:    p.integer("OTP_MAX_ATTEMPTS", 5),
		OTPResendCooldown: p.duration("OTP_RESEND_COOLDOWN", 60*time.Second),
		OTPTestCode:       getEnv("OTP_TEST_CODE", "123456"),
		OTPHashCost:       p.integer("OTP_HASH_COST", 10),

		SMSProviderURL: getEnv("SMS_PROVIDER_URL", ""),
		SMSAPIKey:      getEnv("SMS_API_KEY", ""),
		SMSSender:      getEnv("SMS_SENDER", "TutorLink"),
		SMSTimeout:     p.duration("SMS_TIMEOUT", 5*time.Second),

		AuthRateLimitRPM: p.integer("AUTH_RATE_LIMIT_RPM", 30),
		APIRateLimitRPM:  p.integer("API_RATE_LIMIT_RPM", 300),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "")),

		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "tutorlink-api"),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  p.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        p.boolean("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        p.boolean("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           p.boolean("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: p.duration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second),
		OTELTraceSamplingRatio:    p.ratio("OTEL_TRACE_SAMPLING_RATIO", 1.0),

		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 20*time.Second),
	}
	cfg.OTELEnvironment = getEnv("OTEL_ENVIRONMENT", cfg.AppEnv)
	cfg.AuthRequireRevocation = p.boolean("AUTH_REQUIRE_REVOCATION", cfg.IsProduction())

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if len(c.JWTAdminSecret) < 32 {
		errs = append(errs, errors.New("JWT_ADMIN_SECRET must be at least 32 bytes"))
	}
	if c.JWTSecret != "" && c.JWTSecret == c.JWTAdminSecret {
		errs = append(errs, errors.New("JWT_ADMIN_SECRET must differ from JWT_SECRET"))
	}
	if c.OTPMaxAttempts < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be positive"))
	}
	if len(c.OTPTestCode) != 6 || strings.Trim(c.OTPTestCode, "0123456789") != "" {
		errs = append(errs, errors.New("OTP_TEST_CODE must be 6 digits"))
	}
	if c.AuthRequireRevocation && !c.SharedStoreConfigured() {
		errs = append(errs, errors.New("REDIS_URL is required when AUTH_REQUIRE_REVOCATION is enabled"))
	}
	if c.IsProduction() && !c.SMSConfigured() {
		errs = append(errs, errors.New("SMS_PROVIDER_URL is required in production"))
	}
	if c.SMSConfigured() && c.SMSAPIKey == "" {
		errs = append(errs, errors.New("SMS_API_KEY is required when SMS_PROVIDER_URL is set"))
	}
	return errors.Join(errs...)
}

// ParseExpiry accepts Go durations plus a day suffix ("30d").
func ParseExpiry(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid expiry %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive: %q", raw)
	}
	return d, nil
}

type parser struct {
	errs []error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw, ok := lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.errs = append(p.errs, fmt.Errorf("parse %s: invalid duration %q", key, raw))
		return def
	}
	return d
}

func (p *parser) expiry(key string, def time.Duration) time.Duration {
	raw, ok := lookup(key)
	if !ok {
		return def
	}
	d, err := ParseExpiry(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("parse %s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	raw, ok := lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("parse %s: invalid integer %q", key, raw))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	raw, ok := lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("parse %s: invalid bool %q", key, raw))
		return def
	}
	return b
}

func (p *parser) ratio(key string, def float64) float64 {
	raw, ok := lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		p.errs = append(p.errs, fmt.Errorf("parse %s: invalid ratio %q", key, raw))
		return def
	}
	return f
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func getEnv(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
