package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

// recordLoad counts one configuration load. cfg is nil when loading failed.
func recordLoad(ctx context.Context, appEnv string, cfg *Config, err error) {
	loadMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("tutorlink-api").Int64Counter(
			"config.load.events",
			metric.WithDescription("Configuration loads by outcome and resulting auth mode"),
		)
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	outcome, revocation, delivery := "success", "unknown", "unknown"
	if err != nil {
		outcome = "failure"
	}
	if cfg != nil {
		revocation = "untracked"
		if cfg.SharedStoreConfigured() {
			revocation = "enforced"
		}
		delivery = "test_code"
		if cfg.SMSConfigured() {
			delivery = "sms"
		}
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("app_env", normalizeAppEnv(appEnv)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyConfigError(err)),
		attribute.String("revocation", revocation),
		attribute.String("otp_delivery", delivery),
	))
}

func normalizeAppEnv(env string) string {
	v := strings.TrimSpace(strings.ToLower(env))
	switch v {
	case "":
		return "unknown"
	case "prod":
		return "production"
	default:
		return v
	}
}

// classifyConfigError buckets a Load failure. Secret and dependency problems
// are split out of generic validation so alerts can tell them apart.
func classifyConfigError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.TrimSpace(err.Error())
	switch {
	case strings.HasPrefix(msg, "parse "):
		return "parse"
	case !strings.HasPrefix(msg, "validate config:"):
		return "load"
	case strings.Contains(msg, "JWT_SECRET") || strings.Contains(msg, "JWT_ADMIN_SECRET"):
		return "secret"
	case strings.Contains(msg, "REDIS_URL") || strings.Contains(msg, "SMS_"):
		return "dependency"
	default:
		return "validation"
	}
}
