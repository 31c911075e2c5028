package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tutorlink/tutorlink-api/internal/http/response"
	"github.com/tutorlink/tutorlink-api/internal/observability"
	"github.com/tutorlink/tutorlink-api/internal/service"
)

const rateLimitKeyPrefix = "ratelimit:http:"

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// WindowCounter counts hits on key inside a fixed window that starts with the
// first hit. It returns the count so far and the time left in the window.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type RateLimitConfig struct {
	Scope  string
	Limit  int
	Window time.Duration
	Mode   FailureMode
}

type RateLimiter struct {
	counter WindowCounter
	cfg     RateLimitConfig
}

type verdict struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

// NewRateLimiter limits requests per client IP and scope. With a shared
// counter the limit holds across instances.
func NewRateLimiter(counter WindowCounter, cfg RateLimitConfig) *RateLimiter {
	if cfg.Scope == "" {
		cfg.Scope = "api"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Mode == "" {
		cfg.Mode = FailClosed
	}
	return &RateLimiter{counter: counter, cfg: cfg}
}

// NewLocalRateLimiter counts in a process-local KV store. Used when no shared
// store is wired.
func NewLocalRateLimiter(scope string, limit int, window time.Duration) *RateLimiter {
	return NewRateLimiter(service.NewInMemoryKVStore(), RateLimitConfig{
		Scope:  scope,
		Limit:  limit,
		Window: window,
		Mode:   FailClosed,
	})
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			scope, mode := rl.cfg.Scope, string(rl.cfg.Mode)

			v, err := rl.check(ctx, clientIPKey(r))
			if err != nil {
				observability.RecordRateLimitDecision(ctx, scope, "backend_error", mode)
				if rl.cfg.Mode == FailOpen {
					slog.WarnContext(ctx, "rate limit store unavailable, letting request through",
						"scope", scope,
						"error", err.Error(),
					)
					next.ServeHTTP(w, r)
					return
				}
				rl.deny(w, r, verdict{resetIn: rl.cfg.Window}, "backend")
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(v.resetIn).Unix(), 10))
			if !v.allowed {
				observability.RecordRateLimitDecision(ctx, scope, "deny", mode)
				rl.deny(w, r, v, "window")
				return
			}
			observability.RecordRateLimitDecision(ctx, scope, "allow", mode)
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) check(ctx context.Context, client string) (verdict, error) {
	hits, left, err := rl.counter.IncrWindow(ctx, rateLimitKeyPrefix+rl.cfg.Scope+":"+client, rl.cfg.Window)
	if err != nil {
		return verdict{}, err
	}
	if left <= 0 {
		left = rl.cfg.Window
	}
	return verdict{
		allowed:   hits <= int64(rl.cfg.Limit),
		remaining: max(rl.cfg.Limit-int(hits), 0),
		resetIn:   left,
	}, nil
}

func (rl *RateLimiter) deny(w http.ResponseWriter, r *http.Request, v verdict, reason string) {
	secs := retryAfterSeconds(v.resetIn)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	observability.RecordRateLimitRetryAfter(r.Context(), rl.cfg.Scope, reason, v.resetIn)
	response.Fail(w, r, http.StatusTooManyRequests, "RATE_LIMITED", map[string]any{"retry_after": secs})
}

func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}

// clientIPKey reads the peer address. chi's RealIP middleware has already
// applied forwarding headers by the time this runs.
func clientIPKey(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip := net.ParseIP(strings.TrimSpace(host)); ip != nil {
		return ip.String()
	}
	return r.RemoteAddr
}
