package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tutorlink/tutorlink-api/internal/health"
	"github.com/tutorlink/tutorlink-api/internal/http/handler"
	"github.com/tutorlink/tutorlink-api/internal/http/middleware"
	"github.com/tutorlink/tutorlink-api/internal/http/response"
	"github.com/tutorlink/tutorlink-api/internal/security"
)

type Dependencies struct {
	AuthHandler        *handler.AuthHandler
	UserHandler        *handler.UserHandler
	AdminHandler       *handler.AdminHandler
	JWTManager         *security.JWTManager
	Ledger             middleware.RevocationLedger
	Users              middleware.UserLookup
	Admins             middleware.AdminLookup
	CORSOrigins        []string
	AuthRateLimitRPM   int
	APIRateLimitRPM    int
	GlobalRateLimiter  GlobalRateLimiterFunc
	AuthRateLimiter    AuthRateLimiterFunc
	Readiness          *health.ProbeRunner
	RevocationEnforced bool
	EnableOTelHTTP     bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewLocalRateLimiter("api", dep.APIRateLimitRPM, time.Minute).Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewLocalRateLimiter("auth", dep.AuthRateLimitRPM, time.Minute).Middleware()
	}
	requireUser := middleware.AuthMiddleware(dep.JWTManager, dep.Ledger, dep.Users)
	requireAdmin := middleware.AdminAuthMiddleware(dep.JWTManager, dep.Admins)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Fail(w, r, http.StatusNotFound, "NOT_FOUND", nil)
	})

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{
				"status":              "ready",
				"checks":              []any{},
				"revocation_enforced": dep.RevocationEnforced,
			})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{
				"status":              "ready",
				"checks":              results,
				"revocation_enforced": dep.RevocationEnforced,
			})
			return
		}
		response.Fail(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", map[string]any{"checks": results})
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(authLimiter).Post("/request-otp", dep.AuthHandler.RequestOTP)
		r.With(authLimiter).Post("/verify-otp", dep.AuthHandler.VerifyOTP)
		r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
		r.With(requireUser).Post("/logout", dep.AuthHandler.Logout)
	})

	r.Route("/me", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", dep.UserHandler.Me)
		r.Put("/role", dep.UserHandler.SelectRole)
		r.Post("/legal/accept", dep.UserHandler.AcceptLegal)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/me", dep.AdminHandler.Me)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
