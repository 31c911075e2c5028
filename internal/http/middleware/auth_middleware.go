package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/http/response"
	"github.com/tutorlink/tutorlink-api/internal/observability"
	"github.com/tutorlink/tutorlink-api/internal/repository"
	"github.com/tutorlink/tutorlink-api/internal/security"
)

type contextKey string

const (
	identityContextKey      contextKey = "identity"
	adminIdentityContextKey contextKey = "admin_identity"
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID string
	Role   string
	Claims *security.Claims
}

type AdminIdentity struct {
	AdminID string
	Email   string
	Claims  *security.Claims
}

type UserLookup interface {
	FindActiveByID(ctx context.Context, id string) (*domain.User, error)
}

type AdminLookup interface {
	FindActiveByID(ctx context.Context, id string) (*domain.Admin, error)
}

// RevocationLedger is the part of the token ledger the gateway reads.
type RevocationLedger interface {
	RevocationEnforced() bool
	LookupAccess(ctx context.Context, jti string) (string, bool, error)
}

// AuthMiddleware authenticates user access tokens. The checks run in order
// and the first failure ends the request: bearer present, signature and
// kind, ledger record (only when revocation is enforced), active user.
func AuthMiddleware(jwtMgr *security.JWTManager, ledger RevocationLedger, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(ctx, "missing", string(domain.TokenKindAccess))
				response.Fail(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
				return
			}
			claims, err := jwtMgr.Verify(raw, domain.TokenKindAccess)
			if err != nil {
				observability.RecordAccessTokenValidation(ctx, "invalid", string(domain.TokenKindAccess))
				response.Fail(w, r, http.StatusUnauthorized, "INVALID_TOKEN", nil)
				return
			}
			if claims.ID != "" && ledger != nil && ledger.RevocationEnforced() {
				owner, ok, err := ledger.LookupAccess(ctx, claims.ID)
				if err != nil {
					observability.RecordAccessTokenValidation(ctx, "ledger_error", string(domain.TokenKindAccess))
					slog.ErrorContext(ctx, "token ledger lookup failed", "error", err.Error())
					response.Fail(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", nil)
					return
				}
				if !ok || owner != claims.Subject {
					observability.RecordAccessTokenValidation(ctx, "revoked", string(domain.TokenKindAccess))
					response.Fail(w, r, http.StatusUnauthorized, "INVALID_TOKEN", nil)
					return
				}
			}
			user, err := users.FindActiveByID(ctx, claims.Subject)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					observability.RecordAccessTokenValidation(ctx, "user_not_found", string(domain.TokenKindAccess))
					response.Fail(w, r, http.StatusUnauthorized, "USER_NOT_FOUND", nil)
					return
				}
				slog.ErrorContext(ctx, "user lookup failed", "error", err.Error())
				response.Fail(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", nil)
				return
			}
			observability.RecordAccessTokenValidation(ctx, "valid", string(domain.TokenKindAccess))
			id := &Identity{UserID: user.ID.String(), Role: user.Role, Claims: claims}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityContextKey, id)))
		})
	}
}

// AdminAuthMiddleware authenticates admin tokens. Admin tokens are not
// tracked in the ledger.
func AdminAuthMiddleware(jwtMgr *security.JWTManager, admins AdminLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(ctx, "missing", string(domain.TokenKindAdmin))
				response.Fail(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
				return
			}
			claims, err := jwtMgr.Verify(raw, domain.TokenKindAdmin)
			if err != nil {
				observability.RecordAccessTokenValidation(ctx, "invalid", string(domain.TokenKindAdmin))
				response.Fail(w, r, http.StatusUnauthorized, "INVALID_TOKEN", nil)
				return
			}
			admin, err := admins.FindActiveByID(ctx, claims.Subject)
			if err != nil {
				if errors.Is(err, repository.ErrAdminNotFound) {
					observability.RecordAccessTokenValidation(ctx, "user_not_found", string(domain.TokenKindAdmin))
					response.Fail(w, r, http.StatusUnauthorized, "USER_NOT_FOUND", nil)
					return
				}
				slog.ErrorContext(ctx, "admin lookup failed", "error", err.Error())
				response.Fail(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", nil)
				return
			}
			observability.RecordAccessTokenValidation(ctx, "valid", string(domain.TokenKindAdmin))
			id := &AdminIdentity{AdminID: admin.ID.String(), Email: admin.Email, Claims: claims}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, adminIdentityContextKey, id)))
		})
	}
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}

func AdminIdentityFromContext(ctx context.Context) (*AdminIdentity, bool) {
	id, ok := ctx.Value(adminIdentityContextKey).(*AdminIdentity)
	return id, ok
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
