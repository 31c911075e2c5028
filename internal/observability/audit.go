package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

type AuditEvent string

const (
	AuditLogin         AuditEvent = "auth.login"
	AuditRefresh       AuditEvent = "auth.refresh"
	AuditLogout        AuditEvent = "auth.logout"
	AuditRoleSelected  AuditEvent = "user.role_selected"
	AuditLegalAccepted AuditEvent = "user.legal_accepted"
)

// Audit logs a security relevant event for the request under an "audit"
// group. attrs must not carry raw phone numbers or tokens.
func Audit(r *http.Request, event AuditEvent, attrs ...slog.Attr) {
	ctx := r.Context()
	fields := []any{
		slog.String("event", string(event)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", chimiddleware.GetReqID(ctx)),
		slog.String("client_ip", r.RemoteAddr),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, slog.String("trace_id", sc.TraceID().String()))
	}
	for _, a := range attrs {
		fields = append(fields, a)
	}
	slog.InfoContext(ctx, "audit", slog.Group("audit", fields...))
}
