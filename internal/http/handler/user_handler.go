package handler

import (
	"log/slog"
	"net/http"

	"github.com/tutorlink/tutorlink-api/internal/http/middleware"
	"github.com/tutorlink/tutorlink-api/internal/http/response"
	"github.com/tutorlink/tutorlink-api/internal/observability"
	"github.com/tutorlink/tutorlink-api/internal/service"
)

type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type selectRoleRequest struct {
	Role string `json:"role"`
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Fail(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
		return
	}
	p, err := h.users.Profile(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, profileResponse(p))
}

func (h *UserHandler) SelectRole(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Fail(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
		return
	}
	var req selectRoleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := h.users.SelectRole(r.Context(), id.UserID, req.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditRoleSelected, slog.String("user_id", id.UserID), slog.String("role", req.Role))
	response.JSON(w, r, http.StatusOK, profileResponse(p))
}

func (h *UserHandler) AcceptLegal(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Fail(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
		return
	}
	p, err := h.users.AcceptLegal(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditLegalAccepted, slog.String("user_id", id.UserID))
	response.JSON(w, r, http.StatusOK, profileResponse(p))
}

func profileResponse(p *service.Profile) map[string]any {
	return map[string]any{
		"user":                  toUserResponse(p.User),
		"requires_legal_accept": p.RequiresLegalAccept,
		"next_step":             p.NextStep,
	}
}
