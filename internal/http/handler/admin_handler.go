package handler

import (
	"net/http"

	"github.com/tutorlink/tutorlink-api/internal/http/middleware"
	"github.com/tutorlink/tutorlink-api/internal/http/response"
)

type AdminHandler struct{}

func NewAdminHandler() *AdminHandler { return &AdminHandler{} }

func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.AdminIdentityFromContext(r.Context())
	if !ok {
		response.Fail(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{
		"id":    id.AdminID,
		"email": id.Email,
	})
}
