package handler

import (
	"log/slog"
	"net/http"

	"github.com/tutorlink/tutorlink-api/internal/http/middleware"
	"github.com/tutorlink/tutorlink-api/internal/http/response"
	"github.com/tutorlink/tutorlink-api/internal/observability"
	"github.com/tutorlink/tutorlink-api/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type requestOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	CountryCode string `json:"country_code"`
}

type verifyOTPRequest struct {
	SessionToken string `json:"session_token"`
	PhoneNumber  string `json:"phone_number"`
	OTPCode      string `json:"otp_code"`
	CountryCode  string `json:"country_code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.PhoneNumber == "" {
		writeServiceError(w, r, &service.ValidationError{Field: "phone_number", Reason: "required"})
		return
	}
	challenge, err := h.auth.RequestOTP(r.Context(), req.PhoneNumber, req.CountryCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"session_token": challenge.SessionToken,
		"expires_in":    int(challenge.ExpiresIn.Seconds()),
		"retry_after":   int(challenge.RetryAfter.Seconds()),
	})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	switch {
	case req.PhoneNumber == "":
		writeServiceError(w, r, &service.ValidationError{Field: "phone_number", Reason: "required"})
		return
	case req.OTPCode == "":
		writeServiceError(w, r, &service.ValidationError{Field: "otp_code", Reason: "required"})
		return
	}
	result, err := h.auth.VerifyOTP(r.Context(), service.VerifyOTPInput{
		SessionToken: req.SessionToken,
		PhoneNumber:  req.PhoneNumber,
		Code:         req.OTPCode,
		CountryCode:  req.CountryCode,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditLogin,
		slog.String("user_id", result.User.ID.String()),
		slog.Bool("is_new_user", result.IsNewUser),
	)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"is_new_user":           result.IsNewUser,
		"access_token":          result.Tokens.AccessToken,
		"refresh_token":         result.Tokens.RefreshToken,
		"user":                  toUserResponse(result.User),
		"requires_legal_accept": result.RequiresLegalAccept,
		"next_step":             result.NextStep,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditRefresh)
	response.JSON(w, r, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Logout always reports success once the caller is authenticated; revocation
// failures are logged.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Fail(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req, true); err != nil {
		req = refreshRequest{}
	}
	if err := h.auth.Logout(r.Context(), id.Claims, req.RefreshToken); err != nil {
		slog.WarnContext(r.Context(), "logout revocation failed", "user_id", id.UserID, "error", err.Error())
	}
	observability.Audit(r, observability.AuditLogout, slog.String("user_id", id.UserID))
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}
