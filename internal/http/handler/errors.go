package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/tutorlink/tutorlink-api/internal/http/response"
	"github.com/tutorlink/tutorlink-api/internal/repository"
	"github.com/tutorlink/tutorlink-api/internal/service"
)

// writeServiceError maps service errors onto status codes and stable error
// codes. Unrecognised errors are logged and reported as INTERNAL_ERROR.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *service.ValidationError
		invalidOTP *service.InvalidOTPError
		rateLimit  *service.RateLimitError
	)
	switch {
	case errors.As(err, &validation):
		response.Fail(w, r, http.StatusBadRequest, "VALIDATION_ERROR", map[string]string{
			"field":  validation.Field,
			"reason": validation.Reason,
		})
	case errors.Is(err, service.ErrValidation):
		response.Fail(w, r, http.StatusBadRequest, "VALIDATION_ERROR", nil)
	case errors.As(err, &invalidOTP):
		response.Fail(w, r, http.StatusBadRequest, "INVALID_OTP", map[string]int{
			"attempts_remaining": invalidOTP.AttemptsRemaining,
		})
	case errors.Is(err, service.ErrExpiredOTP):
		response.Fail(w, r, http.StatusBadRequest, "EXPIRED_OTP", nil)
	case errors.Is(err, service.ErrTooManyAttempts):
		response.Fail(w, r, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", nil)
	case errors.As(err, &rateLimit):
		seconds := int(math.Ceil(rateLimit.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		response.Fail(w, r, http.StatusTooManyRequests, "RATE_LIMITED", map[string]int{"retry_after": seconds})
	case errors.Is(err, service.ErrInvalidToken):
		response.Fail(w, r, http.StatusUnauthorized, "INVALID_TOKEN", nil)
	case errors.Is(err, repository.ErrUserNotFound), errors.Is(err, repository.ErrAdminNotFound):
		response.Fail(w, r, http.StatusUnauthorized, "USER_NOT_FOUND", nil)
	case errors.Is(err, service.ErrRoleAlreadySet):
		response.Fail(w, r, http.StatusConflict, "ROLE_ALREADY_SET", nil)
	case errors.Is(err, service.ErrDeliveryFailed):
		slog.WarnContext(r.Context(), "otp delivery failed", "error", err.Error())
		response.Fail(w, r, http.StatusServiceUnavailable, "DELIVERY_FAILED", nil)
	case errors.Is(err, service.ErrStoreUnavailable):
		slog.ErrorContext(r.Context(), "session store unavailable", "error", err.Error())
		response.Fail(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", nil)
	default:
		slog.ErrorContext(r.Context(), "unhandled service error", "error", err.Error())
		response.Fail(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", nil)
	}
}

// decodeJSON reads a JSON body into dst. An empty body is allowed when
// optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &service.ValidationError{Field: "body", Reason: "too large"}
		}
		return &service.ValidationError{Field: "body", Reason: fmt.Sprintf("malformed json: %v", err)}
	}
	return nil
}
