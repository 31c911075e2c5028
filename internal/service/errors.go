package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/tutorlink/tutorlink-api/internal/repository"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrExpiredOTP       = errors.New("otp session expired or not found")
	ErrInvalidOTP       = errors.New("invalid otp code")
	ErrTooManyAttempts  = errors.New("too many otp attempts")
	ErrInvalidToken     = errors.New("invalid token")
	ErrUserNotFound     = repository.ErrUserNotFound
	ErrDeliveryFailed   = errors.New("otp delivery failed")
	ErrStoreUnavailable = errors.New("session store unavailable")
	ErrRateLimited      = errors.New("rate limited")
	ErrRoleAlreadySet   = repository.ErrRoleAlreadySet
	ErrLedgerUntracked  = errors.New("token ledger not tracking tokens")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidOTPError is returned for a wrong code while attempts remain.
type InvalidOTPError struct {
	AttemptsRemaining int
}

func (e *InvalidOTPError) Error() string {
	return fmt.Sprintf("invalid otp code, %d attempts remaining", e.AttemptsRemaining)
}

func (e *InvalidOTPError) Unwrap() error { return ErrInvalidOTP }

// RateLimitError carries how long the caller should wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
