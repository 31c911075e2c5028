package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/observability"
	"github.com/tutorlink/tutorlink-api/internal/phone"
	"github.com/tutorlink/tutorlink-api/internal/repository"
	"github.com/tutorlink/tutorlink-api/internal/security"
)

const (
	NextStepLegalAccept   = "legal_accept"
	NextStepRoleSelection = "role_selection"
	NextStepHome          = "home"

	otpCodeDigits        = 6
	otpResendKeyPrefix   = "ratelimit:otp_resend:"
	defaultResendBackoff = 60 * time.Second
)

type AuthConfig struct {
	ResendCooldown time.Duration
	// TestCode is issued instead of a random code when no SMS provider is
	// configured.
	TestCode string
}

type OTPChallenge struct {
	SessionToken string
	ExpiresIn    time.Duration
	RetryAfter   time.Duration
}

type VerifyOTPInput struct {
	SessionToken string
	PhoneNumber  string
	Code         string
	CountryCode  string
}

type LoginResult struct {
	IsNewUser           bool
	Tokens              *TokenPair
	User                *domain.User
	RequiresLegalAccept bool
	NextStep            string
}

type AuthService struct {
	sessions *OTPSessionManager
	tokens   *TokenService
	users    UserDirectory
	legal    LegalDirectory
	sender   OTPSender
	limits   KVStore
	cfg      AuthConfig
}

func NewAuthService(
	sessions *OTPSessionManager,
	tokens *TokenService,
	users UserDirectory,
	legal LegalDirectory,
	sender OTPSender,
	limits KVStore,
	cfg AuthConfig,
) *AuthService {
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = defaultResendBackoff
	}
	if cfg.TestCode == "" {
		cfg.TestCode = "123456"
	}
	return &AuthService{
		sessions: sessions,
		tokens:   tokens,
		users:    users,
		legal:    legal,
		sender:   sender,
		limits:   limits,
		cfg:      cfg,
	}
}

// RequestOTP opens a verification session for the phone and delivers the
// code. The session is persisted before delivery; if delivery fails it is
// removed again.
func (s *AuthService) RequestOTP(ctx context.Context, rawPhone, countryCode string) (*OTPChallenge, error) {
	num, err := phone.Normalize(rawPhone, countryCode)
	if err != nil {
		observability.RecordOTPRequest(ctx, "invalid")
		return nil, &ValidationError{Field: "phone_number", Reason: err.Error()}
	}

	hits, remaining, err := s.limits.IncrWindow(ctx, otpResendKeyPrefix+num.E164, s.cfg.ResendCooldown)
	if err != nil {
		observability.RecordOTPRequest(ctx, "store_error")
		return nil, storeFailure("otp resend cooldown", err)
	}
	if hits > 1 {
		observability.RecordOTPRequest(ctx, "cooldown")
		return nil, &RateLimitError{RetryAfter: remaining}
	}

	code := s.cfg.TestCode
	if s.sender.Enabled() {
		code, err = security.NewOTPCode(otpCodeDigits)
		if err != nil {
			return nil, fmt.Errorf("generate otp code: %w", err)
		}
	}

	sessionID, err := s.sessions.Create(ctx, num.E164, code)
	if err != nil {
		observability.RecordOTPRequest(ctx, "store_error")
		return nil, err
	}

	if s.sender.Enabled() {
		if err := s.sender.SendOTP(ctx, num.E164, code); err != nil {
			if delErr := s.sessions.Delete(ctx, sessionID); delErr != nil {
				slog.WarnContext(ctx, "otp session cleanup after delivery failure failed", "phone", phone.Mask(num.E164), "error", delErr.Error())
			}
			_ = s.limits.Delete(ctx, otpResendKeyPrefix+num.E164)
			observability.RecordOTPRequest(ctx, "delivery_failed")
			return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		}
	}

	observability.RecordOTPRequest(ctx, "sent")
	return &OTPChallenge{
		SessionToken: sessionID,
		ExpiresIn:    s.sessions.TTL(),
		RetryAfter:   s.cfg.ResendCooldown,
	}, nil
}

// VerifyOTP checks the submitted code and, on success, logs the user in,
// creating the account on first login.
func (s *AuthService) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*LoginResult, error) {
	num, err := phone.Normalize(in.PhoneNumber, in.CountryCode)
	if err != nil {
		return nil, &ValidationError{Field: "phone_number", Reason: err.Error()}
	}
	code := strings.TrimSpace(in.Code)
	if len(code) != otpCodeDigits || !isNumeric(code) {
		return nil, &ValidationError{Field: "otp_code", Reason: "must be 6 digits"}
	}

	sessionID := strings.TrimSpace(in.SessionToken)
	if sessionID == "" {
		resolved, ok, err := s.sessions.ResolveSessionID(ctx, num.E164)
		if err != nil {
			return nil, err
		}
		if !ok {
			observability.RecordOTPVerify(ctx, "expired")
			return nil, ErrExpiredOTP
		}
		sessionID = resolved
	}

	session, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok || session.PhoneNumber != num.E164 {
		observability.RecordOTPVerify(ctx, "expired")
		return nil, ErrExpiredOTP
	}

	attempt, err := s.sessions.ReserveAttempt(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case attempt == SessionGone:
		observability.RecordOTPVerify(ctx, "expired")
		return nil, ErrExpiredOTP
	case attempt > s.sessions.MaxAttempts():
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		observability.RecordOTPVerify(ctx, "too_many_attempts")
		return nil, ErrTooManyAttempts
	}

	if !s.sessions.MatchCode(session, code) {
		if attempt >= s.sessions.MaxAttempts() {
			if err := s.sessions.Delete(ctx, sessionID); err != nil {
				return nil, err
			}
			observability.RecordOTPVerify(ctx, "too_many_attempts")
			return nil, ErrTooManyAttempts
		}
		observability.RecordOTPVerify(ctx, "invalid")
		return nil, &InvalidOTPError{AttemptsRemaining: s.sessions.MaxAttempts() - attempt}
	}

	consumed, err := s.sessions.Consume(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		observability.RecordOTPVerify(ctx, "expired")
		return nil, ErrExpiredOTP
	}

	user, isNew, err := s.findOrCreateUser(ctx, num)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	pending, err := s.legal.HasPendingAcceptance(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("check legal acceptance: %w", err)
	}

	observability.RecordOTPVerify(ctx, "success")
	return &LoginResult{
		IsNewUser:           isNew,
		Tokens:              pair,
		User:                user,
		RequiresLegalAccept: pending,
		NextStep:            nextStep(pending, user),
	}, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		observability.RecordAuthRefresh(ctx, "invalid")
		return nil, &ValidationError{Field: "refresh_token", Reason: "required"}
	}
	pair, _, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			observability.RecordAuthRefresh(ctx, "invalid")
		} else {
			observability.RecordAuthRefresh(ctx, "error")
		}
		return nil, err
	}
	observability.RecordAuthRefresh(ctx, "success")
	return pair, nil
}

// Logout revokes the presented access token and, when given, the caller's
// refresh token.
func (s *AuthService) Logout(ctx context.Context, claims *security.Claims, refreshToken string) error {
	var errs []error
	if err := s.tokens.RevokeAccess(ctx, claims); err != nil {
		errs = append(errs, err)
	}
	if refreshToken != "" && claims != nil {
		if err := s.tokens.RevokeRefreshToken(ctx, refreshToken, claims.Subject); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		observability.RecordAuthLogout(ctx, "error")
		return err
	}
	observability.RecordAuthLogout(ctx, "success")
	return nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, num phone.Number) (*domain.User, bool, error) {
	user, err := s.users.FindActiveByPhone(ctx, num.E164)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, err
	}
	user, err = s.users.Create(ctx, num.E164, num.CountryCode)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func nextStep(pendingLegal bool, user *domain.User) string {
	switch {
	case pendingLegal:
		return NextStepLegalAccept
	case user.Role == "":
		return NextStepRoleSelection
	default:
		return NextStepHome
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
