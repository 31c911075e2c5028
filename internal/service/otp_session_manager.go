package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/security"
)

// SessionGone is returned by RecordFailedAttempt when the session no longer
// exists. Callers must treat it as an invalid session, not as zero attempts.
const SessionGone = -1

const (
	defaultOTPSessionTTL   = 300 * time.Second
	defaultOTPMaxAttempts  = 5
	otpSessionTokenBytes   = 32
	otpSessionKeyPrefix    = "otp:session:"
	otpAttemptsKeyPrefix   = "otp:attempts:"
	otpPhoneIndexKeyPrefix = "otp:phone:"
)

// OTPSessionManager owns the otp:* key space. A session is three keys with
// the same TTL: the record, its attempt counter and the phone index.
type OTPSessionManager struct {
	store       KVStore
	ttl         time.Duration
	maxAttempts int
	hashCost    int
}

func NewOTPSessionManager(store KVStore, ttl time.Duration, maxAttempts, hashCost int) *OTPSessionManager {
	if ttl <= 0 {
		ttl = defaultOTPSessionTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultOTPMaxAttempts
	}
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		hashCost = bcrypt.DefaultCost
	}
	return &OTPSessionManager{store: store, ttl: ttl, maxAttempts: maxAttempts, hashCost: hashCost}
}

func (m *OTPSessionManager) TTL() time.Duration { return m.ttl }

func (m *OTPSessionManager) MaxAttempts() int { return m.maxAttempts }

// Create replaces any live session for phone with a new one and returns its
// identifier.
func (m *OTPSessionManager) Create(ctx context.Context, phone, code string) (string, error) {
	prior, ok, err := m.ResolveSessionID(ctx, phone)
	if err != nil {
		return "", err
	}
	if ok {
		if err := m.Delete(ctx, prior); err != nil {
			return "", err
		}
	}

	sessionID, err := security.NewOpaqueToken(otpSessionTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate otp session id: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), m.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash otp code: %w", err)
	}
	payload, err := json.Marshal(domain.OtpSession{
		PhoneNumber: phone,
		CodeHash:    string(hash),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode otp session: %w", err)
	}

	err = m.store.SetMulti(ctx, map[string]string{
		otpSessionKeyPrefix + sessionID:  string(payload),
		otpAttemptsKeyPrefix + sessionID: "0",
		otpPhoneIndexKeyPrefix + phone:   sessionID,
	}, m.ttl)
	if err != nil {
		return "", storeFailure("write otp session", err)
	}
	return sessionID, nil
}

func (m *OTPSessionManager) ResolveSessionID(ctx context.Context, phone string) (string, bool, error) {
	sessionID, ok, err := m.store.Get(ctx, otpPhoneIndexKeyPrefix+phone)
	if err != nil {
		return "", false, storeFailure("read otp phone index", err)
	}
	return sessionID, ok, nil
}

// Get returns the session with its current attempt count. Unknown, expired
// and superseded sessions are reported as absent.
func (m *OTPSessionManager) Get(ctx context.Context, sessionID string) (*domain.OtpSession, bool, error) {
	if sessionID == "" {
		return nil, false, nil
	}
	raw, ok, err := m.store.Get(ctx, otpSessionKeyPrefix+sessionID)
	if err != nil {
		return nil, false, storeFailure("read otp session", err)
	}
	if !ok {
		return nil, false, nil
	}
	var session domain.OtpSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, false, fmt.Errorf("decode otp session: %w", err)
	}
	attempts, ok, err := m.store.Get(ctx, otpAttemptsKeyPrefix+sessionID)
	if err != nil {
		return nil, false, storeFailure("read otp attempts", err)
	}
	if !ok {
		return nil, false, nil
	}
	n, err := strconv.Atoi(attempts)
	if err != nil {
		return nil, false, fmt.Errorf("decode otp attempts: %w", err)
	}
	// Only the session the phone index points at is live. A concurrent
	// Create may have written a newer one.
	current, ok, err := m.ResolveSessionID(ctx, session.PhoneNumber)
	if err != nil {
		return nil, false, err
	}
	if !ok || current != sessionID {
		return nil, false, nil
	}
	session.ID = sessionID
	session.Attempts = n
	return &session, true, nil
}

// MatchCode reports whether code is the one the session was created with.
func (m *OTPSessionManager) MatchCode(session *domain.OtpSession, code string) bool {
	if session == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(session.CodeHash), []byte(code)) == nil
}

// RecordFailedAttempt increments the attempt counter and returns the new
// count. Reaching the maximum deletes the session. SessionGone is returned
// when the session no longer exists.
func (m *OTPSessionManager) RecordFailedAttempt(ctx context.Context, sessionID string) (int, error) {
	session, ok, err := m.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return SessionGone, nil
	}
	n, ok, err := m.store.IncrExisting(ctx, otpAttemptsKeyPrefix+sessionID)
	if err != nil {
		return 0, storeFailure("increment otp attempts", err)
	}
	if !ok {
		return SessionGone, nil
	}
	count := int(n)
	if count >= m.maxAttempts {
		if err := m.remove(ctx, sessionID, session.PhoneNumber); err != nil {
			return count, err
		}
	}
	return count, nil
}

// ReserveAttempt counts one verification attempt before the code is
// compared, so concurrent guesses share the same budget. The returned count
// may exceed the maximum; SessionGone is returned when the session no longer
// exists.
func (m *OTPSessionManager) ReserveAttempt(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return SessionGone, nil
	}
	n, ok, err := m.store.IncrExisting(ctx, otpAttemptsKeyPrefix+sessionID)
	if err != nil {
		return 0, storeFailure("increment otp attempts", err)
	}
	if !ok {
		return SessionGone, nil
	}
	return int(n), nil
}

// Consume takes the session record out of the store. Of several callers
// only one gets true; the others see the session as already used.
func (m *OTPSessionManager) Consume(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	raw, ok, err := m.store.GetDel(ctx, otpSessionKeyPrefix+sessionID)
	if err != nil {
		return false, storeFailure("consume otp session", err)
	}
	if !ok {
		return false, nil
	}
	if err := m.remove(ctx, sessionID, phoneOf(raw)); err != nil {
		slog.WarnContext(ctx, "otp session cleanup after consume failed", "error", err.Error())
	}
	return true, nil
}

// Delete removes the session and its phone index entry. Deleting an absent
// session is a no-op.
func (m *OTPSessionManager) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	raw, ok, err := m.store.Get(ctx, otpSessionKeyPrefix+sessionID)
	if err != nil {
		return storeFailure("read otp session", err)
	}
	phone := ""
	if ok {
		phone = phoneOf(raw)
	}
	return m.remove(ctx, sessionID, phone)
}

func phoneOf(raw string) string {
	var session domain.OtpSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return ""
	}
	return session.PhoneNumber
}

func (m *OTPSessionManager) remove(ctx context.Context, sessionID, phone string) error {
	keys := []string{otpSessionKeyPrefix + sessionID, otpAttemptsKeyPrefix + sessionID}
	if phone != "" {
		// The index may already point at a newer session for the same phone.
		indexed, ok, err := m.store.Get(ctx, otpPhoneIndexKeyPrefix+phone)
		if err != nil {
			return storeFailure("read otp phone index", err)
		}
		if ok && indexed == sessionID {
			keys = append(keys, otpPhoneIndexKeyPrefix+phone)
		}
	}
	if err := m.store.Delete(ctx, keys...); err != nil {
		return storeFailure("delete otp session", err)
	}
	return nil
}
