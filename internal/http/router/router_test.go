package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/health"
	"github.com/tutorlink/tutorlink-api/internal/http/handler"
	"github.com/tutorlink/tutorlink-api/internal/repository"
	"github.com/tutorlink/tutorlink-api/internal/security"
	"github.com/tutorlink/tutorlink-api/internal/service"
	"github.com/tutorlink/tutorlink-api/internal/sms"
)

const testPhone = "+905551234567"

type testEnv struct {
	handler http.Handler
	mr      *miniredis.Miniredis
	db      *gorm.DB
	jwt     *security.JWTManager
	admins  repository.AdminRepository
}

func newTestEnv(t *testing.T, shared bool) *testEnv {
	t.Helper()
	db, err := repository.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close(db) })
	require.NoError(t, repository.Migrate(t.Context(), db, "sqlite"))

	env := &testEnv{db: db}
	var store service.KVStore
	if shared {
		env.mr = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: env.mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		store = service.NewRedisKVStore(client, "test", time.Second)
	} else {
		store = service.NewInMemoryKVStore()
	}

	env.jwt = security.NewJWTManager("tutorlink-test",
		"abcdefghijklmnopqrstuvwxyz123456",
		"abcdefghijklmnopqrstuvwxyz654321",
		security.TokenTTLs{},
	)
	users := repository.NewUserRepository(db)
	legal := repository.NewLegalRepository(db)
	env.admins = repository.NewAdminRepository(db)
	ledger := service.NewTokenLedger(store)
	sessions := service.NewOTPSessionManager(store, 0, 0, bcrypt.MinCost)
	tokens := service.NewTokenService(env.jwt, ledger, users)
	auth := service.NewAuthService(sessions, tokens, users, legal, sms.NoopSender{}, store, service.AuthConfig{})

	env.handler = NewRouter(Dependencies{
		AuthHandler:        handler.NewAuthHandler(auth),
		UserHandler:        handler.NewUserHandler(service.NewUserService(users, legal)),
		AdminHandler:       handler.NewAdminHandler(),
		JWTManager:         env.jwt,
		Ledger:             ledger,
		Users:              users,
		Admins:             env.admins,
		CORSOrigins:        []string{"http://localhost"},
		AuthRateLimitRPM:   1000,
		APIRateLimitRPM:    1000,
		Readiness:          health.NewProbeRunner(time.Second, 0, health.Check{Name: "kv", Run: store.Ping}),
		RevocationEnforced: ledger.RevocationEnforced(),
	})
	return env
}

type envelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, target, token string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var payload string
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(raw)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	req.RemoteAddr = "10.10.10.10:1234"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr, env
}

func (e *testEnv) requestOTP(t *testing.T) string {
	t.Helper()
	rr, env := e.do(t, http.MethodPost, "/auth/request-otp", "", map[string]string{
		"phone_number": testPhone,
		"country_code": "+90",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	token, _ := env.Data["session_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (e *testEnv) verify(t *testing.T, sessionToken, code string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return e.do(t, http.MethodPost, "/auth/verify-otp", "", map[string]string{
		"session_token": sessionToken,
		"phone_number":  testPhone,
		"otp_code":      code,
		"country_code":  "+90",
	})
}

func (e *testEnv) login(t *testing.T) (access, refresh string) {
	t.Helper()
	rr, env := e.verify(t, e.requestOTP(t), "123456")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return env.Data["access_token"].(string), env.Data["refresh_token"].(string)
}

func TestOTPLoginCreatesUserAndAsksForRole(t *testing.T) {
	for _, shared := range []bool{true, false} {
		env := newTestEnv(t, shared)

		rr, body := env.do(t, http.MethodPost, "/auth/request-otp", "", map[string]string{
			"phone_number": "555 123 45 67",
			"country_code": "+90",
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.EqualValues(t, 300, body.Data["expires_in"])
		assert.EqualValues(t, 60, body.Data["retry_after"])

		rr, body = env.verify(t, body.Data["session_token"].(string), "123456")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, true, body.Data["is_new_user"])
		assert.Equal(t, false, body.Data["requires_legal_accept"])
		assert.Equal(t, "role_selection", body.Data["next_step"])
		assert.NotEmpty(t, body.Data["access_token"])
		assert.NotEmpty(t, body.Data["refresh_token"])
		user := body.Data["user"].(map[string]any)
		assert.Equal(t, testPhone, user["phone_number"])
		assert.Nil(t, user["role"])

		rr, body = env.do(t, http.MethodGet, "/me", body.Data["access_token"].(string), nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "role_selection", body.Data["next_step"])
	}
}

func TestVerifyOTPWithoutSessionTokenUsesPhoneIndex(t *testing.T) {
	env := newTestEnv(t, true)
	env.requestOTP(t)
	rr, body := env.verify(t, "", "123456")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, body.Data["is_new_user"])
}

func TestReturningUserIsNotNew(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t)
	env.mr.FastForward(61 * time.Second)
	rr, body := env.verify(t, env.requestOTP(t), "123456")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, false, body.Data["is_new_user"])
}

func TestVerifyOTPLocksOutAfterFiveWrongCodes(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.requestOTP(t)

	for i := 1; i <= 4; i++ {
		rr, body := env.verify(t, session, "000000")
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "INVALID_OTP", body.Error.Code)
		assert.EqualValues(t, 5-i, body.Error.Details["attempts_remaining"])
	}
	rr, body := env.verify(t, session, "000000")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "TOO_MANY_ATTEMPTS", body.Error.Code)

	rr, body = env.verify(t, session, "123456")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "EXPIRED_OTP", body.Error.Code)
}

func TestVerifyOTPFourWrongThenCorrectSucceeds(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.requestOTP(t)
	for i := 0; i < 4; i++ {
		rr, _ := env.verify(t, session, "999999")
		require.Equal(t, http.StatusBadRequest, rr.Code)
	}
	rr, body := env.verify(t, session, "123456")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, body.Data["access_token"])

	rr, body = env.verify(t, session, "123456")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "EXPIRED_OTP", body.Error.Code)
}

func TestVerifyOTPAfterTTLIsExpired(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.requestOTP(t)
	env.mr.FastForward(301 * time.Second)
	rr, body := env.verify(t, session, "123456")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "EXPIRED_OTP", body.Error.Code)
}

func TestVerifyOTPValidation(t *testing.T) {
	env := newTestEnv(t, true)
	rr, body := env.do(t, http.MethodPost, "/auth/verify-otp", "", map[string]string{
		"phone_number": testPhone,
		"otp_code":     "12ab",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "otp_code", body.Error.Details["field"])

	rr, body = env.do(t, http.MethodPost, "/auth/request-otp", "", map[string]string{"phone_number": "12"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
}

func TestRequestOTPResendCooldown(t *testing.T) {
	env := newTestEnv(t, true)
	env.requestOTP(t)
	rr, body := env.do(t, http.MethodPost, "/auth/request-otp", "", map[string]string{
		"phone_number": testPhone,
		"country_code": "+90",
	})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	env.mr.FastForward(61 * time.Second)
	env.requestOTP(t)
}

func TestNewOTPRequestInvalidatesPreviousSession(t *testing.T) {
	env := newTestEnv(t, true)
	first := env.requestOTP(t)
	env.mr.FastForward(61 * time.Second)
	second := env.requestOTP(t)
	require.NotEqual(t, first, second)

	rr, body := env.verify(t, first, "123456")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "EXPIRED_OTP", body.Error.Code)

	rr, _ = env.verify(t, second, "123456")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRefreshRotatesAndOldTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t, true)
	_, refresh := env.login(t)

	rr, body := env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rotated := body.Data["refresh_token"].(string)
	assert.NotEqual(t, refresh, rotated)

	rr, body = env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_TOKEN", body.Error.Code)

	rr, _ = env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": rotated})
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, true)
	access, _ := env.login(t)
	rr, body := env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": access})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_TOKEN", body.Error.Code)
}

func TestLogoutRevokesAccessAndRefreshTokens(t *testing.T) {
	env := newTestEnv(t, true)
	access, refresh := env.login(t)

	rr, _ := env.do(t, http.MethodPost, "/auth/logout", access, map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body := env.do(t, http.MethodGet, "/me", access, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_TOKEN", body.Error.Code)

	rr, _ = env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestFallbackModeDoesNotRevoke(t *testing.T) {
	env := newTestEnv(t, false)
	access, _ := env.login(t)

	rr, _ := env.do(t, http.MethodPost, "/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, _ = env.do(t, http.MethodGet, "/me", access, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body := env.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, body.Data["revocation_enforced"])
}

func TestProtectedRoutesRequireAccessToken(t *testing.T) {
	env := newTestEnv(t, true)
	_, refresh := env.login(t)

	rr, body := env.do(t, http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	rr, body = env.do(t, http.MethodGet, "/me", refresh, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_TOKEN", body.Error.Code)
}

func TestSoftDeletedUserIsRejected(t *testing.T) {
	env := newTestEnv(t, true)
	access, _ := env.login(t)
	require.NoError(t, env.db.Where("phone_number = ?", testPhone).Delete(&domain.User{}).Error)

	rr, body := env.do(t, http.MethodGet, "/me", access, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "USER_NOT_FOUND", body.Error.Code)
}

func TestSoftDeletedPhoneSignsUpAgain(t *testing.T) {
	env := newTestEnv(t, true)
	rr, body := env.verify(t, env.requestOTP(t), "123456")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	first, _ := body.Data["user"].(map[string]any)
	require.NotNil(t, first)
	require.NoError(t, env.db.Where("phone_number = ?", testPhone).Delete(&domain.User{}).Error)

	env.mr.FastForward(61 * time.Second)
	rr, body = env.verify(t, env.requestOTP(t), "123456")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, body.Data["is_new_user"])
	user, _ := body.Data["user"].(map[string]any)
	require.NotNil(t, user)
	assert.NotEqual(t, first["id"], user["id"])
}

func TestRoleSelectionOnce(t *testing.T) {
	env := newTestEnv(t, true)
	access, _ := env.login(t)

	rr, body := env.do(t, http.MethodPut, "/me/role", access, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)

	rr, body = env.do(t, http.MethodPut, "/me/role", access, map[string]string{"role": "tutor"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "home", body.Data["next_step"])

	rr, body = env.do(t, http.MethodPut, "/me/role", access, map[string]string{"role": "student"})
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "ROLE_ALREADY_SET", body.Error.Code)
}

func TestPendingLegalDocumentsComeFirst(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.db.Create(&domain.LegalDocument{Slug: "terms", Version: 1, Active: true}).Error)

	rr, body := env.verify(t, env.requestOTP(t), "123456")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body.Data["requires_legal_accept"])
	assert.Equal(t, "legal_accept", body.Data["next_step"])

	rr, body = env.do(t, http.MethodPost, "/me/legal/accept", body.Data["access_token"].(string), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, false, body.Data["requires_legal_accept"])
	assert.Equal(t, "role_selection", body.Data["next_step"])
}

func TestErrorMessagesAreLocalized(t *testing.T) {
	env := newTestEnv(t, true)
	_, en := env.do(t, http.MethodGet, "/me", "", nil)
	rr, tr := env.do(t, http.MethodGet, "/me", "", nil, "Accept-Language", "tr-TR,tr;q=0.9")
	assert.Equal(t, en.Error.Code, tr.Error.Code)
	assert.NotEqual(t, en.Error.Message, tr.Error.Message)
	assert.Equal(t, "tr", rr.Header().Get("Content-Language"))
}

func TestAdminMe(t *testing.T) {
	env := newTestEnv(t, true)
	admin, err := env.admins.Create(t.Context(), "ops@tutorlink.io", "Ops")
	require.NoError(t, err)
	token, err := env.jwt.SignAdmin(admin.ID.String(), admin.Email)
	require.NoError(t, err)

	rr, body := env.do(t, http.MethodGet, "/admin/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "ops@tutorlink.io", body.Data["email"])

	access, _ := env.login(t)
	rr, _ = env.do(t, http.MethodGet, "/admin/me", access, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestStoreOutageSurfacesAsServiceFailure(t *testing.T) {
	env := newTestEnv(t, true)
	env.mr.Close()

	rr, body := env.do(t, http.MethodPost, "/auth/request-otp", "", map[string]string{
		"phone_number": testPhone,
		"country_code": "+90",
	})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "STORE_UNAVAILABLE", body.Error.Code)

	rr, body = env.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "DEPENDENCY_UNREADY", body.Error.Code)
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t, true)
	rr, body := env.do(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body.Data["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}
