package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageLocalization(t *testing.T) {
	cases := []struct {
		accept string
		want   string
	}{
		{"", "The verification code is incorrect."},
		{"tr-TR,tr;q=0.9", "Doğrulama kodu hatalı."},
		{"de-DE", "The verification code is incorrect."},
		{"en;q=0.5, tr;q=0.8", "Doğrulama kodu hatalı."},
		{"%%%invalid", "The verification code is incorrect."},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.accept != "" {
			r.Header.Set("Accept-Language", tc.accept)
		}
		assert.Equal(t, tc.want, Message(r, "INVALID_OTP"), tc.accept)
	}
}

func TestMessageUnknownCodeFallsBack(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, messages["INTERNAL_ERROR"][0], Message(r, "NO_SUCH_CODE"))
}

func TestFailWritesEnvelope(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Language", "tr")
	r.Header.Set("X-Request-Id", "req-1")
	rr := httptest.NewRecorder()

	Fail(rr, r, http.StatusBadRequest, "INVALID_OTP", map[string]int{"attempts_remaining": 3})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "tr", rr.Header().Get("Content-Language"))
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]int `json:"details"`
		} `json:"error"`
		Meta struct {
			RequestID string `json:"request_id"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "INVALID_OTP", body.Error.Code)
	assert.Equal(t, "Doğrulama kodu hatalı.", body.Error.Message)
	assert.Equal(t, 3, body.Error.Details["attempts_remaining"])
	assert.Equal(t, "req-1", body.Meta.RequestID)
}

func TestEveryMessageHasBothLanguages(t *testing.T) {
	for code, m := range messages {
		assert.NotEmpty(t, m[0], code)
		assert.NotEmpty(t, m[1], code)
	}
}

func TestJSONIsNotCacheable(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	JSON(rr, r, http.StatusOK, map[string]string{"access_token": "x"})
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"request_id":"req-unknown"`)
	assert.NotContains(t, rr.Body.String(), "trace_id")
}
