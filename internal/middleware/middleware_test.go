package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/mir00r/stand-router/internal/config"
	"github.com/mir00r/stand-router/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLoggingMiddlewareSetsRequestID(t *testing.T) {
	var seen string
	h := LoggingMiddleware(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RecoveryMiddleware(logger.NewNop()), LoggingMiddleware(logger.NewNop()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec)["code"])
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeadersMiddleware()(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, BurstSize: 2}, logger.NewNop())
	h := rl.RateLimitMiddleware()(okHandler)

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)

	rec := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeError(t, rec)["code"])
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code)
	assert.Equal(t, 2, rl.GetStats()["active_clients"])
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", getClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", getClientIP(req))
}

func newJWT(t *testing.T) *JWTAuthMiddleware {
	t.Helper()
	jm, err := NewJWTAuthMiddleware(config.JWTConfig{
		Enabled:   true,
		Algorithm: "HS256",
		SecretKey: "test-secret",
		Issuer:    "stand-router",
	}, logger.NewNop())
	require.NoError(t, err)
	return jm
}

func TestNewJWTAuthMiddlewareValidation(t *testing.T) {
	_, err := NewJWTAuthMiddleware(config.JWTConfig{Algorithm: "RS256", SecretKey: "x"}, logger.NewNop())
	assert.Error(t, err)

	_, err = NewJWTAuthMiddleware(config.JWTConfig{Algorithm: "HS256"}, logger.NewNop())
	assert.Error(t, err)
}

func TestJWTAuth(t *testing.T) {
	jm := newJWT(t)

	var subject string
	h := jm.JWTAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
	}))

	send := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin/backends", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTHENTICATION_FAILED", decodeError(t, rec)["code"])
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, send("Bearer not-a-token").Code)

	token, err := jm.IssueToken("operator", time.Minute)
	require.NoError(t, err)
	rec = send("Bearer " + token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator", subject)

	expired, err := jm.IssueToken("operator", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, send("Bearer "+expired).Code)
}

func TestJWTRejectsWrongIssuerAndAlgorithm(t *testing.T) {
	jm := newJWT(t)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = jm.ValidateToken(wrongIssuer)
	assert.Error(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject: "operator",
		Issuer:  "stand-router",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = jm.ValidateToken(wrongAlg)
	assert.Error(t, err)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "operator",
		Issuer:  "stand-router",
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = jm.ValidateToken(wrongKey)
	assert.Error(t, err)
}
