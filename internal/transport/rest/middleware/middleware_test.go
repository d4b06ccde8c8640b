package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/model"
)

type fakeValidator map[string]*model.Caller

func (f fakeValidator) ValidateToken(token string) (*model.Caller, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("invalid")
}

var tokens = fakeValidator{
	"admin-token": {TenantID: "acme", UserID: "hr-1", Role: model.RoleAdmin},
	"alice-token": {TenantID: "acme", UserID: "alice", Role: model.RoleParticipant},
	"bob-token":   {TenantID: "acme", UserID: "bob", Role: model.RoleParticipant},
}

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := GetCaller(r.Context())
		if caller == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(caller.UserID))
	})
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireCaller(t *testing.T) {
	h := NewAuthMiddleware(tokens).RequireCaller(echoCaller())

	rec := serve(h, "Bearer alice-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	assert.Equal(t, http.StatusOK, serve(h, "bearer admin-token").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "alice-token").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer forged").Code)
	assert.JSONEq(t, `{"error":"invalid or expired token","reason":"unauthorized"}`, serve(h, "Bearer forged").Body.String())
}

func TestRequireAdmin(t *testing.T) {
	h := NewAuthMiddleware(tokens).RequireAdmin(echoCaller())

	assert.Equal(t, http.StatusOK, serve(h, "Bearer admin-token").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, "Bearer alice-token").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
}

func TestGetCallerWithoutMiddleware(t *testing.T) {
	assert.Nil(t, GetCaller(httptest.NewRequest("GET", "/", nil).Context()))
}

func TestRateLimiterIsPerCaller(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	h := NewAuthMiddleware(tokens).RequireCaller(limiter.Limit(echoCaller()))

	assert.Equal(t, http.StatusOK, serve(h, "Bearer alice-token").Code)
	assert.Equal(t, http.StatusOK, serve(h, "Bearer alice-token").Code)
	rec := serve(h, "Bearer alice-token")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many submissions, slow down","reason":"rate_limited"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, serve(h, "Bearer bob-token").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, serve(h, "Bearer alice-token").Code)
}

func TestRateLimiterSweepsIdleCallers(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	require.True(t, limiter.allow("a"))
	now = now.Add(limiterIdleTTL + time.Minute)
	limiter.sweep(now)
	assert.Empty(t, limiter.limiters)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/microsurveys/s1/responses", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status=503")
	assert.Contains(t, buf.String(), "path=/v1/microsurveys/s1/responses")
}
