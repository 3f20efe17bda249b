package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockLimiter struct {
	checkFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

func (m *mockLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	return m.checkFunc(ctx, key, limit, window)
}

func TestIPRateLimitMiddleware(t *testing.T) {
	var gotKey string
	calls := 0
	limiter := &mockLimiter{checkFunc: func(_ context.Context, key string, limit int, _ time.Duration) (bool, time.Time) {
		gotKey = key
		calls++
		return calls <= limit, time.Now().Add(30 * time.Second)
	}}
	h := NewIPRateLimitMiddleware(limiter, 2, time.Minute, "validate").Handler(okHandler(t, nil))

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/access/validate", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), `"code":"RATE_LIMIT_EXCEEDED"`)
		}
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Equal(t, "ip:validate:203.0.113.9", gotKey)
}

func TestLoginRateLimiter(t *testing.T) {
	l := NewLoginRateLimiter()
	h := l.Handler(okHandler(t, nil))

	var last *httptest.ResponseRecorder
	for i := 0; i < loginMaxAttempts+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/api/login", nil)
		req.RemoteAddr = "198.51.100.3:1000"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Contains(t, last.Body.String(), "Too many login attempts")

	req := httptest.NewRequest(http.MethodPost, "/admin/api/login", nil)
	req.RemoteAddr = "198.51.100.4:1000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFMiddleware(t *testing.T) {
	h := NewCSRFMiddleware(false).Handler(okHandler(t, nil))

	t.Run("safe method sets cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), CSRFCookieName)
	})

	t.Run("post without header is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/api/members", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error":"Missing CSRF token"`)
		assert.Contains(t, rec.Body.String(), `"code":"FORBIDDEN"`)
	})

	t.Run("post with mismatched header is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/api/members", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
		req.Header.Set(CSRFHeaderName, "xyz")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error":"Invalid CSRF token"`)
	})

	t.Run("post with matching header passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/api/members", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
		req.Header.Set(CSRFHeaderName, "abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestBodyLimitMiddleware(t *testing.T) {
	h := NewBodyLimitMiddleware(8).Handler(okHandler(t, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(true).Handler(okHandler(t, nil)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestRequestLogger(t *testing.T) {
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestSecurityHeadersMiddleware_NoStoreOnAPI(t *testing.T) {
	h := NewSecurityHeadersMiddleware(false).Handler(okHandler(t, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/validate-token?token=x", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}
