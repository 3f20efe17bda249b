package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vipclub/access-server/internal/errors"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/service"
)

type mockAdminValidator struct {
	validateFunc func(ctx context.Context, token string) bool
}

func (m *mockAdminValidator) ValidateSession(ctx context.Context, token string) bool {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, token)
	}
	return false
}

type mockAccessVerifier struct {
	verifyFunc func(ctx context.Context, token string, page model.TargetPage) (*service.AccessSession, error)
}

func (m *mockAccessVerifier) VerifySession(ctx context.Context, token string, page model.TargetPage) (*service.AccessSession, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, token, page)
	}
	return nil, apperrors.Unauthorized("Access session required")
}

// sessionFor accepts token "good-<page>" for exactly that page.
func sessionFor(ctx context.Context, token string, page model.TargetPage) (*service.AccessSession, error) {
	switch token {
	case "":
		return nil, apperrors.Unauthorized("Access session required")
	case "good-" + string(page):
		return &service.AccessSession{GrantID: "g-1", TargetPage: page, ExpiresAt: time.Now().Add(time.Hour)}, nil
	case "good-vip", "good-member", "good-admin":
		return nil, apperrors.TargetMismatch()
	default:
		return nil, apperrors.Unauthorized("Access session is invalid or expired")
	}
}

func okHandler(t *testing.T, check func(r *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAccessGate(t *testing.T) {
	gate := NewAccessGate(&mockAccessVerifier{verifyFunc: sessionFor}, model.TargetPageVIP)

	t.Run("allows matching session cookie", func(t *testing.T) {
		var got *service.AccessSession
		h := gate.Handler(okHandler(t, func(r *http.Request) { got = GetAccessSession(r.Context()) }))

		req := httptest.NewRequest(http.MethodGet, "/api/gallery/vip", nil)
		req.AddCookie(&http.Cookie{Name: AccessSessionCookie, Value: "good-vip"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, model.TargetPageVIP, got.TargetPage)
	})

	t.Run("allows bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/gallery/vip", nil)
		req.Header.Set("Authorization", "Bearer good-vip")
		rec := httptest.NewRecorder()
		gate.Handler(okHandler(t, nil)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects missing session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		gate.Handler(okHandler(t, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gallery/vip", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects session for another page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/gallery/vip", nil)
		req.AddCookie(&http.Cookie{Name: AccessSessionCookie, Value: "good-member"})
		rec := httptest.NewRecorder()
		gate.Handler(okHandler(t, nil)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "Access denied")
	})
}

func TestAdminSessionMiddleware(t *testing.T) {
	admins := &mockAdminValidator{validateFunc: func(_ context.Context, token string) bool { return token == "admin-ok" }}
	m := NewAdminSessionMiddleware(admins, &mockAccessVerifier{verifyFunc: sessionFor})

	tests := []struct {
		name      string
		cookies   []*http.Cookie
		bearer    string
		status    int
		principal AdminPrincipal
	}{
		{"password session", []*http.Cookie{{Name: AdminSessionCookie, Value: "admin-ok"}}, "", http.StatusOK, AdminViaPassword},
		{"admin access link", []*http.Cookie{{Name: AccessSessionCookie, Value: "good-admin"}}, "", http.StatusOK, AdminViaAccessLink},
		{"admin bearer", nil, "good-admin", http.StatusOK, AdminViaAccessLink},
		{"stale admin cookie falls back to access link", []*http.Cookie{
			{Name: AdminSessionCookie, Value: "expired"},
			{Name: AccessSessionCookie, Value: "good-admin"},
		}, "", http.StatusOK, AdminViaAccessLink},
		{"vip link is not admin", []*http.Cookie{{Name: AccessSessionCookie, Value: "good-vip"}}, "", http.StatusUnauthorized, ""},
		{"nothing", nil, "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var principal AdminPrincipal
			h := m.Handler(okHandler(t, func(r *http.Request) { principal = GetAdminPrincipal(r.Context()) }))

			req := httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil)
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.principal, principal)
		})
	}
}

func TestSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, AccessSessionCookie, "tok", "/", 2*time.Hour, true)
	ClearSessionCookie(rec, AdminSessionCookie, "/")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "tok", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 7200, cookies[0].MaxAge)
	assert.Equal(t, -1, cookies[1].MaxAge)
}
