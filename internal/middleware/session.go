package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/vipclub/access-server/internal/audit"
	"github.com/vipclub/access-server/internal/config"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/service"
)

const (
	AdminSessionCookie  = "admin_session"
	AccessSessionCookie = "vip_access"
	SessionMaxAge       = config.AdminSessionTTL
)

const (
	AdminPrincipalContextKey contextKey = "adminPrincipal"
	AccessSessionContextKey  contextKey = "accessSession"
)

// AdminPrincipal says how an admin request was authenticated.
type AdminPrincipal string

const (
	AdminViaPassword   AdminPrincipal = "password"
	AdminViaAccessLink AdminPrincipal = "access_link"
)

func GetAdminPrincipal(ctx context.Context) AdminPrincipal {
	if p, ok := ctx.Value(AdminPrincipalContextKey).(AdminPrincipal); ok {
		return p
	}
	return ""
}

type AdminSessionValidator interface {
	ValidateSession(ctx context.Context, token string) bool
}

type AccessSessionVerifier interface {
	VerifySession(ctx context.Context, token string, page model.TargetPage) (*service.AccessSession, error)
}

// AdminSessionMiddleware admits a password session cookie or an access session for the admin page.
type AdminSessionMiddleware struct {
	admins AdminSessionValidator
	access AccessSessionVerifier
}

func NewAdminSessionMiddleware(admins AdminSessionValidator, access AccessSessionVerifier) *AdminSessionMiddleware {
	return &AdminSessionMiddleware{admins: admins, access: access}
}

func (m *AdminSessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(AdminSessionCookie); err == nil && cookie.Value != "" {
			if m.admins.ValidateSession(r.Context(), cookie.Value) {
				ctx := context.WithValue(r.Context(), AdminPrincipalContextKey, AdminViaPassword)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		if token := AccessTokenFromRequest(r); token != "" {
			session, err := m.access.VerifySession(r.Context(), token, model.TargetPageAdmin)
			if err == nil {
				ctx := context.WithValue(r.Context(), AdminPrincipalContextKey, AdminViaAccessLink)
				ctx = context.WithValue(ctx, AccessSessionContextKey, session)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventAuthFailure,
			Details: map[string]interface{}{"path": r.URL.Path},
		})
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	})
}

func SetSessionCookie(w http.ResponseWriter, name, token, path string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     path,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   path,
		MaxAge: -1,
	})
}
