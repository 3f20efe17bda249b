package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vipclub/access-server/internal/audit"
	apperrors "github.com/vipclub/access-server/internal/errors"
	"github.com/vipclub/access-server/internal/httputil"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/service"
)

type contextKey string

func GetAccessSession(ctx context.Context) *service.AccessSession {
	if session, ok := ctx.Value(AccessSessionContextKey).(*service.AccessSession); ok {
		return session
	}
	return nil
}

// AccessGate admits requests carrying an access session for one page.
type AccessGate struct {
	access AccessSessionVerifier
	page   model.TargetPage
}

func NewAccessGate(access AccessSessionVerifier, page model.TargetPage) *AccessGate {
	return &AccessGate{access: access, page: page}
}

func (g *AccessGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := AccessTokenFromRequest(r)
		session, err := g.access.VerifySession(r.Context(), token, g.page)
		if err != nil {
			if token != "" {
				audit.LogFromRequest(r, audit.Event{
					Type:       audit.EventSessionRejected,
					TargetPage: string(g.page),
					Details:    map[string]interface{}{"reason": string(apperrors.GetCode(err))},
				})
			}
			httputil.WriteError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), AccessSessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessTokenFromRequest prefers the session cookie, then a bearer token.
func AccessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AccessSessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
