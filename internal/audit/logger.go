package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventLoginSuccess    EventType = "login_success"
	EventLoginFailure    EventType = "login_failure"
	EventLogout          EventType = "logout"
	EventGrantIssue      EventType = "grant_issue"
	EventGrantValidate   EventType = "grant_validate"
	EventGrantRevoke     EventType = "grant_revoke"
	EventGrantDelete     EventType = "grant_delete"
	EventSessionRejected EventType = "session_rejected"
	EventMemberCreate    EventType = "member_create"
	EventMemberUpdate    EventType = "member_update"
	EventMemberDelete    EventType = "member_delete"
	EventUpload          EventType = "upload"
	EventRateLimitExceed EventType = "rate_limit_exceeded"
	EventCSRFFailure     EventType = "csrf_failure"
	EventAuthFailure     EventType = "auth_failure"
)

type Event struct {
	Type       EventType
	GrantID    string
	TargetPage string
	IP         string
	UserAgent  string
	Details    map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	fields := logger.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now())

	if event.GrantID != "" {
		fields = fields.Str("grant_id", event.GrantID)
	}
	if event.TargetPage != "" {
		fields = fields.Str("target_page", event.TargetPage)
	}
	if event.IP != "" {
		fields = fields.Str("ip", event.IP)
	}
	if event.UserAgent != "" {
		fields = fields.Str("user_agent", event.UserAgent)
	}
	scoped := fields.Logger()

	logEvent := scoped.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
