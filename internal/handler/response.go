package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vipclub/access-server/internal/httputil"
	"github.com/vipclub/access-server/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatIssuedGrant(issued *service.IssuedGrant) map[string]any {
	g := issued.Grant
	return map[string]any{
		"id":          g.ID,
		"token":       g.Token,
		"targetPage":  g.TargetPage,
		"createdAt":   g.CreatedAt.Format(time.RFC3339),
		"expiresAt":   formatTime(g.ExpiresAt),
		"isPermanent": g.IsPermanent,
		"isUsed":      g.IsUsed,
		"allowShare":  g.AllowShare,
		"accessLink":  issued.AccessLink,
	}
}
