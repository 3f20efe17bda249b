package handler

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/audit"
	apperrors "github.com/vipclub/access-server/internal/errors"
	"github.com/vipclub/access-server/internal/httputil"
	"github.com/vipclub/access-server/internal/middleware"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/service"
)

// TokenHandler serves the original one-hour admin token endpoints.
type TokenHandler struct {
	accessService *service.AccessService
	isProduction  bool
}

func NewTokenHandler(accessService *service.AccessService, isProduction bool) *TokenHandler {
	return &TokenHandler{accessService: accessService, isProduction: isProduction}
}

// GenerateToken issues a single-use admin token valid for one hour.
func (h *TokenHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	issued, err := h.accessService.IssueAdminToken(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to generate admin token")
		writeError(w, http.StatusInternalServerError, "Failed to create access token")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventGrantIssue,
		GrantID:    issued.Grant.ID,
		TargetPage: string(issued.Grant.TargetPage),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"accessLink": issued.AccessLink,
		"token":      issued.Grant.Token,
		"expiresAt":  formatTime(issued.Grant.ExpiresAt),
	})
}

// ValidateToken redeems ?token= and sets the access session cookie.
func (h *TokenHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Access token is required")
		return
	}

	result, err := h.accessService.Validate(r.Context(), token)
	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventGrantValidate,
		GrantID:    result.GrantID,
		TargetPage: string(result.TargetPage),
		Details:    map[string]interface{}{"state": string(result.State)},
	})
	if err != nil {
		// lookup failures read "Database error", consume failures "Failed to validate token"
		if apperrors.GetCode(err) == apperrors.ErrCodeDatabase {
			httputil.WriteError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, result.Message)
		return
	}

	switch result.State {
	case model.ValidationInvalid:
		writeError(w, http.StatusNotFound, result.Message)
		return
	case model.ValidationUsed:
		httputil.WriteError(w, apperrors.TokenUsed())
		return
	case model.ValidationExpired:
		httputil.WriteError(w, apperrors.TokenExpired())
		return
	}

	if _, ok := startSession(w, h.accessService, result, h.isProduction); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"message": result.Message,
	})
}

// startSession signs a session for a valid redemption and sets it as a cookie.
// It writes a 500 and returns false when signing fails.
func startSession(w http.ResponseWriter, access *service.AccessService, result *service.ValidationResult, secure bool) (string, bool) {
	sessionToken, _, err := access.NewSession(result)
	if err != nil {
		log.Error().Err(err).Str("grantId", result.GrantID).Msg("failed to sign access session")
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return "", false
	}
	middleware.SetSessionCookie(w, middleware.AccessSessionCookie, sessionToken, "/", access.SessionTTL(), secure)
	return sessionToken, true
}
