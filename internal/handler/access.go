package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vipclub/access-server/internal/audit"
	apperrors "github.com/vipclub/access-server/internal/errors"
	"github.com/vipclub/access-server/internal/httputil"
	"github.com/vipclub/access-server/internal/middleware"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/service"
)

// AccessHandler redeems access links for the SPA and reports the current session.
type AccessHandler struct {
	accessService *service.AccessService
	isProduction  bool
}

func NewAccessHandler(accessService *service.AccessService, isProduction bool) *AccessHandler {
	return &AccessHandler{accessService: accessService, isProduction: isProduction}
}

// Routes is mounted at /api/access. Validate is rate limited by the caller.
func (h *AccessHandler) Routes(validateLimiter func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.With(validateLimiter).Post("/validate", h.Validate)
	r.Get("/session", h.Session)
	r.Delete("/session", h.EndSession)

	return r
}

// Validate answers with the redemption state in the body for every outcome but a store failure.
func (h *AccessHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.accessService.Validate(r.Context(), req.Token)
	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventGrantValidate,
		GrantID:    result.GrantID,
		TargetPage: string(result.TargetPage),
		Details:    map[string]interface{}{"state": string(result.State)},
	})

	resp := map[string]any{
		"state":   result.State,
		"message": result.Message,
	}
	if err != nil {
		status := http.StatusInternalServerError
		if apperrors.GetCode(err) == apperrors.ErrCodeMissingRequired {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, resp)
		return
	}

	if result.State == model.ValidationValid {
		sessionToken, ok := startSession(w, h.accessService, result, h.isProduction)
		if !ok {
			return
		}
		resp["targetPage"] = result.TargetPage
		resp["sessionToken"] = sessionToken
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AccessHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, err := h.accessService.CurrentSession(r.Context(), middleware.AccessTokenFromRequest(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AccessHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w, middleware.AccessSessionCookie, "/")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
