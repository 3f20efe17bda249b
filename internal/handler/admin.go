package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/audit"
	"github.com/vipclub/access-server/internal/config"
	apperrors "github.com/vipclub/access-server/internal/errors"
	"github.com/vipclub/access-server/internal/httputil"
	"github.com/vipclub/access-server/internal/middleware"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/service"
)

// adminCookiePath covers /admin and the legacy /api/generate-token endpoint.
const adminCookiePath = "/"

type AdminHandler struct {
	adminService      *service.AdminService
	accessService     *service.AccessService
	memberService     *service.MemberService
	uploadService     *service.UploadService
	sessionMiddleware func(http.Handler) http.Handler
	loginRateLimiter  *middleware.LoginRateLimiter
	isProduction      bool
}

func NewAdminHandler(
	adminService *service.AdminService,
	accessService *service.AccessService,
	memberService *service.MemberService,
	uploadService *service.UploadService,
	sessionMiddleware func(http.Handler) http.Handler,
	isProduction bool,
) *AdminHandler {
	return &AdminHandler{
		adminService:      adminService,
		accessService:     accessService,
		memberService:     memberService,
		uploadService:     uploadService,
		sessionMiddleware: sessionMiddleware,
		loginRateLimiter:  middleware.NewLoginRateLimiter(),
		isProduction:      isProduction,
	}
}

// Routes is mounted at /admin.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	jsonLimit := middleware.NewBodyLimitMiddleware(middleware.DefaultMaxBodySize).Handler
	uploadLimit := middleware.NewBodyLimitMiddleware(config.MaxUploadBodySize).Handler

	r.With(jsonLimit, h.loginRateLimiter.Handler).Post("/api/login", h.Login)
	r.Post("/api/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMiddleware)

		r.With(uploadLimit).Post("/api/uploads", h.Upload)

		r.Group(func(r chi.Router) {
			r.Use(jsonLimit)

			r.Get("/api/session", h.Session)
			r.Get("/api/stats", h.Stats)

			// Access links
			r.Get("/api/access-links", h.ListAccessLinks)
			r.Post("/api/access-links", h.CreateAccessLink)
			r.Post("/api/access-links/{id}/revoke", h.RevokeAccessLink)
			r.Delete("/api/access-links/{id}", h.DeleteAccessLink)

			// Members
			r.Get("/api/members", h.ListMembers)
			r.Post("/api/members", h.CreateMember)
			r.Get("/api/members/{id}", h.GetMember)
			r.Put("/api/members/{id}", h.UpdateMember)
			r.Delete("/api/members/{id}", h.DeleteMember)
		})
	})

	return r
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	token, err := h.adminService.Login(r.Context(), req.Password)
	if err != nil {
		log.Error().Err(err).Msg("admin login error")
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	if token == "" {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginFailure})
		writeError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginSuccess})
	middleware.SetSessionCookie(w, middleware.AdminSessionCookie, token, adminCookiePath, config.AdminSessionTTL, h.isProduction)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.AdminSessionCookie)
	if err == nil && cookie.Value != "" {
		if err := h.adminService.Logout(r.Context(), cookie.Value); err != nil {
			log.Warn().Err(err).Msg("failed to delete admin session")
		}
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout})
	}

	middleware.ClearSessionCookie(w, middleware.AdminSessionCookie, adminCookiePath)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"via":           middleware.GetAdminPrincipal(r.Context()),
	})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.GetStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get stats")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) ListAccessLinks(w http.ResponseWriter, r *http.Request) {
	filter := service.GrantFilter{
		Status:     model.GrantStatus(r.URL.Query().Get("status")),
		TargetPage: model.TargetPage(r.URL.Query().Get("targetPage")),
	}

	grants, err := h.accessService.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "failed to list access links")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": grants,
		"total": len(grants),
	})
}

func (h *AdminHandler) CreateAccessLink(w http.ResponseWriter, r *http.Request) {
	var params service.IssueParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	issued, err := h.accessService.Issue(r.Context(), params)
	if err != nil {
		h.writeServiceError(w, err, "failed to issue access link")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventGrantIssue,
		GrantID:    issued.Grant.ID,
		TargetPage: string(issued.Grant.TargetPage),
		Details: map[string]interface{}{
			"permanent":  issued.Grant.IsPermanent,
			"allowShare": issued.Grant.AllowShare,
		},
	})

	writeJSON(w, http.StatusCreated, formatIssuedGrant(issued))
}

func (h *AdminHandler) RevokeAccessLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	grant, err := h.accessService.Revoke(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to revoke access link")
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventGrantRevoke, GrantID: id, TargetPage: string(grant.TargetPage)})
	writeJSON(w, http.StatusOK, grant)
}

func (h *AdminHandler) DeleteAccessLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.accessService.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete access link")
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventGrantDelete, GrantID: id})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.memberService.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to list members")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": members,
		"total": len(members),
	})
}

func (h *AdminHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.memberService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "failed to get member")
		return
	}

	writeJSON(w, http.StatusOK, member)
}

func (h *AdminHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var input service.MemberInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	member, err := h.memberService.Create(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err, "failed to create member")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventMemberCreate,
		Details: map[string]interface{}{"memberId": member.ID},
	})
	writeJSON(w, http.StatusCreated, member)
}

func (h *AdminHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input service.MemberInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	member, err := h.memberService.Update(r.Context(), id, input)
	if err != nil {
		h.writeServiceError(w, err, "failed to update member")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventMemberUpdate,
		Details: map[string]interface{}{"memberId": id},
	})
	writeJSON(w, http.StatusOK, member)
}

func (h *AdminHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.memberService.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete member")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventMemberDelete,
		Details: map[string]interface{}{"memberId": id},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.MaxUploadFileSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, err := h.uploadService.Save(r.MultipartForm.File["files"])
	if err != nil {
		h.writeServiceError(w, err, "failed to store uploads")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventUpload,
		Details: map[string]interface{}{"count": len(files)},
	})
	writeJSON(w, http.StatusCreated, map[string]any{"files": files})
}

// writeServiceError logs unexpected failures and maps service errors to responses.
func (h *AdminHandler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	if code := apperrors.GetCode(err); code == apperrors.ErrCodeDatabase || code == apperrors.ErrCodeInternal {
		log.Error().Err(err).Msg(msg)
	}
	httputil.WriteError(w, err)
}
