package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/middleware"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/service"
)

// GalleryHandler serves the member and VIP galleries to holders of a matching access session.
type GalleryHandler struct {
	memberService *service.MemberService
	sessions      middleware.AccessSessionVerifier
}

func NewGalleryHandler(memberService *service.MemberService, sessions middleware.AccessSessionVerifier) *GalleryHandler {
	return &GalleryHandler{memberService: memberService, sessions: sessions}
}

func (h *GalleryHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(middleware.NewAccessGate(h.sessions, model.TargetPageMember).Handler).
		Get("/members", h.page(model.TargetPageMember))
	r.With(middleware.NewAccessGate(h.sessions, model.TargetPageVIP).Handler).
		Get("/vip", h.page(model.TargetPageVIP))

	return r
}

func (h *GalleryHandler) page(page model.TargetPage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		members, err := h.memberService.Gallery(r.Context(), page)
		if err != nil {
			log.Error().Err(err).Str("page", string(page)).Msg("failed to load gallery")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"items": members,
			"total": len(members),
		})
	}
}
