package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/auth"
	"github.com/vipclub/access-server/internal/config"
	apperrors "github.com/vipclub/access-server/internal/errors"
	"github.com/vipclub/access-server/internal/metrics"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/repository"
	"github.com/vipclub/access-server/internal/util"
)

const (
	msgTokenValid    = "Access token is valid"
	msgTokenInvalid  = "Invalid access token"
	msgTokenUsed     = "Access token has already been used"
	msgTokenExpired  = "Access token has expired"
	msgTokenMissing  = "No access token provided."
	msgStoreFailure  = "Unable to validate access token. Please try again."
	accessLinkFormat = "%s/access?token=%s"
)

// RevocationList records grants whose outstanding sessions must stop working.
type RevocationList interface {
	RevokeGrant(ctx context.Context, grantID string, ttl time.Duration) error
	IsGrantRevoked(ctx context.Context, grantID string) (bool, error)
}

// IssueParams is the issuer policy for a new access link.
type IssueParams struct {
	TargetPage      model.TargetPage `json:"targetPage"`
	Permanent       bool             `json:"permanent"`
	DurationMinutes int              `json:"durationMinutes"`
	AllowShare      bool             `json:"allowShare"`
}

// IssuedGrant is a newly stored grant plus its shareable link.
type IssuedGrant struct {
	Grant      *model.AccessGrant
	AccessLink string
}

// ValidationResult is the outcome of redeeming a token.
type ValidationResult struct {
	State      model.ValidationState
	Message    string
	GrantID    string
	TargetPage model.TargetPage
}

// GrantView is a grant as shown in the admin list.
type GrantView struct {
	model.AccessGrant
	Status        model.GrantStatus `json:"status"`
	TimeRemaining string            `json:"timeRemaining"`
	AccessLink    string            `json:"accessLink"`
}

// GrantFilter narrows the admin list. Zero values match everything.
type GrantFilter struct {
	Status     model.GrantStatus
	TargetPage model.TargetPage
}

type GrantStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Used    int `json:"used"`
	Expired int `json:"expired"`
}

// AccessSession is a verified access session.
type AccessSession struct {
	GrantID    string           `json:"grantId"`
	TargetPage model.TargetPage `json:"targetPage"`
	ExpiresAt  time.Time        `json:"expiresAt"`
}

// AccessService issues, redeems and manages access links.
type AccessService struct {
	grantRepo repository.AccessGrantRepository
	revoked   RevocationList
	sessions  *auth.SessionTokenManager
	baseURL   string
	activity  ActivityPublisher
	now       func() time.Time
}

func NewAccessService(
	grantRepo repository.AccessGrantRepository,
	revoked RevocationList,
	sessions *auth.SessionTokenManager,
	baseURL string,
) *AccessService {
	return &AccessService{
		grantRepo: grantRepo,
		revoked:   revoked,
		sessions:  sessions,
		baseURL:   baseURL,
		now:       time.Now,
	}
}

// WithClock replaces the time source used for expiry decisions.
func (s *AccessService) WithClock(now func() time.Time) *AccessService {
	s.now = now
	return s
}

func (s *AccessService) accessLink(token string) string {
	return fmt.Sprintf(accessLinkFormat, s.baseURL, token)
}

// Issue stores a new grant according to params.
func (s *AccessService) Issue(ctx context.Context, params IssueParams) (*IssuedGrant, error) {
	if !params.TargetPage.IsValid() {
		return nil, apperrors.InvalidInput("targetPage", "must be one of admin, member, vip")
	}

	var expiresAt *time.Time
	if !params.Permanent {
		if params.DurationMinutes <= 0 {
			return nil, apperrors.InvalidInput("durationMinutes", "must be positive for non-permanent links")
		}
		t := s.now().Add(time.Duration(params.DurationMinutes) * time.Minute)
		expiresAt = &t
	}

	token := util.NewGrantToken()
	grant, err := s.grantRepo.Create(ctx, model.CreateAccessGrantParams{
		Token:       token,
		TargetPage:  params.TargetPage,
		ExpiresAt:   expiresAt,
		IsPermanent: params.Permanent,
		AllowShare:  params.AllowShare,
	})
	if err != nil {
		log.Error().Err(err).Str("targetPage", string(params.TargetPage)).Msg("failed to create access grant")
		return nil, apperrors.Database(err)
	}

	metrics.GrantsIssued.WithLabelValues(string(grant.TargetPage), strconv.FormatBool(grant.IsPermanent)).Inc()
	log.Info().
		Str("grantId", grant.ID).
		Str("token", util.MaskToken(token)).
		Str("targetPage", string(grant.TargetPage)).
		Bool("permanent", grant.IsPermanent).
		Bool("allowShare", grant.AllowShare).
		Msg("access grant issued")

	s.publish(ctx, ActivityGrantIssued, GrantActivity{GrantID: grant.ID, TargetPage: grant.TargetPage})
	return &IssuedGrant{Grant: grant, AccessLink: s.accessLink(token)}, nil
}

// IssueAdminToken issues the fixed one-hour, single-use admin link.
func (s *AccessService) IssueAdminToken(ctx context.Context) (*IssuedGrant, error) {
	return s.Issue(ctx, IssueParams{
		TargetPage:      model.TargetPageAdmin,
		DurationMinutes: int(config.AdminTokenTTL / time.Minute),
	})
}

// Validate redeems token. A non-nil error is always paired with an invalid result.
func (s *AccessService) Validate(ctx context.Context, token string) (*ValidationResult, error) {
	if token == "" {
		metrics.Validations.WithLabelValues(string(model.ValidationInvalid)).Inc()
		return &ValidationResult{State: model.ValidationInvalid, Message: msgTokenMissing},
			apperrors.MissingRequired("token")
	}

	result, err := s.validate(ctx, token)
	metrics.Validations.WithLabelValues(string(result.State)).Inc()
	if result.GrantID != "" {
		s.publish(ctx, ActivityGrantValidated, GrantActivity{
			GrantID:    result.GrantID,
			TargetPage: result.TargetPage,
			State:      result.State,
		})
	}
	return result, err
}

func (s *AccessService) validate(ctx context.Context, token string) (*ValidationResult, error) {
	grant, err := s.grantRepo.FindByToken(ctx, token)
	if err != nil {
		log.Error().Err(err).Str("token", util.MaskToken(token)).Msg("failed to look up access grant")
		return &ValidationResult{State: model.ValidationInvalid, Message: msgStoreFailure}, apperrors.Database(err)
	}
	if grant == nil {
		return &ValidationResult{State: model.ValidationInvalid, Message: msgTokenInvalid}, nil
	}

	switch grant.StateAt(s.now()) {
	case model.ValidationUsed:
		return &ValidationResult{State: model.ValidationUsed, Message: msgTokenUsed, GrantID: grant.ID}, nil
	case model.ValidationExpired:
		return &ValidationResult{State: model.ValidationExpired, Message: msgTokenExpired, GrantID: grant.ID}, nil
	}

	if !grant.AllowShare {
		consumed, err := s.grantRepo.MarkUsed(ctx, grant.ID)
		if err != nil {
			log.Error().Err(err).Str("grantId", grant.ID).Msg("failed to consume access grant")
			return &ValidationResult{State: model.ValidationInvalid, Message: msgStoreFailure},
				apperrors.Wrap(apperrors.ErrCodeDatabase, "Failed to validate token", err)
		}
		if !consumed {
			log.Warn().Str("grantId", grant.ID).Msg("access grant consumed by a concurrent redemption")
			return &ValidationResult{State: model.ValidationUsed, Message: msgTokenUsed, GrantID: grant.ID}, nil
		}
	}

	log.Info().
		Str("grantId", grant.ID).
		Str("targetPage", string(grant.TargetPage)).
		Bool("allowShare", grant.AllowShare).
		Msg("access grant redeemed")

	return &ValidationResult{
		State:      model.ValidationValid,
		Message:    msgTokenValid,
		GrantID:    grant.ID,
		TargetPage: grant.TargetPage,
	}, nil
}

// NewSession signs a session for a valid redemption.
func (s *AccessService) NewSession(result *ValidationResult) (string, time.Time, error) {
	if result == nil || result.State != model.ValidationValid {
		return "", time.Time{}, errors.New("session requires a valid redemption")
	}
	return s.sessions.Issue(result.GrantID, result.TargetPage)
}

// VerifySession checks a session token for page. Every call re-reads the grant.
func (s *AccessService) VerifySession(ctx context.Context, token string, page model.TargetPage) (*AccessSession, error) {
	return s.verifySession(ctx, token, &page)
}

// CurrentSession verifies token for whichever page it was issued for.
func (s *AccessService) CurrentSession(ctx context.Context, token string) (*AccessSession, error) {
	return s.verifySession(ctx, token, nil)
}

func (s *AccessService) verifySession(ctx context.Context, token string, page *model.TargetPage) (*AccessSession, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("Access session required")
	}

	claims, err := s.sessions.Parse(token)
	if err != nil {
		metrics.SessionRejections.WithLabelValues("invalid").Inc()
		return nil, apperrors.Unauthorized("Access session is invalid or expired")
	}
	if page != nil && claims.TargetPage != *page {
		metrics.SessionRejections.WithLabelValues("target_mismatch").Inc()
		return nil, apperrors.TargetMismatch()
	}

	revoked, err := s.revoked.IsGrantRevoked(ctx, claims.GrantID)
	if err != nil {
		log.Error().Err(err).Str("grantId", claims.GrantID).Msg("failed to check grant revocation")
		return nil, apperrors.Internal("Unable to verify access session")
	}
	if revoked {
		metrics.SessionRejections.WithLabelValues("revoked").Inc()
		return nil, apperrors.Unauthorized("Access session has been revoked")
	}

	if !util.IsValidUUID(claims.GrantID) {
		return nil, apperrors.Unauthorized("Access session is invalid or expired")
	}
	grant, err := s.grantRepo.FindByID(ctx, claims.GrantID)
	if err != nil {
		log.Error().Err(err).Str("grantId", claims.GrantID).Msg("failed to load grant for session")
		return nil, apperrors.Database(err)
	}
	if grant == nil {
		metrics.SessionRejections.WithLabelValues("deleted").Inc()
		return nil, apperrors.Unauthorized("Access session is no longer valid")
	}
	if grant.IsExpiredAt(s.now()) {
		metrics.SessionRejections.WithLabelValues("expired").Inc()
		return nil, apperrors.Unauthorized("Access session is invalid or expired")
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return &AccessSession{GrantID: claims.GrantID, TargetPage: claims.TargetPage, ExpiresAt: expiresAt}, nil
}

// SessionTTL is the lifetime of a freshly issued session.
func (s *AccessService) SessionTTL() time.Duration {
	return s.sessions.TTL()
}

// List returns grants newest first with derived status.
func (s *AccessService) List(ctx context.Context, filter GrantFilter) ([]GrantView, error) {
	if filter.TargetPage != "" && !filter.TargetPage.IsValid() {
		return nil, apperrors.InvalidInput("targetPage", "must be one of admin, member, vip")
	}
	switch filter.Status {
	case "", model.GrantStatusActive, model.GrantStatusUsed, model.GrantStatusExpired:
	default:
		return nil, apperrors.InvalidInput("status", "must be one of Active, Used, Expired")
	}

	grants, err := s.grantRepo.List(ctx, filter.TargetPage)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	now := s.now()
	views := make([]GrantView, 0, len(grants))
	for _, g := range grants {
		status := g.StatusAt(now)
		if filter.Status != "" && status != filter.Status {
			continue
		}
		views = append(views, GrantView{
			AccessGrant:   g,
			Status:        status,
			TimeRemaining: TimeRemaining(g.ExpiresAt, now),
			AccessLink:    s.accessLink(g.Token),
		})
	}
	return views, nil
}

// Stats counts grants by display status.
func (s *AccessService) Stats(ctx context.Context) (*GrantStats, error) {
	grants, err := s.grantRepo.List(ctx, "")
	if err != nil {
		return nil, apperrors.Database(err)
	}

	now := s.now()
	stats := &GrantStats{Total: len(grants)}
	for _, g := range grants {
		switch g.StatusAt(now) {
		case model.GrantStatusActive:
			stats.Active++
		case model.GrantStatusUsed:
			stats.Used++
		case model.GrantStatusExpired:
			stats.Expired++
		}
	}
	return stats, nil
}

// Revoke locks a grant and ends sessions minted from it. Revoking twice is not an error.
func (s *AccessService) Revoke(ctx context.Context, id string) (*model.AccessGrant, error) {
	if !util.IsValidUUID(id) {
		return nil, apperrors.NotFound("Access link")
	}

	// Denylist before the write; a failure leaves the grant untouched.
	if err := s.revoked.RevokeGrant(ctx, id, s.sessions.TTL()); err != nil {
		log.Error().Err(err).Str("grantId", id).Msg("failed to denylist grant")
		return nil, apperrors.Internal("Failed to end active sessions for access link")
	}

	ok, err := s.grantRepo.Revoke(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !ok {
		return nil, apperrors.NotFound("Access link")
	}

	grant, err := s.grantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if grant == nil {
		return nil, apperrors.NotFound("Access link")
	}

	metrics.GrantsRevoked.Inc()
	log.Info().Str("grantId", id).Msg("access grant revoked")
	s.publish(ctx, ActivityGrantRevoked, GrantActivity{GrantID: id, TargetPage: grant.TargetPage})
	return grant, nil
}

// Delete removes a grant. Its token then validates as invalid.
func (s *AccessService) Delete(ctx context.Context, id string) error {
	if !util.IsValidUUID(id) {
		return apperrors.NotFound("Access link")
	}

	ok, err := s.grantRepo.Delete(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if !ok {
		return apperrors.NotFound("Access link")
	}

	log.Info().Str("grantId", id).Msg("access grant deleted")
	s.publish(ctx, ActivityGrantDeleted, GrantActivity{GrantID: id})
	return nil
}

// TimeRemaining renders the time left until expiresAt for the admin list.
func TimeRemaining(expiresAt *time.Time, now time.Time) string {
	if expiresAt == nil {
		return "No expiry"
	}
	diff := expiresAt.Sub(now)
	if diff <= 0 {
		return "Expired"
	}

	minutes := int(diff / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
