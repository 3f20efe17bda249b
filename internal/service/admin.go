package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/config"
	apperrors "github.com/vipclub/access-server/internal/errors"
	"github.com/vipclub/access-server/internal/metrics"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/repository"
	"github.com/vipclub/access-server/internal/util"
)

// GrantCounter is the slice of AccessService the dashboard needs.
type GrantCounter interface {
	Stats(ctx context.Context) (*GrantStats, error)
}

type AdminService struct {
	sessionRepo   repository.AdminSessionRepository
	memberRepo    repository.MemberRepository
	grants        GrantCounter
	passwordHash  string
	sessionSecret string
	now           func() time.Time
}

func NewAdminService(
	sessionRepo repository.AdminSessionRepository,
	memberRepo repository.MemberRepository,
	grants GrantCounter,
	passwordHash, sessionSecret string,
) *AdminService {
	return &AdminService{
		sessionRepo:   sessionRepo,
		memberRepo:    memberRepo,
		grants:        grants,
		passwordHash:  passwordHash,
		sessionSecret: sessionSecret,
		now:           time.Now,
	}
}

// Login returns an empty token when the password does not match.
func (s *AdminService) Login(ctx context.Context, password string) (string, error) {
	if s.passwordHash == "" || !util.CheckPasswordHash(password, s.passwordHash) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return "", nil
	}

	token, err := util.GenerateToken()
	if err != nil {
		return "", err
	}

	tokenHash := util.HmacSHA256(s.sessionSecret, token)
	expiresAt := s.now().Add(config.AdminSessionTTL)

	_, err = s.sessionRepo.Create(ctx, model.CreateAdminSessionParams{
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", apperrors.Database(err)
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return token, nil
}

func (s *AdminService) Logout(ctx context.Context, token string) error {
	tokenHash := util.HmacSHA256(s.sessionSecret, token)
	return s.sessionRepo.DeleteByTokenHash(ctx, tokenHash)
}

func (s *AdminService) ValidateSession(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	tokenHash := util.HmacSHA256(s.sessionSecret, token)
	session, err := s.sessionRepo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		log.Error().Err(err).Msg("failed to look up admin session")
		return false
	}
	return session != nil
}

// Stats is the admin dashboard summary.
type Stats struct {
	model.MemberStats
	AccessLinks GrantStats `json:"accessLinks"`
}

func (s *AdminService) GetStats(ctx context.Context) (*Stats, error) {
	memberStats, err := s.memberRepo.Stats(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	grantStats, err := s.grants.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{MemberStats: *memberStats, AccessLinks: *grantStats}, nil
}
