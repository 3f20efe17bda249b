package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/database"
	apperrors "github.com/vipclub/access-server/internal/errors"
	"github.com/vipclub/access-server/internal/model"
	"github.com/vipclub/access-server/internal/repository"
	"github.com/vipclub/access-server/internal/util"
)

const (
	maxNameLength     = 100
	maxBioLength      = 1000
	maxLocationLength = 100
)

// TxRunner runs fn inside a single database transaction.
type TxRunner func(ctx context.Context, fn database.TxFunc) error

// MemberInput is the admin form payload for a member profile and its album.
type MemberInput struct {
	Name             string           `json:"name"`
	Bio              *string          `json:"bio"`
	Location         *string          `json:"location"`
	MemberType       model.MemberType `json:"memberType"`
	CoverImageURL    *string          `json:"coverImageUrl"`
	ShowOnMemberPage bool             `json:"showOnMemberPage"`
	ShowOnVIPPage    bool             `json:"showOnVipPage"`
	// Images replaces the album when non-nil.
	Images []string `json:"images"`
}

type MemberService struct {
	memberRepo repository.MemberRepository
	withTx     TxRunner
}

func NewMemberService(memberRepo repository.MemberRepository, withTx TxRunner) *MemberService {
	return &MemberService{memberRepo: memberRepo, withTx: withTx}
}

func (s *MemberService) List(ctx context.Context) ([]model.Member, error) {
	members, err := s.memberRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return members, nil
}

func (s *MemberService) Get(ctx context.Context, id string) (*model.MemberWithImages, error) {
	if !util.IsValidUUID(id) {
		return nil, apperrors.NotFound("Member")
	}

	member, err := s.memberRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if member == nil {
		return nil, apperrors.NotFound("Member")
	}

	withImages, err := s.attachImages(ctx, []model.Member{*member})
	if err != nil {
		return nil, err
	}
	return &withImages[0], nil
}

// Gallery lists the members shown on page, each with its album.
func (s *MemberService) Gallery(ctx context.Context, page model.TargetPage) ([]model.MemberWithImages, error) {
	if page != model.TargetPageMember && page != model.TargetPageVIP {
		return nil, apperrors.InvalidInput("page", "must be member or vip")
	}

	members, err := s.memberRepo.ListVisibleOn(ctx, page)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return s.attachImages(ctx, members)
}

func (s *MemberService) Create(ctx context.Context, input MemberInput) (*model.MemberWithImages, error) {
	params, err := validateMember(input)
	if err != nil {
		return nil, err
	}

	var created *model.Member
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.memberRepo.WithTx(tx)
		member, err := repo.Create(ctx, params)
		if err != nil {
			return err
		}
		if len(input.Images) > 0 {
			if err := repo.ReplaceImages(ctx, member.ID, input.Images); err != nil {
				return err
			}
		}
		created = member
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create member")
		return nil, apperrors.Database(err)
	}

	log.Info().Str("memberId", created.ID).Str("memberType", string(created.MemberType)).Msg("member created")
	return s.Get(ctx, created.ID)
}

func (s *MemberService) Update(ctx context.Context, id string, input MemberInput) (*model.MemberWithImages, error) {
	if !util.IsValidUUID(id) {
		return nil, apperrors.NotFound("Member")
	}
	params, err := validateMember(input)
	if err != nil {
		return nil, err
	}

	var found bool
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.memberRepo.WithTx(tx)
		member, err := repo.Update(ctx, id, params)
		if err != nil || member == nil {
			return err
		}
		found = true
		if input.Images != nil {
			return repo.ReplaceImages(ctx, id, input.Images)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("memberId", id).Msg("failed to update member")
		return nil, apperrors.Database(err)
	}
	if !found {
		return nil, apperrors.NotFound("Member")
	}

	log.Info().Str("memberId", id).Msg("member updated")
	return s.Get(ctx, id)
}

func (s *MemberService) Delete(ctx context.Context, id string) error {
	if !util.IsValidUUID(id) {
		return apperrors.NotFound("Member")
	}

	ok, err := s.memberRepo.Delete(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if !ok {
		return apperrors.NotFound("Member")
	}

	log.Info().Str("memberId", id).Msg("member deleted")
	return nil
}

func (s *MemberService) attachImages(ctx context.Context, members []model.Member) ([]model.MemberWithImages, error) {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	images, err := s.memberRepo.ListImages(ctx, ids)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	byMember := make(map[string][]model.MemberImage, len(members))
	for _, img := range images {
		byMember[img.MemberID] = append(byMember[img.MemberID], img)
	}

	out := make([]model.MemberWithImages, len(members))
	for i, m := range members {
		album := byMember[m.ID]
		if album == nil {
			album = []model.MemberImage{}
		}
		out[i] = model.MemberWithImages{Member: m, Images: album}
	}
	return out, nil
}

func validateMember(input MemberInput) (model.MemberParams, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return model.MemberParams{}, apperrors.MissingRequired("name")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return model.MemberParams{}, apperrors.InvalidInput("name", "must be at most 100 characters")
	}

	bio := trimOptional(input.Bio)
	if bio != nil && utf8.RuneCountInString(*bio) > maxBioLength {
		return model.MemberParams{}, apperrors.InvalidInput("bio", "must be at most 1000 characters")
	}

	location := trimOptional(input.Location)
	if location != nil && utf8.RuneCountInString(*location) > maxLocationLength {
		return model.MemberParams{}, apperrors.InvalidInput("location", "must be at most 100 characters")
	}

	memberType := input.MemberType
	if memberType == "" {
		memberType = model.MemberTypeMember
	}
	if !util.IsValidEnum(string(memberType), []string{string(model.MemberTypeVIP), string(model.MemberTypeMember)}) {
		return model.MemberParams{}, apperrors.InvalidInput("memberType", "must be VIP or Member")
	}

	for _, url := range input.Images {
		if strings.TrimSpace(url) == "" {
			return model.MemberParams{}, apperrors.InvalidInput("images", "must not contain empty urls")
		}
	}

	return model.MemberParams{
		Name:             name,
		Bio:              bio,
		Location:         location,
		MemberType:       memberType,
		CoverImageURL:    trimOptional(input.CoverImageURL),
		ShowOnMemberPage: input.ShowOnMemberPage,
		ShowOnVIPPage:    input.ShowOnVIPPage,
	}, nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
