package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vipclub/access-server/internal/database"
	"github.com/vipclub/access-server/internal/model"
)

type MemberRepository interface {
	List(ctx context.Context) ([]model.Member, error)
	ListVisibleOn(ctx context.Context, page model.TargetPage) ([]model.Member, error)
	FindByID(ctx context.Context, id string) (*model.Member, error)
	Create(ctx context.Context, params model.MemberParams) (*model.Member, error)
	Update(ctx context.Context, id string, params model.MemberParams) (*model.Member, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListImages(ctx context.Context, memberIDs []string) ([]model.MemberImage, error)
	// ReplaceImages drops the member's album and inserts urls in display order.
	ReplaceImages(ctx context.Context, memberID string, urls []string) error
	Stats(ctx context.Context) (*model.MemberStats, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) MemberRepository
}

type memberRepo struct {
	db database.DBTX
}

func NewMemberRepository(db *sqlx.DB) MemberRepository {
	return &memberRepo{db: db}
}

func (r *memberRepo) WithTx(tx *sqlx.Tx) MemberRepository {
	return &memberRepo{db: tx}
}

func (r *memberRepo) List(ctx context.Context) ([]model.Member, error) {
	members := []model.Member{}
	err := r.db.SelectContext(ctx, &members, `
		SELECT * FROM members ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// ListVisibleOn returns the members flagged for the member or VIP gallery.
func (r *memberRepo) ListVisibleOn(ctx context.Context, page model.TargetPage) ([]model.Member, error) {
	column := "show_on_member_page"
	if page == model.TargetPageVIP {
		column = "show_on_vip_page"
	}

	members := []model.Member{}
	err := r.db.SelectContext(ctx, &members, `
		SELECT * FROM members WHERE `+column+` = TRUE ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *memberRepo) FindByID(ctx context.Context, id string) (*model.Member, error) {
	var member model.Member
	err := r.db.GetContext(ctx, &member, `SELECT * FROM members WHERE id = $1`, id)
	return HandleNotFound(&member, err)
}

func (r *memberRepo) Create(ctx context.Context, params model.MemberParams) (*model.Member, error) {
	var member model.Member
	err := r.db.GetContext(ctx, &member, `
		INSERT INTO members (name, bio, location, member_type, cover_image_url, show_on_member_page, show_on_vip_page)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.Name, params.Bio, params.Location, params.MemberType, params.CoverImageURL,
		params.ShowOnMemberPage, params.ShowOnVIPPage)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepo) Update(ctx context.Context, id string, params model.MemberParams) (*model.Member, error) {
	var member model.Member
	err := r.db.GetContext(ctx, &member, `
		UPDATE members
		SET name = $2, bio = $3, location = $4, member_type = $5, cover_image_url = $6,
		    show_on_member_page = $7, show_on_vip_page = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, params.Name, params.Bio, params.Location, params.MemberType, params.CoverImageURL,
		params.ShowOnMemberPage, params.ShowOnVIPPage)
	return HandleNotFound(&member, err)
}

func (r *memberRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *memberRepo) ListImages(ctx context.Context, memberIDs []string) ([]model.MemberImage, error) {
	images := []model.MemberImage{}
	if len(memberIDs) == 0 {
		return images, nil
	}
	err := r.db.SelectContext(ctx, &images, `
		SELECT * FROM member_images
		WHERE member_id = ANY($1::uuid[])
		ORDER BY member_id, display_order
	`, pq.Array(memberIDs))
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *memberRepo) ReplaceImages(ctx context.Context, memberID string, urls []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM member_images WHERE member_id = $1`, memberID); err != nil {
		return err
	}
	for i, url := range urls {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO member_images (member_id, image_url, display_order)
			VALUES ($1, $2, $3)
		`, memberID, url, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *memberRepo) Stats(ctx context.Context) (*model.MemberStats, error) {
	var stats model.MemberStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE member_type = 'VIP') AS vip,
			COUNT(*) FILTER (WHERE member_type <> 'VIP') AS regular,
			COUNT(DISTINCT NULLIF(location, '')) AS locations
		FROM members
	`)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
