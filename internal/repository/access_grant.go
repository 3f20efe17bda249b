package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vipclub/access-server/internal/model"
)

// AccessGrantRepository handles access grant data operations
type AccessGrantRepository interface {
	Create(ctx context.Context, params model.CreateAccessGrantParams) (*model.AccessGrant, error)
	FindByToken(ctx context.Context, token string) (*model.AccessGrant, error)
	FindByID(ctx context.Context, id string) (*model.AccessGrant, error)
	List(ctx context.Context, targetPage model.TargetPage) ([]model.AccessGrant, error)
	// MarkUsed flips is_used only if it is still false and reports whether this call did it.
	MarkUsed(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type accessGrantRepo struct {
	db *sqlx.DB
}

// NewAccessGrantRepository creates a new access grant repository
func NewAccessGrantRepository(db *sqlx.DB) AccessGrantRepository {
	return &accessGrantRepo{db: db}
}

func (r *accessGrantRepo) Create(ctx context.Context, params model.CreateAccessGrantParams) (*model.AccessGrant, error) {
	var grant model.AccessGrant
	err := r.db.GetContext(ctx, &grant, `
		INSERT INTO access_grants (token, target_page, expires_at, is_permanent, allow_share)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.Token, params.TargetPage, params.ExpiresAt, params.IsPermanent, params.AllowShare)
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// FindByToken returns the grant regardless of state; callers evaluate used/expired themselves.
func (r *accessGrantRepo) FindByToken(ctx context.Context, token string) (*model.AccessGrant, error) {
	var grant model.AccessGrant
	err := r.db.GetContext(ctx, &grant, `
		SELECT * FROM access_grants WHERE token = $1
	`, token)
	return HandleNotFound(&grant, err)
}

func (r *accessGrantRepo) FindByID(ctx context.Context, id string) (*model.AccessGrant, error) {
	var grant model.AccessGrant
	err := r.db.GetContext(ctx, &grant, `
		SELECT * FROM access_grants WHERE id = $1
	`, id)
	return HandleNotFound(&grant, err)
}

// List returns grants newest first. An empty targetPage lists every target.
func (r *accessGrantRepo) List(ctx context.Context, targetPage model.TargetPage) ([]model.AccessGrant, error) {
	grants := []model.AccessGrant{}
	err := r.db.SelectContext(ctx, &grants, `
		SELECT * FROM access_grants
		WHERE ($1::text = '' OR target_page = $1::text)
		ORDER BY created_at DESC
	`, string(targetPage))
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *accessGrantRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE access_grants
		SET is_used = TRUE
		WHERE id = $1 AND is_used = FALSE
	`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Revoke locks the grant for good: it is marked used and loses sharing.
func (r *accessGrantRepo) Revoke(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE access_grants
		SET is_used = TRUE, allow_share = FALSE
		WHERE id = $1
	`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *accessGrantRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM access_grants WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpiredBefore purges non-permanent grants that expired before cutoff.
func (r *accessGrantRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM access_grants
		WHERE is_permanent = FALSE AND expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
