package model

import (
	"time"
)

// AccessGrant is an issued access link: a bearer token plus its policy and state.
type AccessGrant struct {
	ID          string     `db:"id" json:"id"`
	Token       string     `db:"token" json:"token"`
	TargetPage  TargetPage `db:"target_page" json:"targetPage"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expiresAt"`
	IsPermanent bool       `db:"is_permanent" json:"isPermanent"`
	IsUsed      bool       `db:"is_used" json:"isUsed"`
	AllowShare  bool       `db:"allow_share" json:"allowShare"`
}

// CreateAccessGrantParams contains parameters for inserting a grant
type CreateAccessGrantParams struct {
	Token       string
	TargetPage  TargetPage
	ExpiresAt   *time.Time
	IsPermanent bool
	AllowShare  bool
}

// IsExpiredAt reports whether the grant's expiry has passed. Permanent grants never expire.
func (g *AccessGrant) IsExpiredAt(now time.Time) bool {
	if g.IsPermanent || g.ExpiresAt == nil {
		return false
	}
	return g.ExpiresAt.Before(now)
}

// IsLocked reports whether a prior redemption has consumed a non-shareable grant.
func (g *AccessGrant) IsLocked() bool {
	return g.IsUsed && !g.AllowShare
}

// StateAt evaluates the redemption state table: used before expired before valid.
func (g *AccessGrant) StateAt(now time.Time) ValidationState {
	if g.IsLocked() {
		return ValidationUsed
	}
	if g.IsExpiredAt(now) {
		return ValidationExpired
	}
	return ValidationValid
}

// StatusAt collapses StateAt into the admin display status.
func (g *AccessGrant) StatusAt(now time.Time) GrantStatus {
	switch g.StateAt(now) {
	case ValidationUsed:
		return GrantStatusUsed
	case ValidationExpired:
		return GrantStatusExpired
	default:
		return GrantStatusActive
	}
}
