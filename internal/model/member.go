package model

import (
	"time"
)

type Member struct {
	ID               string     `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	Bio              *string    `db:"bio" json:"bio"`
	Location         *string    `db:"location" json:"location"`
	MemberType       MemberType `db:"member_type" json:"memberType"`
	CoverImageURL    *string    `db:"cover_image_url" json:"coverImageUrl"`
	ShowOnMemberPage bool       `db:"show_on_member_page" json:"showOnMemberPage"`
	ShowOnVIPPage    bool       `db:"show_on_vip_page" json:"showOnVipPage"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

type MemberImage struct {
	ID           string    `db:"id" json:"id"`
	MemberID     string    `db:"member_id" json:"memberId"`
	ImageURL     string    `db:"image_url" json:"imageUrl"`
	DisplayOrder int       `db:"display_order" json:"displayOrder"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// MemberWithImages is a member profile together with its ordered album.
type MemberWithImages struct {
	Member
	Images []MemberImage `json:"images"`
}

// MemberParams carries the writable member fields for create and update.
type MemberParams struct {
	Name             string
	Bio              *string
	Location         *string
	MemberType       MemberType
	CoverImageURL    *string
	ShowOnMemberPage bool
	ShowOnVIPPage    bool
}

type MemberStats struct {
	TotalMembers   int `db:"total" json:"totalMembers"`
	VIPMembers     int `db:"vip" json:"vipMembers"`
	RegularMembers int `db:"regular" json:"regularMembers"`
	Locations      int `db:"locations" json:"locations"`
}
