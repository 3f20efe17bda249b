package model

type TargetPage string

const (
	TargetPageAdmin  TargetPage = "admin"
	TargetPageMember TargetPage = "member"
	TargetPageVIP    TargetPage = "vip"
)

func (p TargetPage) IsValid() bool {
	switch p {
	case TargetPageAdmin, TargetPageMember, TargetPageVIP:
		return true
	}
	return false
}

// ValidationState is the outcome of redeeming an access token.
type ValidationState string

const (
	ValidationValid   ValidationState = "valid"
	ValidationInvalid ValidationState = "invalid"
	ValidationUsed    ValidationState = "used"
	ValidationExpired ValidationState = "expired"
)

// GrantStatus is the admin-facing status of a grant.
type GrantStatus string

const (
	GrantStatusActive  GrantStatus = "Active"
	GrantStatusUsed    GrantStatus = "Used"
	GrantStatusExpired GrantStatus = "Expired"
)

type MemberType string

const (
	MemberTypeVIP    MemberType = "VIP"
	MemberTypeMember MemberType = "Member"
)
