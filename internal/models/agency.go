package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Agency is a tenant. It issues invitations and owns memberships.
type Agency struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   uuid.UUID `json:"owner_id"`
	LogoKey   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership rights, scoped to one agency and independent of global roles.
const (
	RightViewBrands        = "view-brands"
	RightManageBrands      = "manage-brands"
	RightManagePrompts     = "manage-prompts"
	RightViewStatistics    = "view-statistics"
	RightManageInvitations = "manage-invitations"
)

// AllRights lists every membership right, in display order.
var AllRights = []string{
	RightViewBrands,
	RightManageBrands,
	RightManagePrompts,
	RightViewStatistics,
	RightManageInvitations,
}

// IsKnownRight reports whether r is a membership right.
func IsKnownRight(r string) bool {
	return slices.Contains(AllRights, r)
}

// NormalizeRights trims and de-duplicates a rights list, keeping first-seen
// order. It stops at the first unknown right and returns it. The result is
// never nil.
func NormalizeRights(in []string) (rights []string, unknown string) {
	rights = []string{}
	for _, r := range in {
		r = strings.TrimSpace(r)
		if !IsKnownRight(r) {
			return nil, r
		}
		if !slices.Contains(rights, r) {
			rights = append(rights, r)
		}
	}
	return rights, ""
}

// AgencyMember links a user to an agency with a role and rights.
type AgencyMember struct {
	ID        uuid.UUID `json:"id"`
	AgencyID  uuid.UUID `json:"agency_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	Rights    []string  `json:"rights"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRight reports whether the membership carries right.
func (m *AgencyMember) HasRight(right string) bool {
	return m != nil && slices.Contains(m.Rights, right)
}
