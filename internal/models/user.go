package models

import (
	"time"

	"github.com/google/uuid"
)

// Global roles granted through the RBAC layer.
const (
	RoleAdmin        = "admin"
	RoleAgencyOwner  = "agency_owner"
	RoleAgencyMember = "agency_member"
)

// User represents a platform user.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	Password        string     `json:"-"`
	FullName        string     `json:"full_name"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	Roles         []string  `json:"roles"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic(roles []string) UserPublic {
	if roles == nil {
		roles = []string{}
	}
	return UserPublic{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Roles:         roles,
		EmailVerified: u.EmailVerifiedAt != nil,
		CreatedAt:     u.CreatedAt,
	}
}
