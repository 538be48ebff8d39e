package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation is a single-use, time-boxed offer for one email address to join
// an agency with a given role and rights.
type Invitation struct {
	ID         uuid.UUID  `json:"id"`
	AgencyID   uuid.UUID  `json:"agency_id"`
	InvitedBy  *uuid.UUID `json:"invited_by,omitempty"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Rights     []string   `json:"rights"`
	Token      string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy *uuid.UUID `json:"accepted_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsAccepted reports whether the invitation has been consumed.
func (i *Invitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}

// IsExpired reports whether now is at or past the expiry.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
