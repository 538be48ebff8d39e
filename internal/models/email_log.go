package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailType values recorded on the delivery log.
const (
	EmailTypeAgencyInvitation = "agency_invitation"
	EmailTypeInvitationResend = "agency_invitation_resend"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records outbound emails and their delivery outcome.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	AgencyID       *uuid.UUID `json:"agency_id,omitempty"`
	InvitationID   *uuid.UUID `json:"invitation_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
