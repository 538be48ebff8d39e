package invitations

import "errors"

// Terminal-state errors. Their messages are shown to the invitee as is; an
// unknown token and a cancelled invitation read the same.
var (
	ErrInvalidLink     = errors.New("This invitation link is invalid.")
	ErrExpired         = errors.New("This invitation has expired. Ask the agency to resend it.")
	ErrAlreadyAccepted = errors.New("This invitation has already been accepted.")
)

var (
	ErrEmailRegistered = errors.New("This email address is already registered.")
	ErrResendAccepted  = errors.New("Cannot resend an accepted invitation.")
	ErrDeleteAccepted  = errors.New("Cannot delete an accepted invitation.")
	ErrDeliveryFailed  = errors.New("Failed to send the invitation email.")
	ErrPendingExists   = errors.New("A pending invitation already exists for this email address.")
	ErrForbidden       = errors.New("You are not allowed to manage invitations for this agency.")
)

// Store-level errors.
var (
	ErrNotFound   = errors.New("invitation not found")
	ErrTokenTaken = errors.New("invitation token already in use")
)
