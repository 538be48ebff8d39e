// Package invitations implements the agency invitation lifecycle: issuing a
// token, validating it, accepting it into a new account, resending and
// cancelling.
package invitations

import (
	"time"

	"github.com/wondershark/backend/internal/models"
)

// State is the usability of an invitation at a point in time.
type State string

const (
	StateMissing  State = "MISSING"
	StateValid    State = "VALID"
	StateExpired  State = "EXPIRED"
	StateAccepted State = "ACCEPTED"
)

// Classify returns the state of inv at now. A nil invitation is MISSING.
// Acceptance wins over expiry: an accepted invitation stays ACCEPTED after
// its expiry passes.
func Classify(inv *models.Invitation, now time.Time) State {
	switch {
	case inv == nil:
		return StateMissing
	case inv.IsAccepted():
		return StateAccepted
	case inv.IsExpired(now):
		return StateExpired
	default:
		return StateValid
	}
}

// Terminal reports whether the invitation can no longer be accepted as is.
func (s State) Terminal() bool {
	return s != StateValid
}

// Err returns the error a caller sees for a terminal state, nil for VALID.
func (s State) Err() error {
	switch s {
	case StateValid:
		return nil
	case StateExpired:
		return ErrExpired
	case StateAccepted:
		return ErrAlreadyAccepted
	default:
		return ErrInvalidLink
	}
}

// Reason is the user-facing message for a terminal state, "" for VALID.
func (s State) Reason() string {
	if err := s.Err(); err != nil {
		return err.Error()
	}
	return ""
}
