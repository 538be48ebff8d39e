// Package policy provides authorization decisions for agency-scoped actions.
package policy

import (
	"github.com/google/uuid"

	"github.com/wondershark/backend/internal/models"
)

// Action represents an agency-scoped operation.
type Action int

const (
	// ActionViewAgency allows reading the agency, its members and delivery log.
	ActionViewAgency Action = iota + 1
	// ActionManageMembers allows adding and removing members directly.
	ActionManageMembers
	// ActionManageBranding allows changing the agency logo.
	ActionManageBranding
	// ActionViewInvitations allows listing invitations.
	ActionViewInvitations
	// ActionIssueInvitation allows inviting new members.
	ActionIssueInvitation
	// ActionResendInvitation allows extending and re-sending a pending invitation.
	ActionResendInvitation
	// ActionCancelInvitation allows deleting a pending invitation.
	ActionCancelInvitation
)

// Actor is the caller as seen from one agency.
type Actor struct {
	UserID uuid.UUID
	// Membership is the caller's membership in the agency being acted on, nil if none.
	Membership *models.AgencyMember
}

// Can reports whether actor may perform action on agency.
//
// The owner may do everything. Members may read. A member holding the
// manage-invitations right is a delegated admin and may issue and cancel
// invitations, but resending stays with the owner. Anyone else is denied,
// whatever their global role.
func Can(actor Actor, action Action, agency *models.Agency) bool {
	if agency == nil || actor.UserID == uuid.Nil {
		return false
	}
	owner := actor.UserID == agency.OwnerID
	member := actor.Membership != nil &&
		actor.Membership.AgencyID == agency.ID &&
		actor.Membership.UserID == actor.UserID
	delegate := member && actor.Membership.HasRight(models.RightManageInvitations)

	switch action {
	case ActionViewAgency, ActionViewInvitations:
		return owner || member
	case ActionManageMembers, ActionManageBranding, ActionResendInvitation:
		return owner
	case ActionIssueInvitation, ActionCancelInvitation:
		return owner || delegate
	default:
		return false
	}
}
