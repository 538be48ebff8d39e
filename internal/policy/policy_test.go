package policy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wondershark/backend/internal/models"
)

func TestCan(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	agency := &models.Agency{ID: uuid.New(), OwnerID: ownerID}
	other := &models.Agency{ID: uuid.New(), OwnerID: uuid.New()}

	membership := func(userID uuid.UUID, agencyID uuid.UUID, rights ...string) *models.AgencyMember {
		return &models.AgencyMember{AgencyID: agencyID, UserID: userID, Role: models.RoleAgencyMember, Rights: rights}
	}

	delegateID := uuid.New()
	memberID := uuid.New()
	foreignDelegateID := uuid.New()
	strangerID := uuid.New()

	actors := map[string]Actor{
		"owner":             {UserID: ownerID, Membership: membership(ownerID, agency.ID, models.AllRights...)},
		"owner without row": {UserID: ownerID},
		"delegate":          {UserID: delegateID, Membership: membership(delegateID, agency.ID, models.RightManageInvitations)},
		"member":            {UserID: memberID, Membership: membership(memberID, agency.ID, models.RightViewBrands)},
		"foreign delegate":  {UserID: foreignDelegateID, Membership: membership(foreignDelegateID, other.ID, models.RightManageInvitations)},
		"borrowed row":      {UserID: strangerID, Membership: membership(delegateID, agency.ID, models.RightManageInvitations)},
		"stranger":          {UserID: strangerID},
		"anonymous":         {},
	}

	allowed := map[Action][]string{
		ActionViewAgency:       {"owner", "owner without row", "delegate", "member"},
		ActionViewInvitations:  {"owner", "owner without row", "delegate", "member"},
		ActionManageMembers:    {"owner", "owner without row"},
		ActionManageBranding:   {"owner", "owner without row"},
		ActionResendInvitation: {"owner", "owner without row"},
		ActionIssueInvitation:  {"owner", "owner without row", "delegate"},
		ActionCancelInvitation: {"owner", "owner without row", "delegate"},
	}

	for action, names := range allowed {
		for name, actor := range actors {
			want := false
			for _, n := range names {
				if n == name {
					want = true
				}
			}
			require.Equal(t, want, Can(actor, action, agency), "action %d actor %q", action, name)
		}
	}
}

func TestCan_NilAgencyAndUnknownAction(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	agency := &models.Agency{ID: uuid.New(), OwnerID: ownerID}

	require.False(t, Can(Actor{UserID: ownerID}, ActionViewAgency, nil))
	require.False(t, Can(Actor{UserID: ownerID}, Action(0), agency))
	require.False(t, Can(Actor{UserID: ownerID}, Action(999), agency))
}
