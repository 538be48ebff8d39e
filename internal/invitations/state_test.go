package invitations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wondershark/backend/internal/models"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	accepted := now.Add(-time.Hour)

	cases := []struct {
		name string
		inv  *models.Invitation
		want State
	}{
		{"missing", nil, StateMissing},
		{"valid", &models.Invitation{ExpiresAt: now.Add(48 * time.Hour)}, StateValid},
		{"one second left", &models.Invitation{ExpiresAt: now.Add(time.Second)}, StateValid},
		{"expires now", &models.Invitation{ExpiresAt: now}, StateExpired},
		{"expired one second ago", &models.Invitation{ExpiresAt: now.Add(-time.Second)}, StateExpired},
		{"accepted", &models.Invitation{ExpiresAt: now.Add(time.Hour), AcceptedAt: &accepted}, StateAccepted},
		{"accepted and expired", &models.Invitation{ExpiresAt: now.Add(-time.Hour), AcceptedAt: &accepted}, StateAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.inv, now))
		})
	}
}

func TestStateReasons(t *testing.T) {
	t.Parallel()

	require.False(t, StateValid.Terminal())
	require.NoError(t, StateValid.Err())
	require.Empty(t, StateValid.Reason())

	require.Equal(t, "This invitation link is invalid.", StateMissing.Reason())
	require.Equal(t, "This invitation has expired. Ask the agency to resend it.", StateExpired.Reason())
	require.Equal(t, "This invitation has already been accepted.", StateAccepted.Reason())
	for _, s := range []State{StateMissing, StateExpired, StateAccepted} {
		require.True(t, s.Terminal())
	}
	require.ErrorIs(t, State("bogus").Err(), ErrInvalidLink)
}
