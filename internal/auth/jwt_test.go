package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	t.Parallel()

	svc := NewJWTService("secret", time.Hour)
	id := uuid.New()

	token, err := svc.Generate(id, "ann@example.com", []string{"agency_member"})
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, id, claims.UserID)
	require.Equal(t, "ann@example.com", claims.Email)
	require.Equal(t, []string{"agency_member"}, claims.Roles)
}

func TestJWTService_Rejects(t *testing.T) {
	t.Parallel()

	svc := NewJWTService("secret", time.Hour)
	token, err := svc.Generate(uuid.New(), "ann@example.com", nil)
	require.NoError(t, err)

	_, err = NewJWTService("other", time.Hour).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTService("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
