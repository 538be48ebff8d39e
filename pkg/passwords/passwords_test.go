package passwords

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate("Secret123", "Secret123"))
	require.ErrorIs(t, Validate("short", "short"), ErrTooShort)
	require.ErrorIs(t, Validate("1234567", "1234567"), ErrTooShort)
	require.NoError(t, Validate("12345678", "12345678"))
	require.ErrorIs(t, Validate("Secret123", "Secret124"), ErrMismatch)
}

func TestHashAndCheck(t *testing.T) {
	t.Parallel()

	hash, err := Hash("Secret123")
	require.NoError(t, err)
	require.NotEqual(t, "Secret123", hash)

	require.True(t, Check("Secret123", hash))
	require.False(t, Check("secret123", hash))
	require.False(t, Check("Secret123", "not-a-hash"))
}
