package tokens

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 500)
	for range 500 {
		tok, err := New()
		require.NoError(t, err)

		raw, err := base58.Decode(tok)
		require.NoError(t, err)
		require.Len(t, raw, Size)

		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %s", tok)
		seen[tok] = struct{}{}
	}
}
