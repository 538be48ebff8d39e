package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogoKeys(t *testing.T) {
	t.Parallel()
	key := LogoKey("a1", "f00", ".png")
	require.Equal(t, "logos/a1/f00.png", key)
	require.True(t, IsLogoKey("a1", key))

	for _, bad := range []string{
		"logos/a2/f00.png",
		"logos/a1/",
		"logos/a1/../a2/f00.png",
		"logos/a1//f00.png",
		"other/a1/f00.png",
		"",
	} {
		require.False(t, IsLogoKey("a1", bad), bad)
	}

	ext, ok := LogoExtension(" Image/PNG ")
	require.True(t, ok)
	require.Equal(t, ".png", ext)
	_, ok = LogoExtension("image/gif")
	require.False(t, ok)
}
