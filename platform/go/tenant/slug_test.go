package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSlug(t *testing.T) {
	t.Parallel()

	got, err := NormalizeSlug("  Clinic-1  ")
	require.NoError(t, err)
	require.Equal(t, "clinic-1", got)

	got, err = NormalizeSlug("acme")
	require.NoError(t, err)
	require.Equal(t, "acme", got)
}

func TestNormalizeSlugRejectsInvalid(t *testing.T) {
	t.Parallel()

	for _, input := range []string{
		"",
		"   ",
		"-leading",
		"trailing-",
		"double--dash",
		"under_score",
		"with space",
		"dot.slug",
	} {
		_, err := NormalizeSlug(input)
		require.Error(t, err, "slug %q should be rejected", input)
	}
}
