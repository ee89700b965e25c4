package strings_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	platformstrings "ndsregistry/pkg/platform/strings"
)

func TestDedupeAndTrim(t *testing.T) {
	require.Equal(t,
		[]string{"role-a", "role-b"},
		platformstrings.DedupeAndTrim([]string{" role-a ", "role-b", "role-a", "", "   "}))

	require.Empty(t, platformstrings.DedupeAndTrim(nil))
	require.Empty(t, platformstrings.DedupeAndTrim([]string{"", "  "}))
}
