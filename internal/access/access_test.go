package access_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ndsregistry/internal/access"
	dErrors "ndsregistry/pkg/domain-errors"
)

func TestGateAllowsRoleHolder(t *testing.T) {
	gate := access.NewGate("role-ops")

	require.NoError(t, gate.Require(access.Operator{ID: "1", RoleIDs: []string{"role-x", "role-ops"}}))
	require.NoError(t, gate.Require(access.Operator{ID: "2", Admin: true}))

	err := gate.Require(access.Operator{ID: "3", RoleIDs: []string{"role-x"}})
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	err = gate.Require(access.Operator{ID: "4"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestGateWithoutRoleOnlyAdmitsAdmins(t *testing.T) {
	gate := access.NewGate("")

	require.NoError(t, gate.Require(access.Operator{ID: "1", Admin: true}))
	err := gate.Require(access.Operator{ID: "2", RoleIDs: []string{"role-ops"}})
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestOperatorAuthor(t *testing.T) {
	require.Equal(t, "mod (42)", access.Operator{ID: "42", Display: "mod"}.Author())
	require.Equal(t, "42 (42)", access.Operator{ID: "42"}.Author())
}
