package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
)

var (
	governor = common.MustNewAddressFromString("hx0000000000000000000000000000000000000001")
	alice    = common.MustNewAddressFromString("hx00000000000000000000000000000000000000aa")
	bob      = common.MustNewAddressFromString("hx00000000000000000000000000000000000000bb")
)

func TestAuthority_GovernorAtGenesis(t *testing.T) {
	a, err := New(governor)
	require.NoError(t, err)
	assert.True(t, a.Has(Governor, governor))
	assert.False(t, a.Has(Vault, governor))

	_, err = New(nil)
	assert.True(t, errors.InvalidAddressError.Equals(err))
}

func TestAuthority_GrantRevoke(t *testing.T) {
	a, err := New(governor)
	require.NoError(t, err)

	err = a.Grant(alice, Vault, bob)
	assert.True(t, errors.UnauthorizedError.Equals(err))

	require.NoError(t, a.Grant(governor, Vault, alice))
	assert.True(t, a.Has(Vault, alice))
	require.NoError(t, a.Check(Vault, alice))

	// roles do not leak across kinds
	assert.True(t, errors.UnauthorizedError.Equals(a.Check(Minter, alice)))

	require.NoError(t, a.Revoke(governor, Vault, alice))
	assert.False(t, a.Has(Vault, alice))
	assert.True(t, errors.UnauthorizedError.Equals(a.Check(Vault, alice)))
}

func TestAuthority_GovernorHandover(t *testing.T) {
	a, err := New(governor)
	require.NoError(t, err)

	require.NoError(t, a.Grant(governor, Governor, alice))
	require.NoError(t, a.Revoke(alice, Governor, governor))

	assert.False(t, a.Has(Governor, governor))
	err = a.Grant(governor, Vault, bob)
	assert.True(t, errors.UnauthorizedError.Equals(err))
	require.NoError(t, a.Grant(alice, Vault, bob))
}
