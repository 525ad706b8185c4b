package staking

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyde-finance/fyde/auth"
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/db"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
	"github.com/fyde-finance/fyde/ledger"
)

var (
	governor    = common.MustNewAddressFromString("hx0000000000000000000000000000000000000001")
	stakingAcct = common.MustNewAddressFromString("cx0000000000000000000000000000000000000001")
	alice       = common.MustNewAddressFromString("hx00000000000000000000000000000000000000aa")
	bob         = common.MustNewAddressFromString("hx00000000000000000000000000000000000000bb")
)

const (
	epochLength = 100
	firstEnd    = 100
)

type fixture struct {
	authority *auth.Authority
	dbase     db.Database
	base      *ledger.Base
	staked    *ledger.Staked
	wrapped   *ledger.Wrapped
	staking   *Staking
}

func newFixture(t *testing.T) *fixture {
	dbase, err := db.Open("", "mapdb", "test")
	require.NoError(t, err)
	logger := log.New()
	authority, err := auth.New(governor)
	require.NoError(t, err)
	journal, err := events.NewJournal(dbase, logger)
	require.NoError(t, err)

	base := ledger.NewBase(authority, journal, logger)
	staked, err := ledger.NewStaked(authority, journal, logger, big.NewInt(10_000_000_000))
	require.NoError(t, err)
	require.NoError(t, staked.SetIndex(ledger.Unit))
	wrapped := ledger.NewWrapped(authority, journal, logger, staked)

	stk, err := NewStaking(authority, journal, logger, base, staked, wrapped,
		stakingAcct, epochLength, 0, firstEnd)
	require.NoError(t, err)
	require.NoError(t, staked.Initialize(stakingAcct))
	require.NoError(t, authority.Grant(governor, auth.Minter, stakingAcct))
	require.NoError(t, authority.Grant(governor, auth.Vault, governor))

	return &fixture{
		authority: authority,
		dbase:     dbase,
		base:      base,
		staked:    staked,
		wrapped:   wrapped,
		staking:   stk,
	}
}

func (f *fixture) fund(t *testing.T, to *common.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.base.Mint(governor, to, big.NewInt(amount)))
}

func TestStaking_StakeImmediate(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)

	out, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), out.Int64())
	assert.Equal(t, int64(1_000_000_000), f.staked.BalanceOf(alice).Int64())
	assert.Zero(t, f.base.BalanceOf(alice).Sign())
	assert.Zero(t, f.staking.SupplyInWarmup().Sign())
}

func TestStaking_StakeToWrapped(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)

	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), false, true)
	require.NoError(t, err)
	// at genesis index 1.0, one base unit is 1e9 shares
	want := new(big.Int).Mul(big.NewInt(1_000_000_000), ledger.WrappedUnit)
	want.Div(want, ledger.Unit)
	assert.Equal(t, want, f.wrapped.BalanceOf(alice))
}

func TestStaking_WarmupClaim(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	require.NoError(t, f.staking.SetWarmupLength(governor, 2))

	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)
	assert.Zero(t, f.staked.BalanceOf(alice).Sign())
	assert.Equal(t, int64(1_000_000_000), f.staking.SupplyInWarmup().Int64())

	// not yet mature
	out, err := f.staking.Claim(alice, alice, true)
	require.NoError(t, err)
	assert.Zero(t, out.Sign())

	require.NoError(t, f.staking.Rebase(firstEnd))
	require.NoError(t, f.staking.Rebase(firstEnd+epochLength))

	out, err = f.staking.Claim(alice, alice, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), out.Int64())
	assert.Equal(t, int64(1_000_000_000), f.staked.BalanceOf(alice).Int64())
	assert.Zero(t, f.staking.SupplyInWarmup().Sign())

	// a second claim is a no-op
	out, err = f.staking.Claim(alice, alice, true)
	require.NoError(t, err)
	assert.Zero(t, out.Sign())
}

func TestStaking_LockBlocksExternal(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 2_000_000_000)
	f.fund(t, bob, 1_000_000_000)
	require.NoError(t, f.staking.SetWarmupLength(governor, 1))

	assert.True(t, f.staking.ToggleLock(bob))

	_, err := f.staking.Stake(alice, bob, big.NewInt(1_000_000_000), true, false)
	assert.True(t, errors.LockedAccountError.Equals(err))

	// self deposit is always allowed
	_, err = f.staking.Stake(bob, bob, big.NewInt(1_000_000_000), true, false)
	require.NoError(t, err)

	require.NoError(t, f.staking.Rebase(firstEnd))
	_, err = f.staking.Claim(alice, bob, true)
	assert.True(t, errors.LockedAccountError.Equals(err))

	out, err := f.staking.Claim(bob, bob, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), out.Int64())

	// the lock toggle survives the claim
	assert.False(t, f.staking.ToggleLock(bob))
}

func TestStaking_Forfeit(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	require.NoError(t, f.staking.SetWarmupLength(governor, 5))

	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)

	out, err := f.staking.Forfeit(alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), out.Int64())
	assert.Equal(t, int64(1_000_000_000), f.base.BalanceOf(alice).Int64())
	assert.Zero(t, f.staking.SupplyInWarmup().Sign())

	// nothing left to forfeit
	out, err = f.staking.Forfeit(alice)
	require.NoError(t, err)
	assert.Zero(t, out.Sign())
}

func TestStaking_EpochAdvancesAdditively(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.staking.Rebase(firstEnd - 1))
	assert.Equal(t, int64(0), f.staking.Epoch().Number)

	// a late trigger still advances the schedule by exactly one length
	require.NoError(t, f.staking.Rebase(firstEnd+37))
	e := f.staking.Epoch()
	assert.Equal(t, int64(1), e.Number)
	assert.Equal(t, int64(firstEnd+epochLength), e.End)

	require.NoError(t, f.staking.Rebase(e.End))
	e = f.staking.Epoch()
	assert.Equal(t, int64(2), e.Number)
	assert.Equal(t, int64(firstEnd+2*epochLength), e.End)
}

func TestStaking_RebaseDistributesExcessReserve(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)

	// simulated reward lands on the staking reserve
	f.fund(t, stakingAcct, 10_000_000)

	require.NoError(t, f.staking.Rebase(firstEnd))
	assert.Equal(t, int64(10_000_000), f.staking.Epoch().Distribute.Int64())

	supplyBefore := f.staked.TotalSupply()
	require.NoError(t, f.staking.Rebase(firstEnd + epochLength))
	assert.Equal(t, new(big.Int).Add(supplyBefore, big.NewInt(10_000_000)), f.staked.TotalSupply())
	assert.True(t, f.staked.BalanceOf(alice).Cmp(big.NewInt(1_000_000_000)) > 0)
}

type failingDistributor struct{}

func (d *failingDistributor) Distribute() error {
	return errors.ErrInvalidState
}

func TestStaking_DistributorFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)
	f.fund(t, stakingAcct, 10_000_000)
	require.NoError(t, f.staking.Rebase(firstEnd))

	require.NoError(t, f.staking.SetDistributor(governor, &failingDistributor{}))

	epochBefore := f.staking.Epoch()
	supplyBefore := f.staked.TotalSupply()
	journalBefore := f.staking.journal.Len()
	err = f.staking.Rebase(firstEnd + epochLength)
	require.Error(t, err)

	e := f.staking.Epoch()
	assert.Equal(t, epochBefore.Number, e.Number)
	assert.Equal(t, epochBefore.End, e.End)
	assert.Equal(t, epochBefore.Distribute, e.Distribute)
	assert.Equal(t, supplyBefore, f.staked.TotalSupply())
	// the aborted epoch must not leave a rebase event behind
	assert.Equal(t, journalBefore, f.staking.journal.Len())
}

func TestStaking_UnstakeRebasing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)

	out, err := f.staking.Unstake(alice, alice, big.NewInt(400_000_000), false, true, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(400_000_000), out.Int64())
	assert.Equal(t, int64(400_000_000), f.base.BalanceOf(alice).Int64())
	assert.Equal(t, int64(600_000_000), f.staked.BalanceOf(alice).Int64())
}

func TestStaking_UnstakeWrapped(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), false, true)
	require.NoError(t, err)

	shares := f.wrapped.BalanceOf(alice)
	out, err := f.staking.Unstake(alice, alice, shares, false, false, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), out.Int64())
	assert.Zero(t, f.wrapped.BalanceOf(alice).Sign())
	assert.Equal(t, int64(1_000_000_000), f.base.BalanceOf(alice).Int64())
}

func TestStaking_UnstakeTriggerRunsRebase(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)

	_, err = f.staking.Unstake(alice, alice, big.NewInt(100_000_000), true, true, firstEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.staking.Epoch().Number)
}

func TestStaking_WrapUnwrap(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)

	shares, err := f.staking.Wrap(alice, alice, big.NewInt(1_000_000_000))
	require.NoError(t, err)
	assert.Zero(t, f.staked.BalanceOf(alice).Sign())
	assert.Equal(t, shares, f.wrapped.BalanceOf(alice))

	out, err := f.staking.Unwrap(alice, alice, shares)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), out.Int64())
	assert.Zero(t, f.wrapped.BalanceOf(alice).Sign())
}

func TestStaking_WarmupAppreciatesWithRebase(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	require.NoError(t, f.staking.SetWarmupLength(governor, 1))
	_, err := f.staking.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)

	f.fund(t, stakingAcct, 10_000_000)
	require.NoError(t, f.staking.Rebase(firstEnd))
	require.NoError(t, f.staking.Rebase(firstEnd + epochLength))

	out, err := f.staking.Claim(alice, alice, true)
	require.NoError(t, err)
	// the warmup entry grew with the rebase
	assert.True(t, out.Cmp(big.NewInt(1_000_000_000)) > 0)
}

func TestStaking_FlushLoad(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1_000_000_000)
	require.NoError(t, f.staking.SetWarmupLength(governor, 3))
	_, err := f.staking.Stake(alice, alice, big.NewInt(600_000_000), true, true)
	require.NoError(t, err)
	require.NoError(t, f.staking.Rebase(firstEnd))
	require.NoError(t, f.staking.Flush(f.dbase))

	restored, err := NewStaking(f.authority, f.staking.journal, log.New(),
		f.base, f.staked, f.wrapped, stakingAcct, epochLength, 0, firstEnd)
	require.NoError(t, err)
	require.NoError(t, restored.Load(f.dbase))

	assert.Equal(t, f.staking.Epoch(), restored.Epoch())
	assert.Equal(t, f.staking.WarmupPeriod(), restored.WarmupPeriod())
	assert.Equal(t, f.staking.SupplyInWarmup(), restored.SupplyInWarmup())
	info := restored.WarmupInfoOf(alice)
	assert.Equal(t, int64(600_000_000), info.Deposit.Int64())
	assert.Equal(t, int64(3), info.Expiry)
}
