package yield

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
	governor     = common.MustNewAddressFromString("hx0000000000000000000000000000000000000001")
	stakingAcct  = common.MustNewAddressFromString("cx0000000000000000000000000000000000000001")
	splitterAcct = common.MustNewAddressFromString("cx0000000000000000000000000000000000000010")
	alice        = common.MustNewAddressFromString("hx00000000000000000000000000000000000000aa")
	bob          = common.MustNewAddressFromString("hx00000000000000000000000000000000000000bb")
	carol        = common.MustNewAddressFromString("hx00000000000000000000000000000000000000cc")
	dave         = common.MustNewAddressFromString("hx00000000000000000000000000000000000000dd")
)

// tenShares is 10 whole wrapped shares, worth 10 underlying units at
// the genesis index of 1.0.
var tenShares = new(big.Int).Mul(big.NewInt(10), ledger.WrappedUnit)

type splitterFixture struct {
	dbase    db.Database
	journal  *events.Journal
	staked   *ledger.Staked
	wrapped  *ledger.Wrapped
	splitter *Splitter
}

func newSplitterFixture(t *testing.T) *splitterFixture {
	dbase, err := db.Open("", "mapdb", "test")
	require.NoError(t, err)
	logger := log.New()
	authority, err := auth.New(governor)
	require.NoError(t, err)
	journal, err := events.NewJournal(dbase, logger)
	require.NoError(t, err)

	staked, err := ledger.NewStaked(authority, journal, logger, big.NewInt(10_000_000_000))
	require.NoError(t, err)
	require.NoError(t, staked.SetIndex(ledger.Unit))
	require.NoError(t, staked.Initialize(stakingAcct))
	wrapped := ledger.NewWrapped(authority, journal, logger, staked)
	require.NoError(t, authority.Grant(governor, auth.Minter, stakingAcct))

	sp, err := NewSplitter(journal, logger, wrapped, splitterAcct, "splitter")
	require.NoError(t, err)
	return &splitterFixture{
		dbase:    dbase,
		journal:  journal,
		staked:   staked,
		wrapped:  wrapped,
		splitter: sp,
	}
}

func (f *splitterFixture) mintShares(t *testing.T, to *common.Address, shares *big.Int) {
	t.Helper()
	require.NoError(t, f.wrapped.Mint(stakingAcct, to, shares))
}

// rebasePercent grows the rebasing supply by pct percent, moving the
// index by the same factor.
func (f *splitterFixture) rebasePercent(t *testing.T, pct int64) {
	t.Helper()
	profit := new(big.Int).Mul(f.staked.TotalSupply(), big.NewInt(pct))
	profit.Div(profit, big.NewInt(100))
	require.NoError(t, f.staked.Rebase(stakingAcct, profit, 0))
}

// assertConservation checks the splitter's core invariant: the sum of
// agnostic amounts across live positions equals the ledger account's
// share balance.
func (f *splitterFixture) assertConservation(t *testing.T) {
	t.Helper()
	assert.Equal(t, f.wrapped.BalanceOf(splitterAcct), f.splitter.TotalAgnostic())
}

func TestSplitter_Deposit(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)

	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	assert.Zero(t, f.wrapped.BalanceOf(alice).Sign())

	info, err := f.splitter.Get(id)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10_000_000_000), info.Principal)
	assert.Equal(t, tenShares, info.Agnostic)
	assert.Equal(t, []int64{0}, f.splitter.DepositorIDs(alice))
	assert.Equal(t, []int64{0}, f.splitter.RecipientIDs(bob))
	f.assertConservation(t)
}

func TestSplitter_DepositValidation(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)

	_, err := f.splitter.Deposit(alice, nil, tenShares)
	assert.True(t, errors.InvalidAddressError.Equals(err))

	_, err = f.splitter.Deposit(alice, bob, new(big.Int))
	assert.True(t, errors.IllegalArgumentError.Equals(err))

	// more shares than alice holds
	_, err = f.splitter.Deposit(alice, bob, new(big.Int).Add(tenShares, big.NewInt(1)))
	assert.True(t, errors.InsufficientBalanceError.Equals(err))
}

func TestSplitter_YieldAfterOnePercentRebase(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)

	// no rebase, no yield
	y, err := f.splitter.OutstandingYieldFor(id)
	require.NoError(t, err)
	assert.Zero(t, y.Sign())

	f.rebasePercent(t, 1)

	y, err = f.splitter.OutstandingYieldFor(id)
	require.NoError(t, err)
	assert.True(t, y.Sign() > 0)

	// the yield is worth 1% of the principal, within rounding
	value := f.wrapped.BalanceFrom(y)
	diff := new(big.Int).Sub(big.NewInt(100_000_000), value)
	assert.True(t, diff.CmpAbs(big.NewInt(2)) <= 0, "value=%v", value)
}

func TestSplitter_YieldNonNegative(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	f.rebasePercent(t, 1)

	info, err := f.splitter.Get(id)
	require.NoError(t, err)
	// agnostic never falls below the principal's share value
	assert.True(t, info.Agnostic.Cmp(f.wrapped.BalanceTo(info.Principal)) >= 0)
	assert.Zero(t, f.splitter.GetOutstandingYield(big.NewInt(10_000_000_000), big.NewInt(1)).Sign())
}

func TestSplitter_AddToDepositValuedAtCurrentIndex(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, new(big.Int).Mul(big.NewInt(2), tenShares))
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)

	f.rebasePercent(t, 1)
	yieldBefore, err := f.splitter.OutstandingYieldFor(id)
	require.NoError(t, err)

	require.NoError(t, f.splitter.AddToDeposit(alice, id, tenShares))

	// the increment carries no retroactive yield
	yieldAfter, err := f.splitter.OutstandingYieldFor(id)
	require.NoError(t, err)
	diff := new(big.Int).Sub(yieldAfter, yieldBefore)
	assert.True(t, diff.CmpAbs(big.NewInt(2)) <= 0, "before=%v after=%v", yieldBefore, yieldAfter)
	f.assertConservation(t)
}

func TestSplitter_AddToDepositAuthorization(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	f.mintShares(t, bob, tenShares)
	id, err := f.splitter.Deposit(alice, carol, tenShares)
	require.NoError(t, err)

	err = f.splitter.AddToDeposit(bob, id, tenShares)
	assert.True(t, errors.UnauthorizedError.Equals(err))
}

func TestSplitter_WithdrawPrincipal(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)

	half := new(big.Int).Div(tenShares, big.NewInt(2))
	require.NoError(t, f.splitter.WithdrawPrincipal(alice, id, half))
	assert.Equal(t, half, f.wrapped.BalanceOf(alice))

	info, err := f.splitter.Get(id)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5_000_000_000), info.Principal)
	f.assertConservation(t)
}

func TestSplitter_WithdrawPrincipalNeverTouchesYield(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	f.rebasePercent(t, 1)

	// the full original share amount now exceeds the withdrawable
	// principal value
	err = f.splitter.WithdrawPrincipal(alice, id, tenShares)
	assert.True(t, errors.InsufficientPrincipalError.Equals(err))

	withdrawable, err := f.splitter.WithdrawableShares(id)
	require.NoError(t, err)
	require.NoError(t, f.splitter.WithdrawPrincipal(alice, id, withdrawable))

	// yield stays behind for the recipient
	y, err := f.splitter.OutstandingYieldFor(id)
	require.NoError(t, err)
	assert.True(t, y.Sign() > 0)
	f.assertConservation(t)
}

func TestSplitter_WithdrawPrincipalAuthorization(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)

	err = f.splitter.WithdrawPrincipal(bob, id, big.NewInt(1))
	assert.True(t, errors.UnauthorizedError.Equals(err))
	_, err = f.splitter.WithdrawAllPrincipal(bob, id)
	assert.True(t, errors.UnauthorizedError.Equals(err))
}

func TestSplitter_WithdrawAllPrincipalClosesPosition(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)

	out, err := f.splitter.WithdrawAllPrincipal(alice, id)
	require.NoError(t, err)
	assert.Equal(t, tenShares, out)
	assert.Equal(t, tenShares, f.wrapped.BalanceOf(alice))

	_, err = f.splitter.Get(id)
	assert.True(t, errors.NotFoundError.Equals(err))
	assert.Empty(t, f.splitter.DepositorIDs(alice))
	assert.Empty(t, f.splitter.RecipientIDs(bob))
	f.assertConservation(t)
}

func TestSplitter_RedeemYield(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	f.rebasePercent(t, 1)

	out, err := f.splitter.RedeemYield(bob, id)
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)
	assert.Equal(t, out, f.wrapped.BalanceOf(bob))

	// agnostic is pinned back to exactly the principal's share value
	info, err := f.splitter.Get(id)
	require.NoError(t, err)
	assert.Equal(t, f.wrapped.BalanceTo(info.Principal), info.Agnostic)

	y, err := f.splitter.OutstandingYieldFor(id)
	require.NoError(t, err)
	assert.Zero(t, y.Sign())
	f.assertConservation(t)
}

func TestSplitter_RedeemYieldAuthorization(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	f.rebasePercent(t, 1)

	_, err = f.splitter.RedeemYield(carol, id)
	assert.True(t, errors.UnauthorizedError.Equals(err))

	// the depositor is not the recipient here either
	_, err = f.splitter.RedeemYield(alice, id)
	assert.True(t, errors.UnauthorizedError.Equals(err))
}

func TestSplitter_DelegatedRedeem(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	f.rebasePercent(t, 1)

	require.NoError(t, f.splitter.GivePermissionToRedeem(bob, carol))
	out, err := f.splitter.RedeemYield(carol, id)
	require.NoError(t, err)
	// the yield still lands with the recipient, not the delegate
	assert.Equal(t, out, f.wrapped.BalanceOf(bob))
	assert.Zero(t, f.wrapped.BalanceOf(carol).Sign())

	require.NoError(t, f.splitter.RevokePermissionToRedeem(bob, carol))
	f.rebasePercent(t, 1)
	_, err = f.splitter.RedeemYield(carol, id)
	assert.True(t, errors.UnauthorizedError.Equals(err))
}

func TestSplitter_RedeemAllYieldTwoDepositorsOneRecipient(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	f.mintShares(t, bob, tenShares)

	idA, err := f.splitter.Deposit(alice, carol, tenShares)
	require.NoError(t, err)
	idB, err := f.splitter.Deposit(bob, carol, tenShares)
	require.NoError(t, err)
	f.rebasePercent(t, 1)

	yA, err := f.splitter.OutstandingYieldFor(idA)
	require.NoError(t, err)
	yB, err := f.splitter.OutstandingYieldFor(idB)
	require.NoError(t, err)
	want := new(big.Int).Add(yA, yB)
	assert.Equal(t, want, f.splitter.TotalRedeemableBalance(carol))

	out, err := f.splitter.RedeemAllYield(carol, carol)
	require.NoError(t, err)
	assert.Equal(t, want, out)
	assert.Equal(t, want, f.wrapped.BalanceOf(carol))

	// both positions end at exactly zero yield, no cross-position leak
	for _, id := range []int64{idA, idB} {
		y, err := f.splitter.OutstandingYieldFor(id)
		require.NoError(t, err)
		assert.Zero(t, y.Sign())
	}
	f.assertConservation(t)

	// a second pass with no new rebase is a no-op
	out, err = f.splitter.RedeemAllYield(carol, carol)
	require.NoError(t, err)
	assert.Zero(t, out.Sign())
}

func TestSplitter_CloseDeposit(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, tenShares)
	id, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	f.rebasePercent(t, 1)

	y, err := f.splitter.OutstandingYieldFor(id)
	require.NoError(t, err)

	err = f.splitter.CloseDeposit(bob, id)
	assert.True(t, errors.UnauthorizedError.Equals(err))

	require.NoError(t, f.splitter.CloseDeposit(alice, id))
	assert.Equal(t, y, f.wrapped.BalanceOf(bob))
	principal := new(big.Int).Sub(tenShares, y)
	assert.Equal(t, principal, f.wrapped.BalanceOf(alice))

	_, err = f.splitter.Get(id)
	assert.True(t, errors.NotFoundError.Equals(err))
	assert.Zero(t, f.wrapped.BalanceOf(splitterAcct).Sign())
}

func TestSplitter_SwapRemoveKeepsIndicesConsistent(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, new(big.Int).Mul(big.NewInt(3), tenShares))

	id0, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	id1, err := f.splitter.Deposit(alice, carol, tenShares)
	require.NoError(t, err)
	id2, err := f.splitter.Deposit(alice, dave, tenShares)
	require.NoError(t, err)

	// closing the first position swaps the last into its slot
	_, err = f.splitter.WithdrawAllPrincipal(alice, id0)
	require.NoError(t, err)

	for _, id := range []int64{id1, id2} {
		info, err := f.splitter.Get(id)
		require.NoError(t, err)
		assert.Equal(t, id, info.ID)
	}
	assert.ElementsMatch(t, []int64{id1, id2}, f.splitter.DepositorIDs(alice))
	assert.Empty(t, f.splitter.RecipientIDs(bob))

	// ids are never reused
	f.mintShares(t, alice, tenShares)
	id3, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id3)
	f.assertConservation(t)
}

func TestSplitter_StateRoundTrip(t *testing.T) {
	f := newSplitterFixture(t)
	f.mintShares(t, alice, new(big.Int).Mul(big.NewInt(2), tenShares))
	_, err := f.splitter.Deposit(alice, bob, tenShares)
	require.NoError(t, err)
	id1, err := f.splitter.Deposit(alice, carol, tenShares)
	require.NoError(t, err)
	require.NoError(t, f.splitter.GivePermissionToRedeem(carol, dave))
	f.rebasePercent(t, 1)

	st := f.splitter.State()
	yBefore, err := f.splitter.OutstandingYieldFor(id1)
	require.NoError(t, err)

	// mutate, then restore
	_, err = f.splitter.RedeemAllYield(carol, carol)
	require.NoError(t, err)
	f.splitter.ResetState(st)

	yAfter, err := f.splitter.OutstandingYieldFor(id1)
	require.NoError(t, err)
	assert.Equal(t, yBefore, yAfter)

	// the delegate grant survived the round trip
	_, err = f.splitter.RedeemYield(dave, id1)
	require.NoError(t, err)
}
