package fyde

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
	"github.com/fyde-finance/fyde/ledger"
)

var (
	governor = common.MustNewAddressFromString("hx0000000000000000000000000000000000000001")
	daoAcct  = common.MustNewAddressFromString("hx0000000000000000000000000000000000000006")
	alice    = common.MustNewAddressFromString("hx00000000000000000000000000000000000000aa")
	bob      = common.MustNewAddressFromString("hx00000000000000000000000000000000000000bb")
)

func testConfig() *Config {
	return &Config{
		Governor:         governor.String(),
		DAO:              daoAcct.String(),
		InitialSupply:    "0x2540be400", // 10 base tokens
		InitialIndex:     "0x3b9aca00",  // 1.0
		EpochLength:      100,
		FirstEpochNumber: 0,
		FirstEpochEnd:    100,
		FeeToDao:         100_000, // 10%
		MaxSwapSlippage:  20_000,  // 2%
	}
}

type engineFixture struct {
	dbase    db.Database
	engine   *Engine
	exchange *FixedRateExchange
	oracle   *StaticOracle
}

func newEngineFixture(t *testing.T, cfg *Config) *engineFixture {
	dbase, err := db.Open("", "mapdb", "test")
	require.NoError(t, err)
	logger := log.New()

	exchange, err := NewFixedRateExchange(new(big.Int).Set(ledger.Unit), 10_000)
	require.NoError(t, err)
	oracle := NewStaticOracle(ledger.Unit)

	e, err := NewEngine(cfg, dbase, logger, exchange, oracle)
	require.NoError(t, err)
	exchange.Bind(e.Base(), e.Settlement())
	require.NoError(t, e.Authority().Grant(governor, auth.Vault, exchange.Address()))
	require.NoError(t, e.Authority().Grant(governor, auth.Vault, governor))
	return &engineFixture{dbase: dbase, engine: e, exchange: exchange, oracle: oracle}
}

func (f *engineFixture) fund(t *testing.T, to *common.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.engine.Base().Mint(governor, to, big.NewInt(amount)))
}

func (f *engineFixture) rebasePercent(t *testing.T, pct int64) {
	t.Helper()
	staked := f.engine.Staked()
	profit := new(big.Int).Mul(staked.TotalSupply(), big.NewInt(pct))
	profit.Div(profit, big.NewInt(100))
	require.NoError(t, staked.Rebase(stakingAddr, profit, 0))
}

func TestEngine_ConfigValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Governor = ""
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.EpochLength = 0
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.InitialSupply = "ten"
	dbase, err := db.Open("", "mapdb", "test")
	require.NoError(t, err)
	_, err = NewEngine(cfg, dbase, log.New(), nil, nil)
	assert.Error(t, err)
}

func TestEngine_StakeRebaseUnstake(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.fund(t, alice, 1_000_000_000)

	out, err := f.engine.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), out.Int64())

	// reward lands on the staking reserve and is distributed over the
	// next two epoch boundaries
	f.fund(t, stakingAddr, 10_000_000)
	require.NoError(t, f.engine.Rebase(100))
	assert.Equal(t, int64(10_000_000), f.engine.Staking().Epoch().Distribute.Int64())
	require.NoError(t, f.engine.Rebase(200))
	assert.True(t, f.engine.Staked().BalanceOf(alice).Cmp(big.NewInt(1_000_000_000)) > 0)

	balance := f.engine.Staked().BalanceOf(alice)
	out, err = f.engine.Unstake(alice, alice, balance, false, true, 200)
	require.NoError(t, err)
	assert.Equal(t, balance, out)
	assert.Equal(t, balance, f.engine.Base().BalanceOf(alice))
}

func TestEngine_DoRollsBackEverything(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.fund(t, alice, 1_000_000_000)
	supplyBefore := f.engine.Base().TotalSupply()
	journalBefore := f.engine.Journal().Len()

	err := f.engine.Do(func() error {
		if err := f.engine.Base().Mint(governor, bob, big.NewInt(5)); err != nil {
			return err
		}
		if _, err := f.engine.Staking().Stake(alice, alice, big.NewInt(1_000_000_000), true, true); err != nil {
			return err
		}
		return errors.ErrInvalidState
	})
	require.Error(t, err)

	assert.Zero(t, f.engine.Base().BalanceOf(bob).Sign())
	assert.Equal(t, int64(1_000_000_000), f.engine.Base().BalanceOf(alice).Int64())
	assert.Zero(t, f.engine.Staked().BalanceOf(alice).Sign())
	assert.Equal(t, supplyBefore, f.engine.Base().TotalSupply())
	// the mint and stake events were discarded with the state
	assert.Equal(t, journalBefore, f.engine.Journal().Len())

	// a committed operation journals as usual
	_, err = f.engine.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)
	assert.Equal(t, journalBefore+1, f.engine.Journal().Len())
}

func TestEngine_DonateAndRedeem(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.fund(t, alice, 1_000_000_000)
	_, err := f.engine.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)

	var id int64
	require.NoError(t, f.engine.Do(func() error {
		var err error
		id, err = f.engine.Director().DepositStaked(alice, bob, big.NewInt(1_000_000_000))
		return err
	}))

	f.rebasePercent(t, 1)

	var out *big.Int
	require.NoError(t, f.engine.Do(func() error {
		var err error
		out, err = f.engine.Director().RedeemYieldAsStaked(bob, id)
		return err
	}))
	assert.Equal(t, out, f.engine.Staked().BalanceOf(bob))
	diff := new(big.Int).Sub(big.NewInt(10_000_000), out)
	assert.True(t, diff.CmpAbs(big.NewInt(2)) <= 0, "out=%v", out)

	// the donor's principal is untouched
	require.NoError(t, f.engine.Do(func() error {
		_, err := f.engine.Director().WithdrawAllPrincipalAsStaked(alice, id)
		return err
	}))
	diff = new(big.Int).Sub(big.NewInt(1_000_000_000), f.engine.Staked().BalanceOf(alice))
	assert.True(t, diff.CmpAbs(big.NewInt(2)) <= 0)
}

func TestEngine_UpkeepStreamsSettlementTokens(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.fund(t, alice, 1_000_000_000)
	_, err := f.engine.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)

	var shares *big.Int
	require.NoError(t, f.engine.Do(func() error {
		var err error
		shares, err = f.engine.Staking().Wrap(alice, alice, big.NewInt(1_000_000_000))
		return err
	}))
	require.NoError(t, f.engine.Do(func() error {
		_, err := f.engine.Streamer().Deposit(alice, bob, shares, 100, new(big.Int), 0)
		return err
	}))

	f.rebasePercent(t, 1)
	require.NoError(t, f.engine.Upkeep(100))

	paid := f.engine.Settlement().BalanceOf(bob)
	fee := f.engine.Settlement().BalanceOf(daoAcct)
	assert.True(t, paid.Sign() > 0)
	// the DAO fee is 10% of the swap output
	total := new(big.Int).Add(paid, fee)
	assert.Equal(t, new(big.Int).Div(total, big.NewInt(10)), fee)
}

func TestEngine_UpkeepPriceDropRollsBack(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.fund(t, alice, 1_000_000_000)
	_, err := f.engine.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)
	require.NoError(t, f.engine.Do(func() error {
		shares, err := f.engine.Staking().Wrap(alice, alice, big.NewInt(1_000_000_000))
		if err != nil {
			return err
		}
		_, err = f.engine.Streamer().Deposit(alice, bob, shares, 100, new(big.Int), 0)
		return err
	}))
	f.rebasePercent(t, 1)

	sharesBefore := f.engine.Wrapped().BalanceOf(streamerAddr)

	// the venue trades 10% under the oracle, past the 2% bound
	require.NoError(t, f.exchange.SetPrice(big.NewInt(900_000_000)))
	err = f.engine.Upkeep(100)
	assert.True(t, errors.SlippageExceededError.Equals(err))

	assert.Equal(t, sharesBefore, f.engine.Wrapped().BalanceOf(streamerAddr))
	assert.Zero(t, f.engine.Settlement().BalanceOf(bob).Sign())
	assert.Zero(t, f.engine.Base().BalanceOf(streamerAddr).Sign())

	require.NoError(t, f.exchange.SetPrice(ledger.Unit))
	require.NoError(t, f.engine.Upkeep(100))
	assert.True(t, f.engine.Settlement().BalanceOf(bob).Sign() > 0)
}

func TestEngine_RateDistributorFundsEpochs(t *testing.T) {
	cfg := testConfig()
	cfg.RewardRate = 10_000 // 1% of base supply per epoch
	f := newEngineFixture(t, cfg)
	f.fund(t, alice, 1_000_000_000)
	_, err := f.engine.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)

	supplyBefore := f.engine.Staked().TotalSupply()
	require.NoError(t, f.engine.Rebase(100))
	require.NoError(t, f.engine.Rebase(200))

	// the distributor minted rewards and the second rebase passed them
	// through to stakers
	assert.True(t, f.engine.Staked().TotalSupply().Cmp(supplyBefore) > 0)
	assert.True(t, f.engine.Staked().BalanceOf(alice).Cmp(big.NewInt(1_000_000_000)) > 0)
}

func TestEngine_WarmupPeriodFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupPeriod = 2
	f := newEngineFixture(t, cfg)
	f.fund(t, alice, 1_000_000_000)

	_, err := f.engine.Stake(alice, alice, big.NewInt(1_000_000_000), true, true)
	require.NoError(t, err)
	assert.Zero(t, f.engine.Staked().BalanceOf(alice).Sign())
	assert.Equal(t, int64(1_000_000_000), f.engine.Staking().SupplyInWarmup().Int64())

	require.NoError(t, f.engine.Rebase(100))
	require.NoError(t, f.engine.Rebase(200))
	out, err := f.engine.Claim(alice, alice, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), out.Int64())
}

func TestEngine_StreamerUnavailableWithoutExchange(t *testing.T) {
	dbase, err := db.Open("", "mapdb", "test")
	require.NoError(t, err)
	e, err := NewEngine(testConfig(), dbase, log.New(), nil, nil)
	require.NoError(t, err)

	assert.Nil(t, e.Streamer())
	err = e.Upkeep(100)
	assert.True(t, errors.InvalidStateError.Equals(err))
}

func TestEngine_LoadRejectsGenesisMismatch(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	require.NoError(t, f.engine.Flush())

	cfg := testConfig()
	cfg.InitialSupply = "0x4a817c800" // 20 base tokens
	other, err := NewEngine(cfg, f.dbase, log.New(), nil, nil)
	require.NoError(t, err)

	err = other.Load()
	assert.True(t, errors.InvalidStateError.Equals(err))
}

func TestEngine_FlushLoadRoundTrip(t *testing.T) {
	f := newEngineFixture(t, testConfig())
	f.fund(t, alice, 1_000_000_000)
	_, err := f.engine.Stake(alice, alice, big.NewInt(600_000_000), true, true)
	require.NoError(t, err)
	require.NoError(t, f.engine.Do(func() error {
		_, err := f.engine.Director().DepositStaked(alice, bob, big.NewInt(100_000_000))
		return err
	}))
	require.NoError(t, f.engine.Settlement().Mint(governor, bob, big.NewInt(777)))
	require.NoError(t, f.engine.Flush())

	restored, err := NewEngine(testConfig(), f.dbase, log.New(), f.exchange, f.oracle)
	require.NoError(t, err)
	require.NoError(t, restored.Load())

	assert.Equal(t, f.engine.Base().BalanceOf(alice), restored.Base().BalanceOf(alice))
	assert.Equal(t, f.engine.Staked().BalanceOf(alice), restored.Staked().BalanceOf(alice))
	assert.Equal(t, f.engine.Staked().Index(), restored.Staked().Index())
	assert.Equal(t, f.engine.Settlement().BalanceOf(bob), restored.Settlement().BalanceOf(bob))
	assert.Equal(t, f.engine.Staking().Epoch(), restored.Staking().Epoch())
	assert.Equal(t, f.engine.Director().TotalDeposits(alice), restored.Director().TotalDeposits(alice))
}
