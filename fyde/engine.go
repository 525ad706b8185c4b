package fyde

import (
	"math/big"
	"sync"

	"gopkg.in/go-playground/validator.v9"

	"github.com/fyde-finance/fyde/auth"
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/db"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
	"github.com/fyde-finance/fyde/ledger"
	"github.com/fyde-finance/fyde/module"
	"github.com/fyde-finance/fyde/staking"
	"github.com/fyde-finance/fyde/yield"
)

// Config is the genesis configuration of an engine. Amounts are
// "0x" hex strings in the smallest unit.
type Config struct {
	Governor         string `json:"governor" validate:"required"`
	DAO              string `json:"dao" validate:"required"`
	InitialSupply    string `json:"initial_supply" validate:"required"`
	InitialIndex     string `json:"initial_index" validate:"required"`
	EpochLength      int64  `json:"epoch_length" validate:"gt=0"`
	FirstEpochNumber int64  `json:"first_epoch_number" validate:"gte=0"`
	FirstEpochEnd    int64  `json:"first_epoch_end" validate:"gte=0"`
	WarmupPeriod     int64  `json:"warmup_period" validate:"gte=0"`
	RewardRate       int64  `json:"reward_rate" validate:"gte=0,lte=1000000"`
	FeeToDao         int64  `json:"fee_to_dao" validate:"gte=0,lte=1000000"`
	MaxSwapSlippage  int64  `json:"max_swap_slippage" validate:"gte=0,lte=1000000"`
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.IllegalArgumentError.Wrap(err, "InvalidConfig")
	}
	return nil
}

// Engine composes the ledgers, the staking machine and the yield
// components behind one lock. Every mutating operation is serialized
// and either commits in full or leaves no trace; rollback is a full
// state reset from pre-operation snapshots.
type Engine struct {
	lock sync.Mutex
	log  log.Logger

	dbase     db.Database
	authority *auth.Authority
	journal   *events.Journal

	base       *ledger.Base
	staked     *ledger.Staked
	wrapped    *ledger.Wrapped
	settlement *ledger.Base

	staking  *staking.Staking
	director *yield.Director
	streamer *yield.Streamer

	governor common.Address
	genesis  Config
}

// Well-known engine account addresses. Contract-tagged so they can
// never collide with externally owned accounts.
var (
	stakingAddr  = common.MustNewAddressFromString("cx0000000000000000000000000000000000000001")
	directorAddr = common.MustNewAddressFromString("cx0000000000000000000000000000000000000002")
	streamerAddr = common.MustNewAddressFromString("cx0000000000000000000000000000000000000003")
)

// settlementKey separates the settlement ledger from the base ledger
// within the shared state bucket.
const settlementKey = "settlement"

const genesisKey = "genesis"

// NewEngine builds and wires a fresh engine from genesis config. The
// exchange and oracle are external collaborators; pass nil to leave
// the streamer's upkeep unavailable.
func NewEngine(
	cfg *Config,
	dbase db.Database,
	logger log.Logger,
	exchange module.Exchange,
	oracle module.PriceOracle,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	governor, err := common.NewAddressFromString(cfg.Governor)
	if err != nil {
		return nil, err
	}
	dao, err := common.NewAddressFromString(cfg.DAO)
	if err != nil {
		return nil, err
	}
	initialSupply := new(big.Int)
	if err := common.ParseBigInt(initialSupply, cfg.InitialSupply); err != nil {
		return nil, err
	}
	initialIndex := new(big.Int)
	if err := common.ParseBigInt(initialIndex, cfg.InitialIndex); err != nil {
		return nil, err
	}

	authority, err := auth.New(governor)
	if err != nil {
		return nil, err
	}
	journal, err := events.NewJournal(dbase, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		log:       logger.WithFields(log.Fields{log.FieldKeyModule: "engine"}),
		dbase:     dbase,
		authority: authority,
		journal:   journal,
		governor:  *governor,
		genesis:   *cfg,
	}
	e.base = ledger.NewBase(authority, journal, logger)
	e.settlement = ledger.NewBase(authority, journal, logger)
	e.staked, err = ledger.NewStaked(authority, journal, logger, initialSupply)
	if err != nil {
		return nil, err
	}
	if err := e.staked.SetIndex(initialIndex); err != nil {
		return nil, err
	}
	e.wrapped = ledger.NewWrapped(authority, journal, logger, e.staked)

	e.staking, err = staking.NewStaking(
		authority, journal, logger, e.base, e.staked, e.wrapped, stakingAddr,
		cfg.EpochLength, cfg.FirstEpochNumber, cfg.FirstEpochEnd)
	if err != nil {
		return nil, err
	}
	if err := e.staked.Initialize(stakingAddr); err != nil {
		return nil, err
	}
	// the staking account mints and burns wrapped shares and funds
	// warmup exits
	if err := authority.Grant(governor, auth.Minter, stakingAddr); err != nil {
		return nil, err
	}
	if cfg.WarmupPeriod > 0 {
		if err := e.staking.SetWarmupLength(governor, cfg.WarmupPeriod); err != nil {
			return nil, err
		}
	}

	e.director, err = yield.NewDirector(
		authority, journal, logger, e.wrapped, e.staking, directorAddr)
	if err != nil {
		return nil, err
	}
	if exchange != nil && oracle != nil {
		e.streamer, err = yield.NewStreamer(
			authority, journal, logger, e.wrapped, e.base, e.staking,
			e.settlement, exchange, oracle, streamerAddr, dao,
			cfg.FeeToDao, cfg.MaxSwapSlippage)
		if err != nil {
			return nil, err
		}
	}

	if cfg.RewardRate > 0 {
		d, err := NewRateDistributor(logger, e.base, stakingAddr, cfg.RewardRate)
		if err != nil {
			return nil, err
		}
		if err := authority.Grant(governor, auth.Vault, d.Address()); err != nil {
			return nil, err
		}
		if err := e.staking.SetDistributor(governor, d); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) Authority() *auth.Authority  { return e.authority }
func (e *Engine) Journal() *events.Journal    { return e.journal }
func (e *Engine) Base() *ledger.Base          { return e.base }
func (e *Engine) Staked() *ledger.Staked      { return e.staked }
func (e *Engine) Wrapped() *ledger.Wrapped    { return e.wrapped }
func (e *Engine) Settlement() *ledger.Base    { return e.settlement }
func (e *Engine) Staking() *staking.Staking   { return e.staking }
func (e *Engine) Director() *yield.Director   { return e.director }
func (e *Engine) Streamer() *yield.Streamer   { return e.streamer }
func (e *Engine) StakingAddress() *common.Address  { return stakingAddr }
func (e *Engine) DirectorAddress() *common.Address { return directorAddr }
func (e *Engine) StreamerAddress() *common.Address { return streamerAddr }

type engineState struct {
	base     *ledger.BaseSnapshot
	staked   *ledger.StakedSnapshot
	wrapped  *ledger.WrappedSnapshot
	settle   *ledger.BaseSnapshot
	staking  *staking.Snapshot
	director *yield.DirectorSnapshot
	streamer *yield.StreamerSnapshot
}

func (e *Engine) snapshot() *engineState {
	st := &engineState{
		base:     e.base.Snapshot(),
		staked:   e.staked.Snapshot(),
		wrapped:  e.wrapped.Snapshot(),
		settle:   e.settlement.Snapshot(),
		staking:  e.staking.Snapshot(),
		director: e.director.Snapshot(),
	}
	if e.streamer != nil {
		st.streamer = e.streamer.Snapshot()
	}
	return st
}

func (e *Engine) reset(st *engineState) {
	e.base.Reset(st.base)
	e.staked.Reset(st.staked)
	e.wrapped.Reset(st.wrapped)
	e.settlement.Reset(st.settle)
	e.staking.Reset(st.staking)
	e.director.Reset(st.director)
	if e.streamer != nil && st.streamer != nil {
		e.streamer.Reset(st.streamer)
	}
}

// Do runs one mutating operation under the engine lock with
// all-or-nothing semantics. Journal events are staged for the
// duration of the operation so a rollback also drops them.
func (e *Engine) Do(fn func() error) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	before := e.snapshot()
	e.journal.Begin()
	if err := fn(); err != nil {
		e.reset(before)
		e.journal.Discard()
		return err
	}
	e.journal.Commit()
	return nil
}

// View runs a read-only function under the engine lock.
func (e *Engine) View(fn func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	fn()
}

// Stake moves base tokens into the staking engine for the target
// account.
func (e *Engine) Stake(caller, to *common.Address, amount *big.Int, rebasing, claim bool) (out *big.Int, err error) {
	err = e.Do(func() error {
		out, err = e.staking.Stake(caller, to, amount, rebasing, claim)
		return err
	})
	return
}

func (e *Engine) Claim(caller, to *common.Address, rebasing bool) (out *big.Int, err error) {
	err = e.Do(func() error {
		out, err = e.staking.Claim(caller, to, rebasing)
		return err
	})
	return
}

func (e *Engine) Forfeit(caller *common.Address) (out *big.Int, err error) {
	err = e.Do(func() error {
		out, err = e.staking.Forfeit(caller)
		return err
	})
	return
}

func (e *Engine) Unstake(caller, to *common.Address, amount *big.Int, trigger, rebasing bool, now int64) (out *big.Int, err error) {
	err = e.Do(func() error {
		out, err = e.staking.Unstake(caller, to, amount, trigger, rebasing, now)
		return err
	})
	return
}

func (e *Engine) Wrap(caller, to *common.Address, amount *big.Int) (out *big.Int, err error) {
	err = e.Do(func() error {
		out, err = e.staking.Wrap(caller, to, amount)
		return err
	})
	return
}

func (e *Engine) Unwrap(caller, to *common.Address, amount *big.Int) (out *big.Int, err error) {
	err = e.Do(func() error {
		out, err = e.staking.Unwrap(caller, to, amount)
		return err
	})
	return
}

func (e *Engine) Rebase(now int64) error {
	return e.Do(func() error {
		return e.staking.Rebase(now)
	})
}

func (e *Engine) ToggleLock(caller *common.Address) (locked bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.staking.ToggleLock(caller)
}

// Upkeep runs the streamer's scheduled swap and distribution.
func (e *Engine) Upkeep(now int64) error {
	if e.streamer == nil {
		return errors.InvalidStateError.New("StreamerUnavailable")
	}
	return e.Do(func() error {
		return e.streamer.Upkeep(now)
	})
}

// Flush persists every component to the underlying database.
func (e *Engine) Flush() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	bk, err := db.NewCodedBucket(e.dbase, db.EngineProperty, nil)
	if err != nil {
		return err
	}
	if err := bk.Set(genesisKey, &e.genesis); err != nil {
		return err
	}
	if err := e.base.Flush(e.dbase); err != nil {
		return err
	}
	if err := e.settlement.FlushAs(e.dbase, settlementKey); err != nil {
		return err
	}
	if err := e.staked.Flush(e.dbase); err != nil {
		return err
	}
	if err := e.wrapped.Flush(e.dbase); err != nil {
		return err
	}
	if err := e.staking.Flush(e.dbase); err != nil {
		return err
	}
	if err := e.director.Flush(e.dbase); err != nil {
		return err
	}
	if e.streamer != nil {
		if err := e.streamer.Flush(e.dbase); err != nil {
			return err
		}
	}
	return nil
}

// Load restores every component from the underlying database,
// replacing genesis state. The stored genesis parameters must match
// the configured ones; a database cannot be reopened under a
// different genesis.
func (e *Engine) Load() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	bk, err := db.NewCodedBucket(e.dbase, db.EngineProperty, nil)
	if err != nil {
		return err
	}
	var stored Config
	if err := bk.Get(genesisKey, &stored); err != nil {
		return err
	}
	if stored.InitialSupply != e.genesis.InitialSupply ||
		stored.InitialIndex != e.genesis.InitialIndex ||
		stored.EpochLength != e.genesis.EpochLength {
		return errors.InvalidStateError.Errorf(
			"GenesisMismatch(stored=%s/%s,configured=%s/%s)",
			stored.InitialSupply, stored.InitialIndex,
			e.genesis.InitialSupply, e.genesis.InitialIndex)
	}
	if err := e.base.Load(e.dbase); err != nil {
		return err
	}
	if err := e.settlement.LoadAs(e.dbase, settlementKey); err != nil {
		return err
	}
	if err := e.staked.Load(e.dbase); err != nil {
		return err
	}
	if err := e.wrapped.Load(e.dbase); err != nil {
		return err
	}
	if err := e.staking.Load(e.dbase); err != nil {
		return err
	}
	if err := e.director.Load(e.dbase); err != nil {
		return err
	}
	if e.streamer != nil {
		if err := e.streamer.Load(e.dbase); err != nil {
			if errors.NotFoundError.Equals(err) {
				return nil
			}
			return err
		}
	}
	return nil
}
