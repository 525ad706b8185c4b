package staking

import (
	"math/big"

	"github.com/fyde-finance/fyde/auth"
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
	"github.com/fyde-finance/fyde/ledger"
	"github.com/fyde-finance/fyde/module"
)

// Epoch is the global rebase schedule. End advances additively by
// Length so the schedule never drifts.
type Epoch struct {
	Length     int64
	Number     int64
	End        int64
	Distribute *big.Int
}

// WarmupInfo is a pending claim. Deposit is denominated in base units,
// Gons in the rebasing ledger's internal unit so the entry appreciates
// while it waits.
type WarmupInfo struct {
	Deposit *big.Int
	Gons    *big.Int
	Expiry  int64
	Lock    bool
}

// Staking bridges the base token into the rebasing ledger or the
// wrapped share token through an epoch warmup. It owns the rebase
// trigger and the warmup bucket.
type Staking struct {
	authority *auth.Authority
	journal   *events.Journal
	log       log.Logger

	addr    *common.Address
	base    *ledger.Base
	staked  *ledger.Staked
	wrapped *ledger.Wrapped

	epoch        Epoch
	warmupPeriod int64
	warmups      map[common.Address]*WarmupInfo
	gonsInWarmup *big.Int

	distributor module.Distributor
}

func NewStaking(
	authority *auth.Authority,
	journal *events.Journal,
	logger log.Logger,
	base *ledger.Base,
	staked *ledger.Staked,
	wrapped *ledger.Wrapped,
	addr *common.Address,
	epochLength, firstEpochNumber, firstEpochEnd int64,
) (*Staking, error) {
	if base == nil || staked == nil || wrapped == nil {
		return nil, errors.ErrInvalidAddress
	}
	if addr == nil || addr.IsZero() {
		return nil, errors.ErrInvalidAddress
	}
	if epochLength <= 0 {
		return nil, errors.IllegalArgumentError.New("InvalidEpochLength")
	}
	return &Staking{
		authority: authority,
		journal:   journal,
		log:       logger.WithFields(log.Fields{log.FieldKeyModule: "staking"}),
		addr:      addr,
		base:      base,
		staked:    staked,
		wrapped:   wrapped,
		epoch: Epoch{
			Length:     epochLength,
			Number:     firstEpochNumber,
			End:        firstEpochEnd,
			Distribute: new(big.Int),
		},
		warmups:      make(map[common.Address]*WarmupInfo),
		gonsInWarmup: new(big.Int),
	}, nil
}

func (s *Staking) Address() *common.Address {
	return s.addr
}

func (s *Staking) Epoch() Epoch {
	e := s.epoch
	e.Distribute = new(big.Int).Set(s.epoch.Distribute)
	return e
}

func (s *Staking) WarmupPeriod() int64 {
	return s.warmupPeriod
}

// SetDistributor installs the reward distributor. Governor only.
func (s *Staking) SetDistributor(caller *common.Address, d module.Distributor) error {
	if err := s.authority.Check(auth.Governor, caller); err != nil {
		return err
	}
	s.distributor = d
	s.log.Infof("DistributorSet()")
	return nil
}

// SetWarmupLength sets the number of epochs deposits wait before they
// become claimable. Governor only.
func (s *Staking) SetWarmupLength(caller *common.Address, period int64) error {
	if err := s.authority.Check(auth.Governor, caller); err != nil {
		return err
	}
	if period < 0 {
		return errors.IllegalArgumentError.New("NegativeWarmup")
	}
	s.warmupPeriod = period
	s.log.Infof("WarmupSet(period=%d)", period)
	return nil
}

// ToggleLock flips the caller's self-lock. While locked, no external
// actor may stake to or claim for the account.
func (s *Staking) ToggleLock(caller *common.Address) bool {
	info := s.warmupOf(caller)
	info.Lock = !info.Lock
	return info.Lock
}

func (s *Staking) warmupOf(addr *common.Address) *WarmupInfo {
	if info, ok := s.warmups[*addr]; ok {
		return info
	}
	info := &WarmupInfo{
		Deposit: new(big.Int),
		Gons:    new(big.Int),
	}
	s.warmups[*addr] = info
	return info
}

func (s *Staking) WarmupInfoOf(addr *common.Address) WarmupInfo {
	info := s.warmupOf(addr)
	return WarmupInfo{
		Deposit: new(big.Int).Set(info.Deposit),
		Gons:    new(big.Int).Set(info.Gons),
		Expiry:  info.Expiry,
		Lock:    info.Lock,
	}
}

// SupplyInWarmup reports the rebasing-unit value currently held across
// all warmup entries.
func (s *Staking) SupplyInWarmup() *big.Int {
	return s.staked.BalanceForGons(s.gonsInWarmup)
}

// Stake pulls amount base tokens from the caller and either credits to
// immediately (claim with zero warmup) or parks the value in warmup.
func (s *Staking) Stake(caller, to *common.Address, amount *big.Int, rebasing, claim bool) (*big.Int, error) {
	if to == nil || to.IsZero() {
		return nil, errors.ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.IllegalArgumentError.New("InvalidAmount")
	}
	if claim && s.warmupPeriod == 0 {
		if err := s.base.Transfer(caller, s.addr, amount); err != nil {
			return nil, err
		}
		if err := s.send(to, amount, rebasing); err != nil {
			return nil, err
		}
		s.journal.Append(events.TypeStake, map[string]string{
			"from": caller.String(), "to": to.String(), "amount": amount.String(),
		})
		return new(big.Int).Set(amount), nil
	}
	info := s.warmupOf(to)
	if !to.Equal(caller) && info.Lock {
		return nil, errors.LockedAccountError.Errorf("ExternalDepositLocked(to=%s)", to)
	}
	if err := s.base.Transfer(caller, s.addr, amount); err != nil {
		return nil, err
	}
	gons := s.staked.GonsForBalance(amount)
	info.Deposit.Add(info.Deposit, amount)
	info.Gons.Add(info.Gons, gons)
	info.Expiry = s.epoch.Number + s.warmupPeriod
	s.gonsInWarmup.Add(s.gonsInWarmup, gons)
	s.journal.Append(events.TypeStake, map[string]string{
		"from": caller.String(), "to": to.String(), "amount": amount.String(),
		"expiry": common.FormatInt(info.Expiry),
	})
	return new(big.Int).Set(amount), nil
}

// Claim releases a matured warmup entry. Returns zero with no error
// when there is nothing claimable yet.
func (s *Staking) Claim(caller, to *common.Address, rebasing bool) (*big.Int, error) {
	if to == nil || to.IsZero() {
		return nil, errors.ErrInvalidAddress
	}
	info, ok := s.warmups[*to]
	if !ok || info.Gons.Sign() == 0 {
		return new(big.Int), nil
	}
	if !to.Equal(caller) && info.Lock {
		return nil, errors.LockedAccountError.Errorf("ExternalClaimLocked(to=%s)", to)
	}
	if s.epoch.Number < info.Expiry {
		return new(big.Int), nil
	}
	amount := s.staked.BalanceForGons(info.Gons)
	s.gonsInWarmup.Sub(s.gonsInWarmup, info.Gons)
	lock := info.Lock
	delete(s.warmups, *to)
	if lock {
		// keep the lock toggle across claims
		s.warmupOf(to).Lock = true
	}
	if err := s.send(to, amount, rebasing); err != nil {
		return nil, err
	}
	s.journal.Append(events.TypeClaim, map[string]string{
		"to": to.String(), "amount": amount.String(),
	})
	return amount, nil
}

// Forfeit cancels the caller's warmup entry, returning the original
// deposit and abandoning any appreciation it earned while waiting.
func (s *Staking) Forfeit(caller *common.Address) (*big.Int, error) {
	info, ok := s.warmups[*caller]
	if !ok || info.Gons.Sign() == 0 {
		return new(big.Int), nil
	}
	deposit := new(big.Int).Set(info.Deposit)
	s.gonsInWarmup.Sub(s.gonsInWarmup, info.Gons)
	lock := info.Lock
	delete(s.warmups, *caller)
	if lock {
		s.warmupOf(caller).Lock = true
	}
	if err := s.base.Transfer(s.addr, caller, deposit); err != nil {
		return nil, err
	}
	s.journal.Append(events.TypeForfeit, map[string]string{
		"from": caller.String(), "amount": deposit.String(),
	})
	return deposit, nil
}

// Unstake redeems rebasing tokens or wrapped shares back into base
// tokens. With trigger set, a due rebase runs first so the caller
// exits at the post-rebase rate.
func (s *Staking) Unstake(caller, to *common.Address, amount *big.Int, trigger, rebasing bool, now int64) (*big.Int, error) {
	if to == nil || to.IsZero() {
		return nil, errors.ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.IllegalArgumentError.New("InvalidAmount")
	}
	if trigger {
		if err := s.Rebase(now); err != nil {
			return nil, err
		}
	}
	out := new(big.Int).Set(amount)
	if rebasing {
		if err := s.staked.Transfer(caller, s.addr, amount); err != nil {
			return nil, err
		}
	} else {
		out = s.wrapped.BalanceFrom(amount)
		if err := s.wrapped.Burn(s.addr, caller, amount); err != nil {
			return nil, err
		}
	}
	if out.Cmp(s.base.BalanceOf(s.addr)) > 0 {
		return nil, errors.InsufficientBalanceError.New("InsufficientReserve")
	}
	if err := s.base.Transfer(s.addr, to, out); err != nil {
		return nil, err
	}
	s.journal.Append(events.TypeUnstake, map[string]string{
		"from": caller.String(), "to": to.String(), "amount": out.String(),
	})
	return out, nil
}

// Wrap converts the caller's rebasing balance into wrapped shares.
func (s *Staking) Wrap(caller, to *common.Address, amount *big.Int) (*big.Int, error) {
	if err := s.staked.Transfer(caller, s.addr, amount); err != nil {
		return nil, err
	}
	shares := s.wrapped.BalanceTo(amount)
	if err := s.wrapped.Mint(s.addr, to, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// Unwrap burns the caller's wrapped shares and releases the rebasing
// equivalent at the current index.
func (s *Staking) Unwrap(caller, to *common.Address, amount *big.Int) (*big.Int, error) {
	out := s.wrapped.BalanceFrom(amount)
	if err := s.wrapped.Burn(s.addr, caller, amount); err != nil {
		return nil, err
	}
	if err := s.staked.Transfer(s.addr, to, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rebase advances the epoch once its end has passed. It applies the
// pre-computed distribute amount, notifies the distributor, then
// derives the next epoch's distribute from the engine's excess base
// balance. Callable by anyone; a call before epoch end is a no-op.
func (s *Staking) Rebase(now int64) error {
	if now < s.epoch.End {
		return nil
	}
	stakedBefore := s.staked.Snapshot()
	epochBefore := s.Epoch()
	s.journal.Begin()

	if err := s.staked.Rebase(s.addr, s.epoch.Distribute, s.epoch.Number); err != nil {
		s.journal.Discard()
		return err
	}
	s.epoch.End += s.epoch.Length
	s.epoch.Number++

	if s.distributor != nil {
		if err := s.distributor.Distribute(); err != nil {
			s.staked.Reset(stakedBefore)
			s.epoch = epochBefore
			s.journal.Discard()
			return errors.Wrapf(err, "DistributeFailed(epoch=%d)", epochBefore.Number)
		}
	}

	balance := s.base.BalanceOf(s.addr)
	// staked value held against the reserve: distributed rebasing
	// balances plus the backing of wrapped shares and warmup entries,
	// both of which sit on the staking account
	staked := s.staked.CirculatingSupply()
	staked.Add(staked, s.wrapped.BalanceFrom(s.wrapped.TotalSupply()))
	staked.Add(staked, s.SupplyInWarmup())
	if balance.Cmp(staked) <= 0 {
		s.epoch.Distribute = new(big.Int)
	} else {
		s.epoch.Distribute = balance.Sub(balance, staked)
	}
	s.journal.Commit()
	s.log.Debugf("Rebase(epoch=%d,distribute=%v)", s.epoch.Number, s.epoch.Distribute)
	return nil
}

func (s *Staking) send(to *common.Address, amount *big.Int, rebasing bool) error {
	if rebasing {
		return s.staked.Transfer(s.addr, to, amount)
	}
	return s.wrapped.Mint(s.addr, to, s.wrapped.BalanceTo(amount))
}
