package yield

import (
	"math/big"

	"github.com/fyde-finance/fyde/auth"
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
	"github.com/fyde-finance/fyde/ledger"
	"github.com/fyde-finance/fyde/module"
	"github.com/fyde-finance/fyde/staking"
)

// PercentUnit is the denominator for streamer percentages. A fee of
// 1000 is 0.1%.
const PercentUnit = 1_000_000

// RecipientRecord carries the streaming terms attached to one
// position: how often yield is paid, the minimum payout size, and any
// settlement tokens accrued below that minimum.
type RecipientRecord struct {
	Recipient       common.Address
	PaymentInterval int64
	LastUpkeep      int64
	UserMinimum     *big.Int
	Unclaimed       *big.Int
}

// Streamer redeems accrued yield on a schedule, swaps it into the
// settlement token through an external exchange, and pays recipients
// out in that token. The swap is protected by an oracle-anchored
// slippage bound.
type Streamer struct {
	*Splitter

	authority  *auth.Authority
	staking    *staking.Staking
	base       *ledger.Base
	settlement module.Token
	exchange   module.Exchange
	oracle     module.PriceOracle
	daoAddr    *common.Address

	records map[int64]*RecipientRecord

	feeToDao        int64
	maxSwapSlippage int64
	minimumTokens   *big.Int

	depositDisabled  bool
	withdrawDisabled bool
	upkeepDisabled   bool
}

// settlementLedger is the snapshot surface of a settlement token backed
// by an in-memory ledger. When the configured token implements it,
// Upkeep includes the settlement balances in its local rollback;
// otherwise a failed upkeep must be unwound by the caller.
type settlementLedger interface {
	module.Token
	Snapshot() *ledger.BaseSnapshot
	Reset(*ledger.BaseSnapshot)
}

func NewStreamer(
	authority *auth.Authority,
	journal *events.Journal,
	logger log.Logger,
	wrapped *ledger.Wrapped,
	base *ledger.Base,
	stk *staking.Staking,
	settlement module.Token,
	exchange module.Exchange,
	oracle module.PriceOracle,
	addr, daoAddr *common.Address,
	feeToDao, maxSwapSlippage int64,
) (*Streamer, error) {
	sp, err := NewSplitter(journal, logger, wrapped, addr, "streamer")
	if err != nil {
		return nil, err
	}
	if stk == nil || base == nil || settlement == nil || exchange == nil || oracle == nil {
		return nil, errors.IllegalArgumentError.New("MissingCollaborator")
	}
	if daoAddr == nil || daoAddr.IsZero() {
		return nil, errors.ErrInvalidAddress
	}
	if feeToDao < 0 || feeToDao > PercentUnit || maxSwapSlippage < 0 || maxSwapSlippage > PercentUnit {
		return nil, errors.IllegalArgumentError.New("InvalidPercent")
	}
	return &Streamer{
		Splitter:        sp,
		authority:       authority,
		staking:         stk,
		base:            base,
		settlement:      settlement,
		exchange:        exchange,
		oracle:          oracle,
		daoAddr:         daoAddr,
		records:         make(map[int64]*RecipientRecord),
		feeToDao:        feeToDao,
		maxSwapSlippage: maxSwapSlippage,
		minimumTokens:   new(big.Int),
	}, nil
}

func (s *Streamer) FeeToDao() int64        { return s.feeToDao }
func (s *Streamer) MaxSwapSlippage() int64 { return s.maxSwapSlippage }

func (s *Streamer) RecordFor(id int64) (*RecipientRecord, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, errors.NotFoundError.Errorf("UnknownDeposit(id=%d)", id)
	}
	return &RecipientRecord{
		Recipient:       r.Recipient,
		PaymentInterval: r.PaymentInterval,
		LastUpkeep:      r.LastUpkeep,
		UserMinimum:     new(big.Int).Set(r.UserMinimum),
		Unclaimed:       new(big.Int).Set(r.Unclaimed),
	}, nil
}

// SetFeeToDao sets the protocol fee taken from swapped yield, out of
// PercentUnit. Governor only.
func (s *Streamer) SetFeeToDao(caller *common.Address, fee int64) error {
	if err := s.authority.Check(auth.Governor, caller); err != nil {
		return err
	}
	if fee < 0 || fee > PercentUnit {
		return errors.IllegalArgumentError.New("InvalidPercent")
	}
	s.feeToDao = fee
	return nil
}

func (s *Streamer) SetMaxSwapSlippage(caller *common.Address, slippage int64) error {
	if err := s.authority.Check(auth.Governor, caller); err != nil {
		return err
	}
	if slippage < 0 || slippage > PercentUnit {
		return errors.IllegalArgumentError.New("InvalidPercent")
	}
	s.maxSwapSlippage = slippage
	return nil
}

// SetMinimumTokenThreshold sets the minimum total yield, in wrapped
// shares, below which upkeep skips the swap. Governor only.
func (s *Streamer) SetMinimumTokenThreshold(caller *common.Address, min *big.Int) error {
	if err := s.authority.Check(auth.Governor, caller); err != nil {
		return err
	}
	if min == nil || min.Sign() < 0 {
		return errors.IllegalArgumentError.New("InvalidThreshold")
	}
	s.minimumTokens = new(big.Int).Set(min)
	return nil
}

func (s *Streamer) SetDepositDisabled(caller *common.Address, disabled bool) error {
	if err := s.authority.Check(auth.Guardian, caller); err != nil {
		return err
	}
	s.depositDisabled = disabled
	return nil
}

func (s *Streamer) SetWithdrawDisabled(caller *common.Address, disabled bool) error {
	if err := s.authority.Check(auth.Guardian, caller); err != nil {
		return err
	}
	s.withdrawDisabled = disabled
	return nil
}

func (s *Streamer) SetUpkeepDisabled(caller *common.Address, disabled bool) error {
	if err := s.authority.Check(auth.Guardian, caller); err != nil {
		return err
	}
	s.upkeepDisabled = disabled
	return nil
}

// Deposit opens a streaming position: amount wrapped shares whose
// yield is swapped and paid to recipient every paymentInterval
// seconds, withheld while below userMinimum settlement tokens.
func (s *Streamer) Deposit(caller, recipient *common.Address, amount *big.Int,
	paymentInterval int64, userMinimum *big.Int, now int64) (int64, error) {
	if s.depositDisabled {
		return 0, errors.FeatureDisabledError.New("DepositsDisabled")
	}
	if paymentInterval <= 0 {
		return 0, errors.IllegalArgumentError.New("InvalidInterval")
	}
	if userMinimum == nil || userMinimum.Sign() < 0 {
		return 0, errors.IllegalArgumentError.New("InvalidThreshold")
	}
	id, err := s.Splitter.Deposit(caller, recipient, amount)
	if err != nil {
		return 0, err
	}
	s.records[id] = &RecipientRecord{
		Recipient:       *recipient,
		PaymentInterval: paymentInterval,
		LastUpkeep:      now,
		UserMinimum:     new(big.Int).Set(userMinimum),
		Unclaimed:       new(big.Int),
	}
	return id, nil
}

func (s *Streamer) AddToDeposit(caller *common.Address, id int64, amount *big.Int) error {
	if s.depositDisabled {
		return errors.FeatureDisabledError.New("DepositsDisabled")
	}
	return s.Splitter.AddToDeposit(caller, id, amount)
}

func (s *Streamer) WithdrawPrincipal(caller *common.Address, id int64, shares *big.Int) error {
	if s.withdrawDisabled {
		return errors.FeatureDisabledError.New("WithdrawalsDisabled")
	}
	if err := s.Splitter.WithdrawPrincipal(caller, id, shares); err != nil {
		return err
	}
	return s.settleClosed(id)
}

func (s *Streamer) WithdrawAllPrincipal(caller *common.Address, id int64) (*big.Int, error) {
	if s.withdrawDisabled {
		return nil, errors.FeatureDisabledError.New("WithdrawalsDisabled")
	}
	out, err := s.Splitter.WithdrawAllPrincipal(caller, id)
	if err != nil {
		return nil, err
	}
	return out, s.settleClosed(id)
}

// settleClosed drops the stream record once the underlying position is
// gone, paying out anything accrued below the recipient's minimum.
func (s *Streamer) settleClosed(id int64) error {
	if _, err := s.Splitter.Get(id); err == nil {
		return nil
	}
	r, ok := s.records[id]
	if !ok {
		return nil
	}
	delete(s.records, id)
	if r.Unclaimed.Sign() > 0 {
		return s.settlement.Transfer(s.addr, &r.Recipient, r.Unclaimed)
	}
	return nil
}

// UpdatePaymentInterval changes how often the position's yield is paid
// out. Depositor only.
func (s *Streamer) UpdatePaymentInterval(caller *common.Address, id int64, interval int64) error {
	if interval <= 0 {
		return errors.IllegalArgumentError.New("InvalidInterval")
	}
	d, err := s.Splitter.Get(id)
	if err != nil {
		return err
	}
	if !d.Depositor.Equal(caller) {
		return errors.UnauthorizedError.Errorf("NotDepositor(id=%d,caller=%s)", id, caller)
	}
	s.records[id].PaymentInterval = interval
	return nil
}

// UpdateUserMinimumThreshold changes the minimum settlement-token
// payout for the position. Depositor only.
func (s *Streamer) UpdateUserMinimumThreshold(caller *common.Address, id int64, min *big.Int) error {
	if min == nil || min.Sign() < 0 {
		return errors.IllegalArgumentError.New("InvalidThreshold")
	}
	d, err := s.Splitter.Get(id)
	if err != nil {
		return err
	}
	if !d.Depositor.Equal(caller) {
		return errors.UnauthorizedError.Errorf("NotDepositor(id=%d,caller=%s)", id, caller)
	}
	s.records[id].UserMinimum = new(big.Int).Set(min)
	return nil
}

// UpkeepEligibility reports how many positions are due at now and the
// total yield, in wrapped shares, an upkeep would redeem.
func (s *Streamer) UpkeepEligibility(now int64) (int, *big.Int) {
	count := 0
	total := new(big.Int)
	for id, r := range s.records {
		if now < r.LastUpkeep+r.PaymentInterval {
			continue
		}
		y, err := s.OutstandingYieldFor(id)
		if err != nil || y.Sign() == 0 {
			continue
		}
		count++
		total.Add(total, y)
	}
	return count, total
}

// Upkeep redeems the yield of every due position, unstakes it to base
// tokens, swaps those for the settlement token, and distributes the
// proceeds pro rata. The swap aborts, rolling everything back, when
// the exchange returns less than the oracle-implied amount minus the
// slippage bound. The rollback restores the stream records, the
// position arena, the wrapped and base ledgers, the settlement ledger
// when it supports snapshots, and discards any staged journal events.
// Callable by anyone.
func (s *Streamer) Upkeep(now int64) error {
	if s.upkeepDisabled {
		return errors.FeatureDisabledError.New("UpkeepDisabled")
	}

	type due struct {
		id    int64
		rec   *RecipientRecord
		yield *big.Int
	}
	var dues []due
	totalShares := new(big.Int)
	for _, d := range s.ActiveDeposits() {
		r, ok := s.records[d.ID]
		if !ok || now < r.LastUpkeep+r.PaymentInterval {
			continue
		}
		y := s.GetOutstandingYield(d.Principal, d.Agnostic)
		if y.Sign() == 0 {
			r.LastUpkeep = now
			continue
		}
		dues = append(dues, due{id: d.ID, rec: r, yield: y})
		totalShares.Add(totalShares, y)
	}
	if len(dues) == 0 || totalShares.Cmp(s.minimumTokens) < 0 {
		return nil
	}

	streamerBefore := s.Snapshot()
	wrappedBefore := s.wrapped.Snapshot()
	baseBefore := s.base.Snapshot()
	var settleBefore *ledger.BaseSnapshot
	settle, settleSnaps := s.settlement.(settlementLedger)
	if settleSnaps {
		settleBefore = settle.Snapshot()
	}
	s.journal.Begin()
	rollback := func() {
		s.Reset(streamerBefore)
		s.wrapped.Reset(wrappedBefore)
		s.base.Reset(baseBefore)
		if settleSnaps {
			settle.Reset(settleBefore)
		}
		s.journal.Discard()
	}

	for _, d := range dues {
		if _, _, err := s.redeemYield(d.id); err != nil {
			rollback()
			return err
		}
	}
	amountIn, err := s.staking.Unstake(s.addr, s.addr, totalShares, false, false, now)
	if err != nil {
		rollback()
		return err
	}

	price, err := s.oracle.LatestPrice()
	if err != nil {
		rollback()
		return errors.Wrap(err, "OracleUnavailable")
	}
	expected := new(big.Int).Mul(amountIn, price)
	expected.Div(expected, ledger.Unit)
	minOut := new(big.Int).Mul(expected, big.NewInt(PercentUnit-s.maxSwapSlippage))
	minOut.Div(minOut, big.NewInt(PercentUnit))

	out, err := s.exchange.SwapExactTokensForTokens(amountIn, minOut, s.addr, s.addr)
	if err != nil {
		rollback()
		return err
	}
	if out.Cmp(minOut) < 0 {
		rollback()
		return errors.SlippageExceededError.Errorf(
			"SlippageExceeded(out=%v,min=%v)", out, minOut)
	}

	fee := new(big.Int).Mul(out, big.NewInt(s.feeToDao))
	fee.Div(fee, big.NewInt(PercentUnit))
	if fee.Sign() > 0 {
		if err := s.settlement.Transfer(s.addr, s.daoAddr, fee); err != nil {
			rollback()
			return err
		}
	}
	distributable := new(big.Int).Sub(out, fee)

	for _, d := range dues {
		share := new(big.Int).Mul(distributable, d.yield)
		share.Div(share, totalShares)
		d.rec.LastUpkeep = now
		accrued := new(big.Int).Add(d.rec.Unclaimed, share)
		if accrued.Sign() > 0 && accrued.Cmp(d.rec.UserMinimum) >= 0 {
			if err := s.settlement.Transfer(s.addr, &d.rec.Recipient, accrued); err != nil {
				rollback()
				return err
			}
			d.rec.Unclaimed = new(big.Int)
		} else {
			d.rec.Unclaimed = accrued
		}
	}
	s.journal.Append(events.TypeUpkeepComplete, map[string]string{
		"time": common.FormatInt(now), "positions": common.FormatInt(int64(len(dues))),
		"amountIn": amountIn.String(), "amountOut": out.String(), "fee": fee.String(),
	})
	s.journal.Commit()
	s.log.Infof("Upkeep(positions=%d,in=%v,out=%v)", len(dues), amountIn, out)
	return nil
}

// RedeemableBalance is the yield, in wrapped shares, the position
// could stream right now.
func (s *Streamer) RedeemableBalance(id int64) (*big.Int, error) {
	return s.OutstandingYieldFor(id)
}

// WithdrawYield lets the recipient pull a position's accrued yield
// directly as wrapped shares, bypassing the swap schedule.
func (s *Streamer) WithdrawYield(caller *common.Address, id int64) (*big.Int, error) {
	if s.withdrawDisabled {
		return nil, errors.FeatureDisabledError.New("WithdrawalsDisabled")
	}
	return s.Splitter.RedeemYield(caller, id)
}

// WithdrawYieldAsStaked pulls the yield and unwraps it into the
// recipient's rebasing balance.
func (s *Streamer) WithdrawYieldAsStaked(caller *common.Address, id int64) (*big.Int, error) {
	if s.withdrawDisabled {
		return nil, errors.FeatureDisabledError.New("WithdrawalsDisabled")
	}
	d, err := s.Splitter.Get(id)
	if err != nil {
		return nil, err
	}
	yield, err := s.Splitter.RedeemYield(caller, id)
	if err != nil {
		return nil, err
	}
	if yield.Sign() == 0 {
		return new(big.Int), nil
	}
	return s.staking.Unwrap(&d.Recipient, &d.Recipient, yield)
}

// HarvestStreamTokens pays out settlement tokens accrued below the
// recipient's minimum, regardless of the threshold. Recipient only.
func (s *Streamer) HarvestStreamTokens(caller *common.Address, id int64) (*big.Int, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, errors.NotFoundError.Errorf("UnknownDeposit(id=%d)", id)
	}
	if !r.Recipient.Equal(caller) {
		return nil, errors.UnauthorizedError.Errorf("NotRecipient(id=%d,caller=%s)", id, caller)
	}
	if r.Unclaimed.Sign() == 0 {
		return new(big.Int), nil
	}
	amount := r.Unclaimed
	r.Unclaimed = new(big.Int)
	if err := s.settlement.Transfer(s.addr, caller, amount); err != nil {
		r.Unclaimed = amount
		return nil, err
	}
	return amount, nil
}
