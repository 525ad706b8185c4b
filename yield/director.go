package yield

import (
	"math/big"

	"github.com/fyde-finance/fyde/auth"
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
	"github.com/fyde-finance/fyde/ledger"
	"github.com/fyde-finance/fyde/staking"
)

// Director routes rebase yield from donors to recipients. Principal
// stays withdrawable by the donor at all times; only the accrued yield
// ever reaches the recipient. Entry and exit are offered both in
// wrapped shares and, through the staking engine, in rebasing units.
type Director struct {
	*Splitter

	authority *auth.Authority
	staking   *staking.Staking

	depositDisabled  bool
	withdrawDisabled bool
	redeemDisabled   bool
}

func NewDirector(
	authority *auth.Authority,
	journal *events.Journal,
	logger log.Logger,
	wrapped *ledger.Wrapped,
	stk *staking.Staking,
	addr *common.Address,
) (*Director, error) {
	sp, err := NewSplitter(journal, logger, wrapped, addr, "director")
	if err != nil {
		return nil, err
	}
	if stk == nil {
		return nil, errors.ErrInvalidAddress
	}
	return &Director{
		Splitter:  sp,
		authority: authority,
		staking:   stk,
	}, nil
}

func (d *Director) DepositDisabled() bool  { return d.depositDisabled }
func (d *Director) WithdrawDisabled() bool { return d.withdrawDisabled }
func (d *Director) RedeemDisabled() bool   { return d.redeemDisabled }

// SetDepositDisabled flips the deposit kill switch. Guardian only.
func (d *Director) SetDepositDisabled(caller *common.Address, disabled bool) error {
	if err := d.authority.Check(auth.Guardian, caller); err != nil {
		return err
	}
	d.depositDisabled = disabled
	return nil
}

func (d *Director) SetWithdrawDisabled(caller *common.Address, disabled bool) error {
	if err := d.authority.Check(auth.Guardian, caller); err != nil {
		return err
	}
	d.withdrawDisabled = disabled
	return nil
}

func (d *Director) SetRedeemDisabled(caller *common.Address, disabled bool) error {
	if err := d.authority.Check(auth.Guardian, caller); err != nil {
		return err
	}
	d.redeemDisabled = disabled
	return nil
}

// EmergencyShutdown sets every kill switch at once. Guardian only.
func (d *Director) EmergencyShutdown(caller *common.Address, active bool) error {
	if err := d.authority.Check(auth.Guardian, caller); err != nil {
		return err
	}
	d.depositDisabled = active
	d.withdrawDisabled = active
	d.redeemDisabled = active
	d.log.Warnf("EmergencyShutdown(active=%v)", active)
	return nil
}

// Deposit donates amount wrapped shares: principal stays the caller's,
// yield streams to the recipient.
func (d *Director) Deposit(caller, recipient *common.Address, amount *big.Int) (int64, error) {
	if d.depositDisabled {
		return 0, errors.FeatureDisabledError.New("DepositsDisabled")
	}
	id, err := d.Splitter.Deposit(caller, recipient, amount)
	if err != nil {
		return 0, err
	}
	d.journal.Append(events.TypeDonated, map[string]string{
		"id": common.FormatInt(id), "donor": caller.String(), "recipient": recipient.String(),
	})
	return id, nil
}

// DepositStaked donates a rebasing-unit amount; the caller's rebasing
// balance is wrapped into shares first so the position is agnostic.
func (d *Director) DepositStaked(caller, recipient *common.Address, amount *big.Int) (int64, error) {
	if d.depositDisabled {
		return 0, errors.FeatureDisabledError.New("DepositsDisabled")
	}
	shares, err := d.staking.Wrap(caller, caller, amount)
	if err != nil {
		return 0, err
	}
	return d.Deposit(caller, recipient, shares)
}

func (d *Director) AddToDeposit(caller *common.Address, id int64, amount *big.Int) error {
	if d.depositDisabled {
		return errors.FeatureDisabledError.New("DepositsDisabled")
	}
	return d.Splitter.AddToDeposit(caller, id, amount)
}

func (d *Director) AddToDepositStaked(caller *common.Address, id int64, amount *big.Int) error {
	if d.depositDisabled {
		return errors.FeatureDisabledError.New("DepositsDisabled")
	}
	shares, err := d.staking.Wrap(caller, caller, amount)
	if err != nil {
		return err
	}
	return d.Splitter.AddToDeposit(caller, id, shares)
}

func (d *Director) WithdrawPrincipal(caller *common.Address, id int64, shares *big.Int) error {
	if d.withdrawDisabled {
		return errors.FeatureDisabledError.New("WithdrawalsDisabled")
	}
	return d.Splitter.WithdrawPrincipal(caller, id, shares)
}

// WithdrawPrincipalAsStaked withdraws a rebasing-unit amount of
// principal, unwrapping the freed shares back into the caller's
// rebasing balance.
func (d *Director) WithdrawPrincipalAsStaked(caller *common.Address, id int64, amount *big.Int) error {
	if d.withdrawDisabled {
		return errors.FeatureDisabledError.New("WithdrawalsDisabled")
	}
	shares := d.wrapped.BalanceTo(amount)
	if err := d.Splitter.WithdrawPrincipal(caller, id, shares); err != nil {
		return err
	}
	_, err := d.staking.Unwrap(caller, caller, shares)
	return err
}

func (d *Director) WithdrawAllPrincipal(caller *common.Address, id int64) (*big.Int, error) {
	if d.withdrawDisabled {
		return nil, errors.FeatureDisabledError.New("WithdrawalsDisabled")
	}
	return d.Splitter.WithdrawAllPrincipal(caller, id)
}

func (d *Director) WithdrawAllPrincipalAsStaked(caller *common.Address, id int64) (*big.Int, error) {
	if d.withdrawDisabled {
		return nil, errors.FeatureDisabledError.New("WithdrawalsDisabled")
	}
	shares, err := d.Splitter.WithdrawAllPrincipal(caller, id)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return new(big.Int), nil
	}
	return d.staking.Unwrap(caller, caller, shares)
}

func (d *Director) RedeemYield(caller *common.Address, id int64) (*big.Int, error) {
	if d.redeemDisabled {
		return nil, errors.FeatureDisabledError.New("RedeemsDisabled")
	}
	return d.Splitter.RedeemYield(caller, id)
}

// RedeemYieldAsStaked redeems a position's yield and unwraps it in
// place, so the recipient receives rebasing tokens.
func (d *Director) RedeemYieldAsStaked(caller *common.Address, id int64) (*big.Int, error) {
	if d.redeemDisabled {
		return nil, errors.FeatureDisabledError.New("RedeemsDisabled")
	}
	info, err := d.Get(id)
	if err != nil {
		return nil, err
	}
	yield, err := d.Splitter.RedeemYield(caller, id)
	if err != nil {
		return nil, err
	}
	if yield.Sign() == 0 {
		return new(big.Int), nil
	}
	return d.staking.Unwrap(&info.Recipient, &info.Recipient, yield)
}

func (d *Director) RedeemAllYield(caller *common.Address) (*big.Int, error) {
	return d.RedeemAllYieldOnBehalfOf(caller, caller)
}

func (d *Director) RedeemAllYieldOnBehalfOf(caller, recipient *common.Address) (*big.Int, error) {
	if d.redeemDisabled {
		return nil, errors.FeatureDisabledError.New("RedeemsDisabled")
	}
	return d.Splitter.RedeemAllYield(caller, recipient)
}

// DepositsTo sums the principal the donor has directed at one
// recipient across all of the donor's positions.
func (d *Director) DepositsTo(donor, recipient *common.Address) *big.Int {
	total := new(big.Int)
	for _, id := range d.DepositorIDs(donor) {
		if info, err := d.Get(id); err == nil && info.Recipient.Equal(recipient) {
			total.Add(total, info.Principal)
		}
	}
	return total
}

// TotalDeposits sums the donor's principal across all recipients.
func (d *Director) TotalDeposits(donor *common.Address) *big.Int {
	total := new(big.Int)
	for _, id := range d.DepositorIDs(donor) {
		if info, err := d.Get(id); err == nil {
			total.Add(total, info.Principal)
		}
	}
	return total
}

// AllDeposits returns copies of every live position the donor funds.
func (d *Director) AllDeposits(donor *common.Address) []*DepositInfo {
	ids := d.DepositorIDs(donor)
	out := make([]*DepositInfo, 0, len(ids))
	for _, id := range ids {
		if info, err := d.Get(id); err == nil {
			out = append(out, info)
		}
	}
	return out
}

func (d *Director) RedeemAllYieldAsStaked(caller *common.Address) (*big.Int, error) {
	if d.redeemDisabled {
		return nil, errors.FeatureDisabledError.New("RedeemsDisabled")
	}
	yield, err := d.Splitter.RedeemAllYield(caller, caller)
	if err != nil {
		return nil, err
	}
	if yield.Sign() == 0 {
		return new(big.Int), nil
	}
	return d.staking.Unwrap(caller, caller, yield)
}
