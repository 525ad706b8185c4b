package ledger

import (
	"math/big"

	"github.com/fyde-finance/fyde/auth"
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
)

// WrappedDecimals of the non-rebasing share token.
const WrappedDecimals = 18

// WrappedUnit is one whole wrapped share (10^WrappedDecimals).
var WrappedUnit, _ = new(big.Int).SetString("1000000000000000000", 10)

// Wrapped is the non-rebasing derivative. Balances are literal share
// counts; value accrues only through the index. Minting and burning
// are restricted to Minter role holders (the staking engine and the
// migrator).
type Wrapped struct {
	authority *auth.Authority
	journal   *events.Journal
	log       log.Logger
	staked    *Staked

	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

func NewWrapped(authority *auth.Authority, journal *events.Journal, logger log.Logger, staked *Staked) *Wrapped {
	return &Wrapped{
		authority:   authority,
		journal:     journal,
		log:         logger.WithFields(log.Fields{log.FieldKeyModule: "wrapped"}),
		staked:      staked,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (w *Wrapped) TotalSupply() *big.Int {
	return new(big.Int).Set(w.totalSupply)
}

func (w *Wrapped) BalanceOf(owner *common.Address) *big.Int {
	if bal, ok := w.balances[*owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Index snapshots the rebasing ledger's index. Both conversions below
// take the index as an argument variant internally so a single
// operation always sees one snapshot.
func (w *Wrapped) Index() *big.Int {
	return w.staked.Index()
}

// BalanceTo converts a rebasing-unit amount to its wrapped share
// equivalent at the current index.
func (w *Wrapped) BalanceTo(amount *big.Int) *big.Int {
	return balanceTo(amount, w.Index())
}

// BalanceFrom converts wrapped shares back to rebasing units at the
// current index.
func (w *Wrapped) BalanceFrom(shares *big.Int) *big.Int {
	return balanceFrom(shares, w.Index())
}

func balanceTo(amount, index *big.Int) *big.Int {
	v := new(big.Int).Mul(amount, WrappedUnit)
	return v.Div(v, index)
}

func balanceFrom(shares, index *big.Int) *big.Int {
	v := new(big.Int).Mul(shares, index)
	return v.Div(v, WrappedUnit)
}

// Mint credits shares. Minter role only.
func (w *Wrapped) Mint(caller, to *common.Address, shares *big.Int) error {
	if err := w.authority.Check(auth.Minter, caller); err != nil {
		return err
	}
	if err := checkAccount(to); err != nil {
		return err
	}
	if err := checkAmount(shares); err != nil {
		return err
	}
	if bal, ok := w.balances[*to]; ok {
		bal.Add(bal, shares)
	} else {
		w.balances[*to] = new(big.Int).Set(shares)
	}
	w.totalSupply.Add(w.totalSupply, shares)
	w.journal.Append(events.TypeMint, map[string]string{
		"token": "wrapped", "to": to.String(), "amount": shares.String(),
	})
	return nil
}

// Burn destroys shares. Minter role only.
func (w *Wrapped) Burn(caller, from *common.Address, shares *big.Int) error {
	if err := w.authority.Check(auth.Minter, caller); err != nil {
		return err
	}
	if err := checkAmount(shares); err != nil {
		return err
	}
	bal, ok := w.balances[*from]
	if !ok || bal.Cmp(shares) < 0 {
		return errors.InsufficientBalanceError.Errorf(
			"BalanceExceeded(from=%s,amount=%v)", from, shares)
	}
	bal.Sub(bal, shares)
	w.totalSupply.Sub(w.totalSupply, shares)
	w.journal.Append(events.TypeBurn, map[string]string{
		"token": "wrapped", "from": from.String(), "amount": shares.String(),
	})
	return nil
}

func (w *Wrapped) Transfer(from, to *common.Address, shares *big.Int) error {
	if err := checkAccount(to); err != nil {
		return err
	}
	if err := checkAmount(shares); err != nil {
		return err
	}
	bal, ok := w.balances[*from]
	if !ok || bal.Cmp(shares) < 0 {
		return errors.InsufficientBalanceError.Errorf(
			"BalanceExceeded(from=%s,amount=%v)", from, shares)
	}
	bal.Sub(bal, shares)
	if tbal, ok := w.balances[*to]; ok {
		tbal.Add(tbal, shares)
	} else {
		w.balances[*to] = new(big.Int).Set(shares)
	}
	return nil
}

func (w *Wrapped) Approve(owner, spender *common.Address, shares *big.Int) error {
	if err := checkAccount(spender); err != nil {
		return err
	}
	if err := checkAmount(shares); err != nil {
		return err
	}
	m, ok := w.allowances[*owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		w.allowances[*owner] = m
	}
	m[*spender] = new(big.Int).Set(shares)
	return nil
}

func (w *Wrapped) Allowance(owner, spender *common.Address) *big.Int {
	if m, ok := w.allowances[*owner]; ok {
		if v, ok := m[*spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

func (w *Wrapped) TransferFrom(spender, from, to *common.Address, shares *big.Int) error {
	if err := checkAmount(shares); err != nil {
		return err
	}
	allowance := w.Allowance(from, spender)
	if allowance.Cmp(shares) < 0 {
		return errors.InsufficientBalanceError.Errorf(
			"AllowanceExceeded(allowance=%v,amount=%v)", allowance, shares)
	}
	if err := w.Transfer(from, to, shares); err != nil {
		return err
	}
	// the owner may have no allowance entry at all when shares is zero
	if m, ok := w.allowances[*from]; ok {
		m[*spender] = allowance.Sub(allowance, shares)
	}
	return nil
}
