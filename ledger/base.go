package ledger

import (
	"math/big"

	"github.com/fyde-finance/fyde/auth"
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
)

// Decimals of the base and rebasing tokens.
const Decimals = 9

// Unit is one whole base token (10^Decimals).
var Unit = big.NewInt(1_000_000_000)

// Base is the fixed-point reserve token. Supply changes only through
// vault mint and explicit burn.
type Base struct {
	authority   *auth.Authority
	journal     *events.Journal
	log         log.Logger
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

func NewBase(authority *auth.Authority, journal *events.Journal, logger log.Logger) *Base {
	return &Base{
		authority:   authority,
		journal:     journal,
		log:         logger.WithFields(log.Fields{log.FieldKeyModule: "base"}),
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (b *Base) TotalSupply() *big.Int {
	return new(big.Int).Set(b.totalSupply)
}

func (b *Base) BalanceOf(owner *common.Address) *big.Int {
	if bal, ok := b.balances[*owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.IllegalArgumentError.New("NegativeAmount")
	}
	return nil
}

func checkAccount(addr *common.Address) error {
	if addr == nil || addr.IsZero() {
		return errors.ErrInvalidAddress
	}
	return nil
}

// Mint credits newly created supply. Vault role only.
func (b *Base) Mint(caller, to *common.Address, amount *big.Int) error {
	if err := b.authority.Check(auth.Vault, caller); err != nil {
		return err
	}
	if err := checkAccount(to); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	b.credit(to, amount)
	b.totalSupply.Add(b.totalSupply, amount)
	b.journal.Append(events.TypeMint, map[string]string{
		"token": "base", "to": to.String(), "amount": amount.String(),
	})
	return nil
}

// Burn destroys the caller's own balance.
func (b *Base) Burn(caller *common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := b.debit(caller, amount); err != nil {
		return err
	}
	b.totalSupply.Sub(b.totalSupply, amount)
	b.journal.Append(events.TypeBurn, map[string]string{
		"token": "base", "from": caller.String(), "amount": amount.String(),
	})
	return nil
}

func (b *Base) Transfer(from, to *common.Address, amount *big.Int) error {
	if err := checkAccount(to); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := b.debit(from, amount); err != nil {
		return err
	}
	b.credit(to, amount)
	return nil
}

func (b *Base) Approve(owner, spender *common.Address, amount *big.Int) error {
	if err := checkAccount(spender); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	m, ok := b.allowances[*owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		b.allowances[*owner] = m
	}
	m[*spender] = new(big.Int).Set(amount)
	return nil
}

func (b *Base) Allowance(owner, spender *common.Address) *big.Int {
	if m, ok := b.allowances[*owner]; ok {
		if v, ok := m[*spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

func (b *Base) TransferFrom(spender, from, to *common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance := b.Allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return errors.InsufficientBalanceError.Errorf(
			"AllowanceExceeded(allowance=%v,amount=%v)", allowance, amount)
	}
	if err := b.Transfer(from, to, amount); err != nil {
		return err
	}
	// the owner may have no allowance entry at all when amount is zero
	if m, ok := b.allowances[*from]; ok {
		m[*spender] = allowance.Sub(allowance, amount)
	}
	return nil
}

func (b *Base) credit(to *common.Address, amount *big.Int) {
	if bal, ok := b.balances[*to]; ok {
		bal.Add(bal, amount)
	} else {
		b.balances[*to] = new(big.Int).Set(amount)
	}
}

func (b *Base) debit(from *common.Address, amount *big.Int) error {
	bal, ok := b.balances[*from]
	if !ok || bal.Cmp(amount) < 0 {
		return errors.InsufficientBalanceError.Errorf(
			"BalanceExceeded(from=%s,amount=%v)", from, amount)
	}
	bal.Sub(bal, amount)
	return nil
}
