package ledger

import (
	"math/big"

	"github.com/fyde-finance/fyde/auth"
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
)

// maxGons is the fixed share denominator before truncation to a
// multiple of the genesis supply. 2^128-1 leaves ample headroom for
// any supply magnitude while keeping gon balances well inside 256 bits
// after multiplication.
var maxGons = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Staked is the rebasing ledger. Balances are tracked in gons, a fixed
// total internal share unit; a rebase grows the visible supply and so
// shrinks gonsPerFragment, raising every holder's balance in
// proportion. All divisions truncate toward zero so rounding residue
// always stays with the ledger.
type Staked struct {
	authority *auth.Authority
	journal   *events.Journal
	log       log.Logger

	totalGons       *big.Int
	totalSupply     *big.Int
	gonsPerFragment *big.Int
	gonBalances     map[common.Address]*big.Int
	allowances      map[common.Address]map[common.Address]*big.Int

	// indexGons pins the genesis index as a gon amount so that
	// Index() appreciates with every rebase.
	indexGons *big.Int

	stakingAddr *common.Address
	initialized bool
}

func NewStaked(authority *auth.Authority, journal *events.Journal, logger log.Logger, initialSupply *big.Int) (*Staked, error) {
	if initialSupply == nil || initialSupply.Sign() <= 0 {
		return nil, errors.IllegalArgumentError.New("InvalidInitialSupply")
	}
	totalGons := new(big.Int).Sub(maxGons, new(big.Int).Mod(maxGons, initialSupply))
	s := &Staked{
		authority:   authority,
		journal:     journal,
		log:         logger.WithFields(log.Fields{log.FieldKeyModule: "staked"}),
		totalGons:   totalGons,
		totalSupply: new(big.Int).Set(initialSupply),
		gonBalances: make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		indexGons:   new(big.Int),
	}
	s.gonsPerFragment = new(big.Int).Div(s.totalGons, s.totalSupply)
	return s, nil
}

// SetIndex pins the genesis index. May be called once, before
// initialization.
func (s *Staked) SetIndex(index *big.Int) error {
	if s.indexGons.Sign() != 0 {
		return errors.InvalidStateError.New("IndexAlreadySet")
	}
	if index == nil || index.Sign() <= 0 {
		return errors.IllegalArgumentError.New("InvalidIndex")
	}
	s.indexGons.Set(s.GonsForBalance(index))
	return nil
}

// Initialize assigns the whole gon supply to the staking engine
// account, which thereafter distributes balances through staking.
func (s *Staked) Initialize(stakingAddr *common.Address) error {
	if s.initialized {
		return errors.InvalidStateError.New("AlreadyInitialized")
	}
	if err := checkAccount(stakingAddr); err != nil {
		return err
	}
	if s.indexGons.Sign() == 0 {
		return errors.InvalidStateError.New("IndexNotSet")
	}
	addr := *stakingAddr
	s.stakingAddr = &addr
	s.gonBalances[addr] = new(big.Int).Set(s.totalGons)
	s.initialized = true
	return nil
}

func (s *Staked) StakingAddress() *common.Address {
	return s.stakingAddr
}

func (s *Staked) TotalSupply() *big.Int {
	return new(big.Int).Set(s.totalSupply)
}

func (s *Staked) TotalGons() *big.Int {
	return new(big.Int).Set(s.totalGons)
}

func (s *Staked) BalanceOf(owner *common.Address) *big.Int {
	if gons, ok := s.gonBalances[*owner]; ok {
		return new(big.Int).Div(gons, s.gonsPerFragment)
	}
	return new(big.Int)
}

func (s *Staked) GonBalanceOf(owner *common.Address) *big.Int {
	if gons, ok := s.gonBalances[*owner]; ok {
		return new(big.Int).Set(gons)
	}
	return new(big.Int)
}

// GonsForBalance converts a fragment amount to gons at the current
// supply.
func (s *Staked) GonsForBalance(amount *big.Int) *big.Int {
	return new(big.Int).Mul(amount, s.gonsPerFragment)
}

// BalanceForGons converts gons back to a fragment amount, truncating.
func (s *Staked) BalanceForGons(gons *big.Int) *big.Int {
	return new(big.Int).Div(gons, s.gonsPerFragment)
}

// Index is the exchange rate between wrapped shares and rebasing
// fragments. Strictly non-decreasing: it is a fixed gon amount valued
// at the current gonsPerFragment.
func (s *Staked) Index() *big.Int {
	return s.BalanceForGons(s.indexGons)
}

// CirculatingSupply excludes the staking engine's undistributed
// balance.
func (s *Staked) CirculatingSupply() *big.Int {
	if s.stakingAddr == nil {
		return s.TotalSupply()
	}
	return new(big.Int).Sub(s.totalSupply, s.BalanceOf(s.stakingAddr))
}

// Rebase grows the total supply by profit. Only the staking engine may
// call it. profit of zero is a valid no-op that still journals the
// epoch.
func (s *Staked) Rebase(caller *common.Address, profit *big.Int, epoch int64) error {
	if s.stakingAddr == nil || !s.stakingAddr.Equal(caller) {
		return errors.UnauthorizedError.Errorf("NotStaking(caller=%s)", caller)
	}
	if err := checkAmount(profit); err != nil {
		return err
	}
	if profit.Sign() == 0 {
		s.journal.Append(events.TypeRebase, map[string]string{
			"epoch": common.FormatInt(epoch), "profit": "0", "index": s.Index().String(),
		})
		return nil
	}
	s.totalSupply.Add(s.totalSupply, profit)
	s.gonsPerFragment.Div(s.totalGons, s.totalSupply)
	s.journal.Append(events.TypeRebase, map[string]string{
		"epoch":  common.FormatInt(epoch),
		"profit": profit.String(),
		"supply": s.totalSupply.String(),
		"index":  s.Index().String(),
	})
	return nil
}

// DebitFrom writes down a holder's balance together with the total
// supply and the gon denominator, so every other balance is left
// unchanged. Debtor role only.
func (s *Staked) DebitFrom(caller, from *common.Address, amount *big.Int) error {
	if err := s.authority.Check(auth.Debtor, caller); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	gons := s.GonsForBalance(amount)
	bal, ok := s.gonBalances[*from]
	if !ok || bal.Cmp(gons) < 0 {
		return errors.InsufficientBalanceError.Errorf(
			"BalanceExceeded(from=%s,amount=%v)", from, amount)
	}
	bal.Sub(bal, gons)
	s.totalGons.Sub(s.totalGons, gons)
	s.totalSupply.Sub(s.totalSupply, amount)
	s.gonsPerFragment.Div(s.totalGons, s.totalSupply)
	s.journal.Append(events.TypeBurn, map[string]string{
		"token": "staked", "from": from.String(), "amount": amount.String(),
	})
	return nil
}

func (s *Staked) Transfer(from, to *common.Address, amount *big.Int) error {
	if err := checkAccount(to); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	gons := s.GonsForBalance(amount)
	bal, ok := s.gonBalances[*from]
	if !ok || bal.Cmp(gons) < 0 {
		return errors.InsufficientBalanceError.Errorf(
			"BalanceExceeded(from=%s,amount=%v)", from, amount)
	}
	bal.Sub(bal, gons)
	if tbal, ok := s.gonBalances[*to]; ok {
		tbal.Add(tbal, gons)
	} else {
		s.gonBalances[*to] = gons
	}
	return nil
}

func (s *Staked) Approve(owner, spender *common.Address, amount *big.Int) error {
	if err := checkAccount(spender); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	m, ok := s.allowances[*owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		s.allowances[*owner] = m
	}
	m[*spender] = new(big.Int).Set(amount)
	return nil
}

func (s *Staked) Allowance(owner, spender *common.Address) *big.Int {
	if m, ok := s.allowances[*owner]; ok {
		if v, ok := m[*spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

func (s *Staked) TransferFrom(spender, from, to *common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance := s.Allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return errors.InsufficientBalanceError.Errorf(
			"AllowanceExceeded(allowance=%v,amount=%v)", allowance, amount)
	}
	if err := s.Transfer(from, to, amount); err != nil {
		return err
	}
	// the owner may have no allowance entry at all when amount is zero
	if m, ok := s.allowances[*from]; ok {
		m[*spender] = allowance.Sub(allowance, amount)
	}
	return nil
}
