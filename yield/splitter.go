package yield

import (
	"math/big"

	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/events"
	"github.com/fyde-finance/fyde/ledger"
)

// DepositInfo is one yield-splitting position. Principal is the
// rebasing-unit amount owed back to the depositor; Agnostic is the
// wrapped share amount actually held against the position, inclusive
// of accrued yield.
type DepositInfo struct {
	ID        int64
	Depositor common.Address
	Recipient common.Address
	Principal *big.Int
	Agnostic  *big.Int
}

// Splitter is the base yield-splitting ledger. Positions live in a
// dense arena addressed through an id map; depositor and recipient
// indices hold ids only and are patched on swap-remove so deletion
// stays O(1).
type Splitter struct {
	journal *events.Journal
	log     log.Logger

	addr    *common.Address
	wrapped *ledger.Wrapped

	idCount      int64
	deposits     []*DepositInfo
	slotByID     map[int64]int
	depositorIDs map[common.Address][]int64
	recipientIDs map[common.Address][]int64

	// redeemPerms maps a recipient to the delegates it has authorized
	// to redeem on its behalf.
	redeemPerms map[common.Address]map[common.Address]bool
}

func NewSplitter(journal *events.Journal, logger log.Logger, wrapped *ledger.Wrapped, addr *common.Address, name string) (*Splitter, error) {
	if wrapped == nil {
		return nil, errors.ErrInvalidAddress
	}
	if addr == nil || addr.IsZero() {
		return nil, errors.ErrInvalidAddress
	}
	return &Splitter{
		journal:      journal,
		log:          logger.WithFields(log.Fields{log.FieldKeyModule: name}),
		addr:         addr,
		wrapped:      wrapped,
		slotByID:     make(map[int64]int),
		depositorIDs: make(map[common.Address][]int64),
		recipientIDs: make(map[common.Address][]int64),
		redeemPerms:  make(map[common.Address]map[common.Address]bool),
	}, nil
}

func (s *Splitter) Address() *common.Address {
	return s.addr
}

func (s *Splitter) IDCount() int64 {
	return s.idCount
}

func (s *Splitter) get(id int64) (*DepositInfo, error) {
	slot, ok := s.slotByID[id]
	if !ok {
		return nil, errors.NotFoundError.Errorf("UnknownDeposit(id=%d)", id)
	}
	return s.deposits[slot], nil
}

// Get returns a copy of the position.
func (s *Splitter) Get(id int64) (*DepositInfo, error) {
	d, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return &DepositInfo{
		ID:        d.ID,
		Depositor: d.Depositor,
		Recipient: d.Recipient,
		Principal: new(big.Int).Set(d.Principal),
		Agnostic:  new(big.Int).Set(d.Agnostic),
	}, nil
}

func (s *Splitter) DepositorIDs(depositor *common.Address) []int64 {
	return append([]int64(nil), s.depositorIDs[*depositor]...)
}

func (s *Splitter) RecipientIDs(recipient *common.Address) []int64 {
	return append([]int64(nil), s.recipientIDs[*recipient]...)
}

// Deposit pulls amount wrapped shares from the depositor and opens a
// position routing its yield to the recipient. Ids are monotonic and
// never reused.
func (s *Splitter) Deposit(depositor, recipient *common.Address, amount *big.Int) (int64, error) {
	if recipient == nil || recipient.IsZero() {
		return 0, errors.ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, errors.IllegalArgumentError.New("InvalidAmount")
	}
	if err := s.wrapped.Transfer(depositor, s.addr, amount); err != nil {
		return 0, err
	}
	id := s.idCount
	s.idCount++
	d := &DepositInfo{
		ID:        id,
		Depositor: *depositor,
		Recipient: *recipient,
		Principal: s.wrapped.BalanceFrom(amount),
		Agnostic:  new(big.Int).Set(amount),
	}
	s.slotByID[id] = len(s.deposits)
	s.deposits = append(s.deposits, d)
	s.depositorIDs[*depositor] = append(s.depositorIDs[*depositor], id)
	s.recipientIDs[*recipient] = append(s.recipientIDs[*recipient], id)
	s.journal.Append(events.TypeDeposited, map[string]string{
		"id": common.FormatInt(id), "depositor": depositor.String(),
		"recipient": recipient.String(), "amount": amount.String(),
	})
	return id, nil
}

// AddToDeposit grows an existing position. The increment is valued at
// the current index, so the added principal accrues yield only from
// now on.
func (s *Splitter) AddToDeposit(caller *common.Address, id int64, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.IllegalArgumentError.New("InvalidAmount")
	}
	d, err := s.get(id)
	if err != nil {
		return err
	}
	if !d.Depositor.Equal(caller) {
		return errors.UnauthorizedError.Errorf("NotDepositor(id=%d,caller=%s)", id, caller)
	}
	if err := s.wrapped.Transfer(caller, s.addr, amount); err != nil {
		return err
	}
	d.Principal.Add(d.Principal, s.wrapped.BalanceFrom(amount))
	d.Agnostic.Add(d.Agnostic, amount)
	return nil
}

// WithdrawableShares is the share value of the position's principal at
// the current index. A depositor can never withdraw into the yield
// portion through the principal path.
func (s *Splitter) WithdrawableShares(id int64) (*big.Int, error) {
	d, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return s.wrapped.BalanceTo(d.Principal), nil
}

// WithdrawPrincipal pays shares of principal back to the depositor.
// The principal reduction is derived from the shares actually paid so
// truncation residue stays with the ledger.
func (s *Splitter) WithdrawPrincipal(caller *common.Address, id int64, shares *big.Int) error {
	if shares == nil || shares.Sign() <= 0 {
		return errors.IllegalArgumentError.New("InvalidAmount")
	}
	d, err := s.get(id)
	if err != nil {
		return err
	}
	if !d.Depositor.Equal(caller) {
		return errors.UnauthorizedError.Errorf("NotDepositor(id=%d,caller=%s)", id, caller)
	}
	withdrawable := s.wrapped.BalanceTo(d.Principal)
	if shares.Cmp(withdrawable) > 0 {
		return errors.InsufficientPrincipalError.Errorf(
			"PrincipalExceeded(id=%d,shares=%v,withdrawable=%v)", id, shares, withdrawable)
	}
	d.Principal.Sub(d.Principal, s.wrapped.BalanceFrom(shares))
	d.Agnostic.Sub(d.Agnostic, shares)
	if err := s.wrapped.Transfer(s.addr, &d.Depositor, shares); err != nil {
		return err
	}
	s.journal.Append(events.TypeWithdrawn, map[string]string{
		"id": common.FormatInt(id), "depositor": d.Depositor.String(), "amount": shares.String(),
	})
	s.maybeClose(d)
	return nil
}

// WithdrawAllPrincipal withdraws the full withdrawable amount, zeroing
// the principal exactly.
func (s *Splitter) WithdrawAllPrincipal(caller *common.Address, id int64) (*big.Int, error) {
	d, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if !d.Depositor.Equal(caller) {
		return nil, errors.UnauthorizedError.Errorf("NotDepositor(id=%d,caller=%s)", id, caller)
	}
	shares := s.wrapped.BalanceTo(d.Principal)
	d.Principal.SetInt64(0)
	d.Agnostic.Sub(d.Agnostic, shares)
	if d.Agnostic.Sign() < 0 {
		// rounding at the 1-unit scale; never pay out more than held
		shares.Add(shares, d.Agnostic)
		d.Agnostic.SetInt64(0)
	}
	if err := s.wrapped.Transfer(s.addr, &d.Depositor, shares); err != nil {
		return nil, err
	}
	s.journal.Append(events.TypeWithdrawn, map[string]string{
		"id": common.FormatInt(id), "depositor": d.Depositor.String(), "amount": shares.String(),
	})
	s.maybeClose(d)
	return shares, nil
}

// GetOutstandingYield is the sole source of truth for redeemable
// yield: the share surplus over the principal valued at the current
// index, clamped at zero.
func (s *Splitter) GetOutstandingYield(principal, agnostic *big.Int) *big.Int {
	y := new(big.Int).Sub(agnostic, s.wrapped.BalanceTo(principal))
	if y.Sign() < 0 {
		return new(big.Int)
	}
	return y
}

func (s *Splitter) OutstandingYieldFor(id int64) (*big.Int, error) {
	d, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return s.GetOutstandingYield(d.Principal, d.Agnostic), nil
}

// GivePermissionToRedeem authorizes the delegate to redeem yield on
// behalf of the caller wherever the caller is the recipient.
func (s *Splitter) GivePermissionToRedeem(caller, delegate *common.Address) error {
	if delegate == nil || delegate.IsZero() {
		return errors.ErrInvalidAddress
	}
	m, ok := s.redeemPerms[*caller]
	if !ok {
		m = make(map[common.Address]bool)
		s.redeemPerms[*caller] = m
	}
	m[*delegate] = true
	return nil
}

func (s *Splitter) RevokePermissionToRedeem(caller, delegate *common.Address) error {
	if m, ok := s.redeemPerms[*caller]; ok {
		delete(m, *delegate)
	}
	return nil
}

func (s *Splitter) canRedeem(caller *common.Address, recipient *common.Address) bool {
	if recipient.Equal(caller) {
		return true
	}
	if m, ok := s.redeemPerms[*recipient]; ok {
		return m[*caller]
	}
	return false
}

// RedeemYield moves the outstanding yield out of the position and
// returns the redeemed share amount. The recipient's agnostic balance
// is pinned back to exactly the principal's share value, the only
// place Agnostic shrinks without a principal change. The shares stay
// on the ledger account; the caller routes them.
func (s *Splitter) redeemYield(id int64) (*big.Int, *DepositInfo, error) {
	d, err := s.get(id)
	if err != nil {
		return nil, nil, err
	}
	yield := s.GetOutstandingYield(d.Principal, d.Agnostic)
	d.Agnostic.Set(s.wrapped.BalanceTo(d.Principal))
	return yield, d, nil
}

// RedeemYield redeems one position for its recipient. The caller must
// be the recipient or an authorized delegate. Zero yield is a no-op,
// not an error.
func (s *Splitter) RedeemYield(caller *common.Address, id int64) (*big.Int, error) {
	d, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if !s.canRedeem(caller, &d.Recipient) {
		return nil, errors.UnauthorizedError.Errorf("NotRecipient(id=%d,caller=%s)", id, caller)
	}
	yield, d, err := s.redeemYield(id)
	if err != nil {
		return nil, err
	}
	if yield.Sign() > 0 {
		if err := s.wrapped.Transfer(s.addr, &d.Recipient, yield); err != nil {
			return nil, err
		}
		s.journal.Append(events.TypeRedeemed, map[string]string{
			"id": common.FormatInt(id), "recipient": d.Recipient.String(), "amount": yield.String(),
		})
	}
	s.maybeClose(d)
	return yield, nil
}

// RedeemAllYield redeems every position routed to the recipient in one
// pass. Zero-yield positions are skipped.
func (s *Splitter) RedeemAllYield(caller, recipient *common.Address) (*big.Int, error) {
	if !s.canRedeem(caller, recipient) {
		return nil, errors.UnauthorizedError.Errorf("NotRecipient(caller=%s)", caller)
	}
	total := new(big.Int)
	for _, id := range s.RecipientIDs(recipient) {
		yield, d, err := s.redeemYield(id)
		if err != nil {
			return nil, err
		}
		if yield.Sign() == 0 {
			s.maybeClose(d)
			continue
		}
		if err := s.wrapped.Transfer(s.addr, recipient, yield); err != nil {
			return nil, err
		}
		total.Add(total, yield)
		s.journal.Append(events.TypeRedeemed, map[string]string{
			"id": common.FormatInt(id), "recipient": recipient.String(), "amount": yield.String(),
		})
		s.maybeClose(d)
	}
	return total, nil
}

// TotalRedeemableBalance sums the outstanding yield across every
// position routed to the recipient.
func (s *Splitter) TotalRedeemableBalance(recipient *common.Address) *big.Int {
	total := new(big.Int)
	for _, id := range s.recipientIDs[*recipient] {
		if y, err := s.OutstandingYieldFor(id); err == nil {
			total.Add(total, y)
		}
	}
	return total
}

// CloseDeposit unwinds the position completely: principal back to the
// depositor, outstanding yield to the recipient. Depositor only.
func (s *Splitter) CloseDeposit(caller *common.Address, id int64) error {
	d, err := s.get(id)
	if err != nil {
		return err
	}
	if !d.Depositor.Equal(caller) {
		return errors.UnauthorizedError.Errorf("NotDepositor(id=%d,caller=%s)", id, caller)
	}
	yield := s.GetOutstandingYield(d.Principal, d.Agnostic)
	if yield.Sign() > 0 {
		if err := s.wrapped.Transfer(s.addr, &d.Recipient, yield); err != nil {
			return err
		}
	}
	principalShares := new(big.Int).Sub(d.Agnostic, yield)
	if principalShares.Sign() > 0 {
		if err := s.wrapped.Transfer(s.addr, &d.Depositor, principalShares); err != nil {
			return err
		}
	}
	d.Principal.SetInt64(0)
	d.Agnostic.SetInt64(0)
	s.maybeClose(d)
	return nil
}

// maybeClose removes the position once both principal and agnostic
// reach zero. The id is retired and both secondary indices are
// patched.
func (s *Splitter) maybeClose(d *DepositInfo) {
	if d.Principal.Sign() != 0 || d.Agnostic.Sign() != 0 {
		return
	}
	slot := s.slotByID[d.ID]
	last := len(s.deposits) - 1
	if slot != last {
		moved := s.deposits[last]
		s.deposits[slot] = moved
		s.slotByID[moved.ID] = slot
	}
	s.deposits = s.deposits[:last]
	delete(s.slotByID, d.ID)
	s.depositorIDs[d.Depositor] = removeID(s.depositorIDs[d.Depositor], d.ID)
	if len(s.depositorIDs[d.Depositor]) == 0 {
		delete(s.depositorIDs, d.Depositor)
	}
	s.recipientIDs[d.Recipient] = removeID(s.recipientIDs[d.Recipient], d.ID)
	if len(s.recipientIDs[d.Recipient]) == 0 {
		delete(s.recipientIDs, d.Recipient)
	}
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			ids[i] = ids[len(ids)-1]
			return ids[:len(ids)-1]
		}
	}
	return ids
}

// ActiveDeposits returns copies of every live position.
func (s *Splitter) ActiveDeposits() []*DepositInfo {
	out := make([]*DepositInfo, 0, len(s.deposits))
	for _, d := range s.deposits {
		out = append(out, &DepositInfo{
			ID:        d.ID,
			Depositor: d.Depositor,
			Recipient: d.Recipient,
			Principal: new(big.Int).Set(d.Principal),
			Agnostic:  new(big.Int).Set(d.Agnostic),
		})
	}
	return out
}

// TotalAgnostic sums the shares held across live positions. Always
// equals the ledger account's wrapped balance.
func (s *Splitter) TotalAgnostic() *big.Int {
	total := new(big.Int)
	for _, d := range s.deposits {
		total.Add(total, d.Agnostic)
	}
	return total
}
