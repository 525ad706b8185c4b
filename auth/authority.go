package auth

import (
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
)

// Role is a typed capability. It replaces integer permission codes
// with an explicit grant/revoke table.
type Role int

const (
	// Governor may change engine parameters and grant/revoke roles.
	Governor Role = iota
	// Guardian may engage emergency switches.
	Guardian
	// Policy may tune economic parameters.
	Policy
	// Vault may mint and burn on the base ledger.
	Vault
	// Minter may mint and burn wrapped shares. Held by the staking
	// engine and the migrator.
	Minter
	// Debtor may write down rebasing balances together with supply.
	Debtor
)

func (r Role) String() string {
	switch r {
	case Governor:
		return "governor"
	case Guardian:
		return "guardian"
	case Policy:
		return "policy"
	case Vault:
		return "vault"
	case Minter:
		return "minter"
	case Debtor:
		return "debtor"
	default:
		return "unknown"
	}
}

// Authority is the grant/revoke table shared by every component.
// Mutations happen only under the engine's operation lock.
type Authority struct {
	grants map[Role]map[common.Address]bool
}

func New(governor *common.Address) (*Authority, error) {
	if governor == nil || governor.IsZero() {
		return nil, errors.ErrInvalidAddress
	}
	a := &Authority{
		grants: make(map[Role]map[common.Address]bool),
	}
	a.grant(Governor, governor)
	return a, nil
}

func (a *Authority) grant(r Role, addr *common.Address) {
	m, ok := a.grants[r]
	if !ok {
		m = make(map[common.Address]bool)
		a.grants[r] = m
	}
	m[*addr] = true
}

// Grant gives the role to the address. Caller must hold Governor.
func (a *Authority) Grant(caller *common.Address, r Role, addr *common.Address) error {
	if !a.Has(Governor, caller) {
		return errors.UnauthorizedError.Errorf("NotGovernor(caller=%s)", caller)
	}
	if addr == nil || addr.IsZero() {
		return errors.ErrInvalidAddress
	}
	a.grant(r, addr)
	return nil
}

// Revoke removes the role from the address. Caller must hold Governor.
func (a *Authority) Revoke(caller *common.Address, r Role, addr *common.Address) error {
	if !a.Has(Governor, caller) {
		return errors.UnauthorizedError.Errorf("NotGovernor(caller=%s)", caller)
	}
	if m, ok := a.grants[r]; ok {
		delete(m, *addr)
	}
	return nil
}

func (a *Authority) Has(r Role, addr *common.Address) bool {
	if addr == nil {
		return false
	}
	m, ok := a.grants[r]
	if !ok {
		return false
	}
	return m[*addr]
}

// Check returns Unauthorized unless the address holds the role.
func (a *Authority) Check(r Role, addr *common.Address) error {
	if !a.Has(r, addr) {
		return errors.UnauthorizedError.Errorf("RoleRequired(role=%s,caller=%s)", r, addr)
	}
	return nil
}
