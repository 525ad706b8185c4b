package ledger

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/db"
)

// Snapshots are flat, order-normalized images of the ledgers used for
// persistence. Maps are flattened to sorted slices so the msgpack
// encoding is deterministic.

type AccountBalance struct {
	Address common.Address
	Balance common.HexInt
}

type AllowanceRecord struct {
	Owner   common.Address
	Spender common.Address
	Value   common.HexInt
}

func flattenBalances(m map[common.Address]*big.Int) []AccountBalance {
	out := make([]AccountBalance, 0, len(m))
	for addr, bal := range m {
		ab := AccountBalance{Address: addr}
		ab.Balance.SetValue(bal)
		out = append(out, ab)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out
}

func restoreBalances(l []AccountBalance) map[common.Address]*big.Int {
	m := make(map[common.Address]*big.Int, len(l))
	for i := range l {
		m[l[i].Address] = new(big.Int).Set(l[i].Balance.Value())
	}
	return m
}

func flattenAllowances(m map[common.Address]map[common.Address]*big.Int) []AllowanceRecord {
	out := make([]AllowanceRecord, 0, len(m))
	for owner, sm := range m {
		for spender, v := range sm {
			ar := AllowanceRecord{Owner: owner, Spender: spender}
			ar.Value.SetValue(v)
			out = append(out, ar)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Owner.Bytes(), out[j].Owner.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Spender.Bytes(), out[j].Spender.Bytes()) < 0
	})
	return out
}

func restoreAllowances(l []AllowanceRecord) map[common.Address]map[common.Address]*big.Int {
	m := make(map[common.Address]map[common.Address]*big.Int)
	for i := range l {
		sm, ok := m[l[i].Owner]
		if !ok {
			sm = make(map[common.Address]*big.Int)
			m[l[i].Owner] = sm
		}
		sm[l[i].Spender] = new(big.Int).Set(l[i].Value.Value())
	}
	return m
}

type BaseSnapshot struct {
	TotalSupply common.HexInt
	Balances    []AccountBalance
	Allowances  []AllowanceRecord
}

func (b *Base) Snapshot() *BaseSnapshot {
	ss := &BaseSnapshot{
		Balances:   flattenBalances(b.balances),
		Allowances: flattenAllowances(b.allowances),
	}
	ss.TotalSupply.SetValue(b.totalSupply)
	return ss
}

func (b *Base) Reset(ss *BaseSnapshot) {
	b.totalSupply = new(big.Int).Set(ss.TotalSupply.Value())
	b.balances = restoreBalances(ss.Balances)
	b.allowances = restoreAllowances(ss.Allowances)
}

type StakedSnapshot struct {
	TotalGons   common.HexInt
	TotalSupply common.HexInt
	IndexGons   common.HexInt
	StakingAddr *common.Address
	Initialized bool
	Balances    []AccountBalance
	Allowances  []AllowanceRecord
}

func (s *Staked) Snapshot() *StakedSnapshot {
	ss := &StakedSnapshot{
		StakingAddr: s.stakingAddr,
		Initialized: s.initialized,
		Balances:    flattenBalances(s.gonBalances),
		Allowances:  flattenAllowances(s.allowances),
	}
	ss.TotalGons.SetValue(s.totalGons)
	ss.TotalSupply.SetValue(s.totalSupply)
	ss.IndexGons.SetValue(s.indexGons)
	return ss
}

func (s *Staked) Reset(ss *StakedSnapshot) {
	s.totalGons = new(big.Int).Set(ss.TotalGons.Value())
	s.totalSupply = new(big.Int).Set(ss.TotalSupply.Value())
	s.indexGons = new(big.Int).Set(ss.IndexGons.Value())
	s.gonsPerFragment = new(big.Int).Div(s.totalGons, s.totalSupply)
	s.stakingAddr = ss.StakingAddr
	s.initialized = ss.Initialized
	s.gonBalances = restoreBalances(ss.Balances)
	s.allowances = restoreAllowances(ss.Allowances)
}

type WrappedSnapshot struct {
	TotalSupply common.HexInt
	Balances    []AccountBalance
	Allowances  []AllowanceRecord
}

func (w *Wrapped) Snapshot() *WrappedSnapshot {
	ss := &WrappedSnapshot{
		Balances:   flattenBalances(w.balances),
		Allowances: flattenAllowances(w.allowances),
	}
	ss.TotalSupply.SetValue(w.totalSupply)
	return ss
}

func (w *Wrapped) Reset(ss *WrappedSnapshot) {
	w.totalSupply = new(big.Int).Set(ss.TotalSupply.Value())
	w.balances = restoreBalances(ss.Balances)
	w.allowances = restoreAllowances(ss.Allowances)
}

const stateKey = "state"

func saveState(database db.Database, id db.BucketID, key string, ss interface{}) error {
	bk, err := db.NewCodedBucket(database, id, nil)
	if err != nil {
		return err
	}
	return bk.Set(key, ss)
}

func loadState(database db.Database, id db.BucketID, key string, ss interface{}) error {
	bk, err := db.NewCodedBucket(database, id, nil)
	if err != nil {
		return err
	}
	return bk.Get(key, ss)
}

func (b *Base) Flush(database db.Database) error {
	return b.FlushAs(database, stateKey)
}

func (b *Base) Load(database db.Database) error {
	return b.LoadAs(database, stateKey)
}

// FlushAs persists under an explicit key so multiple base-style ledgers
// can share one database.
func (b *Base) FlushAs(database db.Database, key string) error {
	return saveState(database, db.BaseState, key, b.Snapshot())
}

func (b *Base) LoadAs(database db.Database, key string) error {
	var ss BaseSnapshot
	if err := loadState(database, db.BaseState, key, &ss); err != nil {
		return err
	}
	b.Reset(&ss)
	return nil
}

func (s *Staked) Flush(database db.Database) error {
	return saveState(database, db.StakedState, stateKey, s.Snapshot())
}

func (s *Staked) Load(database db.Database) error {
	var ss StakedSnapshot
	if err := loadState(database, db.StakedState, stateKey, &ss); err != nil {
		return err
	}
	s.Reset(&ss)
	return nil
}

func (w *Wrapped) Flush(database db.Database) error {
	return saveState(database, db.WrappedState, stateKey, w.Snapshot())
}

func (w *Wrapped) Load(database db.Database) error {
	var ss WrappedSnapshot
	if err := loadState(database, db.WrappedState, stateKey, &ss); err != nil {
		return err
	}
	w.Reset(&ss)
	return nil
}
