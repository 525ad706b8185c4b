package staking

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/db"
)

type WarmupRecord struct {
	Account common.Address
	Deposit common.HexInt
	Gons    common.HexInt
	Expiry  int64
	Lock    bool
}

type Snapshot struct {
	EpochLength     int64
	EpochNumber     int64
	EpochEnd        int64
	EpochDistribute common.HexInt
	WarmupPeriod    int64
	GonsInWarmup    common.HexInt
	Warmups         []WarmupRecord
}

func (s *Staking) Snapshot() *Snapshot {
	ss := &Snapshot{
		EpochLength:  s.epoch.Length,
		EpochNumber:  s.epoch.Number,
		EpochEnd:     s.epoch.End,
		WarmupPeriod: s.warmupPeriod,
	}
	ss.EpochDistribute.SetValue(s.epoch.Distribute)
	ss.GonsInWarmup.SetValue(s.gonsInWarmup)
	ss.Warmups = make([]WarmupRecord, 0, len(s.warmups))
	for addr, info := range s.warmups {
		wr := WarmupRecord{
			Account: addr,
			Expiry:  info.Expiry,
			Lock:    info.Lock,
		}
		wr.Deposit.SetValue(info.Deposit)
		wr.Gons.SetValue(info.Gons)
		ss.Warmups = append(ss.Warmups, wr)
	}
	sort.Slice(ss.Warmups, func(i, j int) bool {
		return bytes.Compare(ss.Warmups[i].Account.Bytes(), ss.Warmups[j].Account.Bytes()) < 0
	})
	return ss
}

func (s *Staking) Reset(ss *Snapshot) {
	s.epoch.Length = ss.EpochLength
	s.epoch.Number = ss.EpochNumber
	s.epoch.End = ss.EpochEnd
	s.epoch.Distribute = new(big.Int).Set(ss.EpochDistribute.Value())
	s.warmupPeriod = ss.WarmupPeriod
	s.gonsInWarmup = new(big.Int).Set(ss.GonsInWarmup.Value())
	s.warmups = make(map[common.Address]*WarmupInfo, len(ss.Warmups))
	for i := range ss.Warmups {
		wr := &ss.Warmups[i]
		s.warmups[wr.Account] = &WarmupInfo{
			Deposit: new(big.Int).Set(wr.Deposit.Value()),
			Gons:    new(big.Int).Set(wr.Gons.Value()),
			Expiry:  wr.Expiry,
			Lock:    wr.Lock,
		}
	}
}

const stateKey = "state"

func (s *Staking) Flush(database db.Database) error {
	bk, err := db.NewCodedBucket(database, db.StakingState, nil)
	if err != nil {
		return err
	}
	return bk.Set(stateKey, s.Snapshot())
}

func (s *Staking) Load(database db.Database) error {
	bk, err := db.NewCodedBucket(database, db.StakingState, nil)
	if err != nil {
		return err
	}
	var ss Snapshot
	if err := bk.Get(stateKey, &ss); err != nil {
		return err
	}
	s.Reset(&ss)
	return nil
}
