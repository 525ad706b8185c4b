package yield

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/db"
)

type DepositRecord struct {
	ID        int64
	Depositor common.Address
	Recipient common.Address
	Principal common.HexInt
	Agnostic  common.HexInt
}

type PermRecord struct {
	Recipient common.Address
	Delegate  common.Address
}

// SplitterState is the order-normalized image of a splitter's arena.
// Positions are sorted by id; the secondary indices are rebuilt on
// restore.
type SplitterState struct {
	IDCount  int64
	Deposits []DepositRecord
	Perms    []PermRecord
}

func (s *Splitter) State() *SplitterState {
	ss := &SplitterState{
		IDCount:  s.idCount,
		Deposits: make([]DepositRecord, 0, len(s.deposits)),
	}
	for _, d := range s.deposits {
		dr := DepositRecord{
			ID:        d.ID,
			Depositor: d.Depositor,
			Recipient: d.Recipient,
		}
		dr.Principal.SetValue(d.Principal)
		dr.Agnostic.SetValue(d.Agnostic)
		ss.Deposits = append(ss.Deposits, dr)
	}
	sort.Slice(ss.Deposits, func(i, j int) bool {
		return ss.Deposits[i].ID < ss.Deposits[j].ID
	})
	for recipient, m := range s.redeemPerms {
		for delegate, ok := range m {
			if ok {
				ss.Perms = append(ss.Perms, PermRecord{Recipient: recipient, Delegate: delegate})
			}
		}
	}
	sort.Slice(ss.Perms, func(i, j int) bool {
		if c := bytes.Compare(ss.Perms[i].Recipient.Bytes(), ss.Perms[j].Recipient.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(ss.Perms[i].Delegate.Bytes(), ss.Perms[j].Delegate.Bytes()) < 0
	})
	return ss
}

func (s *Splitter) ResetState(ss *SplitterState) {
	s.idCount = ss.IDCount
	s.deposits = make([]*DepositInfo, 0, len(ss.Deposits))
	s.slotByID = make(map[int64]int, len(ss.Deposits))
	s.depositorIDs = make(map[common.Address][]int64)
	s.recipientIDs = make(map[common.Address][]int64)
	for i := range ss.Deposits {
		dr := &ss.Deposits[i]
		d := &DepositInfo{
			ID:        dr.ID,
			Depositor: dr.Depositor,
			Recipient: dr.Recipient,
			Principal: new(big.Int).Set(dr.Principal.Value()),
			Agnostic:  new(big.Int).Set(dr.Agnostic.Value()),
		}
		s.slotByID[d.ID] = len(s.deposits)
		s.deposits = append(s.deposits, d)
		s.depositorIDs[d.Depositor] = append(s.depositorIDs[d.Depositor], d.ID)
		s.recipientIDs[d.Recipient] = append(s.recipientIDs[d.Recipient], d.ID)
	}
	s.redeemPerms = make(map[common.Address]map[common.Address]bool)
	for i := range ss.Perms {
		pr := &ss.Perms[i]
		m, ok := s.redeemPerms[pr.Recipient]
		if !ok {
			m = make(map[common.Address]bool)
			s.redeemPerms[pr.Recipient] = m
		}
		m[pr.Delegate] = true
	}
}

type DirectorSnapshot struct {
	Splitter         SplitterState
	DepositDisabled  bool
	WithdrawDisabled bool
	RedeemDisabled   bool
}

func (d *Director) Snapshot() *DirectorSnapshot {
	return &DirectorSnapshot{
		Splitter:         *d.Splitter.State(),
		DepositDisabled:  d.depositDisabled,
		WithdrawDisabled: d.withdrawDisabled,
		RedeemDisabled:   d.redeemDisabled,
	}
}

func (d *Director) Reset(ss *DirectorSnapshot) {
	d.Splitter.ResetState(&ss.Splitter)
	d.depositDisabled = ss.DepositDisabled
	d.withdrawDisabled = ss.WithdrawDisabled
	d.redeemDisabled = ss.RedeemDisabled
}

type StreamRecord struct {
	ID              int64
	Recipient       common.Address
	PaymentInterval int64
	LastUpkeep      int64
	UserMinimum     common.HexInt
	Unclaimed       common.HexInt
}

type StreamerSnapshot struct {
	Splitter         SplitterState
	Records          []StreamRecord
	FeeToDao         int64
	MaxSwapSlippage  int64
	MinimumTokens    common.HexInt
	DepositDisabled  bool
	WithdrawDisabled bool
	UpkeepDisabled   bool
}

func (s *Streamer) Snapshot() *StreamerSnapshot {
	ss := &StreamerSnapshot{
		Splitter:         *s.Splitter.State(),
		Records:          make([]StreamRecord, 0, len(s.records)),
		FeeToDao:         s.feeToDao,
		MaxSwapSlippage:  s.maxSwapSlippage,
		DepositDisabled:  s.depositDisabled,
		WithdrawDisabled: s.withdrawDisabled,
		UpkeepDisabled:   s.upkeepDisabled,
	}
	ss.MinimumTokens.SetValue(s.minimumTokens)
	for id, r := range s.records {
		sr := StreamRecord{
			ID:              id,
			Recipient:       r.Recipient,
			PaymentInterval: r.PaymentInterval,
			LastUpkeep:      r.LastUpkeep,
		}
		sr.UserMinimum.SetValue(r.UserMinimum)
		sr.Unclaimed.SetValue(r.Unclaimed)
		ss.Records = append(ss.Records, sr)
	}
	sort.Slice(ss.Records, func(i, j int) bool {
		return ss.Records[i].ID < ss.Records[j].ID
	})
	return ss
}

func (s *Streamer) Reset(ss *StreamerSnapshot) {
	s.Splitter.ResetState(&ss.Splitter)
	s.records = make(map[int64]*RecipientRecord, len(ss.Records))
	for i := range ss.Records {
		sr := &ss.Records[i]
		s.records[sr.ID] = &RecipientRecord{
			Recipient:       sr.Recipient,
			PaymentInterval: sr.PaymentInterval,
			LastUpkeep:      sr.LastUpkeep,
			UserMinimum:     new(big.Int).Set(sr.UserMinimum.Value()),
			Unclaimed:       new(big.Int).Set(sr.Unclaimed.Value()),
		}
	}
	s.feeToDao = ss.FeeToDao
	s.maxSwapSlippage = ss.MaxSwapSlippage
	s.minimumTokens = new(big.Int).Set(ss.MinimumTokens.Value())
	s.depositDisabled = ss.DepositDisabled
	s.withdrawDisabled = ss.WithdrawDisabled
	s.upkeepDisabled = ss.UpkeepDisabled
}

const (
	directorKey = "director"
	streamerKey = "streamer"
)

func (d *Director) Flush(database db.Database) error {
	bk, err := db.NewCodedBucket(database, db.YieldState, nil)
	if err != nil {
		return err
	}
	return bk.Set(directorKey, d.Snapshot())
}

func (d *Director) Load(database db.Database) error {
	bk, err := db.NewCodedBucket(database, db.YieldState, nil)
	if err != nil {
		return err
	}
	var ss DirectorSnapshot
	if err := bk.Get(directorKey, &ss); err != nil {
		return err
	}
	d.Reset(&ss)
	return nil
}

func (s *Streamer) Flush(database db.Database) error {
	bk, err := db.NewCodedBucket(database, db.YieldState, nil)
	if err != nil {
		return err
	}
	return bk.Set(streamerKey, s.Snapshot())
}

func (s *Streamer) Load(database db.Database) error {
	bk, err := db.NewCodedBucket(database, db.YieldState, nil)
	if err != nil {
		return err
	}
	var ss StreamerSnapshot
	if err := bk.Get(streamerKey, &ss); err != nil {
		return err
	}
	s.Reset(&ss)
	return nil
}
