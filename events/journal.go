package events

import (
	"sync"

	"github.com/fyde-finance/fyde/common/codec"
	"github.com/fyde-finance/fyde/common/db"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
)

type Type string

const (
	TypeRebase         Type = "Rebase"
	TypeTransfer       Type = "Transfer"
	TypeMint           Type = "Mint"
	TypeBurn           Type = "Burn"
	TypeStake          Type = "Stake"
	TypeClaim          Type = "Claim"
	TypeForfeit        Type = "Forfeit"
	TypeUnstake        Type = "Unstake"
	TypeDeposited      Type = "Deposited"
	TypeWithdrawn      Type = "Withdrawn"
	TypeRedeemed       Type = "Redeemed"
	TypeDonated        Type = "Donated"
	TypeUpkeepComplete Type = "UpkeepComplete"
)

// Event is one journal entry. Attributes are flat string pairs so that
// downstream indexers need no schema beyond the type.
type Event struct {
	Seq   int64             `json:"seq"`
	Type  Type              `json:"type"`
	Attrs map[string]string `json:"attrs"`
}

// Journal is the append-only event log. Appends happen inside engine
// operations (already serialized); subscription fan-out is concurrency
// safe on its own lock because websocket readers attach from server
// goroutines.
type Journal struct {
	lock   sync.Mutex
	bk     *db.CodedBucket
	seq    int64
	staged []Event
	marks  []int
	subs   map[int64]chan<- Event
	sid    int64
	log    log.Logger
}

const seqKey = "seq"

func NewJournal(database db.Database, logger log.Logger) (*Journal, error) {
	bk, err := db.NewCodedBucket(database, db.EventJournal, nil)
	if err != nil {
		return nil, err
	}
	j := &Journal{
		bk:   bk,
		subs: make(map[int64]chan<- Event),
		log:  logger.WithFields(log.Fields{log.FieldKeyModule: "events"}),
	}
	var seq int64
	if err := bk.Get(seqKey, &seq); err == nil {
		j.seq = seq
	} else if !errors.NotFoundError.Equals(err) {
		return nil, err
	}
	return j, nil
}

func (j *Journal) Append(t Type, attrs map[string]string) {
	j.lock.Lock()
	defer j.lock.Unlock()

	if len(j.marks) > 0 {
		seq := j.seq + int64(len(j.staged))
		j.staged = append(j.staged, Event{Seq: seq, Type: t, Attrs: attrs})
		return
	}
	ev := Event{Seq: j.seq, Type: t, Attrs: attrs}
	j.publish(&ev)
}

// Begin opens a staging scope. Events appended while a scope is open
// are buffered in memory; they reach the database and the subscribers
// only when the outermost scope commits, so an operation that rolls
// back can discard them. Scopes nest.
func (j *Journal) Begin() {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.marks = append(j.marks, len(j.staged))
}

// Commit closes the innermost staging scope. Closing the outermost
// scope flushes everything staged.
func (j *Journal) Commit() {
	j.lock.Lock()
	defer j.lock.Unlock()
	if len(j.marks) == 0 {
		return
	}
	j.marks = j.marks[:len(j.marks)-1]
	if len(j.marks) > 0 {
		return
	}
	for i := range j.staged {
		j.publish(&j.staged[i])
	}
	j.staged = j.staged[:0]
}

// Discard closes the innermost staging scope, dropping the events
// appended since its Begin.
func (j *Journal) Discard() {
	j.lock.Lock()
	defer j.lock.Unlock()
	if len(j.marks) == 0 {
		return
	}
	mark := j.marks[len(j.marks)-1]
	j.marks = j.marks[:len(j.marks)-1]
	j.staged = j.staged[:mark]
}

func (j *Journal) publish(ev *Event) {
	if err := j.bk.Set(ev.Seq, ev); err != nil {
		j.log.Errorf("FailToAppendEvent(seq=%d,err=%+v)", ev.Seq, err)
	}
	j.seq++
	if err := j.bk.Set(seqKey, j.seq); err != nil {
		j.log.Errorf("FailToStoreSequence(err=%+v)", err)
	}
	for _, ch := range j.subs {
		select {
		case ch <- *ev:
		default:
			// slow subscriber drops events rather than blocking the engine
		}
	}
}

// Get returns the event with the sequence number.
func (j *Journal) Get(seq int64) (*Event, error) {
	j.lock.Lock()
	defer j.lock.Unlock()

	var ev Event
	if err := j.bk.Get(seq, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (j *Journal) Len() int64 {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.seq
}

// Subscribe registers the channel for future events and returns an
// unsubscribe function.
func (j *Journal) Subscribe(ch chan<- Event) func() {
	j.lock.Lock()
	defer j.lock.Unlock()

	id := j.sid
	j.sid++
	j.subs[id] = ch
	return func() {
		j.lock.Lock()
		defer j.lock.Unlock()
		delete(j.subs, id)
	}
}

func (j *Journal) MarshalEvent(ev *Event) ([]byte, error) {
	return codec.JSON.MarshalToBytes(ev)
}
