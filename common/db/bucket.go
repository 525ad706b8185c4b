package db

import (
	"github.com/fyde-finance/fyde/common/errors"
)

type Bucket interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Set(key []byte, value []byte) error
	Delete(key []byte) error
}

type BucketID string

//	Bucket ID
const (
	// BaseState holds the base token snapshot.
	BaseState BucketID = "b"

	// StakedState holds the rebasing ledger snapshot.
	StakedState BucketID = "s"

	// WrappedState holds the wrapped share token snapshot.
	WrappedState BucketID = "w"

	// StakingState holds the epoch machine and warmup table snapshot.
	StakingState BucketID = "k"

	// YieldState holds yield ledger snapshots keyed by ledger name.
	YieldState BucketID = "y"

	// EventJournal maps event sequence number to encoded event.
	EventJournal BucketID = "e"

	// EngineProperty is general key value map for engine property.
	EngineProperty BucketID = "c"
)

// internalKey returns key prefixed with the bucket's id.
func internalKey(id BucketID, key []byte) []byte {
	buf := make([]byte, len(key)+len(id))
	copy(buf, id)
	copy(buf[len(id):], key)
	return buf
}

func DoGet(bk Bucket, key []byte) ([]byte, error) {
	v, err := bk.Get(key)
	if v == nil && err == nil {
		return nil, errors.NotFoundError.New("NotFound")
	}
	return v, err
}
