package db

import (
	"bytes"

	"github.com/fyde-finance/fyde/common/codec"
	"github.com/fyde-finance/fyde/common/errors"
)

// CodedBucket is a Bucket that encodes keys and values with a codec.
type CodedBucket struct {
	dbBucket Bucket
	codec    codec.Codec
}

func NewCodedBucket(database Database, id BucketID, c codec.Codec) (*CodedBucket, error) {
	b := &CodedBucket{}
	dbb, err := database.GetBucket(id)
	if err != nil {
		return nil, err
	}
	b.dbBucket = dbb
	if c == nil {
		c = &codec.MP
	}
	b.codec = c
	return b, nil
}

type Raw []byte

func (b *CodedBucket) _marshal(obj interface{}) ([]byte, error) {
	if bs, ok := obj.(Raw); ok {
		return bs, nil
	}
	buf := bytes.NewBuffer(nil)
	err := b.codec.Marshal(buf, obj)
	return buf.Bytes(), err
}

func (b *CodedBucket) Get(key interface{}, value interface{}) error {
	bs, err := b.GetBytes(key)
	if err != nil {
		return err
	}
	return b.codec.Unmarshal(bytes.NewBuffer(bs), value)
}

func (b *CodedBucket) GetBytes(key interface{}) ([]byte, error) {
	keyBS, err := b._marshal(key)
	if err != nil {
		return nil, err
	}
	bs, err := b.dbBucket.Get(keyBS)
	if bs == nil && err == nil {
		err = errors.NotFoundError.New("NotFound")
	}
	return bs, err
}

func (b *CodedBucket) Has(key interface{}) (bool, error) {
	keyBS, err := b._marshal(key)
	if err != nil {
		return false, err
	}
	return b.dbBucket.Has(keyBS)
}

func (b *CodedBucket) Set(key interface{}, value interface{}) error {
	keyBS, err := b._marshal(key)
	if err != nil {
		return err
	}
	valueBS, err := b._marshal(value)
	if err != nil {
		return err
	}
	if err := b.dbBucket.Set(keyBS, valueBS); err != nil {
		return errors.Wrap(err, "Fail to set KV DB")
	}
	return nil
}

func (b *CodedBucket) Delete(key interface{}) error {
	keyBS, err := b._marshal(key)
	if err != nil {
		return err
	}
	return b.dbBucket.Delete(keyBS)
}
