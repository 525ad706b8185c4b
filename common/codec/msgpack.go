package codec

import (
	"io"

	"github.com/ugorji/go/codec"
)

type mpCodec struct {
	handle *codec.MsgpackHandle
}

func (c *mpCodec) Marshal(w io.Writer, v interface{}) error {
	e := codec.NewEncoder(w, c.handle)
	return e.Encode(v)
}

func (c *mpCodec) Unmarshal(r io.Reader, v interface{}) error {
	e := codec.NewDecoder(r, c.handle)
	return e.Decode(v)
}

func (c *mpCodec) MarshalToBytes(v interface{}) ([]byte, error) {
	return marshalToBytes(c, v)
}

func (c *mpCodec) UnmarshalFromBytes(b []byte, v interface{}) ([]byte, error) {
	return unmarshalFromBytes(c, b, v)
}

func init() {
	mh := new(codec.MsgpackHandle)
	mh.StructToArray = true
	mh.Canonical = true
	MP.handle = mh
}
