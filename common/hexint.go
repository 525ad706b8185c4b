package common

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"

	ucodec "github.com/ugorji/go/codec"

	"github.com/pkg/errors"
)

var BigIntZero = new(big.Int)

// ParseInt parses hex("0x" prefixed) or decimal integer string.
func ParseInt(s string, bits int) (int64, error) {
	if v64, err := strconv.ParseInt(s, 0, bits); err == nil {
		return v64, nil
	}
	if bi, ok := new(big.Int).SetString(s, 0); ok {
		if bi.BitLen() <= bits-1 {
			return bi.Int64(), nil
		}
	}
	return 0, errors.Errorf("InvalidIntegerString(s=%s)", s)
}

func FormatInt(v int64) string {
	return "0x" + strconv.FormatInt(v, 16)
}

func FormatBigInt(i *big.Int) string {
	if i.Sign() < 0 {
		return "-0x" + new(big.Int).Neg(i).Text(16)
	}
	return "0x" + i.Text(16)
}

func ParseBigInt(i *big.Int, s string) error {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if len(s) > 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	if _, ok := i.SetString(s, 16); !ok {
		return errors.Errorf("InvalidHexString(s=%s)", s)
	}
	if neg {
		i.Neg(i)
	}
	return nil
}

// HexInt is a big.Int carrier encoding to "0x" prefixed hex in JSON and
// to big-endian magnitude bytes in msgpack.
type HexInt struct {
	big.Int
}

func (i HexInt) String() string {
	return FormatBigInt(&i.Int)
}

func (i HexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *HexInt) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return ParseBigInt(&i.Int, s)
}

func (i HexInt) CodecEncodeSelf(e *ucodec.Encoder) {
	bs := i.Int.Bytes()
	if i.Int.Sign() < 0 {
		e.MustEncode(append([]byte{1}, bs...))
	} else {
		e.MustEncode(append([]byte{0}, bs...))
	}
}

func (i *HexInt) CodecDecodeSelf(d *ucodec.Decoder) {
	var b []byte
	d.MustDecode(&b)
	if len(b) == 0 {
		i.Int.SetInt64(0)
		return
	}
	i.Int.SetBytes(b[1:])
	if b[0] != 0 {
		i.Int.Neg(&i.Int)
	}
}

func (i *HexInt) Clone() HexInt {
	var v HexInt
	v.Set(&i.Int)
	return v
}

func (i *HexInt) Bytes() []byte {
	return i.Int.Bytes()
}

func (i *HexInt) SetBytes(bs []byte) *big.Int {
	return i.Int.SetBytes(bs)
}

func (i *HexInt) Value() *big.Int {
	if i == nil {
		return nil
	}
	return &i.Int
}

func (i *HexInt) SetValue(v *big.Int) *HexInt {
	i.Int.Set(v)
	return i
}

func NewHexInt(v int64) *HexInt {
	i := new(HexInt)
	i.SetInt64(v)
	return i
}

func NewHexIntFromBig(v *big.Int) *HexInt {
	i := new(HexInt)
	i.Int.Set(v)
	return i
}

func HexBytes(bs []byte) string {
	return "0x" + hex.EncodeToString(bs)
}
