package common

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"

	ucodec "github.com/ugorji/go/codec"

	"github.com/fyde-finance/fyde/common/errors"
)

const (
	AddressIDBytes = 20
	AddressBytes   = AddressIDBytes + 1
)

// Address identifies an account. The first byte tags contract
// accounts(1) apart from externally owned accounts(0).
type Address [AddressBytes]byte

func (a *Address) IsContract() bool {
	return a[0] == 1
}

func (a *Address) String() string {
	if a[0] == 1 {
		return "cx" + hex.EncodeToString(a[1:])
	} else {
		return "hx" + hex.EncodeToString(a[1:])
	}
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return a.SetString(s)
}

func (a *Address) SetString(s string) error {
	var isContract = false
	if len(s) >= 2 {
		switch {
		case s[0:2] == "cx":
			isContract = true
			s = s[2:]
		case s[0:2] == "hx":
			s = s[2:]
		case s[0:2] == "0x":
			s = s[2:]
		}
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	if bs, err := hex.DecodeString(s); err != nil {
		return err
	} else {
		a.SetTypeAndID(isContract, bs)
	}
	return nil
}

func (a *Address) SetStringStrict(s string) error {
	if len(s) != AddressIDBytes*2+2 {
		return errors.ErrIllegalArgument
	}
	prefix := s[0:2]
	body := s[2:]
	var isContract bool
	switch prefix {
	case "cx":
		isContract = true
	case "hx":
	default:
		return errors.ErrIllegalArgument
	}
	if strings.ToLower(body) != body {
		return errors.ErrIllegalArgument
	}
	if bs, err := hex.DecodeString(body); err != nil {
		return err
	} else {
		a.SetTypeAndID(isContract, bs)
		return nil
	}
}

func (a *Address) Bytes() []byte {
	return (*a)[:]
}

// ID returns the identifier part of the address without the type prefix.
func (a *Address) ID() []byte {
	return (*a)[1:]
}

func (a *Address) SetBytes(b []byte) error {
	switch blen := len(b); blen {
	case AddressBytes:
		switch b[0] {
		case 0, 1:
			copy(a[:], b)
			return nil
		default:
			return errors.ErrIllegalArgument
		}
	case AddressIDBytes:
		a[0] = 0
		copy(a[1:], b)
		return nil
	default:
		return errors.ErrIllegalArgument
	}
}

func (a *Address) SetTypeAndID(isContract bool, id []byte) {
	switch {
	case len(id) < AddressIDBytes:
		bs := make([]byte, AddressIDBytes)
		copy(bs[AddressIDBytes-len(id):], id)
		copy(a[1:], bs)
	default:
		copy(a[1:], id)
	}
	if isContract {
		a[0] = 1
	} else {
		a[0] = 0
	}
}

// IsZero reports whether the address is the zero placeholder, which is
// never a live collaborator.
func (a *Address) IsZero() bool {
	if a == nil {
		return true
	}
	for _, b := range a[1:] {
		if b != 0 {
			return false
		}
	}
	return true
}

func (a *Address) Equal(a2 *Address) bool {
	if a == nil || a2 == nil {
		return a == a2
	}
	return bytes.Equal(a[:], a2[:])
}

func (a Address) CodecEncodeSelf(e *ucodec.Encoder) {
	e.Encode(a[:])
}

func (a *Address) CodecDecodeSelf(d *ucodec.Decoder) {
	var b []byte
	d.Decode(&b)
	if err := a.SetBytes(b); err != nil {
		panic(err)
	}
}

func NewAddress(b []byte) (*Address, error) {
	a := new(Address)
	if err := a.SetBytes(b); err != nil {
		return nil, err
	}
	return a, nil
}

func NewAddressFromString(s string) (*Address, error) {
	a := new(Address)
	if err := a.SetString(s); err != nil {
		return nil, err
	}
	return a, nil
}

func MustNewAddressFromString(s string) *Address {
	if a, err := NewAddressFromString(s); err != nil {
		panic(err)
	} else {
		return a
	}
}

func NewContractAddress(id []byte) *Address {
	a := new(Address)
	a.SetTypeAndID(true, id)
	return a
}

func NewAccountAddress(id []byte) *Address {
	a := new(Address)
	a.SetTypeAndID(false, id)
	return a
}
