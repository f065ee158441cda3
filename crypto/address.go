package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// KeyLength is the byte length of owner identities and slot addresses.
const KeyLength = 32

// AddressPrefix is the human-readable part of a rendered key.
type AddressPrefix string

const (
	// OwnerPrefix renders owner public keys.
	OwnerPrefix AddressPrefix = "svt"
	// SlotPrefix renders derived storage slot addresses.
	SlotPrefix AddressPrefix = "svts"
)

// Address is a 32-byte key paired with its display prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps a raw 32-byte key for display.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != KeyLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", KeyLength, len(b))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// MustNewAddress is NewAddress for keys already known to be well-formed.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// DecodeAddress parses a bech32-rendered key back into its raw form.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}
