package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountPrefix is the human-readable part of ledger account addresses.
const AccountPrefix = "lend"

const addressLength = 20

var ErrInvalidAddress = errors.New("crypto: invalid account address")

// Address is a 20-byte account identifier rendered as bech32.
type Address struct {
	prefix string
	bytes  []byte
}

// NewAddress builds an address under prefix. b must be 20 bytes long.
func NewAddress(prefix string, b []byte) (Address, error) {
	if len(b) != addressLength {
		return Address{}, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidAddress, len(b), addressLength)
	}
	out := make([]byte, addressLength)
	copy(out, b)
	return Address{prefix: prefix, bytes: out}, nil
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		return ""
	}
	encoded, err := bech32.Encode(a.prefix, conv)
	if err != nil {
		return ""
	}
	return encoded
}

func (a Address) Bytes() []byte {
	out := make([]byte, len(a.bytes))
	copy(out, a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() string {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("%w: invalid bech32 string: %v", ErrInvalidAddress, err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: error converting bits: %v", ErrInvalidAddress, err)
	}
	return NewAddress(prefix, conv)
}

// ParseAccount validates s as a ledger account address and returns its
// canonical lower-case form.
func ParseAccount(s string) (string, error) {
	addr, err := DecodeAddress(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	if addr.prefix != AccountPrefix {
		return "", fmt.Errorf("%w: prefix %q, want %q", ErrInvalidAddress, addr.prefix, AccountPrefix)
	}
	return addr.String(), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the ledger account of the key.
func (k *PublicKey) Address() Address {
	addr, _ := NewAddress(AccountPrefix, crypto.PubkeyToAddress(*k.PublicKey).Bytes())
	return addr
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
