package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 address.
type AddressPrefix string

const SHOPrefix AddressPrefix = "sho"

// Address is an account together with the prefix used to display it. The
// engine itself only ever handles common.Address; this form exists for
// operator-facing output.
type Address struct {
	prefix  AddressPrefix
	account common.Address
}

func FromCommon(addr common.Address) Address {
	return Address{prefix: SHOPrefix, account: addr}
}

// String renders the bech32 form, falling back to hex if the prefix cannot be
// encoded.
func (a Address) String() string {
	words, err := bech32.ConvertBits(a.account.Bytes(), 8, 5, true)
	if err != nil {
		return a.account.Hex()
	}
	encoded, err := bech32.Encode(string(a.prefix), words)
	if err != nil {
		return a.account.Hex()
	}
	return encoded
}

func (a Address) Common() common.Address { return a.account }

func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress parses a bech32 address of any prefix.
func DecodeAddress(value string) (Address, error) {
	prefix, words, err := bech32.Decode(value)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 address: %w", err)
	}
	raw, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 payload: %w", err)
	}
	if len(raw) != common.AddressLength {
		return Address{}, fmt.Errorf("bech32 payload is %d bytes, want %d", len(raw), common.AddressLength)
	}
	return Address{prefix: AddressPrefix(prefix), account: common.BytesToAddress(raw)}, nil
}

// ParseAddress accepts either a 0x-prefixed hex address or a bech32 address.
func ParseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("address required")
	}
	if common.IsHexAddress(trimmed) {
		return common.HexToAddress(trimmed), nil
	}
	decoded, err := DecodeAddress(trimmed)
	if err != nil {
		return common.Address{}, err
	}
	return decoded.account, nil
}

// PrivateKey is a secp256k1 signing key for an owner or organizer.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the 32-byte scalar.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address returns the account controlled by the key.
func (k *PrivateKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

// Bech32 renders Address with the default prefix.
func (k *PrivateKey) Bech32() string {
	return FromCommon(k.Address()).String()
}

// PrivateKeyFromHex parses a hex encoded key with an optional 0x prefix.
func PrivateKeyFromHex(value string) (*PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid private key encoding: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
