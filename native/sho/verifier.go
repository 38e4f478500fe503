package sho

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	errSignatureLength    = errors.New("sho: signature must be 64 or 65 bytes")
	errSignatureRecovery  = errors.New("sho: signature recovery id invalid")
	errSignatureMalleable = errors.New("sho: signature s value too high")
)

var secp256k1HalfN = new(big.Int).Rsh(ethcrypto.S256().Params().N, 1)

// Verifier recovers the identity that signed a voucher digest.
type Verifier interface {
	Recover(digest common.Hash, sig []byte) (common.Address, error)
}

// Scheme names how a digest is prepared before signing.
type Scheme uint8

const (
	// SchemeEthSign prefixes the digest with "\x19Ethereum Signed
	// Message:\n32" before hashing again, as eth_sign does.
	SchemeEthSign Scheme = iota + 1
	// SchemeRaw signs the digest as-is.
	SchemeRaw
)

func (s Scheme) String() string {
	switch s {
	case SchemeEthSign:
		return "eth_sign"
	case SchemeRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ParseScheme resolves the textual scheme names used in configuration files.
func ParseScheme(value string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "eth_sign", "eth-sign", "personal":
		return SchemeEthSign, nil
	case "raw":
		return SchemeRaw, nil
	default:
		return 0, fmt.Errorf("sho: unknown signature scheme %q", value)
	}
}

// SigningHash returns the 32-byte hash that is actually passed to ECDSA for
// digest under scheme.
func (s Scheme) SigningHash(digest common.Hash) []byte {
	if s == SchemeRaw {
		return digest.Bytes()
	}
	return accounts.TextHash(digest.Bytes())
}

// NewVerifier returns the verifier for scheme.
func NewVerifier(s Scheme) Verifier {
	if s == SchemeRaw {
		return RawVerifier{}
	}
	return EthSignVerifier{}
}

// EthSignVerifier recovers signatures produced by eth_sign style signers.
type EthSignVerifier struct{}

func (EthSignVerifier) Recover(digest common.Hash, sig []byte) (common.Address, error) {
	return recoverSigner(SchemeEthSign.SigningHash(digest), sig)
}

// RawVerifier recovers signatures over the bare digest.
type RawVerifier struct{}

func (RawVerifier) Recover(digest common.Hash, sig []byte) (common.Address, error) {
	return recoverSigner(SchemeRaw.SigningHash(digest), sig)
}

// normalizeSignature converts 65-byte (r, s, v) signatures with v in {0, 1,
// 27, 28} and 64-byte EIP-2098 compact signatures (r, yParity|s) into the
// 65-byte form with v in {0, 1} expected by go-ethereum.
func normalizeSignature(sig []byte) ([]byte, error) {
	out := make([]byte, 65)
	switch len(sig) {
	case 65:
		copy(out, sig)
		v := sig[64]
		if v >= 27 {
			v -= 27
		}
		if v > 1 {
			return nil, errSignatureRecovery
		}
		out[64] = v
	case 64:
		copy(out[:32], sig[:32])
		copy(out[32:64], sig[32:64])
		out[64] = sig[32] >> 7
		out[32] &= 0x7f
	default:
		return nil, errSignatureLength
	}
	if new(big.Int).SetBytes(out[32:64]).Cmp(secp256k1HalfN) > 0 {
		return nil, errSignatureMalleable
	}
	return out, nil
}

func recoverSigner(hash []byte, sig []byte) (common.Address, error) {
	normalized, err := normalizeSignature(sig)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := ethcrypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Authorized reports whether sig over digest was produced by expected. Every
// failure, including a nil verifier, a malformed signature or a zero expected
// identity, is reported as false.
func Authorized(v Verifier, digest common.Hash, sig []byte, expected common.Address) bool {
	if v == nil || expected == (common.Address{}) {
		return false
	}
	recovered, err := v.Recover(digest, sig)
	if err != nil {
		return false
	}
	return recovered == expected
}
