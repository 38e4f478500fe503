package sho

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignDigest signs digest under scheme and returns a 65-byte signature with the
// recovery id shifted to 27/28, matching eth_sign output.
func SignDigest(key *ecdsa.PrivateKey, scheme Scheme, digest common.Hash) ([]byte, error) {
	if key == nil {
		return nil, errors.New("sho: signing key required")
	}
	sig, err := ethcrypto.Sign(scheme.SigningHash(digest), key)
	if err != nil {
		return nil, fmt.Errorf("sho: sign digest: %w", err)
	}
	if len(sig) != 65 {
		return nil, errSignatureLength
	}
	sig[64] += 27
	return sig, nil
}

// SignVoucher canonicalizes v under layout and signs the digest. The organizer
// tooling uses this so the field order can never drift from the verifier.
func SignVoucher(key *ecdsa.PrivateKey, scheme Scheme, layout Layout, v Voucher) ([]byte, error) {
	if !layout.Valid() {
		return nil, fmt.Errorf("sho: invalid layout %d", layout)
	}
	if err := v.CheckRange(); err != nil {
		return nil, err
	}
	return SignDigest(key, scheme, Digest(layout, v))
}

// CompactSignature converts a 65-byte signature to its 64-byte EIP-2098 form.
func CompactSignature(sig []byte) ([]byte, error) {
	normalized, err := normalizeSignature(sig)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 64)
	copy(out, normalized[:64])
	if normalized[64] == 1 {
		out[32] |= 0x80
	}
	return out, nil
}
