package sho

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Layout selects which voucher fields are signed and in which order. The set is
// closed; the engine logic is shared across every layout.
type Layout uint8

const (
	// LayoutBasic signs (participant, sale, amount, deadline, receiver). The
	// deposit asset is fixed by configuration and deposits are uncapped.
	LayoutBasic Layout = iota + 1
	// LayoutCapped appends maxAmount to LayoutBasic.
	LayoutCapped
	// LayoutAsset signs (participant, sale, asset, amount, deadline, receiver).
	LayoutAsset
	// LayoutAssetCapped signs (participant, sale, asset, amount, deadline,
	// receiver, maxAmount).
	LayoutAssetCapped
)

// DefaultLayout is used when a deployment does not pick one.
const DefaultLayout = LayoutAssetCapped

func (l Layout) Valid() bool {
	switch l {
	case LayoutBasic, LayoutCapped, LayoutAsset, LayoutAssetCapped:
		return true
	default:
		return false
	}
}

// PerVoucherAsset reports whether the asset is a signed voucher field rather
// than a configuration value.
func (l Layout) PerVoucherAsset() bool {
	return l == LayoutAsset || l == LayoutAssetCapped
}

// Capped reports whether vouchers carry a cumulative cap.
func (l Layout) Capped() bool {
	return l == LayoutCapped || l == LayoutAssetCapped
}

func (l Layout) String() string {
	switch l {
	case LayoutBasic:
		return "basic"
	case LayoutCapped:
		return "capped"
	case LayoutAsset:
		return "asset"
	case LayoutAssetCapped:
		return "asset-capped"
	default:
		return "unknown"
	}
}

// ParseLayout resolves the textual layout names used in configuration files.
func ParseLayout(value string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "asset-capped", "asset_capped":
		return LayoutAssetCapped, nil
	case "basic":
		return LayoutBasic, nil
	case "capped":
		return LayoutCapped, nil
	case "asset":
		return LayoutAsset, nil
	default:
		return 0, fmt.Errorf("sho: unknown voucher layout %q", value)
	}
}

// Voucher is the tuple an organizer signs. Fields that the layout does not
// sign are ignored by Digest.
type Voucher struct {
	Participant common.Address
	SaleID      string
	Asset       common.Address
	Amount      *big.Int
	Deadline    uint64
	Receiver    common.Address
	MaxAmount   *big.Int
}

// ErrWordRange reports an integer field with no exact 32-byte encoding.
var ErrWordRange = errors.New("sho: voucher integer outside uint256 range")

// CheckRange reports whether every integer field of v encodes exactly. Encode
// truncates out-of-range values, so two vouchers that differ only above bit
// 256 share a digest; callers signing or verifying must reject them first.
func (v Voucher) CheckRange() error {
	for _, n := range []*big.Int{v.Amount, v.MaxAmount} {
		if n != nil && (n.Sign() < 0 || n.BitLen() > 256) {
			return ErrWordRange
		}
	}
	return nil
}

// Encode returns the packed byte sequence for v under layout: addresses as 20
// bytes, the sale identifier as raw UTF-8 and integers as 32-byte big-endian
// words. Absent or negative integers encode as zero and oversized ones are
// truncated to 256 bits; see CheckRange.
func Encode(layout Layout, v Voucher) []byte {
	buf := make([]byte, 0, 20+len(v.SaleID)+20+32+32+20+32)
	buf = append(buf, v.Participant.Bytes()...)
	buf = append(buf, v.SaleID...)
	if layout.PerVoucherAsset() {
		buf = append(buf, v.Asset.Bytes()...)
	}
	buf = appendWord(buf, v.Amount)
	deadline := uint256.NewInt(v.Deadline).Bytes32()
	buf = append(buf, deadline[:]...)
	buf = append(buf, v.Receiver.Bytes()...)
	if layout.Capped() {
		buf = appendWord(buf, v.MaxAmount)
	}
	return buf
}

func appendWord(buf []byte, v *big.Int) []byte {
	word := new(uint256.Int)
	if v != nil && v.Sign() > 0 {
		word.SetFromBig(v)
	}
	b := word.Bytes32()
	return append(buf, b[:]...)
}

// Digest is keccak256 over Encode(layout, v).
func Digest(layout Layout, v Voucher) common.Hash {
	return ethcrypto.Keccak256Hash(Encode(layout, v))
}
