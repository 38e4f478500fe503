package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"shodeposit/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return crypto.FromCommon(addr).String()
}
