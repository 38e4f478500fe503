package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"shodeposit/core/types"
)

const (
	TypeAssetTransfer = "asset.transfer"
	TypeAssetApproval = "asset.approval"
)

type AssetTransfer struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

func (AssetTransfer) EventType() string { return TypeAssetTransfer }

func (e AssetTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetTransfer,
		Attributes: map[string]string{
			"asset":  e.Asset.Hex(),
			"from":   formatAddress(e.From),
			"to":     formatAddress(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

type AssetApproval struct {
	Asset   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

func (AssetApproval) EventType() string { return TypeAssetApproval }

func (e AssetApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetApproval,
		Attributes: map[string]string{
			"asset":   e.Asset.Hex(),
			"owner":   formatAddress(e.Owner),
			"spender": formatAddress(e.Spender),
			"amount":  formatAmount(e.Amount),
		},
	}
}
