package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"shodeposit/core/types"
)

const (
	TypeSHODeposit          = "sho.deposit"
	TypeSHOConfigUpdated    = "sho.config.updated"
	TypeSHOPaused           = "sho.paused"
	TypeSHOUnpaused         = "sho.unpaused"
	TypeSHOAssetRecovered   = "sho.asset.recovered"
	TypeSHOOwnershipChanged = "sho.ownership.transferred"
)

// SHODeposit is emitted once a voucher has been redeemed and the deposit
// forwarded to the receiver.
type SHODeposit struct {
	SaleID      string
	Participant common.Address
	Asset       common.Address
	Receiver    common.Address
	Amount      *big.Int
	Accumulated *big.Int
	// Refund is the swap surplus returned to the participant, nil for plain
	// deposits.
	Refund *big.Int
}

func (SHODeposit) EventType() string { return TypeSHODeposit }

func (e SHODeposit) Event() *types.Event {
	attrs := map[string]string{
		"sale":        strings.TrimSpace(e.SaleID),
		"participant": formatAddress(e.Participant),
		"asset":       e.Asset.Hex(),
		"receiver":    formatAddress(e.Receiver),
		"amount":      formatAmount(e.Amount),
		"accumulated": formatAmount(e.Accumulated),
		"swap":        "false",
	}
	if e.Refund != nil {
		attrs["swap"] = "true"
		attrs["refund"] = formatAmount(e.Refund)
	}
	return &types.Event{Type: TypeSHODeposit, Attributes: attrs}
}

// SHOConfigUpdated records an owner mutation of one configuration field.
type SHOConfigUpdated struct {
	Field    string
	Previous common.Address
	Current  common.Address
	Actor    common.Address
}

func (SHOConfigUpdated) EventType() string { return TypeSHOConfigUpdated }

func (e SHOConfigUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeSHOConfigUpdated,
		Attributes: map[string]string{
			"field":    e.Field,
			"previous": e.Previous.Hex(),
			"current":  e.Current.Hex(),
			"actor":    formatAddress(e.Actor),
		},
	}
}

// SHOPauseChanged is emitted by pause and unpause.
type SHOPauseChanged struct {
	Paused bool
	Actor  common.Address
}

func (e SHOPauseChanged) EventType() string {
	if e.Paused {
		return TypeSHOPaused
	}
	return TypeSHOUnpaused
}

func (e SHOPauseChanged) Event() *types.Event {
	return &types.Event{
		Type:       e.EventType(),
		Attributes: map[string]string{"actor": formatAddress(e.Actor)},
	}
}

// SHOAssetRecovered is emitted when the owner sweeps a stray balance.
type SHOAssetRecovered struct {
	Asset  common.Address
	To     common.Address
	Amount *big.Int
}

func (SHOAssetRecovered) EventType() string { return TypeSHOAssetRecovered }

func (e SHOAssetRecovered) Event() *types.Event {
	return &types.Event{
		Type: TypeSHOAssetRecovered,
		Attributes: map[string]string{
			"asset":  e.Asset.Hex(),
			"to":     formatAddress(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

// SHOOwnershipTransferred mirrors the Ownable transfer event.
type SHOOwnershipTransferred struct {
	Previous common.Address
	Current  common.Address
}

func (SHOOwnershipTransferred) EventType() string { return TypeSHOOwnershipChanged }

func (e SHOOwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeSHOOwnershipChanged,
		Attributes: map[string]string{
			"previous": formatAddress(e.Previous),
			"current":  formatAddress(e.Current),
		},
	}
}
