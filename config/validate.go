package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"shodeposit/crypto"
	"shodeposit/native/asset"
	"shodeposit/native/sho"
)

// Validate checks that every address parses and that the layout, scheme and
// asset table are consistent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir required")
	}
	if strings.TrimSpace(c.EngineLabel) == "" {
		return fmt.Errorf("EngineLabel required")
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("Logging rotation limits must be non-negative")
	}
	if _, err := c.Engine(); err != nil {
		return err
	}
	if _, err := c.AssetTable(); err != nil {
		return err
	}
	return nil
}

func parseOptional(field, value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, nil
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

// Engine converts the deployment fields into the engine configuration. An
// empty Owner is left zero so Deploy falls back to the deployer.
func (c *Config) Engine() (sho.Config, error) {
	var out sho.Config
	var err error
	if out.Owner, err = parseOptional("Owner", c.Owner); err != nil {
		return out, err
	}
	if out.Organizer, err = parseOptional("Organizer", c.Organizer); err != nil {
		return out, err
	}
	if out.Receiver, err = parseOptional("Receiver", c.Receiver); err != nil {
		return out, err
	}
	if out.DepositAsset, err = parseOptional("DepositAsset", c.DepositAsset); err != nil {
		return out, err
	}
	if out.Layout, err = sho.ParseLayout(c.Layout); err != nil {
		return out, err
	}
	if out.Scheme, err = sho.ParseScheme(c.SignatureScheme); err != nil {
		return out, err
	}
	return out, nil
}

// AssetAllocation is a parsed Allocation.
type AssetAllocation struct {
	Holder common.Address
	Amount *big.Int
}

// AssetEntry is a parsed Asset.
type AssetEntry struct {
	Metadata    asset.Metadata
	Allocations []AssetAllocation
}

// AssetTable parses the [[Assets]] section, rejecting duplicate addresses and
// symbols.
func (c *Config) AssetTable() ([]AssetEntry, error) {
	out := make([]AssetEntry, 0, len(c.Assets))
	seenAddr := make(map[common.Address]struct{})
	seenSymbol := make(map[string]struct{})
	for i, entry := range c.Assets {
		symbol := strings.ToUpper(strings.TrimSpace(entry.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("Assets[%d]: symbol required", i)
		}
		addr, err := crypto.ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("Assets[%d] %s: %w", i, symbol, err)
		}
		if _, dup := seenAddr[addr]; dup {
			return nil, fmt.Errorf("Assets[%d]: duplicate address %s", i, addr.Hex())
		}
		if _, dup := seenSymbol[symbol]; dup {
			return nil, fmt.Errorf("Assets[%d]: duplicate symbol %s", i, symbol)
		}
		seenAddr[addr] = struct{}{}
		seenSymbol[symbol] = struct{}{}

		parsed := AssetEntry{Metadata: asset.Metadata{
			Address:  addr,
			Symbol:   symbol,
			Name:     strings.TrimSpace(entry.Name),
			Decimals: entry.Decimals,
		}}
		for j, alloc := range entry.Allocations {
			holder, err := crypto.ParseAddress(alloc.Holder)
			if err != nil {
				return nil, fmt.Errorf("Assets[%d].Allocations[%d]: %w", i, j, err)
			}
			amount, err := ParseAmount(alloc.Amount)
			if err != nil {
				return nil, fmt.Errorf("Assets[%d].Allocations[%d]: %w", i, j, err)
			}
			parsed.Allocations = append(parsed.Allocations, AssetAllocation{Holder: holder, Amount: amount})
		}
		out = append(out, parsed)
	}
	return out, nil
}

// ParseAmount parses a base-10 integer in the uint256 range. Empty input is
// zero.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	if value.BitLen() > 256 {
		return nil, fmt.Errorf("amount %q exceeds 256 bits", raw)
	}
	return value, nil
}
