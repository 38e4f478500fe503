package sho

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Config is the engine configuration. It lives in state next to the ledger so
// admin mutations commit atomically with everything else.
type Config struct {
	Owner        common.Address
	Organizer    common.Address
	Receiver     common.Address
	DepositAsset common.Address
	Layout       Layout
	Scheme       Scheme
	Paused       bool
}

// Validate checks that every identity is set and the layout and scheme are
// known. Fixed-asset layouts require a deposit asset.
func (c Config) Validate() error {
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner", ErrZeroAddress)
	}
	if c.Organizer == (common.Address{}) {
		return fmt.Errorf("%w: organizer", ErrZeroAddress)
	}
	if c.Receiver == (common.Address{}) {
		return fmt.Errorf("%w: receiver", ErrZeroAddress)
	}
	if !c.Layout.Valid() {
		return fmt.Errorf("sho: invalid layout %d", c.Layout)
	}
	if c.Scheme != SchemeEthSign && c.Scheme != SchemeRaw {
		return fmt.Errorf("sho: invalid signature scheme %d", c.Scheme)
	}
	if !c.Layout.PerVoucherAsset() && c.DepositAsset == (common.Address{}) {
		return fmt.Errorf("%w: deposit asset", ErrZeroAddress)
	}
	return nil
}

// EngineAddress derives the account that holds custody for the engine deployed
// under label.
func EngineAddress(label string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("sho/engine/" + label))[12:])
}

var (
	configSuffix  = []byte("/config")
	depositSuffix = []byte("/deposit/")
	totalSuffix   = []byte("/total/")
	saleSuffix    = []byte("/sale/")
)

func namespace(engine common.Address, suffix []byte) []byte {
	key := append([]byte("sho/"), engine.Bytes()...)
	return append(key, suffix...)
}

func configKey(engine common.Address) []byte {
	return namespace(engine, configSuffix)
}

func loadConfig(st KVStore, engine common.Address) (*Config, bool, error) {
	var cfg Config
	ok, err := st.KVGet(configKey(engine), &cfg)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &cfg, true, nil
}

func storeConfig(st KVStore, engine common.Address, cfg *Config) error {
	return st.KVPut(configKey(engine), cfg)
}
