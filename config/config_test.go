package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"shodeposit/crypto"
	"shodeposit/native/sho"
)

const testKeystorePassphrase = "test-passphrase"

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadParsesDeployment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sho.toml")
	writeFile(t, path, `DataDir = "./data"
EngineLabel = "ido-2024"
OwnerKeystorePath = "owner.keystore"
Organizer = "0x00000000000000000000000000000000000000a1"
Receiver = "0x00000000000000000000000000000000000000a2"
DepositAsset = "0x00000000000000000000000000000000000000c1"
Layout = "capped"
SignatureScheme = "raw"

[Pauses]
SHO = true

[Logging]
Service = "sho-ops"
File = "logs/shoctl.log"
MaxBackups = 3

[[Assets]]
Symbol = "usdc"
Name = "USD Coin"
Address = "0x00000000000000000000000000000000000000c1"
Decimals = 6

  [[Assets.Allocations]]
  Holder = "0x0000000000000000000000000000000000000b01"
  Amount = "1000000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EngineLabel != "ido-2024" {
		t.Fatalf("unexpected label %q", cfg.EngineLabel)
	}
	if cfg.OwnerKeystorePath != filepath.Join(dir, "owner.keystore") {
		t.Fatalf("keystore path not resolved relative to config: %s", cfg.OwnerKeystorePath)
	}
	if cfg.Logging.Service != "sho-ops" || cfg.Logging.Env != "local" || cfg.Logging.MaxBackups != 3 {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Logging.File != filepath.Join(dir, "logs", "shoctl.log") {
		t.Fatalf("log file not resolved relative to config: %s", cfg.Logging.File)
	}
	if !cfg.Pauses.IsPaused(sho.ModuleName) || cfg.Pauses.IsPaused("swap") {
		t.Fatalf("unexpected pause view: %+v", cfg.Pauses)
	}

	engine, err := cfg.Engine()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engine.Layout != sho.LayoutCapped || engine.Scheme != sho.SchemeRaw {
		t.Fatalf("unexpected layout/scheme: %v %v", engine.Layout, engine.Scheme)
	}
	if engine.Owner != (common.Address{}) {
		t.Fatalf("owner should default to the deployer, got %s", engine.Owner.Hex())
	}
	if engine.Receiver != common.HexToAddress("0xa2") {
		t.Fatalf("unexpected receiver %s", engine.Receiver.Hex())
	}

	assets, err := cfg.AssetTable()
	if err != nil {
		t.Fatalf("asset table: %v", err)
	}
	if len(assets) != 1 || assets[0].Metadata.Symbol != "USDC" || assets[0].Metadata.Decimals != 6 {
		t.Fatalf("unexpected assets: %+v", assets)
	}
	if len(assets[0].Allocations) != 1 || assets[0].Allocations[0].Amount.String() != "1000000" {
		t.Fatalf("unexpected allocations: %+v", assets[0].Allocations)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sho.toml")
	writeFile(t, path, `Organizer = "0x00000000000000000000000000000000000000a1"
Receiver = "0x00000000000000000000000000000000000000a2"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DataDir != "./sho-data" || cfg.EngineLabel != "default" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	engine, err := cfg.Engine()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engine.Layout != sho.DefaultLayout || engine.Scheme != sho.SchemeEthSign {
		t.Fatalf("unexpected layout/scheme defaults: %v %v", engine.Layout, engine.Scheme)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad receiver":  `Receiver = "not-an-address"`,
		"bad layout":    `Layout = "packed"`,
		"bad scheme":    `SignatureScheme = "eip712"`,
		"log rotation":  "[Logging]\nMaxSizeMB = -1",
		"asset symbol":  "[[Assets]]\nAddress = \"0x00000000000000000000000000000000000000c1\"",
		"asset address": "[[Assets]]\nSymbol = \"x\"\nAddress = \"0x12\"",
		"duplicate asset": "[[Assets]]\nSymbol = \"a\"\nAddress = \"0x00000000000000000000000000000000000000c1\"\n" +
			"[[Assets]]\nSymbol = \"b\"\nAddress = \"0x00000000000000000000000000000000000000c1\"",
		"negative allocation": "[[Assets]]\nSymbol = \"a\"\nAddress = \"0x00000000000000000000000000000000000000c1\"\n" +
			"[[Assets.Allocations]]\nHolder = \"0x00000000000000000000000000000000000000c2\"\nAmount = \"-1\"",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sho.toml")
			writeFile(t, path, body+"\n")
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadWithoutPassphraseFailsToCreateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sho.toml")
	if _, err := Load(path); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
}

func TestLoadCreatesKeystoreWithPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sho.toml")

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	key, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, testKeystorePassphrase)
	if err != nil {
		t.Fatalf("failed to decrypt keystore: %v", err)
	}
	owner, err := crypto.ParseAddress(cfg.Owner)
	if err != nil {
		t.Fatalf("parse owner: %v", err)
	}
	if owner != key.Address() {
		t.Fatalf("owner %s does not match keystore %s", owner.Hex(), key.Address().Hex())
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if reloaded.Owner != cfg.Owner {
		t.Fatalf("persisted owner mismatch: %s vs %s", reloaded.Owner, cfg.Owner)
	}
}

func TestVoucherBatchResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vouchers.yaml")
	writeFile(t, path, `sale: S1
asset: "0x00000000000000000000000000000000000000c1"
ttl: 1h
max_amount: "1000"
vouchers:
  - participant: "0x0000000000000000000000000000000000000b01"
    amount: "500"
  - participant: "0x0000000000000000000000000000000000000b02"
    amount: "600"
    sale: S2
    deadline: 42
`)
	batch, err := LoadVoucherBatch(path)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	receiver := common.HexToAddress("0xa2")
	vouchers, err := batch.Resolve(now, receiver)
	if err != nil {
		t.Fatalf("resolve batch: %v", err)
	}
	if len(vouchers) != 2 {
		t.Fatalf("expected 2 vouchers, got %d", len(vouchers))
	}
	first := vouchers[0]
	if first.SaleID != "S1" || first.Amount.Int64() != 500 || first.MaxAmount.Int64() != 1000 {
		t.Fatalf("unexpected first voucher: %+v", first)
	}
	if first.Deadline != uint64(now.Add(time.Hour).Unix()) || first.Receiver != receiver {
		t.Fatalf("unexpected deadline/receiver: %d %s", first.Deadline, first.Receiver.Hex())
	}
	if vouchers[1].SaleID != "S2" || vouchers[1].Deadline != 42 {
		t.Fatalf("entry overrides not applied: %+v", vouchers[1])
	}
}

func TestVoucherBatchRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vouchers.yaml")
	writeFile(t, path, `sale: S1
deadline: 100
vouchers:
  - participant: "0x0000000000000000000000000000000000000b01"
    amount: "1"
  - participant: "0x0000000000000000000000000000000000000b01"
    amount: "2"
`)
	batch, err := LoadVoucherBatch(path)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if _, err := batch.Resolve(time.Now(), common.HexToAddress("0xa2")); err == nil {
		t.Fatalf("expected duplicate voucher error")
	}
	if _, err := batch.Resolve(time.Now(), common.Address{}); err == nil {
		t.Fatalf("expected missing receiver error")
	}
}

func TestParseAmountRange(t *testing.T) {
	largest := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	value, err := ParseAmount(largest)
	if err != nil {
		t.Fatalf("parse uint256 max: %v", err)
	}
	if value.String() != largest {
		t.Fatalf("unexpected value %s", value)
	}
	// 2^256
	if _, err := ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639936"); err == nil {
		t.Fatalf("expected range error for 2^256")
	}
	if _, err := ParseAmount("-1"); err == nil {
		t.Fatalf("expected negative amount error")
	}
	if value, err := ParseAmount(" "); err != nil || value.Sign() != 0 {
		t.Fatalf("blank amount: %v %v", value, err)
	}
}
