package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"shodeposit/crypto"
)

// ErrPassphraseRequired is returned when a keystore has to be created but no
// passphrase was supplied.
var ErrPassphraseRequired = errors.New("config: keystore passphrase required")

// Config describes one engine deployment as read from sho.toml.
type Config struct {
	DataDir           string  `toml:"DataDir"`
	EngineLabel       string  `toml:"EngineLabel"`
	OwnerKeystorePath string  `toml:"OwnerKeystorePath"`
	Owner             string  `toml:"Owner"`
	Organizer         string  `toml:"Organizer"`
	Receiver          string  `toml:"Receiver"`
	DepositAsset      string  `toml:"DepositAsset"`
	Layout            string  `toml:"Layout"`
	SignatureScheme   string  `toml:"SignatureScheme"`
	Assets            []Asset `toml:"Assets"`
	Pauses            Pauses  `toml:"Pauses"`
	Logging           Logging `toml:"Logging"`
}

type loadOptions struct {
	passphrase    string
	hasPassphrase bool
}

// Option customises Load.
type Option func(*loadOptions)

// WithKeystorePassphrase supplies the passphrase used when Load has to create
// the owner keystore.
func WithKeystorePassphrase(passphrase string) Option {
	return func(o *loadOptions) {
		o.passphrase = passphrase
		o.hasPassphrase = true
	}
}

// Load loads the configuration from the given path. A missing file is replaced
// by a default configuration whose owner is a freshly generated keystore.
func Load(path string, opts ...Option) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if cfg.OwnerKeystorePath != "" && !filepath.IsAbs(cfg.OwnerKeystorePath) {
		cfg.OwnerKeystorePath = filepath.Join(filepath.Dir(path), cfg.OwnerKeystorePath)
	}
	if cfg.Logging.File != "" && !filepath.IsAbs(cfg.Logging.File) {
		cfg.Logging.File = filepath.Join(filepath.Dir(path), cfg.Logging.File)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./sho-data"
	}
	if strings.TrimSpace(cfg.EngineLabel) == "" {
		cfg.EngineLabel = "default"
	}
	if strings.TrimSpace(cfg.Layout) == "" {
		cfg.Layout = "asset-capped"
	}
	if strings.TrimSpace(cfg.SignatureScheme) == "" {
		cfg.SignatureScheme = "eth_sign"
	}
	if cfg.Logging.Service == "" {
		cfg.Logging.Service = "shoctl"
	}
	if cfg.Logging.Env == "" {
		cfg.Logging.Env = "local"
	}
}

// createDefault writes a configuration whose owner, organizer and receiver are
// all the generated owner key. Operators are expected to edit the file before
// deploying anywhere that matters.
func createDefault(path string, options loadOptions) (*Config, error) {
	if !options.hasPassphrase {
		return nil, ErrPassphraseRequired
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, options.passphrase); err != nil {
		return nil, err
	}

	owner := key.Bech32()
	cfg := &Config{
		OwnerKeystorePath: keystorePath,
		Owner:             owner,
		Organizer:         owner,
		Receiver:          owner,
		Assets:            []Asset{},
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Save writes cfg to path in TOML form.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	return persist(path, cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
