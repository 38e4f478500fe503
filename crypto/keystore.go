package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// KeystoreParams selects the scrypt cost used when encrypting a key.
type KeystoreParams struct {
	ScryptN int
	ScryptP int
}

// StandardKeystore is the cost used for long-lived organizer and owner keys.
var StandardKeystore = KeystoreParams{ScryptN: keystore.StandardScryptN, ScryptP: keystore.StandardScryptP}

// LightKeystore trades security for speed and is intended for tests and
// throwaway local deployments.
var LightKeystore = KeystoreParams{ScryptN: keystore.LightScryptN, ScryptP: keystore.LightScryptP}

// SaveToKeystore writes the provided private key to an Ethereum v3 keystore file at the given path.
// If the parent directory does not exist it will be created with 0700 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	return SaveToKeystoreWithParams(path, key, passphrase, StandardKeystore)
}

// SaveToKeystoreWithParams is SaveToKeystore with an explicit scrypt cost.
func SaveToKeystoreWithParams(path string, key *PrivateKey, passphrase string, params KeystoreParams) error {
	if key == nil || key.PrivateKey == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("crypto: keystore id: %w", err)
	}
	encrypted, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    key.Address(),
		PrivateKey: key.PrivateKey,
	}, passphrase, params.ScryptN, params.ScryptP)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".keystore-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encrypted); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}

	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// KeystoreAddress reads the account recorded in a keystore file without
// decrypting it.
func KeystoreAddress(path string) (common.Address, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return common.Address{}, err
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return common.Address{}, fmt.Errorf("crypto: decode keystore: %w", err)
	}
	if !common.IsHexAddress(header.Address) {
		return common.Address{}, fmt.Errorf("crypto: keystore %s has no address", path)
	}
	return common.HexToAddress(header.Address), nil
}
