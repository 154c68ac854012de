package genlayer

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"
)

// Account is the key material a session signs transactions with.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewAccount generates a fresh secp256k1 account.
func NewAccount() (*Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return newAccount(key), nil
}

// AccountFromHex loads an account from a hex private key, with or without 0x.
func AccountFromHex(hexKey string) (*Account, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return newAccount(key), nil
}

func newAccount(key *ecdsa.PrivateKey) *Account {
	return &Account{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the checksummed account address.
func (a *Account) Address() string {
	return a.address.Hex()
}

// PrivateKeyHex returns the 0x-prefixed private key.
func (a *Account) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(a.key))
}

// Sign signs the keccak256 digest of payload.
func (a *Account) Sign(payload []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(payload), a.key)
}

type accountFile struct {
	Address    string `yaml:"address"`
	PrivateKey string `yaml:"private_key"`
	CreatedAt  string `yaml:"created_at,omitempty"`
}

// SaveAccountFile writes the account to path with owner-only permissions.
func SaveAccountFile(path string, a *Account) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	data, err := yaml.Marshal(accountFile{
		Address:    a.Address(),
		PrivateKey: a.PrivateKeyHex(),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding account: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// LoadAccountFile reads an account written by SaveAccountFile.
func LoadAccountFile(path string) (*Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading account file: %w", err)
	}

	var f accountFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing account file: %w", err)
	}

	a, err := AccountFromHex(f.PrivateKey)
	if err != nil {
		return nil, err
	}
	if f.Address != "" && !strings.EqualFold(f.Address, a.Address()) {
		return nil, fmt.Errorf("account file address %s does not match its key (%s)", f.Address, a.Address())
	}
	return a, nil
}

// AccountSource picks where Initialize gets its key: an explicit hex key,
// then a key file, then a fresh account per initialization.
func AccountSource(privateKey, keyFile string) func() (*Account, error) {
	switch {
	case privateKey != "":
		return func() (*Account, error) { return AccountFromHex(privateKey) }
	case keyFile != "":
		return func() (*Account, error) { return LoadAccountFile(keyFile) }
	default:
		return NewAccount
	}
}
