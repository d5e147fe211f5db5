package accounts

import (
	"fmt"
	"os"

	"github.com/compose-network/zksync-devkit/configs"
	"github.com/ethereum/go-ethereum/common"
)

// Keyring maps addresses to signing accounts. It is filled during setup and
// only read afterwards.
type Keyring struct {
	accounts map[common.Address]Account
	order    []common.Address
}

func NewKeyring(accounts ...Account) *Keyring {
	k := &Keyring{accounts: make(map[common.Address]Account, len(accounts))}
	for _, account := range accounts {
		k.Add(account)
	}
	return k
}

// Add registers account, replacing any account with the same address.
func (k *Keyring) Add(account Account) {
	addr := account.Address()
	if _, exists := k.accounts[addr]; !exists {
		k.order = append(k.order, addr)
	}
	k.accounts[addr] = account
}

func (k *Keyring) Get(addr common.Address) (Account, bool) {
	account, ok := k.accounts[addr]
	return account, ok
}

// Addresses returns the known addresses in insertion order.
func (k *Keyring) Addresses() []common.Address {
	return append([]common.Address(nil), k.order...)
}

// Default returns the first added account.
func (k *Keyring) Default() (Account, bool) {
	if len(k.order) == 0 {
		return nil, false
	}
	return k.accounts[k.order[0]], true
}

func (k *Keyring) Len() int {
	return len(k.order)
}

// FromConfig loads raw keys and unlocks keystore accounts. Keystore
// passphrases are read from the environment variable each entry names.
func FromConfig(cfg configs.Accounts) (*Keyring, error) {
	k := NewKeyring()

	for i, hexKey := range cfg.PrivateKeys {
		account, err := ParsePrivateKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("accounts.private-keys[%d]: %w", i, err)
		}
		k.Add(account)
	}

	for i, entry := range cfg.Keystores {
		passphrase, ok := os.LookupEnv(entry.PasswordEnv)
		if !ok {
			return nil, fmt.Errorf("accounts.keystores[%d]: environment variable %s is not set", i, entry.PasswordEnv)
		}

		account, err := UnlockKeystoreAccount(OpenKeystore(entry.Dir), common.HexToAddress(entry.Address), passphrase)
		if err != nil {
			return nil, fmt.Errorf("accounts.keystores[%d]: %w", i, err)
		}
		k.Add(account)
	}

	return k, nil
}
