package accounts

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	gethaccounts "github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var ErrAccountNotFound = errors.New("account not found in keystore")

// Account is a key able to sign ordinary transactions. Signing of zkSync
// deployments is probed separately on the concrete type.
type Account interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// PrivateKeyAccount holds a raw key in memory and signs digests directly.
type PrivateKeyAccount struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewPrivateKeyAccount(key *ecdsa.PrivateKey) *PrivateKeyAccount {
	return &PrivateKeyAccount{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*PrivateKeyAccount, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewPrivateKeyAccount(key), nil
}

// Generate creates an account with a fresh random key.
func Generate() (*PrivateKeyAccount, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewPrivateKeyAccount(key), nil
}

func (a *PrivateKeyAccount) Address() common.Address {
	return a.address
}

func (a *PrivateKeyAccount) SignHash(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, a.key)
}

func (a *PrivateKeyAccount) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), a.key)
}

// KeystoreAccount is an unlocked account of an encrypted keystore. It signs
// EIP-712 documents through the keystore wallet.
type KeystoreAccount struct {
	ks      *keystore.KeyStore
	wallet  gethaccounts.Wallet
	account gethaccounts.Account
}

// OpenKeystore opens dir with the standard scrypt parameters.
func OpenKeystore(dir string) *keystore.KeyStore {
	return keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
}

// UnlockKeystoreAccount finds address in ks and unlocks it indefinitely.
func UnlockKeystoreAccount(ks *keystore.KeyStore, address common.Address, passphrase string) (*KeystoreAccount, error) {
	account, err := ks.Find(gethaccounts.Account{Address: address})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}

	if err := ks.Unlock(account, passphrase); err != nil {
		return nil, fmt.Errorf("failed to unlock %s: %w", address, err)
	}

	for _, wallet := range ks.Wallets() {
		if wallet.Contains(account) {
			return &KeystoreAccount{ks: ks, wallet: wallet, account: account}, nil
		}
	}

	return nil, fmt.Errorf("%w: no wallet for %s", ErrAccountNotFound, address)
}

func (a *KeystoreAccount) Address() common.Address {
	return a.account.Address
}

func (a *KeystoreAccount) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	_, rawData, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode typed data: %w", err)
	}

	return a.wallet.SignData(a.account, gethaccounts.MimetypeTypedData, []byte(rawData))
}

func (a *KeystoreAccount) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return a.ks.SignTx(a.account, tx, chainID)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
