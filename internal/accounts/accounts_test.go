package accounts

import (
	"math/big"
	"testing"

	"github.com/compose-network/zksync-devkit/configs"
	"github.com/compose-network/zksync-devkit/internal/zksync"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey        = "0x7726827caac94a7f9e1b160f7ea819f172f7b6f9d2a97f992c38edeab82d4110"
	testPassphrase = "correct horse"
)

func newKeystoreAccount(t *testing.T, raw *PrivateKeyAccount) *KeystoreAccount {
	t.Helper()

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	_, err := ks.ImportECDSA(raw.key, testPassphrase)
	require.NoError(t, err)

	account, err := UnlockKeystoreAccount(ks, raw.Address(), testPassphrase)
	require.NoError(t, err)
	return account
}

func newDeployTransaction(t *testing.T, sender common.Address) *zksync.DeployTransaction {
	t.Helper()

	bytecode := make([]byte, 64)
	bytecode[63] = 1
	hash, err := zksync.HashBytecode(bytecode)
	require.NoError(t, err)

	return &zksync.DeployTransaction{
		Sender:               sender,
		To:                   zksync.ContractDeployerAddress,
		GasPrice:             big.NewInt(100_000_000),
		MaxPriorityFeePerGas: big.NewInt(100_000_000),
		Nonce:                3,
		Value:                big.NewInt(0),
		Calldata:             []byte{0x01, 0x02},
		Bytecode:             bytecode,
		BytecodeHash:         hash,
		ChainID:              big.NewInt(324),
	}
}

func TestTypedDataSigningPathsAgree(t *testing.T) {
	raw, err := ParsePrivateKey(testKey)
	require.NoError(t, err)
	stored := newKeystoreAccount(t, raw)
	require.Equal(t, raw.Address(), stored.Address())

	tx := newDeployTransaction(t, raw.Address())

	// the raw key only signs hashes, the keystore wallet signs the document
	fallback, err := zksync.SignTypedData(raw, tx, 300_000)
	require.NoError(t, err)
	native, err := zksync.SignTypedData(stored, tx, 300_000)
	require.NoError(t, err)

	assert.Equal(t, fallback, native)

	digest, err := tx.SigningHash(300_000)
	require.NoError(t, err)
	sig := append([]byte{}, native...)
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, raw.Address(), crypto.PubkeyToAddress(*pub))
}

func TestSignTx(t *testing.T) {
	raw, err := ParsePrivateKey(testKey)
	require.NoError(t, err)
	chainID := big.NewInt(260)

	for name, account := range map[string]Account{
		"private key": raw,
		"keystore":    newKeystoreAccount(t, raw),
	} {
		t.Run(name, func(t *testing.T) {
			to := common.HexToAddress("0x01")
			tx := types.NewTx(&types.DynamicFeeTx{
				ChainID:   chainID,
				Nonce:     1,
				GasTipCap: big.NewInt(1),
				GasFeeCap: big.NewInt(2),
				Gas:       21000,
				To:        &to,
				Value:     big.NewInt(3),
			})

			signed, err := account.SignTx(tx, chainID)
			require.NoError(t, err)

			sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
			require.NoError(t, err)
			assert.Equal(t, raw.Address(), sender)
		})
	}
}

func TestUnlockKeystoreAccount(t *testing.T) {
	raw, err := Generate()
	require.NoError(t, err)

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	_, err = ks.ImportECDSA(raw.key, testPassphrase)
	require.NoError(t, err)

	_, err = UnlockKeystoreAccount(ks, common.HexToAddress("0x02"), testPassphrase)
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = UnlockKeystoreAccount(ks, raw.Address(), "wrong")
	require.Error(t, err)
}

func TestKeyring(t *testing.T) {
	first, err := Generate()
	require.NoError(t, err)
	second, err := Generate()
	require.NoError(t, err)

	k := NewKeyring(first, second, first)
	assert.Equal(t, 2, k.Len())
	assert.Equal(t, []common.Address{first.Address(), second.Address()}, k.Addresses())

	def, ok := k.Default()
	require.True(t, ok)
	assert.Equal(t, first.Address(), def.Address())

	_, ok = k.Get(common.HexToAddress("0x03"))
	assert.False(t, ok)

	_, ok = NewKeyring().Default()
	assert.False(t, ok)
}

func TestFromConfig(t *testing.T) {
	raw, err := ParsePrivateKey(testKey)
	require.NoError(t, err)

	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	other, err := Generate()
	require.NoError(t, err)
	_, err = ks.ImportECDSA(other.key, testPassphrase)
	require.NoError(t, err)

	t.Setenv("ZKDEVKIT_TEST_PASSWORD", testPassphrase)

	k, err := FromConfig(configs.Accounts{
		PrivateKeys: []string{testKey},
		Keystores: []configs.Keystore{{
			Dir:         dir,
			Address:     other.Address().Hex(),
			PasswordEnv: "ZKDEVKIT_TEST_PASSWORD",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []common.Address{raw.Address(), other.Address()}, k.Addresses())

	_, err = FromConfig(configs.Accounts{PrivateKeys: []string{"0xzz"}})
	require.ErrorContains(t, err, "accounts.private-keys[0]")

	_, err = FromConfig(configs.Accounts{Keystores: []configs.Keystore{{Dir: dir, PasswordEnv: "ZKDEVKIT_UNSET_VARIABLE"}}})
	require.ErrorContains(t, err, "is not set")
}
