package zksync

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)
	return key
}

func newTestDeployTransaction(t *testing.T, paymaster *PaymasterParams) *DeployTransaction {
	t.Helper()

	bytecode := make([]byte, 32)
	hash, err := HashBytecode(bytecode)
	require.NoError(t, err)

	return &DeployTransaction{
		Sender:               crypto.PubkeyToAddress(newTestKey(t).PublicKey),
		To:                   ContractDeployerAddress,
		GasPrice:             big.NewInt(250_000_000),
		MaxPriorityFeePerGas: big.NewInt(250_000_000),
		Nonce:                7,
		Value:                big.NewInt(0),
		Calldata:             common.FromHex("0x9c4d535b"),
		Bytecode:             bytecode,
		BytecodeHash:         hash,
		ChainID:              big.NewInt(260),
		Paymaster:            paymaster,
	}
}

func strPtr(s string) *string {
	return &s
}

type registry map[common.Address]string

func (r registry) LookupContract(addr common.Address) (string, bool) {
	name, ok := r[addr]
	return name, ok
}
