package zksync

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// documentSigner hashes the EIP-712 document itself, struct by struct.
type documentSigner struct {
	key *ecdsa.PrivateKey
}

func (s documentSigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := data.HashStruct("EIP712Domain", data.Domain.Map())
	if err != nil {
		return nil, err
	}
	structHash, err := data.HashStruct(data.PrimaryType, data.Message)
	if err != nil {
		return nil, err
	}

	digest := crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, structHash)
	return crypto.Sign(digest, s.key)
}

type hashSigner struct {
	key *ecdsa.PrivateKey
}

func (s hashSigner) SignHash(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.key)
}

func TestSignTypedData(t *testing.T) {
	key := newTestKey(t)
	paymaster := &PaymasterParams{
		Address: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Input:   []byte{0xde, 0xad},
	}

	for name, params := range map[string]*PaymasterParams{"no paymaster": nil, "paymaster": paymaster} {
		t.Run(name, func(t *testing.T) {
			tx := newTestDeployTransaction(t, params)

			native, err := SignTypedData(documentSigner{key: key}, tx, 500_000)
			require.NoError(t, err)
			fallback, err := SignTypedData(hashSigner{key: key}, tx, 500_000)
			require.NoError(t, err)

			require.Len(t, native, signatureLength)
			assert.Equal(t, native, fallback)
			assert.Contains(t, []byte{27, 28}, native[64])

			digest, err := tx.SigningHash(500_000)
			require.NoError(t, err)

			recoverable := append([]byte{}, native...)
			recoverable[64] -= 27
			pub, err := crypto.SigToPub(digest.Bytes(), recoverable)
			require.NoError(t, err)
			assert.Equal(t, tx.Sender, crypto.PubkeyToAddress(*pub))
		})
	}
}

func TestSigningHashVectors(t *testing.T) {
	paymaster := &PaymasterParams{
		Address: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Input:   []byte{0xde, 0xad},
	}

	tests := []struct {
		name      string
		paymaster *PaymasterParams
		want      string
	}{
		{name: "no paymaster", want: "0xfbe5a160a40469f870655a879f1cc5fd297359dbb70db373d7b4789cedbe5d7a"},
		{name: "paymaster", paymaster: paymaster, want: "0x5c6e88afa20d5fab2494342346f0083c8e7d36475f3c220f39df32a0b3e7d308"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newTestDeployTransaction(t, tt.paymaster)
			require.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), tx.Sender)
			require.Equal(t, common.HexToHash("0x01000001f862bd776c8fc18b8e9f8e20089714856ee233b3902a591d0d5f2925"), tx.BytecodeHash)

			digest, err := tx.SigningHash(500_000)
			require.NoError(t, err)
			assert.Equal(t, common.HexToHash(tt.want), digest)
		})
	}
}

func TestSigningHashDependsOnFields(t *testing.T) {
	tx := newTestDeployTransaction(t, nil)

	base, err := tx.SigningHash(100)
	require.NoError(t, err)

	other, err := tx.SigningHash(101)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)

	tx.Paymaster = &PaymasterParams{Address: common.HexToAddress("0x01")}
	withPaymaster, err := tx.SigningHash(100)
	require.NoError(t, err)
	assert.NotEqual(t, base, withPaymaster)
}

func TestTypedDataMessage(t *testing.T) {
	tx := newTestDeployTransaction(t, nil)
	data := tx.TypedData(9)

	assert.Equal(t, "Transaction", data.PrimaryType)
	assert.Equal(t, "zkSync", data.Domain.Name)
	assert.Equal(t, "2", data.Domain.Version)
	assert.Equal(t, big.NewInt(EIP712TxType), data.Message["txType"])
	assert.Equal(t, new(big.Int).SetBytes(tx.Sender.Bytes()), data.Message["from"])
	assert.Equal(t, new(big.Int), data.Message["paymaster"])
	assert.Equal(t, []byte{}, data.Message["paymasterInput"])
	assert.Equal(t, []interface{}{tx.BytecodeHash.Hex()}, data.Message["factoryDeps"])
}

func TestSignTypedDataUnsupportedSigner(t *testing.T) {
	_, err := SignTypedData(struct{}{}, newTestDeployTransaction(t, nil), 1)
	require.ErrorIs(t, err, ErrUnsupportedSigner)
}

func TestNormalizeSignature(t *testing.T) {
	sig := make([]byte, signatureLength)
	sig[64] = 1

	out, err := NormalizeSignature(sig)
	require.NoError(t, err)
	assert.Equal(t, byte(28), out[64])
	assert.Equal(t, byte(1), sig[64])

	out, err = NormalizeSignature(out)
	require.NoError(t, err)
	assert.Equal(t, byte(28), out[64])

	_, err = NormalizeSignature(make([]byte, 64))
	require.ErrorIs(t, err, ErrInvalidSignature)
}
