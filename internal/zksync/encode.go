package zksync

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

var ErrNotEIP712Transaction = errors.New("not an EIP-712 transaction")

// WireTransaction is the RLP layout of a type 0x71 transaction. Field order
// is fixed by the network's decoder and must not change.
type WireTransaction struct {
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
	Gas                  uint64
	To                   common.Address
	Value                *big.Int
	Data                 []byte
	ChainID              *big.Int
	Reserved0            []byte
	Reserved1            []byte
	SignerChainID        *big.Int
	From                 common.Address
	GasPerPubdata        uint64
	FactoryDeps          [][]byte
	Signature            []byte
	// Paymaster is empty when no paymaster is used, otherwise [address, input].
	Paymaster [][]byte
}

// Wire lays out the transaction for encoding.
func (tx *DeployTransaction) Wire(signature []byte, estimatedGas uint64) *WireTransaction {
	var paymaster [][]byte
	if tx.Paymaster != nil {
		paymaster = [][]byte{tx.Paymaster.Address.Bytes(), tx.Paymaster.Input}
	}

	chainID := bigOrZero(tx.ChainID)

	return &WireTransaction{
		Nonce:                tx.Nonce,
		MaxPriorityFeePerGas: bigOrZero(tx.MaxPriorityFeePerGas),
		GasPrice:             bigOrZero(tx.GasPrice),
		Gas:                  estimatedGas,
		To:                   tx.To,
		Value:                bigOrZero(tx.Value),
		Data:                 tx.Calldata,
		ChainID:              chainID,
		SignerChainID:        chainID,
		From:                 tx.Sender,
		GasPerPubdata:        DefaultGasPerPubdata,
		FactoryDeps:          tx.FactoryDeps(),
		Signature:            signature,
		Paymaster:            paymaster,
	}
}

// Encode serializes the signed transaction for eth_sendRawTransaction.
func (tx *DeployTransaction) Encode(signature []byte, estimatedGas uint64) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(tx.Wire(signature, estimatedGas))
	if err != nil {
		return nil, fmt.Errorf("failed to rlp encode transaction: %w", err)
	}

	raw := make([]byte, 0, 1+len(payload))
	raw = append(raw, EIP712TxType)
	return append(raw, payload...), nil
}

// DecodeRawTransaction parses a 0x71-prefixed raw transaction.
func DecodeRawTransaction(raw []byte) (*WireTransaction, error) {
	if len(raw) == 0 || raw[0] != EIP712TxType {
		return nil, ErrNotEIP712Transaction
	}

	var wire WireTransaction
	if err := rlp.DecodeBytes(raw[1:], &wire); err != nil {
		return nil, fmt.Errorf("failed to rlp decode transaction: %w", err)
	}

	return &wire, nil
}

// PaymasterParams returns the paymaster carried by the transaction, or nil.
func (w *WireTransaction) PaymasterParams() (*PaymasterParams, error) {
	switch len(w.Paymaster) {
	case 0:
		return nil, nil
	case 2:
		return &PaymasterParams{
			Address: common.BytesToAddress(w.Paymaster[0]),
			Input:   w.Paymaster[1],
		}, nil
	default:
		return nil, fmt.Errorf("unexpected paymaster params length %d", len(w.Paymaster))
	}
}
