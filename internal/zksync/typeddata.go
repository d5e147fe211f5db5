package zksync

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	domainName    = "zkSync"
	domainVersion = "2"

	signatureLength = 65
)

type (
	// TypedDataSigner signs an EIP-712 document natively.
	TypedDataSigner interface {
		SignTypedData(data apitypes.TypedData) ([]byte, error)
	}

	// HashSigner signs an already computed 32-byte digest.
	HashSigner interface {
		SignHash(digest []byte) ([]byte, error)
	}
)

var transactionTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Transaction": {
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

// TypedData builds the EIP-712 document signed for the transaction. The gas
// limit is only known after estimation, so it is passed in separately.
func (tx *DeployTransaction) TypedData(estimatedGas uint64) apitypes.TypedData {
	// Array items that are slices are treated as nested arrays by the
	// encoder, so bytes32 entries are passed as hex strings.
	factoryDeps := make([]interface{}, 0, 1+len(tx.DependencyBytecodeHashes))
	for _, hash := range tx.FactoryDepHashes() {
		factoryDeps = append(factoryDeps, hash.Hex())
	}

	var (
		paymaster      = new(big.Int)
		paymasterInput = []byte{}
	)
	if tx.Paymaster != nil {
		paymaster = addressToInt(tx.Paymaster.Address)
		paymasterInput = tx.Paymaster.Input
	}

	calldata := tx.Calldata
	if calldata == nil {
		calldata = []byte{}
	}

	return apitypes.TypedData{
		Types:       transactionTypes,
		PrimaryType: "Transaction",
		Domain: apitypes.TypedDataDomain{
			Name:    domainName,
			Version: domainVersion,
			ChainId: (*math.HexOrDecimal256)(bigOrZero(tx.ChainID)),
		},
		Message: apitypes.TypedDataMessage{
			"txType":                 big.NewInt(EIP712TxType),
			"from":                   addressToInt(tx.Sender),
			"to":                     addressToInt(tx.To),
			"gasLimit":               new(big.Int).SetUint64(estimatedGas),
			"gasPerPubdataByteLimit": big.NewInt(DefaultGasPerPubdata),
			"maxFeePerGas":           bigOrZero(tx.GasPrice),
			"maxPriorityFeePerGas":   bigOrZero(tx.MaxPriorityFeePerGas),
			"paymaster":              paymaster,
			"nonce":                  new(big.Int).SetUint64(tx.Nonce),
			"value":                  bigOrZero(tx.Value),
			"data":                   calldata,
			"factoryDeps":            factoryDeps,
			"paymasterInput":         paymasterInput,
		},
	}
}

// SigningHash returns the EIP-712 digest of the transaction.
func (tx *DeployTransaction) SigningHash(estimatedGas uint64) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(tx.TypedData(estimatedGas))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// SignTypedData signs the transaction with whatever the signer supports.
// Signers that understand EIP-712 receive the document, plain hash signers
// receive the digest. Both yield the same 65-byte signature with v in {27, 28}.
func SignTypedData(signer any, tx *DeployTransaction, estimatedGas uint64) ([]byte, error) {
	var (
		sig []byte
		err error
	)

	switch s := signer.(type) {
	case TypedDataSigner:
		sig, err = s.SignTypedData(tx.TypedData(estimatedGas))
	case HashSigner:
		var digest common.Hash
		digest, err = tx.SigningHash(estimatedGas)
		if err != nil {
			return nil, err
		}
		sig, err = s.SignHash(digest.Bytes())
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSigner, signer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}

	return NormalizeSignature(sig)
}

// NormalizeSignature returns a copy of sig with the recovery id shifted to 27/28.
func NormalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != signatureLength {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSignature, len(sig))
	}

	out := make([]byte, signatureLength)
	copy(out, sig)
	if out[64] < 27 {
		out[64] += 27
	}

	return out, nil
}

func addressToInt(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}
