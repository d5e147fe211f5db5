package zksync

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// EIP712TxType is the transaction type byte of zkSync EIP-712 transactions.
	EIP712TxType = 0x71

	// DefaultGasPerPubdata is the gas-per-pubdata-byte limit sent with every deployment.
	DefaultGasPerPubdata = 50000
)

var (
	ContractDeployerAddress = common.HexToAddress("0x0000000000000000000000000000000000008006")

	// DefaultSalt is used for deployments when the caller does not pick one.
	DefaultSalt = common.Hash{}
)

// PaymasterParams names a fee sponsor and the opaque input passed to it.
type PaymasterParams struct {
	Address common.Address
	Input   []byte
}

// DeployTransaction holds everything needed to sign and encode a type 0x71
// deployment. It is built once per deployment and not modified afterwards.
type DeployTransaction struct {
	Sender                   common.Address
	To                       common.Address
	Gas                      uint64
	GasPrice                 *big.Int
	MaxPriorityFeePerGas     *big.Int
	Nonce                    uint64
	Value                    *big.Int
	Calldata                 []byte
	Bytecode                 []byte
	BytecodeHash             common.Hash
	DependencyBytecodes      [][]byte
	DependencyBytecodeHashes []common.Hash
	ChainID                  *big.Int
	Paymaster                *PaymasterParams
}

// Validate checks the bytecode invariants and that the stored hashes match.
func (tx *DeployTransaction) Validate() error {
	hash, err := HashBytecode(tx.Bytecode)
	if err != nil {
		return err
	}
	if hash != tx.BytecodeHash {
		return fmt.Errorf("%w: expected %s, got %s", ErrBytecodeHash, hash, tx.BytecodeHash)
	}

	if len(tx.DependencyBytecodes) != len(tx.DependencyBytecodeHashes) {
		return fmt.Errorf("%w: %d dependencies but %d hashes", ErrBytecodeHash, len(tx.DependencyBytecodes), len(tx.DependencyBytecodeHashes))
	}

	hashes, err := HashBytecodes(tx.DependencyBytecodes)
	if err != nil {
		return err
	}
	for i := range hashes {
		if hashes[i] != tx.DependencyBytecodeHashes[i] {
			return fmt.Errorf("%w: dependency %d", ErrBytecodeHash, i)
		}
	}

	return nil
}

// FactoryDeps returns the primary bytecode followed by the dependency bytecodes.
func (tx *DeployTransaction) FactoryDeps() [][]byte {
	deps := make([][]byte, 0, 1+len(tx.DependencyBytecodes))
	deps = append(deps, tx.Bytecode)
	return append(deps, tx.DependencyBytecodes...)
}

// FactoryDepHashes returns the bytecode hash followed by the dependency hashes.
func (tx *DeployTransaction) FactoryDepHashes() []common.Hash {
	hashes := make([]common.Hash, 0, 1+len(tx.DependencyBytecodeHashes))
	hashes = append(hashes, tx.BytecodeHash)
	return append(hashes, tx.DependencyBytecodeHashes...)
}

type (
	// EstimateRequest is the eth_estimateGas view of a deployment.
	EstimateRequest struct {
		TransactionType      string     `json:"transactionType"`
		ChainID              *big.Int   `json:"chain_id"`
		From                 string     `json:"from"`
		To                   string     `json:"to"`
		Gas                  string     `json:"gas"`
		GasPrice             string     `json:"gasPrice"`
		MaxPriorityFeePerGas string     `json:"maxPriorityFeePerGas"`
		Nonce                string     `json:"nonce"`
		Value                string     `json:"value"`
		Data                 string     `json:"data"`
		EIP712Meta           EIP712Meta `json:"eip712Meta"`
	}

	EIP712Meta struct {
		GasPerPubdata string `json:"gasPerPubdata"`
		// FactoryDeps are byte arrays of decimal values, not hex strings.
		FactoryDeps []ByteArray `json:"factoryDeps"`
	}
)

// ByteArray marshals as a JSON array of numbers rather than base64.
type ByteArray []byte

func (b ByteArray) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, 2+4*len(b))
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = fmt.Appendf(out, "%d", v)
	}
	return append(out, ']'), nil
}

// EstimateRequest renders the transaction for gas estimation.
func (tx *DeployTransaction) EstimateRequest() EstimateRequest {
	deps := tx.FactoryDeps()
	factoryDeps := make([]ByteArray, len(deps))
	for i, dep := range deps {
		factoryDeps[i] = ByteArray(dep)
	}

	return EstimateRequest{
		TransactionType:      hexutil.EncodeUint64(EIP712TxType),
		ChainID:              bigOrZero(tx.ChainID),
		From:                 tx.Sender.Hex(),
		To:                   tx.To.Hex(),
		Gas:                  hexutil.EncodeUint64(tx.Gas),
		GasPrice:             hexutil.EncodeBig(bigOrZero(tx.GasPrice)),
		MaxPriorityFeePerGas: hexutil.EncodeBig(bigOrZero(tx.MaxPriorityFeePerGas)),
		Nonce:                hexutil.EncodeUint64(tx.Nonce),
		Value:                hexutil.EncodeBig(bigOrZero(tx.Value)),
		Data:                 hexutil.Encode(tx.Calldata),
		EIP712Meta: EIP712Meta{
			GasPerPubdata: hexutil.EncodeUint64(DefaultGasPerPubdata),
			FactoryDeps:   factoryDeps,
		},
	}
}

// ToMap renders the transaction with hex-encoded byte fields for deployment records.
func (tx *DeployTransaction) ToMap() map[string]any {
	depBytecodes := make([]string, len(tx.DependencyBytecodes))
	for i, dep := range tx.DependencyBytecodes {
		depBytecodes[i] = hexutil.Encode(dep)
	}
	depHashes := make([]string, len(tx.DependencyBytecodeHashes))
	for i, hash := range tx.DependencyBytecodeHashes {
		depHashes[i] = hash.Hex()
	}

	m := map[string]any{
		"sender":                     tx.Sender.Hex(),
		"to":                         tx.To.Hex(),
		"gas":                        tx.Gas,
		"gas_price":                  bigOrZero(tx.GasPrice).String(),
		"max_priority_fee_per_gas":   bigOrZero(tx.MaxPriorityFeePerGas).String(),
		"nonce":                      tx.Nonce,
		"value":                      bigOrZero(tx.Value).String(),
		"calldata":                   hexutil.Encode(tx.Calldata),
		"bytecode":                   hexutil.Encode(tx.Bytecode),
		"bytecode_hash":              tx.BytecodeHash.Hex(),
		"dependency_bytecodes":       depBytecodes,
		"dependency_bytecode_hashes": depHashes,
		"chainId":                    bigOrZero(tx.ChainID).String(),
		"paymaster_params":           nil,
	}
	if tx.Paymaster != nil {
		m["paymaster_params"] = map[string]string{
			"paymaster":       tx.Paymaster.Address.Hex(),
			"paymaster_input": hexutil.Encode(tx.Paymaster.Input),
		}
	}

	return m
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
