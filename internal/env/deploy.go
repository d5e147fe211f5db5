package env

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/compose-network/zksync-devkit/internal/deployments"
	"github.com/compose-network/zksync-devkit/internal/rpc"
	"github.com/compose-network/zksync-devkit/internal/zksync"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrNoContractAddress = errors.New("receipt has no contract address")

// DeployParams describes one contract deployment. Zero values select the
// defaults: the default account, a zero salt and the gas price as priority fee.
type DeployParams struct {
	Sender               *common.Address
	Gas                  uint64
	Value                *big.Int
	Bytecode             []byte
	ConstructorCalldata  []byte
	DependencyBytecodes  [][]byte
	Salt                 *common.Hash
	MaxPriorityFeePerGas *big.Int
	Paymaster            *zksync.PaymasterParams

	// ContractName and ABI are only used for the registry and deployment records.
	ContractName string
	ABI          json.RawMessage
}

type DeployResult struct {
	Address     common.Address
	Bytecode    []byte
	TxHash      common.Hash
	Receipt     *rpc.Receipt
	Transaction *zksync.DeployTransaction
}

// DeployCode deploys bytecode through the ContractDeployer system contract
// with a signed type 0x71 transaction and waits for it to be mined.
func (e *Env) DeployCode(ctx context.Context, p DeployParams) (*DeployResult, error) {
	sender, err := e.resolveSender(p.Sender)
	if err != nil {
		return nil, err
	}
	account, err := e.signer(sender)
	if err != nil {
		return nil, err
	}

	log := e.logger.With("sender", sender.Hex())
	if p.ContractName != "" {
		log = log.With("contract", p.ContractName)
	}

	state, err := e.fetchChainState(ctx, sender, false)
	if err != nil {
		return nil, err
	}

	bytecodeHash, err := zksync.HashBytecode(p.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("failed to hash bytecode: %w", err)
	}
	dependencyHashes, err := zksync.HashBytecodes(p.DependencyBytecodes)
	if err != nil {
		return nil, fmt.Errorf("failed to hash dependency bytecodes: %w", err)
	}

	salt := zksync.DefaultSalt
	if p.Salt != nil {
		salt = *p.Salt
	}
	calldata, err := createCalldata(salt, bytecodeHash, p.ConstructorCalldata)
	if err != nil {
		return nil, err
	}

	maxPriorityFee := p.MaxPriorityFeePerGas
	if maxPriorityFee == nil {
		maxPriorityFee = state.gasPrice
	}
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}

	tx := &zksync.DeployTransaction{
		Sender:                   sender,
		To:                       zksync.ContractDeployerAddress,
		Gas:                      p.Gas,
		GasPrice:                 state.gasPrice,
		MaxPriorityFeePerGas:     maxPriorityFee,
		Nonce:                    state.nonce,
		Value:                    value,
		Calldata:                 calldata,
		Bytecode:                 p.Bytecode,
		BytecodeHash:             bytecodeHash,
		DependencyBytecodes:      p.DependencyBytecodes,
		DependencyBytecodeHashes: dependencyHashes,
		ChainID:                  state.chainID,
		Paymaster:                p.Paymaster,
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deploy transaction: %w", err)
	}

	estimatedGas, err := e.estimateGas(ctx, tx.EstimateRequest())
	if err != nil {
		return nil, err
	}

	signature, err := zksync.SignTypedData(account, tx, estimatedGas)
	if err != nil {
		return nil, err
	}
	raw, err := tx.Encode(signature, estimatedGas)
	if err != nil {
		return nil, err
	}

	broadcastAt := time.Now()

	var txHash common.Hash
	if err := e.rpc.FetchInto(ctx, &txHash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return nil, err
	}
	log.With("tx_hash", txHash.Hex()).With("gas", estimatedGas).Info("deploy transaction broadcast")

	receipt, err := e.rpc.WaitForReceipt(ctx, txHash, e.pollTimeout)
	if err != nil {
		return nil, err
	}
	e.setLastReceipt(receipt)
	log.With("tx_hash", txHash.Hex()).With("block_hash", receipt.BlockHash.Hex()).Info("deploy transaction mined")

	if receipt.ContractAddress == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoContractAddress, txHash.Hex())
	}
	address := *receipt.ContractAddress
	log.With("address", address.Hex()).Info("contract deployed")

	if p.ContractName != "" {
		e.registry.Register(address, p.ContractName)
	}

	if e.store != nil {
		record := deployments.Deployment{
			ContractName: p.ContractName,
			Address:      address,
			Deployer:     sender,
			TxHash:       txHash,
			BroadcastAt:  broadcastAt,
			RPC:          e.rpc.Name(),
			ChainID:      state.chainID.Uint64(),
			ABI:          p.ABI,
			Tx:           tx.ToMap(),
			Receipt:      receipt.Raw,
		}
		if err := e.store.Insert(record); err != nil {
			return nil, fmt.Errorf("failed to record deployment: %w", err)
		}
	}

	return &DeployResult{
		Address:     address,
		Bytecode:    p.Bytecode,
		TxHash:      txHash,
		Receipt:     receipt,
		Transaction: tx,
	}, nil
}
