package env

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/compose-network/zksync-devkit/internal/rpc"
	"github.com/compose-network/zksync-devkit/internal/zksync"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	traceBlockTag = "pending"

	estimateGasFailedMessage = "Estimate gas failed"
)

var callTracer = map[string]string{"tracer": "callTracer"}

// CallParams describes a contract call. IsModifying calls are broadcast as
// transactions after the dry run.
type CallParams struct {
	To          *common.Address
	Sender      *common.Address
	Gas         uint64
	Value       *big.Int
	Data        []byte
	IsModifying bool
}

// sentTransaction is a mined transaction and its trace, when the node
// supports tracing.
type sentTransaction struct {
	hash    common.Hash
	receipt *rpc.Receipt
	trace   *zksync.CallFrame
}

// ExecuteCode dry runs the call with a trace and returns the resulting
// computation. Modifying calls are then broadcast, and the mined trace
// must agree with the dry run about failure.
func (e *Env) ExecuteCode(ctx context.Context, p CallParams) (*zksync.Computation, error) {
	sender, err := e.resolveSender(p.Sender)
	if err != nil {
		return nil, err
	}

	var to common.Address
	if p.To != nil {
		to = *p.To
	}
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}

	msg := zksync.Message{
		Sender: sender,
		To:     to,
		Gas:    p.Gas,
		Value:  value,
		Data:   p.Data,
	}

	provisional, err := e.traceCall(ctx, msg)
	if err != nil {
		return nil, err
	}

	if !p.IsModifying {
		return provisional, nil
	}

	sent, err := e.sendTransaction(ctx, msg)
	if errors.Is(err, ErrEstimateGasFailed) {
		if provisional.IsError() {
			return provisional, nil
		}
		e.logger.With("to", to.Hex()).With("err", err).Warn("estimate gas failed although the dry run succeeded")
		return &zksync.Computation{
			Registry: e.registry,
			Msg:      msg,
			Err:      zksync.NewVMError(estimateGasFailedMessage),
			Type:     zksync.CallTypeCall,
			Value:    value,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if sent.trace == nil {
		return provisional, nil
	}

	actual := zksync.FromCallTrace(e.registry, sent.trace)
	if provisional.IsError() != actual.IsError() {
		return nil, &TraceMismatchError{Provisional: provisional.Err, Actual: actual.Err}
	}

	return zksync.FromDebugTrace(e.registry, sent.trace), nil
}

// traceCall runs debug_traceCall against the pending block. Nodes without
// the debug namespace get a plain eth_call, which yields no children.
func (e *Env) traceCall(ctx context.Context, msg zksync.Message) (*zksync.Computation, error) {
	args := msg.CallArgs()

	var frame zksync.CallFrame
	err := e.rpc.FetchInto(ctx, &frame, "debug_traceCall", args, traceBlockTag, callTracer)
	if err == nil {
		return zksync.FromCallTrace(e.registry, &frame), nil
	}
	if !rpc.IsNodeError(err) {
		return nil, err
	}

	e.logger.With("err", err).Debug("debug_traceCall unavailable, falling back to eth_call")

	var output hexutil.Bytes
	if err := e.rpc.FetchInto(ctx, &output, "eth_call", args, traceBlockTag); err != nil {
		return nil, err
	}

	return &zksync.Computation{
		Registry: e.registry,
		Msg:      msg,
		Output:   output,
		Type:     zksync.CallTypeCall,
		Value:    msg.Value,
	}, nil
}

// sendTransaction signs msg as an EIP-1559 transaction, broadcasts it and
// waits for the receipt.
func (e *Env) sendTransaction(ctx context.Context, msg zksync.Message) (*sentTransaction, error) {
	account, err := e.signer(msg.Sender)
	if err != nil {
		return nil, err
	}

	state, err := e.fetchChainState(ctx, msg.Sender, true)
	if err != nil {
		return nil, err
	}

	gas := msg.Gas
	if gas == 0 {
		gas, err = e.estimateGas(ctx, msg.CallArgs())
		if err != nil {
			return nil, err
		}
	}

	to := msg.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   state.chainID,
		Nonce:     state.nonce,
		GasTipCap: state.maxPriorityFeePerGas,
		GasFeeCap: state.gasPrice,
		Gas:       gas,
		To:        &to,
		Value:     msg.Value,
		Data:      msg.Data,
	})

	signed, err := account.SignTx(tx, state.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	var hash common.Hash
	if err := e.rpc.FetchInto(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return nil, err
	}
	e.logger.With("tx_hash", hash.Hex()).With("to", to.Hex()).Info("transaction broadcast")

	receipt, err := e.rpc.WaitForReceipt(ctx, hash, e.pollTimeout)
	if err != nil {
		return nil, err
	}
	e.setLastReceipt(receipt)
	e.logger.With("tx_hash", hash.Hex()).With("status", uint64(receipt.Status)).Info("transaction mined")

	sent := &sentTransaction{hash: hash, receipt: receipt}

	var frame zksync.CallFrame
	err = e.rpc.FetchInto(ctx, &frame, "debug_traceTransaction", hash, callTracer)
	switch {
	case err == nil:
		sent.trace = &frame
	case rpc.IsNodeError(err), errors.Is(err, rpc.ErrNullResponse):
		e.logger.With("tx_hash", hash.Hex()).With("err", err).Debug("transaction trace unavailable")
	default:
		return nil, err
	}

	return sent, nil
}
