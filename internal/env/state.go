package env

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func (e *Env) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := e.rpc.Eth().CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code of %s: %w", addr.Hex(), err)
	}
	return code, nil
}

func (e *Env) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := e.rpc.Eth().BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

// SetCode replaces the code at addr. Only test nodes support it.
func (e *Env) SetCode(ctx context.Context, addr common.Address, code []byte) error {
	if _, err := e.rpc.Fetch(ctx, "hardhat_setCode", addr, hexutil.Encode(code)); err != nil {
		return fmt.Errorf("failed to set code of %s: %w", addr.Hex(), err)
	}
	return nil
}

// SetBalance replaces the balance of addr. Only test nodes support it.
func (e *Env) SetBalance(ctx context.Context, addr common.Address, value *big.Int) error {
	if value == nil {
		value = new(big.Int)
	}
	if _, err := e.rpc.Fetch(ctx, "hardhat_setBalance", addr, hexutil.EncodeBig(value)); err != nil {
		return fmt.Errorf("failed to set balance of %s: %w", addr.Hex(), err)
	}
	return nil
}

// Anchor runs fn and then reverts the node to the state before it, whether
// or not fn failed.
func (e *Env) Anchor(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	var snapshotID hexutil.Uint64
	if err := e.rpc.FetchInto(ctx, &snapshotID, "evm_snapshot"); err != nil {
		return fmt.Errorf("failed to snapshot state: %w", err)
	}

	defer func() {
		var reverted bool
		if revertErr := e.rpc.FetchInto(ctx, &reverted, "evm_revert", snapshotID); revertErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to revert to snapshot %d: %w", snapshotID, revertErr))
		} else if !reverted {
			err = errors.Join(err, fmt.Errorf("snapshot %d was not reverted", snapshotID))
		}
	}()

	return fn(ctx)
}
