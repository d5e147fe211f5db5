package env

import (
	"errors"
	"fmt"

	"github.com/compose-network/zksync-devkit/internal/zksync"
)

var (
	ErrUnknownAccount    = errors.New("account is not available")
	ErrNoSender          = errors.New("no sender given and no default account configured")
	ErrEstimateGasFailed = errors.New("estimate gas failed")
	ErrTraceMismatch     = errors.New("trace mismatch")
)

// EstimateGasError wraps the node's answer to a failed eth_estimateGas.
type EstimateGasError struct {
	Err error
}

func (e *EstimateGasError) Error() string {
	return fmt.Sprintf("%s: %v", ErrEstimateGasFailed, e.Err)
}

func (e *EstimateGasError) Unwrap() []error {
	return []error{ErrEstimateGasFailed, e.Err}
}

// TraceMismatchError reports a dry run that disagreed with the mined
// transaction about whether the call failed.
type TraceMismatchError struct {
	Provisional *zksync.VMError
	Actual      *zksync.VMError
}

func (e *TraceMismatchError) Error() string {
	return fmt.Sprintf("%s: VMError mismatch: %s != %s", ErrTraceMismatch, describe(e.Provisional), describe(e.Actual))
}

func (e *TraceMismatchError) Unwrap() error {
	return ErrTraceMismatch
}

func describe(err *zksync.VMError) string {
	if err == nil {
		return "<none>"
	}
	return err.Error()
}
