package zksync

import (
	"errors"
	"fmt"
)

var (
	ErrBytecodeLength    = errors.New("bytecode length must be a multiple of 32 bytes")
	ErrBytecodeTooLong   = errors.New("bytecode length in words must be less than 2^16")
	ErrBytecodeHash      = errors.New("bytecode hash does not match bytecode")
	ErrUnsupportedSigner = errors.New("account supports neither typed data nor hash signing")
	ErrInvalidSignature  = errors.New("invalid signature length")
)

// ErrorKind distinguishes a generic VM failure from an explicit revert.
type ErrorKind int

const (
	VMFailure ErrorKind = iota
	Revert
)

func (k ErrorKind) String() string {
	switch k {
	case Revert:
		return "revert"
	default:
		return "vm error"
	}
}

// VMError is the failure recorded on a computation.
type VMError struct {
	Kind    ErrorKind
	Message string
}

func NewVMError(msg string) *VMError {
	return &VMError{Kind: VMFailure, Message: msg}
}

func NewRevert(reason string) *VMError {
	return &VMError{Kind: Revert, Message: reason}
}

func (e *VMError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
