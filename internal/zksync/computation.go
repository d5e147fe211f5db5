package zksync

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallTypeCall is the trace type used when a frame carries none.
const CallTypeCall = "Call"

// ContractRegistry resolves addresses to the names of known contracts.
type ContractRegistry interface {
	LookupContract(addr common.Address) (name string, ok bool)
}

// Quantity is a hex encoded trace integer. Nodes are not consistent about
// leading zeros or empty values, so decoding is lenient.
type Quantity big.Int

func (q *Quantity) UnmarshalJSON(input []byte) error {
	if string(input) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return fmt.Errorf("failed to decode quantity: %w", err)
	}

	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		(*big.Int)(q).SetUint64(0)
		return nil
	}
	if _, ok := (*big.Int)(q).SetString(s, 16); !ok {
		return fmt.Errorf("invalid hex quantity %q", s)
	}

	return nil
}

func (q *Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.EncodeBig(q.Big()))
}

// Big returns the value, zero when q is nil.
func (q *Quantity) Big() *big.Int {
	if q == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(q))
}

func (q *Quantity) Uint64() uint64 {
	return q.Big().Uint64()
}

// CallFrame is one frame of a callTracer result.
type CallFrame struct {
	Type         string         `json:"type,omitempty"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Gas          *Quantity      `json:"gas,omitempty"`
	GasUsed      *Quantity      `json:"gasUsed,omitempty"`
	Value        *Quantity      `json:"value,omitempty"`
	Input        hexutil.Bytes  `json:"input,omitempty"`
	Output       hexutil.Bytes  `json:"output,omitempty"`
	// Error and RevertReason are set when the key is present, even if empty.
	Error        *string        `json:"error,omitempty"`
	RevertReason *string        `json:"revertReason,omitempty"`
	Calls        []CallFrame    `json:"calls,omitempty"`
}

// ResultKind is the success or error variant of a computation.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultError
)

// Result is the outcome of a computation as a value.
type Result struct {
	Kind   ResultKind
	Output []byte
	Err    *VMError
}

// Computation is one node of a call tree. It is built once from a trace and
// not modified afterwards.
type Computation struct {
	Registry     ContractRegistry
	Msg          Message
	Output       []byte
	Err          *VMError
	Children     []*Computation
	GasUsed      uint64
	RevertReason string
	Type         string
	Value        *big.Int
}

// FromCallTrace builds a computation tree mirroring the trace, one node per
// frame, children in trace order.
func FromCallTrace(registry ContractRegistry, frame *CallFrame) *Computation {
	var (
		vmErr        *VMError
		revertReason string
	)
	if frame.Error != nil {
		vmErr = NewVMError(*frame.Error)
	}
	if frame.RevertReason != nil {
		revertReason = *frame.RevertReason
		vmErr = NewRevert(revertReason)
	}

	children := make([]*Computation, 0, len(frame.Calls))
	for i := range frame.Calls {
		children = append(children, FromCallTrace(registry, &frame.Calls[i]))
	}

	callType := frame.Type
	if callType == "" {
		callType = CallTypeCall
	}

	return &Computation{
		Registry: registry,
		Msg: Message{
			Sender: frame.From,
			To:     frame.To,
			Gas:    frame.Gas.Uint64(),
			Value:  frame.Value.Big(),
			Data:   frame.Input,
		},
		Output:       frame.Output,
		Err:          vmErr,
		Children:     children,
		GasUsed:      frame.GasUsed.Uint64(),
		RevertReason: revertReason,
		Type:         callType,
		Value:        frame.Value.Big(),
	}
}

// FromDebugTrace locates the user-level call inside a transaction trace.
// System contract calls wrap it, so the calls are searched depth first for
// the frame whose (to, from) equals the root's. Without a nested match the
// root itself is the result.
func FromDebugTrace(registry ContractRegistry, frame *CallFrame) *Computation {
	if found := findCall(frame.Calls, frame.To, frame.From); found != nil {
		return FromCallTrace(registry, found)
	}
	return FromCallTrace(registry, frame)
}

func findCall(calls []CallFrame, to, from common.Address) *CallFrame {
	for i := range calls {
		if found := findCall(calls[i].Calls, to, from); found != nil {
			return found
		}
		if calls[i].To == to && calls[i].From == from {
			return &calls[i]
		}
	}
	return nil
}

func (c *Computation) IsSuccess() bool {
	return c.Err == nil
}

func (c *Computation) IsError() bool {
	return c.Err != nil
}

func (c *Computation) Result() Result {
	if c.Err != nil {
		return Result{Kind: ResultError, Output: c.Output, Err: c.Err}
	}
	return Result{Kind: ResultSuccess, Output: c.Output}
}

// RaiseIfError returns the stored error unchanged, or nil.
func (c *Computation) RaiseIfError() error {
	if c.Err == nil {
		return nil
	}
	return c.Err
}

// ContractName returns the registered name of the called contract.
func (c *Computation) ContractName() (string, bool) {
	if c.Registry == nil {
		return "", false
	}
	return c.Registry.LookupContract(c.Msg.To)
}
