package zksync

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Message is the minimal unit submitted to a trace or call simulation.
type Message struct {
	Sender common.Address
	To     common.Address
	Gas    uint64
	Value  *big.Int
	Data   []byte
}

// CallArgs is the JSON-RPC call object for eth_call and debug_traceCall.
type CallArgs struct {
	From  common.Address  `json:"from"`
	To    common.Address  `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
}

func (m Message) CallArgs() CallArgs {
	args := CallArgs{
		From:  m.Sender,
		To:    m.To,
		Value: (*hexutil.Big)(bigOrZero(m.Value)),
		Data:  m.Data,
	}
	if m.Gas > 0 {
		gas := hexutil.Uint64(m.Gas)
		args.Gas = &gas
	}
	return args
}

// IsCreate reports whether the message targets the contract deployer.
func (m Message) IsCreate() bool {
	return m.To == ContractDeployerAddress
}
