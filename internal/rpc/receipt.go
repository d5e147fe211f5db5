package rpc

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt keeps the receipt fields used here and the raw node response,
// which carries zkSync specific fields as well.
type Receipt struct {
	TxHash          common.Hash     `json:"transactionHash"`
	BlockHash       common.Hash     `json:"blockHash"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
	From            common.Address  `json:"from"`
	To              *common.Address `json:"to"`
	ContractAddress *common.Address `json:"contractAddress"`
	Status          hexutil.Uint64  `json:"status"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`

	Raw json.RawMessage `json:"-"`
}

func (r *Receipt) Succeeded() bool {
	return uint64(r.Status) == types.ReceiptStatusSuccessful
}
