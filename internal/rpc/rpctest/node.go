// Package rpctest serves a scripted zkSync node over an in-process JSON-RPC
// connection.
package rpctest

import (
	"encoding/json"
	"errors"
	"math/big"
	"sync"

	"github.com/compose-network/zksync-devkit/internal/zksync"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

var ErrDebugUnsupported = errors.New("the method debug_traceCall does not exist/is not available")

// Node answers requests from the fields set by the test. Every handled
// method is appended to Calls.
type Node struct {
	mu sync.Mutex

	ChainID      uint64
	GasPrice     *big.Int
	Nonces       map[common.Address]uint64
	EstimatedGas uint64
	EstimateErr  error

	// CallTrace answers debug_traceCall. DebugDisabled makes every debug
	// method fail like a node without the debug namespace.
	CallTrace     *zksync.CallFrame
	DebugDisabled bool
	CallOutput    []byte
	TxTrace       *zksync.CallFrame

	// PendingPolls is the number of receipt polls answered with null.
	PendingPolls    int
	NeverMine       bool
	ContractAddress common.Address

	Codes    map[common.Address][]byte
	Balances map[common.Address]*big.Int

	Calls            []string
	RawTransactions  [][]byte
	EstimateRequests []json.RawMessage
	TraceCallArgs    []json.RawMessage
	TraceBlockTags   []string

	receipts  map[common.Hash]map[string]any
	snapshots []snapshot
}

type snapshot struct {
	codes    map[common.Address][]byte
	balances map[common.Address]*big.Int
}

func NewNode() *Node {
	return &Node{
		ChainID:         260,
		GasPrice:        big.NewInt(100_000_000),
		Nonces:          map[common.Address]uint64{},
		EstimatedGas:    1_000_000,
		ContractAddress: common.HexToAddress("0x111C3E89Ce80e62EE88318C2804920D4c96f92bb"),
		Codes:           map[common.Address][]byte{},
		Balances:        map[common.Address]*big.Int{},
		receipts:        map[common.Hash]map[string]any{},
	}
}

// Dial starts an in-process server for the node.
func (n *Node) Dial() (*rpc.Client, error) {
	server := rpc.NewServer()
	for name, service := range map[string]any{
		"eth":     &ethService{n},
		"debug":   &debugService{n},
		"hardhat": &hardhatService{n},
		"evm":     &evmService{n},
	} {
		if err := server.RegisterName(name, service); err != nil {
			return nil, err
		}
	}
	return rpc.DialInProc(server), nil
}

// CallCount returns the number of handled requests.
func (n *Node) CallCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Calls)
}

func (n *Node) record(method string) {
	n.Calls = append(n.Calls, method)
}

type ethService struct{ n *Node }

func (s *ethService) ChainId() hexutil.Uint64 {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("eth_chainId")
	return hexutil.Uint64(s.n.ChainID)
}

func (s *ethService) GasPrice() *hexutil.Big {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("eth_gasPrice")
	return (*hexutil.Big)(s.n.GasPrice)
}

func (s *ethService) GetTransactionCount(addr common.Address, block string) hexutil.Uint64 {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("eth_getTransactionCount")
	return hexutil.Uint64(s.n.Nonces[addr])
}

func (s *ethService) EstimateGas(req json.RawMessage) (hexutil.Uint64, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("eth_estimateGas")
	s.n.EstimateRequests = append(s.n.EstimateRequests, req)
	if s.n.EstimateErr != nil {
		return 0, s.n.EstimateErr
	}
	return hexutil.Uint64(s.n.EstimatedGas), nil
}

func (s *ethService) SendRawTransaction(raw hexutil.Bytes) common.Hash {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("eth_sendRawTransaction")
	s.n.RawTransactions = append(s.n.RawTransactions, raw)

	hash := crypto.Keccak256Hash(raw)
	receipt := map[string]any{
		"transactionHash": hash,
		"blockHash":       common.HexToHash("0xb10c"),
		"blockNumber":     "0x1",
		"status":          "0x1",
		"gasUsed":         hexutil.Uint64(s.n.EstimatedGas / 2),
		"contractAddress": nil,
	}
	if len(raw) > 0 && raw[0] == zksync.EIP712TxType {
		receipt["contractAddress"] = s.n.ContractAddress
	}
	s.n.receipts[hash] = receipt

	return hash
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) map[string]any {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("eth_getTransactionReceipt")
	if s.n.NeverMine {
		return nil
	}
	if s.n.PendingPolls > 0 {
		s.n.PendingPolls--
		return nil
	}
	return s.n.receipts[hash]
}

func (s *ethService) Call(args json.RawMessage, block string) hexutil.Bytes {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("eth_call")
	return s.n.CallOutput
}

func (s *ethService) GetCode(addr common.Address, block string) hexutil.Bytes {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("eth_getCode")
	return s.n.Codes[addr]
}

func (s *ethService) GetBalance(addr common.Address, block string) *hexutil.Big {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("eth_getBalance")
	balance, ok := s.n.Balances[addr]
	if !ok {
		balance = new(big.Int)
	}
	return (*hexutil.Big)(balance)
}

type debugService struct{ n *Node }

func (s *debugService) TraceCall(args json.RawMessage, block string, config json.RawMessage) (*zksync.CallFrame, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("debug_traceCall")
	if s.n.DebugDisabled {
		return nil, ErrDebugUnsupported
	}
	s.n.TraceCallArgs = append(s.n.TraceCallArgs, args)
	s.n.TraceBlockTags = append(s.n.TraceBlockTags, block)
	return s.n.CallTrace, nil
}

func (s *debugService) TraceTransaction(hash common.Hash, config json.RawMessage) (*zksync.CallFrame, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("debug_traceTransaction")
	if s.n.DebugDisabled {
		return nil, ErrDebugUnsupported
	}
	return s.n.TxTrace, nil
}

type hardhatService struct{ n *Node }

func (s *hardhatService) SetCode(addr common.Address, code hexutil.Bytes) bool {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("hardhat_setCode")
	s.n.Codes[addr] = code
	return true
}

func (s *hardhatService) SetBalance(addr common.Address, value *hexutil.Big) bool {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("hardhat_setBalance")
	s.n.Balances[addr] = (*big.Int)(value)
	return true
}

type evmService struct{ n *Node }

func (s *evmService) Snapshot() hexutil.Uint64 {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("evm_snapshot")

	snap := snapshot{
		codes:    make(map[common.Address][]byte, len(s.n.Codes)),
		balances: make(map[common.Address]*big.Int, len(s.n.Balances)),
	}
	for k, v := range s.n.Codes {
		snap.codes[k] = v
	}
	for k, v := range s.n.Balances {
		snap.balances[k] = new(big.Int).Set(v)
	}
	s.n.snapshots = append(s.n.snapshots, snap)

	return hexutil.Uint64(len(s.n.snapshots) - 1)
}

func (s *evmService) Revert(id hexutil.Uint64) bool {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("evm_revert")

	if int(id) >= len(s.n.snapshots) {
		return false
	}
	snap := s.n.snapshots[id]
	s.n.Codes = snap.codes
	s.n.Balances = snap.balances
	s.n.snapshots = s.n.snapshots[:id]
	return true
}
